package config

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// whitespace-only values count as unset, matching client.New
		_ = validate.RegisterValidation("notblank", validators.NotBlank)
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Violation describes one field that failed validation.
type Violation struct {
	Field string
	Rule  string
	Param string
	Value any
}

func (v Violation) String() string {
	switch v.Rule {
	case "required", "notblank":
		return v.Field + " must be set"
	case "url":
		return fmt.Sprintf("%s must be a valid URL, got %q", v.Field, v.Value)
	case "min", "gte":
		return fmt.Sprintf("%s must be >= %s, got %v", v.Field, v.Param, v.Value)
	case "max", "lte":
		return fmt.Sprintf("%s must be <= %s, got %v", v.Field, v.Param, v.Value)
	case "gt":
		return fmt.Sprintf("%s must be > %s, got %v", v.Field, v.Param, v.Value)
	default:
		return fmt.Sprintf("%s failed %s", v.Field, v.Rule)
	}
}

// ValidationError lists every violation found in a Config.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// Is reports ErrMissingCredential when the api key is among the violations.
func (e *ValidationError) Is(target error) bool {
	if target != ErrMissingCredential {
		return false
	}
	return e.Has("api_key")
}

// Has reports whether field failed validation.
func (e *ValidationError) Has(field string) bool {
	for _, v := range e.Violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

// Validate checks every field and returns a *ValidationError describing all
// violations. Each violation is also logged at warn level.
func (c Config) Validate() error {
	err := structValidator().Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Wrap(err, "validate configuration")
	}

	verr := &ValidationError{Violations: make([]Violation, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		v := Violation{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param(), Value: fe.Value()}
		if v.Field == "api_key" {
			// never echo credentials
			v.Value = nil
		}
		verr.Violations = append(verr.Violations, v)
		zap.L().Warn("invalid configuration",
			zap.String("field", v.Field),
			zap.String("rule", v.Rule),
			zap.String("detail", v.String()),
		)
	}
	return verr
}

// Valid reports whether Validate returns nil.
func (c Config) Valid() bool {
	return c.Validate() == nil
}
