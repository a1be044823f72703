// Package account reads account information such as the remaining balance.
package account

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sfchat/internal/client"
	"sfchat/internal/config"
	"sfchat/internal/logs"
)

const (
	userInfoPath = "/user/info"
	userAgent    = "sfchat/0.1"

	maxErrorBody = 64 * 1024
)

// UserInfo is the account record returned by the service. Balances are
// decimal strings as sent by the API.
type UserInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Balance       string `json:"balance"`
	ChargeBalance string `json:"chargeBalance"`
	TotalBalance  string `json:"totalBalance"`
	Status        string `json:"status"`
}

type userInfoEnvelope struct {
	Code    int       `json:"code"`
	Status  bool      `json:"status"`
	Message string    `json:"message"`
	Data    *UserInfo `json:"data"`
}

// Service queries account endpoints with the configured credential.
type Service struct {
	url     string
	headers http.Header
	client  *http.Client
	logger  *zap.Logger
}

// New builds a Service. A nil hc gets a client bounded by the configured timeout.
func New(cfg config.Config, hc *http.Client, logger *zap.Logger) (*Service, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.WithStack(config.ErrMissingCredential)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.TimeoutDuration()}
		if hc.Timeout <= 0 {
			hc.Timeout = time.Duration(config.DefaultTimeout) * time.Second
		}
	}

	return &Service{
		url:     baseURL + userInfoPath,
		headers: cfg.Headers(),
		client:  hc,
		logger:  logs.Module(logger, "account"),
	}, nil
}

// UserInfo fetches the account behind the API key.
func (s *Service) UserInfo(ctx context.Context) (*UserInfo, error) {
	req, err := s.newRequest(ctx, http.MethodGet, s.url)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, client.Classify(errors.Wrap(err, "user info request failed"))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp)
	}

	var envelope userInfoEnvelope
	if err := decodeJSON(resp.Body, &envelope); err != nil {
		return nil, err
	}
	if !envelope.Status || envelope.Data == nil {
		return nil, errors.Errorf("user info rejected (code %d): %s", envelope.Code, envelope.Message)
	}

	s.logger.Debug("user info", zap.String("id", envelope.Data.ID), zap.String("total_balance", envelope.Data.TotalBalance))
	return envelope.Data, nil
}

func (s *Service) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "construct request")
	}
	for k, vs := range s.headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

type apiErrorBody struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func parseAPIError(resp *http.Response) error {
	reqErr := &client.RequestError{
		Kind:       client.KindForStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		reqErr.Err = errors.Wrap(err, "read error body")
		return reqErr
	}

	var parsed apiErrorBody
	switch {
	case json.Unmarshal(body, &parsed) != nil:
		if text := strings.TrimSpace(string(body)); text != "" {
			reqErr.Message = text
		}
	case parsed.Error != nil && parsed.Error.Message != "":
		reqErr.Message = parsed.Error.Message
	case parsed.Message != "":
		reqErr.Message = parsed.Message
	}
	return reqErr
}

func decodeJSON(reader io.Reader, target any) error {
	if err := json.NewDecoder(reader).Decode(target); err != nil {
		return errors.Wrap(err, "decode user info response")
	}
	return nil
}
