package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sfchat/internal/client"
	"sfchat/internal/models"
)

// chatRequest accepts either a prompt with an optional system prompt or a full
// message history.
type chatRequest struct {
	Prompt       string           `json:"prompt"`
	SystemPrompt string           `json:"system_prompt"`
	Messages     []models.Message `json:"messages"`
	MaxTokens    *int             `json:"max_tokens,omitempty"`
	Temperature  *float64         `json:"temperature,omitempty"`
	TopP         *float64         `json:"top_p,omitempty"`
	Stop         []string         `json:"stop,omitempty"`
	Seed         *int             `json:"seed,omitempty"`
	Extra        map[string]any   `json:"extra,omitempty"`
}

func (r chatRequest) messages() ([]models.Message, error) {
	if len(r.Messages) > 0 {
		if r.Prompt != "" || r.SystemPrompt != "" {
			return nil, invalidRequest("use either prompt or messages, not both")
		}
		for i, m := range r.Messages {
			if !m.Role.Valid() {
				return nil, invalidRequest(fmt.Sprintf("messages[%d]: unsupported role %q", i, m.Role))
			}
		}
		return r.Messages, nil
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return nil, invalidRequest("prompt or messages is required")
	}
	return models.Prompt(r.Prompt, r.SystemPrompt), nil
}

func (r chatRequest) options() []client.CallOption {
	var opts []client.CallOption
	if r.MaxTokens != nil {
		opts = append(opts, client.WithMaxTokens(*r.MaxTokens))
	}
	if r.Temperature != nil {
		opts = append(opts, client.WithTemperature(*r.Temperature))
	}
	if r.TopP != nil {
		opts = append(opts, client.WithTopP(*r.TopP))
	}
	if len(r.Stop) > 0 {
		opts = append(opts, client.WithStop(r.Stop...))
	}
	if r.Seed != nil {
		opts = append(opts, client.WithSeed(*r.Seed))
	}
	if len(r.Extra) > 0 {
		opts = append(opts, client.WithExtras(r.Extra))
	}
	return opts
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "model": s.chat.Model()})
}

func (s *Server) handlePresets(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"data": s.presets.List()})
}

func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	msgs, err := req.messages()
	if err != nil {
		return err
	}

	resp, err := s.chat.Generate(c.Request().Context(), msgs, req.options()...)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleChatStream(c echo.Context) error {
	var req chatRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	msgs, err := req.messages()
	if err != nil {
		return err
	}

	writer := c.Response().Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		s.logger.Error("http writer does not support flushing")
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "server does not support streaming responses",
			Type:    "server_error",
		}
	}

	stream, err := s.chat.GenerateStream(c.Request().Context(), msgs, req.options()...)
	if err != nil {
		return toHTTPError(err)
	}
	defer stream.Close()

	header := c.Response().Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	for content, err := range stream.Fragments() {
		if err != nil {
			// headers are gone already, report in band
			s.logger.Warn("stream interrupted", zap.Error(err))
			herr := toHTTPError(err)
			var payload errorBody
			payload.Error.Message = herr.Message
			payload.Error.Type = herr.Type
			if werr := writeSSEEvent(writer, "error", payload); werr != nil {
				return nil
			}
			flusher.Flush()
			return nil
		}
		if err := writeSSEEvent(writer, "", models.Fragment{Content: content}); err != nil {
			s.logger.Warn("failed to write SSE event", zap.Error(err))
			return nil
		}
		flusher.Flush()
	}

	if _, err := io.WriteString(writer, "data: [DONE]\n\n"); err != nil {
		return nil
	}
	flusher.Flush()
	return nil
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return invalidRequest("request body is required")
		}
		return invalidRequest(fmt.Sprintf("invalid JSON payload: %v", err))
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return invalidRequest("request body must contain a single JSON object")
	}
	return nil
}

type requestError struct {
	Status  int
	Message string
	Type    string
	Code    string
}

func (e requestError) Error() string {
	return e.Message
}

func invalidRequest(msg string) requestError {
	return requestError{Status: http.StatusBadRequest, Message: msg, Type: "invalid_request_error"}
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

func writeError(c echo.Context, status int, message, errType, code string) error {
	var payload errorBody
	payload.Error.Message = message
	payload.Error.Type = errType
	payload.Error.Code = code
	return c.JSON(status, payload)
}

func openAIErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type, reqErr.Code)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = writeError(c, he.Code, fmt.Sprint(he.Message), "invalid_request_error", "")
		return
	}

	_ = writeError(c, http.StatusInternalServerError, "internal server error", "server_error", "")
}

// toHTTPError maps client failures onto gateway statuses.
func toHTTPError(err error) requestError {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	if errors.Is(err, client.ErrNoChoices) {
		return requestError{
			Status:  http.StatusBadGateway,
			Message: "upstream returned an empty response",
			Type:    "upstream_error",
		}
	}

	var upstream *client.RequestError
	if errors.As(err, &upstream) {
		switch upstream.Kind {
		case client.KindBadRequest:
			return requestError{Status: http.StatusBadRequest, Message: upstream.Message, Type: "invalid_request_error", Code: upstream.Kind.String()}
		case client.KindUnauthorized:
			return requestError{Status: http.StatusUnauthorized, Message: client.Hint(upstream.Kind), Type: "authentication_error", Code: upstream.Kind.String()}
		case client.KindRateLimited:
			return requestError{Status: http.StatusTooManyRequests, Message: client.Hint(upstream.Kind), Type: "rate_limit_error", Code: upstream.Kind.String()}
		}
	}

	return requestError{
		Status:  http.StatusBadGateway,
		Message: "upstream provider error",
		Type:    "upstream_error",
	}
}

func writeSSEEvent(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal SSE payload")
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return errors.Wrap(err, "write SSE event name")
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return errors.Wrap(err, "write SSE data")
	}
	return nil
}
