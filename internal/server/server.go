// Package server exposes the chat client over a small local HTTP gateway.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sfchat/internal/client"
	"sfchat/internal/config"
	"sfchat/internal/logs"
	"sfchat/internal/models"
	"sfchat/internal/preset"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	idleTimeout         = 120 * time.Second
)

// Chatter is the part of the chat client the gateway needs.
type Chatter interface {
	Model() string
	Generate(ctx context.Context, messages []models.Message, opts ...client.CallOption) (*models.Response, error)
	GenerateStream(ctx context.Context, messages []models.Message, opts ...client.CallOption) (*client.Stream, error)
}

type Server struct {
	cfg     config.Config
	chat    Chatter
	presets *preset.Registry
	app     *echo.Echo
	logger  *zap.Logger
	address string
	banner  io.Writer
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, chat Chatter, presets *preset.Registry, logger *zap.Logger) (*Server, error) {
	if chat == nil {
		return nil, errors.New("chat client must not be nil")
	}
	if presets == nil {
		presets = preset.Default()
	}
	if err := cfg.Server.Validate(); err != nil {
		return nil, err
	}
	logger = logs.Module(logger, "server")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = openAIErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Int64("latency_ms", v.Latency.Milliseconds()),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			logger.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))

	srv := &Server{
		cfg:     cfg,
		chat:    chat,
		presets: presets,
		app:     e,
		logger:  logger,
		address: fmt.Sprintf(":%d", cfg.Server.Port),
		banner:  os.Stdout,
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler returns the HTTP handler serving the gateway routes.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.printStartupBanner()
	s.logger.Info("starting server", zap.String("addr", s.address), zap.String("model", s.chat.Model()))

	// no WriteTimeout: streamed replies may outlive any fixed bound
	httpServer := &http.Server{
		Addr:        s.address,
		Handler:     s.app,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "graceful shutdown failed")
		}
		s.logger.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.GET("/v1/presets", s.handlePresets)
	s.app.POST("/v1/chat", s.handleChat)
	s.app.POST("/v1/chat/stream", s.handleChatStream)
}

func (s *Server) printStartupBanner() {
	host := "127.0.0.1"
	port := s.cfg.Server.Port
	w := s.banner
	fmt.Fprintln(w)
	fmt.Fprintln(w, "sfchat gateway ready")
	fmt.Fprintf(w, "Listening on http://%s:%d (model %s)\n", host, port, s.chat.Model())
	fmt.Fprintln(w, "Endpoints:")
	fmt.Fprintln(w, "  GET  /health")
	fmt.Fprintln(w, "  GET  /v1/presets")
	fmt.Fprintln(w, "  POST /v1/chat")
	fmt.Fprintln(w, "  POST /v1/chat/stream")
	fmt.Fprintf(w, "Example:\n  curl http://%s:%d/v1/chat -H 'Content-Type: application/json' -d '{\"prompt\":\"hello\"}'\n\n", host, port)
}
