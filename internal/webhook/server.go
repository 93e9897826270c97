// Package webhook exposes the inbound signal endpoint.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tathienbao/signal-bot/internal/types"
)

// SignalHandler handles one parsed signal. Satisfied by dispatch.Dispatcher.
type SignalHandler interface {
	Dispatch(ctx context.Context, action, ticker string) (types.Outcome, error)
}

// Config holds webhook server configuration.
type Config struct {
	Port int
	Path string
}

// signalRequest is the inbound payload, as sent by TradingView-style
// webhook alerts.
type signalRequest struct {
	Action string `json:"action"`
	Ticker string `json:"ticker"`
}

// Server receives signal webhooks and hands them to the dispatcher.
type Server struct {
	cfg        Config
	handler    SignalHandler
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates the webhook server.
func NewServer(cfg Config, handler SignalHandler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = "/webhook"
	}

	s := &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.POST(cfg.Path, s.handleSignal)
	router.GET("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins serving in the background.
func (s *Server) Start() {
	s.logger.Info("starting webhook server",
		"port", s.cfg.Port,
		"path", s.cfg.Path,
	)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("webhook server error", "error", err)
		}
	}()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down webhook server")
	return s.httpServer.Shutdown(ctx)
}

// handleSignal handles POST {path}. Responses carry either a status
// field (the signal was decided) or an error field, never both.
func (s *Server) handleSignal(c *gin.Context) {
	var req signalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	outcome, err := s.handler.Dispatch(c.Request.Context(), req.Action, req.Ticker)
	if err != nil {
		s.logger.Warn("signal rejected",
			"action", req.Action,
			"ticker", req.Ticker,
			"error", err,
		)

		switch {
		case errors.Is(err, types.ErrUnknownAction):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown action"})
		case errors.Is(err, types.ErrSymbolNotConfigured):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Ticker not configured"})
		case errors.Is(err, types.ErrPriceUnavailable):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Price unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": outcome.Status()})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Handler exposes the underlying HTTP handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
