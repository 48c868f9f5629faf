// Package statusapi serves the bot's health, status, ledger lookups, and
// Prometheus metrics over HTTP.
package statusapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pevans/promobot/bot"
	"github.com/pevans/promobot/metrics"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// StatusSource provides the bot status snapshot.
type StatusSource interface {
	Status() bot.Status
}

// LedgerReader answers ledger lookups. Implementations must be safe for
// concurrent use.
type LedgerReader interface {
	Contains(id string) bool
	Len() int
}

// Server is the status HTTP server.
type Server struct {
	status StatusSource
	ledger LedgerReader
	log    zerolog.Logger
}

// NewServer creates a status server.
func NewServer(status StatusSource, ledger LedgerReader, log zerolog.Logger) *Server {
	return &Server{
		status: status,
		ledger: ledger,
		log:    log.With().Str("component", "statusapi").Logger(),
	}
}

// SetupRouter configures the Gin router with all status routes.
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", s.HandleHealth)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api/v1")
	api.GET("/status", s.HandleStatus)
	api.GET("/ledger", s.HandleLedgerSummary)
	api.GET("/ledger/:id", s.HandleLedgerLookup)

	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("Request")
	}
}

// errorResponse creates a standardized error response.
func errorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// HandleHealth handles GET /healthz.
func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleStatus handles GET /api/v1/status.
func (s *Server) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status.Status())
}

// LedgerResponse is returned by the ledger endpoints.
type LedgerResponse struct {
	ID       string `json:"id,omitempty"`
	Recorded *bool  `json:"recorded,omitempty"`
	Size     int    `json:"size"`
}

// HandleLedgerSummary handles GET /api/v1/ledger.
func (s *Server) HandleLedgerSummary(c *gin.Context) {
	c.JSON(http.StatusOK, LedgerResponse{Size: s.ledger.Len()})
}

// HandleLedgerLookup handles GET /api/v1/ledger/:id.
func (s *Server) HandleLedgerLookup(c *gin.Context) {
	id := c.Param("id")
	if !isNumeric(id) {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_id", "Torrent id must be numeric"))
		return
	}

	recorded := s.ledger.Contains(id)
	c.JSON(http.StatusOK, LedgerResponse{
		ID:       id,
		Recorded: &recorded,
		Size:     s.ledger.Len(),
	})
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("Status API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info().Msg("Status API stopped")
	return nil
}
