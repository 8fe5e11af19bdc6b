// Package serve is the HTTP surface: OpenAI-compatible Chat Completions and
// Responses endpoints plus a generic multimodal streaming API, all fed by the
// per-conversation event bus.
package serve

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/liveeadmin/shai/agent"
	"github.com/liveeadmin/shai/config"
)

// Server wires the HTTP handlers over a session manager.
type Server struct {
	echo    *echo.Echo
	manager *agent.Manager
	cfg     *config.Config
	log     *slog.Logger
}

// NewServer builds the server and registers its routes.
func NewServer(cfg *config.Config, manager *agent.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:    e,
		manager: manager,
		cfg:     cfg,
		log:     logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.POST("/v1/chat/completions", s.ChatCompletions)
	s.echo.POST("/v1/responses", s.CreateResponse)
	s.echo.GET("/v1/responses/:id", s.GetResponse)
	s.echo.POST("/v1/responses/:id/cancel", s.CancelResponse)
	s.echo.POST("/v1/multimodal", s.Multimodal)
	s.echo.POST("/v1/multimodal/:session_id", s.Multimodal)
	s.echo.GET("/v1/sessions", s.ListSessions)
	s.echo.DELETE("/v1/sessions/:id", s.DeleteSession)
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("http server listening", "address", s.cfg.Server.Address)
	err := s.echo.Start(s.cfg.Server.Address)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains the session manager.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	s.manager.Shutdown(ctx)
	return err
}

// Echo exposes the router, mostly for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

// ListSessions reports the live persistent sessions.
// GET /v1/sessions
func (s *Server) ListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"object": "list",
		"data":   s.manager.List(),
	})
}

// DeleteSession tears a persistent session down.
// DELETE /v1/sessions/:id
func (s *Server) DeleteSession(c echo.Context) error {
	if err := s.manager.Delete(c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
