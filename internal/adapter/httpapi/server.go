// Package httpapi exposes search, answers and document ingest over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

var config = fiber.Config{
	ErrorHandler:          ErrorHandler,
	DisableStartupMessage: true,
}

type Server struct {
	listenAddr string
	app        *fiber.App
	logger     *slog.Logger
}

func NewServer(addr string, handler *RequestHandler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		app          = fiber.New(config)
		checkHandler = NewCheckHandler()
		check        = app.Group("/check")
		apiv1        = app.Group("/api/v1")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)
	apiv1.Post("/search", handler.HandleSearch)
	apiv1.Post("/ask", handler.HandleAsk)
	apiv1.Get("/technologies", handler.HandleTechnologies)
	apiv1.Get("/technologies/:tech/stats", handler.HandleStats)
	apiv1.Post("/documents", handler.HandleAddDocument)

	return &Server{
		listenAddr: addr,
		app:        app,
		logger:     logger,
	}
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server started", "addr", s.listenAddr)
		errc <- s.app.Listen(s.listenAddr)
	}()

	select {
	case err := <-errc:
		s.logger.Error("error to start server", "error", err)
		return err
	case <-ctx.Done():
		err := s.app.ShutdownWithTimeout(5 * time.Second)
		s.logger.Info("server stopped")
		return err
	}
}
