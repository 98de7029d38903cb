package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/cadence/pkg/bridge"
	"github.com/papercomputeco/cadence/pkg/coordinator"
	"github.com/papercomputeco/cadence/pkg/storage"
)

const (
	defaultStatsWindow  = 24 * time.Hour
	defaultStatsHistory = 1000
)

// Server is the API server for learner sessions.
type Server struct {
	config Config
	coord  *coordinator.Coordinator
	bridge *bridge.Bridge
	store  storage.Driver
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
// The coordinator and store are injected to allow sharing with other
// components such as the MCP server.
func NewServer(config Config, coord *coordinator.Coordinator, br *bridge.Bridge, store storage.Driver, logger *slog.Logger) (*Server, error) {
	if coord == nil {
		return nil, errors.New("coordinator is required")
	}
	if br == nil {
		return nil, errors.New("bridge is required")
	}
	if store == nil {
		return nil, errors.New("storage driver is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if config.StatsWindow <= 0 {
		config.StatsWindow = defaultStatsWindow
	}
	if config.StatsHistory <= 0 {
		config.StatsHistory = defaultStatsHistory
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		coord:  coord,
		bridge: br,
		store:  store,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/v1/sessions", s.handleListSessions)

	users := app.Group("/v1/users/:user")
	users.Post("/session", s.handleOpenSession)
	users.Get("/session", s.handleGetSession)
	users.Delete("/session", s.handleCloseSession)
	users.Post("/items", s.handleEnroll)
	users.Get("/items/:item/history", s.handleItemHistory)
	users.Post("/reviews", s.handleRecordReview)
	users.Get("/due", s.handleDue)
	users.Get("/snapshot", s.handleSnapshot)
	users.Post("/flush", s.handleFlush)
	users.Get("/context", s.handleContext)
	users.Post("/tutor", s.handleTutor)
	users.Post("/signals", s.handleSignal)
	users.Get("/stats", s.handleStats)

	if config.MCPHandler != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCPHandler))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server, waiting for in-flight
// requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
