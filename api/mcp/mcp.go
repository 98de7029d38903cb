// Package mcp provides an MCP (Model Context Protocol) server that lets an
// AI tutor read a learner's due items and context and record outcomes.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/cadence/pkg/bridge"
	"github.com/papercomputeco/cadence/pkg/progress"
	"github.com/papercomputeco/cadence/pkg/utils"
)

// Sessions is the subset of the sync coordinator the tools use.
type Sessions interface {
	Snapshot(userID string) (*progress.Snapshot, error)
	GetDue(userID string, now time.Time) ([]string, error)
	RecordOutcome(ctx context.Context, userID, itemID string, outcome progress.Outcome, now time.Time) (progress.ItemProgress, error)
}

type Config struct {
	// Sessions serves due items and records outcomes.
	Sessions Sessions

	// Bridge builds learner contexts.
	Bridge *bridge.Bridge

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger

	// Now is the tool clock. Defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the learner tools.
func NewServer(c Config) (*Server, error) {
	if c.Now == nil {
		c.Now = time.Now
	}

	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "cadence",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Sessions == nil {
			return nil, errors.New("sessions are required")
		}
		if c.Bridge == nil {
			return nil, errors.New("bridge is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        dueItemsToolName,
			Description: dueItemsDescription,
		}, s.handleDueItems)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        recordOutcomeToolName,
			Description: recordOutcomeDescription,
		}, s.handleRecordOutcome)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        learnerContextToolName,
			Description: learnerContextDescription,
		}, s.handleLearnerContext)
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
