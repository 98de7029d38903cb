// Package api provides the HTTP API through which the learning UI and the
// tutor drive learner sessions.
package api

import (
	"net/http"
	"time"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// StatsWindow is the velocity window of the stats endpoint when the
	// request does not name one. Defaults to 24h.
	StatsWindow time.Duration

	// StatsHistory bounds the review log records stats are computed over.
	// Defaults to 1000.
	StatsHistory int

	// MCPHandler is mounted at /mcp when set.
	MCPHandler http.Handler

	// Now is the server clock. Defaults to time.Now.
	Now func() time.Time
}
