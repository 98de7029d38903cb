package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/cadence/pkg/coordinator"
	"github.com/papercomputeco/cadence/pkg/progress"
)

// EnrollRequest is the body of POST /v1/users/:user/items.
type EnrollRequest struct {
	Items []progress.LearningItem `json:"items"`
}

// EnrollResponse lists the items that were newly added.
type EnrollResponse struct {
	Added []progress.ItemProgress `json:"added"`
	Count int                     `json:"count"`
}

// ReviewRequest is the body of POST /v1/users/:user/reviews.
type ReviewRequest struct {
	// ID makes retried submissions idempotent in the review log. Optional.
	ID      string           `json:"id,omitempty"`
	ItemID  string           `json:"item_id"`
	Outcome progress.Outcome `json:"outcome"`

	// Timestamp defaults to the server clock.
	Timestamp         time.Time `json:"timestamp,omitzero"`
	ResponseLatencyMs *int64    `json:"response_latency_ms,omitempty"`
}

// DueResponse is the review queue at a point in time.
type DueResponse struct {
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
	Due    []string  `json:"due"`
	Count  int       `json:"count"`
}

// HistoryResponse contains the recent review records of one item.
type HistoryResponse struct {
	ItemID  string                  `json:"item_id"`
	Records []progress.ReviewRecord `json:"records"`
	Count   int                     `json:"count"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleListSessions handles GET /v1/sessions.
func (s *Server) handleListSessions(c *fiber.Ctx) error {
	ids := s.coord.Sessions()
	sessions := make([]coordinator.SessionInfo, 0, len(ids))
	for _, id := range ids {
		info, err := s.coord.Session(id)
		if err != nil {
			// Closed between listing and lookup.
			continue
		}
		sessions = append(sessions, info)
	}

	return c.JSON(map[string]any{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

// handleOpenSession handles POST /v1/users/:user/session. It hydrates the
// learner's progress and returns the snapshot.
func (s *Server) handleOpenSession(c *fiber.Ctx) error {
	snapshot, err := s.coord.Open(c.UserContext(), c.Params("user"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(snapshot)
}

// handleGetSession handles GET /v1/users/:user/session.
func (s *Server) handleGetSession(c *fiber.Ctx) error {
	info, err := s.coord.Session(c.Params("user"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(info)
}

// handleCloseSession handles DELETE /v1/users/:user/session. Progress that
// cannot be flushed is kept for the learner's next session.
func (s *Server) handleCloseSession(c *fiber.Ctx) error {
	if err := s.coord.Close(c.UserContext(), c.Params("user")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleEnroll handles POST /v1/users/:user/items.
func (s *Server) handleEnroll(c *fiber.Ctx) error {
	var req EnrollRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(req.Items) == 0 {
		return badRequest(c, "at least one item is required")
	}
	for _, item := range req.Items {
		if item.ID == "" {
			return badRequest(c, "item_id is required for all items")
		}
	}

	added, err := s.coord.Enroll(c.UserContext(), c.Params("user"), req.Items, s.config.Now())
	if err != nil {
		return s.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(EnrollResponse{
		Added: added,
		Count: len(added),
	})
}

// handleRecordReview handles POST /v1/users/:user/reviews.
func (s *Server) handleRecordReview(c *fiber.Ctx) error {
	var req ReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.ItemID == "" {
		return badRequest(c, "item_id is required")
	}

	rec := progress.ReviewRecord{
		ID:        req.ID,
		UserID:    c.Params("user"),
		ItemID:    req.ItemID,
		Timestamp: req.Timestamp,
		Outcome:   req.Outcome,
		Source:    progress.SourceSession,
	}
	if req.ResponseLatencyMs != nil {
		if *req.ResponseLatencyMs < 0 {
			return badRequest(c, "response_latency_ms must be non-negative")
		}
		latency := time.Duration(*req.ResponseLatencyMs) * time.Millisecond
		rec.ResponseLatency = &latency
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.config.Now()
	}

	p, err := s.coord.RecordReview(c.UserContext(), rec)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(p)
}

// handleDue handles GET /v1/users/:user/due.
func (s *Server) handleDue(c *fiber.Ctx) error {
	now := s.config.Now()
	if at := c.Query("at"); at != "" {
		parsed, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return badRequest(c, "at must be an RFC 3339 timestamp")
		}
		now = parsed
	}

	userID := c.Params("user")
	due, err := s.coord.GetDue(userID, now)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(DueResponse{
		UserID: userID,
		At:     now,
		Due:    due,
		Count:  len(due),
	})
}

// handleSnapshot handles GET /v1/users/:user/snapshot.
func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	snapshot, err := s.coord.Snapshot(c.Params("user"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(snapshot)
}

// handleItemHistory handles GET /v1/users/:user/items/:item/history.
func (s *Server) handleItemHistory(c *fiber.Ctx) error {
	itemID := c.Params("item")
	records, err := s.coord.History(c.Params("user"), itemID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(HistoryResponse{
		ItemID:  itemID,
		Records: records,
		Count:   len(records),
	})
}

// handleFlush handles POST /v1/users/:user/flush.
func (s *Server) handleFlush(c *fiber.Ctx) error {
	if err := s.coord.Flush(c.UserContext(), c.Params("user")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
