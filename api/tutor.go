package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/cadence/pkg/ai"
	"github.com/papercomputeco/cadence/pkg/bridge"
	"github.com/papercomputeco/cadence/pkg/sse"
)

// TutorRequest is the body of POST /v1/users/:user/tutor.
type TutorRequest struct {
	Prompt string `json:"prompt"`

	// Stream replies with server-sent events instead of a single JSON body.
	Stream bool `json:"stream,omitempty"`
}

// TutorResponse is the non-streamed tutor reply.
type TutorResponse struct {
	UserID string `json:"user_id"`
	Reply  string `json:"reply"`
}

// SignalRequest is the body of POST /v1/users/:user/signals.
type SignalRequest struct {
	ItemID            string            `json:"item_id"`
	Kind              bridge.SignalKind `json:"kind"`
	At                time.Time         `json:"at,omitzero"`
	ResponseLatencyMs *int64            `json:"response_latency_ms,omitempty"`
	Note              string            `json:"note,omitempty"`
}

// streamDelta is the data of a "delta" server-sent event.
type streamDelta struct {
	Text string `json:"text"`
}

// streamDone is the data of the final "done" server-sent event.
type streamDone struct {
	StopReason string `json:"stop_reason,omitempty"`
}

// handleContext handles GET /v1/users/:user/context. It returns the bounded
// context the tutor would see.
func (s *Server) handleContext(c *fiber.Ctx) error {
	bc, err := s.bridge.BuildContext(c.Params("user"), s.config.Now())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(bc)
}

// handleTutor handles POST /v1/users/:user/tutor.
func (s *Server) handleTutor(c *fiber.Ctx) error {
	var req TutorRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Prompt == "" {
		return badRequest(c, "prompt is required")
	}

	userID := c.Params("user")
	if !req.Stream {
		reply, err := s.bridge.Generate(c.UserContext(), userID, req.Prompt, s.config.Now())
		if err != nil {
			return s.fail(c, err)
		}
		return c.JSON(TutorResponse{UserID: userID, Reply: reply})
	}

	stream, err := s.bridge.GenerateStream(c.UserContext(), userID, req.Prompt, s.config.Now())
	if err != nil {
		return s.fail(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer stream.Close()
		s.pipeStream(sse.NewWriter(w), stream, userID)
	})
	return nil
}

// pipeStream relays stream chunks as "delta" events and ends with a "done"
// or "error" event.
func (s *Server) pipeStream(w *sse.Writer, stream ai.Stream, userID string) {
	var stopReason string
	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.logger.Warn("tutor stream failed", "user_id", userID, "error", err)
			_ = w.WriteEvent(sse.Event{Type: "error", Data: err.Error()})
			return
		}

		if chunk.StopReason != "" {
			stopReason = chunk.StopReason
		}
		if chunk.Text == "" {
			continue
		}

		data, _ := json.Marshal(streamDelta{Text: chunk.Text})
		if err := w.WriteEvent(sse.Event{Type: "delta", Data: string(data)}); err != nil {
			// Client went away.
			return
		}
	}

	data, _ := json.Marshal(streamDone{StopReason: stopReason})
	_ = w.WriteEvent(sse.Event{Type: "done", Data: string(data)})
}

// handleSignal handles POST /v1/users/:user/signals. The AI layer reports
// what it observed and the bridge folds it into a review.
func (s *Server) handleSignal(c *fiber.Ctx) error {
	var req SignalRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	signal := bridge.Signal{
		UserID: c.Params("user"),
		ItemID: req.ItemID,
		Kind:   req.Kind,
		At:     req.At,
		Note:   req.Note,
	}
	if req.ResponseLatencyMs != nil {
		if *req.ResponseLatencyMs < 0 {
			return badRequest(c, "response_latency_ms must be non-negative")
		}
		latency := time.Duration(*req.ResponseLatencyMs) * time.Millisecond
		signal.ResponseLatency = &latency
	}
	if signal.At.IsZero() {
		signal.At = s.config.Now()
	}

	p, err := s.bridge.Apply(c.UserContext(), s.coord, signal)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(p)
}
