package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/cadence/pkg/progress"
)

var (
	dueItemsToolName    = "due_items"
	dueItemsDescription = "List the learning items a learner should review now, most important first. " +
		"Requires an open session for the learner."

	recordOutcomeToolName    = "record_outcome"
	recordOutcomeDescription = "Record how a learner did on an item: correct-easy, correct-hard or incorrect. " +
		"Returns the item's new schedule."

	learnerContextToolName    = "learner_context"
	learnerContextDescription = "Describe a learner's nearest-due items with their recent outcomes, " +
		"for planning what to practice next."
)

const defaultDueLimit = 20

// DueItemsInput represents the input arguments for the due_items tool.
type DueItemsInput struct {
	UserID string `json:"user_id" jsonschema:"the learner whose queue to read"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of items to return (default: 20)"`
}

// DueItem is one entry of the review queue.
type DueItem struct {
	ItemID          string `json:"item_id"`
	ContentRef      string `json:"content_ref,omitempty"`
	DifficultyClass string `json:"difficulty_class"`
	DueAt           string `json:"due_at"`
}

// DueItemsOutput represents the output of the due_items tool.
type DueItemsOutput struct {
	UserID string    `json:"user_id"`
	Items  []DueItem `json:"items"`
	Count  int       `json:"count"`
	Total  int       `json:"total"`
}

// RecordOutcomeInput represents the input arguments for the record_outcome tool.
type RecordOutcomeInput struct {
	UserID  string `json:"user_id" jsonschema:"the learner who answered"`
	ItemID  string `json:"item_id" jsonschema:"the item that was practiced"`
	Outcome string `json:"outcome" jsonschema:"one of correct-easy, correct-hard, incorrect"`
}

// RecordOutcomeOutput represents the output of the record_outcome tool.
type RecordOutcomeOutput struct {
	ItemID          string  `json:"item_id"`
	DifficultyClass string  `json:"difficulty_class"`
	EaseFactor      float64 `json:"ease_factor"`
	Interval        string  `json:"interval"`
	DueAt           string  `json:"due_at"`
	Version         uint64  `json:"version"`
}

// LearnerContextInput represents the input arguments for the learner_context tool.
type LearnerContextInput struct {
	UserID string `json:"user_id" jsonschema:"the learner to describe"`
}

// LearnerContextOutput represents the output of the learner_context tool.
type LearnerContextOutput struct {
	UserID     string `json:"user_id"`
	TotalItems int    `json:"total_items"`
	DueNow     int    `json:"due_now"`
	Context    string `json:"context"`
}

func (s *Server) handleDueItems(_ context.Context, _ *mcp.CallToolRequest, input DueItemsInput) (*mcp.CallToolResult, DueItemsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultDueLimit
	}

	now := s.config.Now()
	snapshot, err := s.config.Sessions.Snapshot(input.UserID)
	if err != nil {
		return toolError("Failed to read learner state", err), DueItemsOutput{}, nil
	}

	ids := snapshot.Due(now)
	output := DueItemsOutput{
		UserID: input.UserID,
		Items:  make([]DueItem, 0, min(limit, len(ids))),
		Total:  len(ids),
	}
	for _, id := range ids {
		if len(output.Items) == limit {
			break
		}
		p, _ := snapshot.Get(id)
		output.Items = append(output.Items, DueItem{
			ItemID:          p.ItemID,
			ContentRef:      p.ContentRef,
			DifficultyClass: p.DifficultyClass.String(),
			DueAt:           p.DueAt.Format(time.RFC3339),
		})
	}
	output.Count = len(output.Items)

	s.config.Logger.Debug("mcp due items",
		"user_id", input.UserID,
		"count", output.Count,
	)

	return jsonResult(output)
}

func (s *Server) handleRecordOutcome(ctx context.Context, _ *mcp.CallToolRequest, input RecordOutcomeInput) (*mcp.CallToolResult, RecordOutcomeOutput, error) {
	outcome := progress.Outcome(input.Outcome)
	if !outcome.Valid() {
		return toolError("Failed to record outcome", fmt.Errorf("%w: %q", progress.ErrInvalidOutcome, input.Outcome)), RecordOutcomeOutput{}, nil
	}

	p, err := s.config.Sessions.RecordOutcome(ctx, input.UserID, input.ItemID, outcome, s.config.Now())
	if err != nil {
		return toolError("Failed to record outcome", err), RecordOutcomeOutput{}, nil
	}

	s.config.Logger.Debug("mcp outcome recorded",
		"user_id", input.UserID,
		"item_id", input.ItemID,
		"outcome", outcome,
	)

	return jsonResult(RecordOutcomeOutput{
		ItemID:          p.ItemID,
		DifficultyClass: p.DifficultyClass.String(),
		EaseFactor:      p.EaseFactor,
		Interval:        p.Interval.String(),
		DueAt:           p.DueAt.Format(time.RFC3339),
		Version:         p.Version,
	})
}

func (s *Server) handleLearnerContext(_ context.Context, _ *mcp.CallToolRequest, input LearnerContextInput) (*mcp.CallToolResult, LearnerContextOutput, error) {
	bc, err := s.config.Bridge.BuildContext(input.UserID, s.config.Now())
	if err != nil {
		return toolError("Failed to build learner context", err), LearnerContextOutput{}, nil
	}

	return jsonResult(LearnerContextOutput{
		UserID:     bc.UserID,
		TotalItems: bc.TotalItems,
		DueNow:     bc.DueNow,
		Context:    bc.String(),
	})
}

// jsonResult returns output as structured content with its serialized JSON
// in a TextContent block for clients that only read text.
func jsonResult[T any](output T) (*mcp.CallToolResult, T, error) {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		var zero T
		return toolError("Failed to serialize results", err), zero, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

func toolError(msg string, err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%s: %v", msg, err)},
		},
	}
}
