// Package bridge is the AI memory bridge. It turns a learner's in-memory
// progress into a bounded context for the AI capability and folds learning
// signals reported by the AI back into review records. It holds no state of
// its own and is the only component that calls the AI capability.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/papercomputeco/cadence/pkg/ai"
	"github.com/papercomputeco/cadence/pkg/llm"
	"github.com/papercomputeco/cadence/pkg/logger"
	"github.com/papercomputeco/cadence/pkg/progress"
)

const (
	DefaultMaxContextItems = 10
	DefaultMaxHistory      = 5

	DefaultSystemPrompt = "You are a patient language tutor. Use the learner state below " +
		"to focus practice on items that are due or were recently missed."
)

// Source provides the learner state the context is built from. The
// coordinator implements it.
type Source interface {
	Snapshot(userID string) (*progress.Snapshot, error)
	History(userID, itemID string) ([]progress.ReviewRecord, error)
}

// Recorder accepts synthetic review records. The coordinator implements it.
type Recorder interface {
	RecordReview(ctx context.Context, rec progress.ReviewRecord) (progress.ItemProgress, error)
}

// Config is the configuration for a Bridge.
type Config struct {
	Source Source

	// Capability is the AI backend. A nil capability makes every generate
	// call fail with ai.ErrUnavailable.
	Capability ai.Capability

	// MaxContextItems bounds the items in a context.
	MaxContextItems int

	// MaxHistory bounds the recent outcomes listed per item.
	MaxHistory int

	// Model overrides the capability's default model when set.
	Model string

	SystemPrompt string

	Logger *slog.Logger
}

// Bridge is the AI memory bridge.
type Bridge struct {
	config Config
	logger *slog.Logger
}

// New creates a Bridge.
func New(cfg Config) (*Bridge, error) {
	if cfg.Source == nil {
		return nil, errors.New("bridge requires a source")
	}
	if cfg.MaxContextItems <= 0 {
		cfg.MaxContextItems = DefaultMaxContextItems
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	return &Bridge{config: cfg, logger: cfg.Logger}, nil
}

// BuildContext returns the learner's nearest-due items at now with their
// recent outcomes.
func (b *Bridge) BuildContext(userID string, now time.Time) (*BoundedContext, error) {
	snapshot, err := b.config.Source.Snapshot(userID)
	if err != nil {
		return nil, err
	}

	bc := &BoundedContext{
		UserID:      userID,
		GeneratedAt: now,
		TotalItems:  snapshot.Len(),
		DueNow:      len(snapshot.Due(now)),
	}

	for _, p := range snapshot.NearestDue(b.config.MaxContextItems) {
		item := ContextItem{
			ItemID:          p.ItemID,
			ContentRef:      p.ContentRef,
			DifficultyClass: p.DifficultyClass,
			EaseFactor:      p.EaseFactor,
			DueAt:           p.DueAt,
			Overdue:         !p.DueAt.After(now),
		}

		history, err := b.config.Source.History(userID, p.ItemID)
		if err != nil {
			return nil, err
		}
		if len(history) > b.config.MaxHistory {
			history = history[len(history)-b.config.MaxHistory:]
		}
		for _, rec := range history {
			item.RecentOutcomes = append(item.RecentOutcomes, rec.Outcome)
		}

		bc.Items = append(bc.Items, item)
	}
	return bc, nil
}

// Render builds the chat request for prompt with bc in the system prompt.
func (b *Bridge) Render(bc *BoundedContext, prompt string) *llm.ChatRequest {
	var system strings.Builder
	system.WriteString(b.config.SystemPrompt)
	system.WriteString("\n\n")
	system.WriteString(bc.String())

	return &llm.ChatRequest{
		Model:    b.config.Model,
		System:   system.String(),
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, prompt)},
	}
}

// Generate asks the AI capability to answer prompt in the learner's context.
// Failures are reported as ai.ErrUnavailable.
func (b *Bridge) Generate(ctx context.Context, userID, prompt string, now time.Time) (string, error) {
	req, err := b.request(userID, prompt, now)
	if err != nil {
		return "", err
	}

	reply, err := b.config.Capability.Generate(ctx, req)
	if err != nil {
		b.logger.Warn("ai generate failed", "user_id", userID, "error", err)
		return "", unavailable(err)
	}
	return reply, nil
}

// GenerateStream is Generate with a streamed reply.
func (b *Bridge) GenerateStream(ctx context.Context, userID, prompt string, now time.Time) (ai.Stream, error) {
	req, err := b.request(userID, prompt, now)
	if err != nil {
		return nil, err
	}

	s, err := b.config.Capability.GenerateStream(ctx, req.WithStream(true))
	if err != nil {
		b.logger.Warn("ai stream failed", "user_id", userID, "error", err)
		return nil, unavailable(err)
	}
	return s, nil
}

func (b *Bridge) request(userID, prompt string, now time.Time) (*llm.ChatRequest, error) {
	if b.config.Capability == nil {
		return nil, fmt.Errorf("%w: no ai provider configured", ai.ErrUnavailable)
	}
	bc, err := b.BuildContext(userID, now)
	if err != nil {
		return nil, err
	}
	return b.Render(bc, prompt), nil
}

// Apply folds s and records it through r.
func (b *Bridge) Apply(ctx context.Context, r Recorder, s Signal) (progress.ItemProgress, error) {
	rec, err := Fold(s)
	if err != nil {
		return progress.ItemProgress{}, err
	}

	p, err := r.RecordReview(ctx, rec)
	if err != nil {
		return progress.ItemProgress{}, err
	}

	b.logger.Debug("ai signal applied",
		"user_id", s.UserID,
		"item_id", s.ItemID,
		"kind", s.Kind,
		"outcome", rec.Outcome,
	)
	return p, nil
}

func unavailable(err error) error {
	if errors.Is(err, ai.ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ai.ErrUnavailable, err)
}
