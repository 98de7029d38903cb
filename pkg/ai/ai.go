// Package ai defines the generative AI capability the memory bridge talks to.
package ai

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/papercomputeco/cadence/pkg/llm"
)

// ErrUnavailable is returned when the AI capability cannot produce a reply.
// It never affects scheduling state.
var ErrUnavailable = errors.New("ai capability unavailable")

// Capability generates text from a chat request.
type Capability interface {
	// Generate returns the complete reply.
	Generate(ctx context.Context, req *llm.ChatRequest) (string, error)

	// GenerateStream returns the reply as a finite stream of chunks.
	GenerateStream(ctx context.Context, req *llm.ChatRequest) (Stream, error)
}

// Stream is a finite, non-restartable sequence of reply chunks. Next returns
// io.EOF after the last chunk. Close releases the underlying connection and
// is safe to call more than once.
type Stream interface {
	Next() (*llm.StreamChunk, error)
	Close() error
}

// Collect drains s and returns the concatenated text.
func Collect(s Stream) (string, error) {
	defer s.Close()

	var b strings.Builder
	for {
		chunk, err := s.Next()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		b.WriteString(chunk.Text)
	}
}

// Messages flattens req into role/content pairs with the system prompt first.
// Both supported wire formats take plain string content.
func Messages(req *llm.ChatRequest) []Message {
	msgs := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, Message{Role: llm.RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, Message{Role: m.Role, Content: m.GetText()})
	}
	return msgs
}

// Message is a role/content pair as sent on the wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
