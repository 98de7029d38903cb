package testutils

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/papercomputeco/cadence/pkg/ai"
	"github.com/papercomputeco/cadence/pkg/llm"
)

// ScriptedAI is an ai.Capability that replies with canned text and records
// every request it receives.
type ScriptedAI struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []*llm.ChatRequest
}

// NewScriptedAI returns a capability that always replies with reply.
func NewScriptedAI(reply string) *ScriptedAI {
	return &ScriptedAI{reply: reply}
}

// Fail makes every following call return err.
func (s *ScriptedAI) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Requests returns the requests received so far.
func (s *ScriptedAI) Requests() []*llm.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*llm.ChatRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *ScriptedAI) record(req *llm.ChatRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.reply, s.err
}

func (s *ScriptedAI) Generate(_ context.Context, req *llm.ChatRequest) (string, error) {
	reply, err := s.record(req)
	if err != nil {
		return "", err
	}
	return reply, nil
}

// GenerateStream streams the reply one word at a time.
func (s *ScriptedAI) GenerateStream(_ context.Context, req *llm.ChatRequest) (ai.Stream, error) {
	reply, err := s.record(req)
	if err != nil {
		return nil, err
	}

	var chunks []string
	for i, word := range strings.Fields(reply) {
		if i > 0 {
			word = " " + word
		}
		chunks = append(chunks, word)
	}
	return &scriptedStream{chunks: chunks}, nil
}

type scriptedStream struct {
	chunks []string
}

func (s *scriptedStream) Next() (*llm.StreamChunk, error) {
	if len(s.chunks) == 0 {
		return nil, io.EOF
	}
	text := s.chunks[0]
	s.chunks = s.chunks[1:]
	return &llm.StreamChunk{Text: text, Done: len(s.chunks) == 0}, nil
}

func (s *scriptedStream) Close() error {
	s.chunks = nil
	return nil
}
