// Package openai implements ai.Capability against OpenAI-compatible chat
// completion endpoints, including local runtimes such as Foundry Local.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/cadence/pkg/ai"
	"github.com/papercomputeco/cadence/pkg/llm"
	"github.com/papercomputeco/cadence/pkg/logger"
	"github.com/papercomputeco/cadence/pkg/sse"
)

const (
	// DefaultBaseURL is the OpenAI API URL. Local runtimes expose the same
	// routes on their own address.
	DefaultBaseURL = "https://api.openai.com"

	defaultTimeout = 2 * time.Minute

	doneMarker = "[DONE]"
)

// Config holds configuration for the OpenAI-compatible client.
type Config struct {
	// BaseURL is the server root, without the /v1 suffix.
	BaseURL string

	// Model is the chat model used when a request does not name one.
	Model string

	// APIKey is sent as a bearer token when set.
	APIKey string

	Timeout time.Duration
	Logger  *slog.Logger
}

// Client talks to /v1/chat/completions.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates an OpenAI-compatible client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		return nil, errors.New("openai model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: cfg.Logger,
	}, nil
}

// Generate returns the first choice of a non-streamed completion.
func (c *Client) Generate(ctx context.Context, req *llm.ChatRequest) (string, error) {
	resp, err := c.post(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", fmt.Errorf("%w: decoding completion: %v", ai.ErrUnavailable, err)
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("%w: completion has no choices", ai.ErrUnavailable)
	}
	return chat.Choices[0].Message.Content, nil
}

// GenerateStream streams the completion as SSE deltas.
func (c *Client) GenerateStream(ctx context.Context, req *llm.ChatRequest) (ai.Stream, error) {
	resp, err := c.post(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return &stream{body: resp.Body, reader: sse.NewReader(resp.Body)}, nil
}

func (c *Client) post(ctx context.Context, req *llm.ChatRequest, streaming bool) (*http.Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	jsonBody, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    ai.Messages(req),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Seed:        req.Seed,
		Stream:      streaming,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ai.ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if streaming {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: sending request: %v", ai.ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("completion request failed",
			"status", resp.StatusCode,
			"model", model,
		)
		return nil, fmt.Errorf("%w: completion endpoint returned status %d: %s", ai.ErrUnavailable, resp.StatusCode, string(msg))
	}
	return resp, nil
}

type stream struct {
	body   io.ReadCloser
	reader *sse.Reader
	done   bool
}

func (s *stream) Next() (*llm.StreamChunk, error) {
	for !s.done {
		ev, err := s.reader.Next()
		if errors.Is(err, io.EOF) {
			s.done = true
			break
		}
		if err != nil {
			s.done = true
			return nil, fmt.Errorf("%w: reading completion stream: %v", ai.ErrUnavailable, err)
		}

		if ev.Data == doneMarker {
			s.done = true
			break
		}

		var c chunk
		if err := json.Unmarshal([]byte(ev.Data), &c); err != nil {
			s.done = true
			return nil, fmt.Errorf("%w: decoding completion chunk: %v", ai.ErrUnavailable, err)
		}
		if len(c.Choices) == 0 {
			continue
		}

		choice := c.Choices[0]
		out := &llm.StreamChunk{Model: c.Model, Text: choice.Delta.Content}
		if choice.FinishReason != nil {
			out.Done = true
			out.StopReason = *choice.FinishReason
		}
		return out, nil
	}
	return nil, io.EOF
}

func (s *stream) Close() error {
	s.done = true
	return s.body.Close()
}
