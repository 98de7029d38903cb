// Package ollama implements ai.Capability against Ollama's chat API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/papercomputeco/cadence/pkg/ai"
	"github.com/papercomputeco/cadence/pkg/llm"
	"github.com/papercomputeco/cadence/pkg/logger"
)

const (
	// DefaultBaseURL is the default Ollama API URL.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultModel is used when neither the config nor the request names one.
	DefaultModel = "llama3.2"

	defaultTimeout = 2 * time.Minute
)

// Config holds configuration for the Ollama client.
type Config struct {
	// BaseURL is the Ollama API URL. Defaults to DefaultBaseURL.
	BaseURL string

	// Model is the chat model. Defaults to DefaultModel.
	Model string

	// Timeout bounds a whole request, streamed body included.
	Timeout time.Duration

	Logger *slog.Logger
}

// Client talks to Ollama's /api/chat endpoint.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates an Ollama client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	return &Client{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: cfg.Logger,
	}
}

// Generate returns Ollama's complete reply to req.
func (c *Client) Generate(ctx context.Context, req *llm.ChatRequest) (string, error) {
	resp, err := c.post(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", fmt.Errorf("%w: decoding ollama response: %v", ai.ErrUnavailable, err)
	}
	if chat.Error != "" {
		return "", fmt.Errorf("%w: ollama: %s", ai.ErrUnavailable, chat.Error)
	}
	return chat.Message.Content, nil
}

// GenerateStream streams Ollama's reply, one NDJSON line per chunk.
func (c *Client) GenerateStream(ctx context.Context, req *llm.ChatRequest) (ai.Stream, error) {
	resp, err := c.post(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return &stream{body: resp.Body, dec: json.NewDecoder(resp.Body)}, nil
}

func (c *Client) post(ctx context.Context, req *llm.ChatRequest, streaming bool) (*http.Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	body := chatRequest{
		Model:    model,
		Messages: ai.Messages(req),
		Stream:   streaming,
	}
	if req.Temperature != nil || req.TopP != nil || req.Seed != nil || req.MaxTokens != nil || len(req.Stop) > 0 {
		body.Options = &options{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			Seed:        req.Seed,
			NumPredict:  req.MaxTokens,
			Stop:        req.Stop,
		}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ai.ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: sending request: %v", ai.ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("ollama request failed",
			"status", resp.StatusCode,
			"model", model,
		)
		return nil, fmt.Errorf("%w: ollama returned status %d: %s", ai.ErrUnavailable, resp.StatusCode, string(msg))
	}
	return resp, nil
}

type stream struct {
	body io.ReadCloser
	dec  *json.Decoder
	done bool
}

func (s *stream) Next() (*llm.StreamChunk, error) {
	if s.done {
		return nil, io.EOF
	}

	var line chatResponse
	if err := s.dec.Decode(&line); err != nil {
		s.done = true
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: reading ollama stream: %v", ai.ErrUnavailable, err)
	}
	if line.Error != "" {
		s.done = true
		return nil, fmt.Errorf("%w: ollama: %s", ai.ErrUnavailable, line.Error)
	}

	s.done = line.Done
	return &llm.StreamChunk{
		Model:      line.Model,
		Text:       line.Message.Content,
		Done:       line.Done,
		StopReason: line.DoneReason,
	}, nil
}

func (s *stream) Close() error {
	s.done = true
	return s.body.Close()
}
