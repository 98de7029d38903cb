package llm

// ChatRequest is a provider-agnostic chat completion request. The AI
// providers translate it into their own wire formats.
type ChatRequest struct {
	// Model name (e.g., "llama3.2", "phi-4-mini")
	Model string `json:"model"`

	// Conversation messages
	Messages []Message `json:"messages"`

	// Whether to stream the response
	Stream *bool `json:"stream,omitempty"`

	// System prompt, sent ahead of Messages
	System string `json:"system,omitempty"`

	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Seed        *int     `json:"seed,omitempty"`
}

// Streaming reports whether the request asks for a streamed response.
func (r *ChatRequest) Streaming() bool {
	return r.Stream != nil && *r.Stream
}

// WithStream returns a shallow copy of r with Stream set to stream.
func (r *ChatRequest) WithStream(stream bool) *ChatRequest {
	cp := *r
	cp.Stream = &stream
	return &cp
}
