package llm

// StreamChunk is a single chunk of a streamed response.
type StreamChunk struct {
	Model string `json:"model,omitempty"`

	// Text delta carried by this chunk
	Text string `json:"text"`

	// Whether this is the final chunk
	Done bool `json:"done,omitempty"`

	// Stop reason (only present on the final chunk)
	StopReason string `json:"stop_reason,omitempty"`
}
