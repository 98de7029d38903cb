// Package aiutils builds the configured AI capability.
package aiutils

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/cadence/pkg/ai"
	"github.com/papercomputeco/cadence/pkg/ai/ollama"
	"github.com/papercomputeco/cadence/pkg/ai/openai"
)

// Supported provider type constants
const (
	Ollama = "ollama"
	OpenAI = "openai"
)

// SupportedProviders returns the list of all supported provider type names.
func SupportedProviders() []string {
	return []string{Ollama, OpenAI}
}

type NewCapabilityOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	APIKey       string
	Timeout      time.Duration
	Logger       *slog.Logger
}

// NewCapability returns nil, nil when no provider is configured: the AI
// layer is optional.
func NewCapability(o *NewCapabilityOpts) (ai.Capability, error) {
	switch o.ProviderType {
	case "":
		return nil, nil
	case Ollama:
		return ollama.New(ollama.Config{
			BaseURL: o.TargetURL,
			Model:   o.Model,
			Timeout: o.Timeout,
			Logger:  o.Logger,
		}), nil
	case OpenAI:
		client, err := openai.New(openai.Config{
			BaseURL: o.TargetURL,
			Model:   o.Model,
			APIKey:  o.APIKey,
			Timeout: o.Timeout,
			Logger:  o.Logger,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown ai provider: %q (supported: %v)", o.ProviderType, SupportedProviders())
	}
}
