package llm

import (
	"fmt"

	"github.com/lumitrade/aiquorum/internal/config"
)

// NewAdapter maps a provider config record to its vendor adapter. The model
// override from ai.model_overrides wins over the per-provider model field.
func NewAdapter(p config.ProviderConfig, modelOverride string) (Adapter, error) {
	model := p.Model
	if modelOverride != "" {
		model = modelOverride
	}

	switch p.ID {
	case "chatgpt":
		return NewOpenAIAdapter(p.ID, p.APIKey, p.BaseURL, model, p.Timeout(), p.MaxRetries), nil
	case "claude":
		return NewAnthropicAdapter(p.ID, p.APIKey, p.BaseURL, model, p.Timeout(), p.MaxRetries), nil
	case "gemini":
		return NewGeminiAdapter(p.ID, p.APIKey, p.BaseURL, model, p.Timeout(), p.MaxRetries), nil
	default:
		return nil, fmt.Errorf("unknown provider id %q", p.ID)
	}
}
