package llm

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
	ProviderOllama     = "ollama"
)

const (
	// DefaultOpenRouterBaseURL is the OpenAI-compatible OpenRouter endpoint.
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	// DefaultOpenRouterModel is used when a chat request names no model.
	DefaultOpenRouterModel = "mistralai/mistral-7b-instruct:free"
	DefaultAnthropicModel  = "claude-haiku-4-5"
	DefaultOllamaHost      = "http://localhost:11434"
)

// ClientKey uniquely identifies an LLM client configuration.
type ClientKey struct {
	Provider string
	Model    string
	APIKey   string // For credential-based providers
	Host     string // For Ollama
	BaseURL  string // For OpenRouter
}

// ProviderConfig holds the configuration needed for provider registry.
// This avoids import cycles by not importing the config package.
type ProviderConfig struct {
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OpenRouterModel   string
	AnthropicAPIKey   string
	AnthropicModel    string
	OllamaHost        string
	OllamaModel       string
}

// ProviderRegistry resolves which provider answers a chat request.
// Client creation and caching is handled by the caller to avoid import cycles.
type ProviderRegistry struct {
	order  []string // preference order
	mu     sync.RWMutex
	config *ProviderConfig
}

// NewProviderRegistry creates a registry trying providers in the given order.
func NewProviderRegistry(providerConfig *ProviderConfig, providers []string) *ProviderRegistry {
	return &ProviderRegistry{
		order:  append([]string(nil), providers...),
		config: providerConfig,
	}
}

// IsProviderEnabled checks if a provider is in the enabled providers list.
func (r *ProviderRegistry) IsProviderEnabled(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.order {
		if p == provider {
			return true
		}
	}
	return false
}

// IsProviderConfigured checks if a provider has the required configuration (API keys, hosts, etc.).
func (r *ProviderRegistry) IsProviderConfigured(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isProviderConfiguredUnlocked(provider)
}

// Resolve returns a ClientKey for the first enabled and configured provider.
// A non-empty model overrides the provider's default model.
func (r *ProviderRegistry) Resolve(model string) (*ClientKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.order) == 0 {
		return nil, fmt.Errorf("no providers enabled")
	}

	var errs []string
	for _, provider := range r.order {
		if !r.isProviderConfiguredUnlocked(provider) {
			errs = append(errs, provider+": not configured")
			continue
		}
		key, err := r.resolveProviderConfig(provider, model)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		return key, nil
	}
	return nil, fmt.Errorf("no available provider from %v: %v", r.order, errs)
}

// isProviderConfiguredUnlocked must be called with r.mu already locked.
func (r *ProviderRegistry) isProviderConfiguredUnlocked(provider string) bool {
	switch provider {
	case ProviderOpenRouter:
		return r.config.OpenRouterAPIKey != ""
	case ProviderAnthropic:
		return r.config.AnthropicAPIKey != ""
	case ProviderOllama:
		// Ollama doesn't require API key, just needs host (which has a default)
		return true
	default:
		return false
	}
}

func (r *ProviderRegistry) resolveProviderConfig(provider, modelOverride string) (*ClientKey, error) {
	key := &ClientKey{
		Provider: provider,
		Model:    modelOverride,
	}

	switch provider {
	case ProviderOpenRouter:
		if r.config.OpenRouterAPIKey == "" {
			return nil, fmt.Errorf("openrouter API key not configured")
		}
		key.APIKey = r.config.OpenRouterAPIKey
		key.BaseURL = r.config.OpenRouterBaseURL
		if key.BaseURL == "" {
			key.BaseURL = DefaultOpenRouterBaseURL
		}
		if key.Model == "" {
			key.Model = r.config.OpenRouterModel
		}
		if key.Model == "" {
			key.Model = DefaultOpenRouterModel
		}

	case ProviderAnthropic:
		if r.config.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic API key not configured")
		}
		key.APIKey = r.config.AnthropicAPIKey
		// OpenRouter model ids ("vendor/name") mean nothing to Anthropic.
		if key.Model == "" || strings.Contains(key.Model, "/") {
			key.Model = r.config.AnthropicModel
		}
		if key.Model == "" {
			key.Model = DefaultAnthropicModel
		}

	case ProviderOllama:
		host := r.config.OllamaHost
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		if host == "" {
			host = DefaultOllamaHost
		}
		key.Host = host

		if key.Model == "" || strings.Contains(key.Model, "/") {
			key.Model = r.config.OllamaModel
		}
		if key.Model == "" {
			key.Model = os.Getenv("OLLAMA_MODEL")
		}
		if key.Model == "" {
			return nil, fmt.Errorf("ollama model not specified and no default configured")
		}

	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	return key, nil
}
