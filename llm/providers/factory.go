// Package providers builds and caches llm.Client instances for the provider
// the registry selects.
package providers

import (
	"fmt"
	"sync"
	"time"

	"github.com/aivoicefromthevoid/mira/llm"
	llmanthropic "github.com/aivoicefromthevoid/mira/llm/anthropic"
	llmollama "github.com/aivoicefromthevoid/mira/llm/ollama"
	llmopenai "github.com/aivoicefromthevoid/mira/llm/openai"
	"github.com/rs/zerolog"
)

// Options holds settings shared by every client the factory builds.
type Options struct {
	Referer    string // OpenRouter HTTP-Referer
	Title      string // OpenRouter X-Title
	Timeout    time.Duration
	MaxRetries uint64
}

// Factory resolves a model to a ready client. Base clients are cached per
// ClientKey; middleware is applied on every lookup.
type Factory struct {
	registry *llm.ProviderRegistry
	opts     Options
	logger   zerolog.Logger

	mu    sync.RWMutex
	cache map[llm.ClientKey]llm.Client
}

// NewFactory creates a Factory over registry.
func NewFactory(registry *llm.ProviderRegistry, opts Options, logger zerolog.Logger) *Factory {
	return &Factory{
		registry: registry,
		opts:     opts,
		logger:   logger.With().Str("component", "llm_factory").Logger(),
		cache:    make(map[llm.ClientKey]llm.Client),
	}
}

// ForModel returns a client able to answer for model, along with the
// resolved key (the model may be replaced by the provider default).
func (f *Factory) ForModel(model string) (llm.Client, *llm.ClientKey, error) {
	key, err := f.registry.Resolve(model)
	if err != nil {
		return nil, nil, err
	}

	f.mu.RLock()
	base, ok := f.cache[*key]
	f.mu.RUnlock()

	if !ok {
		// Not in cache - create new base client (no lock held during creation)
		base, err = f.create(key)
		if err != nil {
			return nil, nil, err
		}

		f.mu.Lock()
		// Another goroutine might have created it while we were creating
		if existing, found := f.cache[*key]; found {
			base = existing
		} else {
			f.cache[*key] = base
			f.logger.Debug().Str("provider", key.Provider).Str("model", key.Model).Msg("Created LLM client")
		}
		f.mu.Unlock()
	}

	client := llm.WithTimeout(base, f.opts.Timeout)
	client = llm.WithRetry(client, f.opts.MaxRetries, f.logger)
	return llm.WrapWithMiddleware(client, llm.NewLoggingMiddleware(f.logger)), key, nil
}

func (f *Factory) create(key *llm.ClientKey) (llm.Client, error) {
	switch key.Provider {
	case llm.ProviderOpenRouter:
		c, err := llmopenai.NewClient(llmopenai.Options{
			APIKey:  key.APIKey,
			BaseURL: key.BaseURL,
			Model:   key.Model,
			Referer: f.opts.Referer,
			Title:   f.opts.Title,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create openrouter client: %w", err)
		}
		return c, nil

	case llm.ProviderAnthropic:
		c, err := llmanthropic.NewAnthropicClient(key.APIKey, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic client: %w", err)
		}
		return c, nil

	case llm.ProviderOllama:
		c, err := llmollama.NewOllamaClient(key.Host, key.Model, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return c, nil

	default:
		return nil, fmt.Errorf("unknown provider: %s", key.Provider)
	}
}
