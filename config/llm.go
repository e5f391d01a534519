package config

import (
	"github.com/aivoicefromthevoid/mira/llm"
	"github.com/aivoicefromthevoid/mira/llm/providers"
)

// ProviderConfig converts the llm section for the provider registry.
func (c *Config) ProviderConfig() *llm.ProviderConfig {
	return &llm.ProviderConfig{
		OpenRouterAPIKey:  c.LLM.OpenRouter.APIKey,
		OpenRouterBaseURL: c.LLM.OpenRouter.BaseURL,
		OpenRouterModel:   c.LLM.OpenRouter.Model,
		AnthropicAPIKey:   c.LLM.Anthropic.APIKey,
		AnthropicModel:    c.LLM.Anthropic.Model,
		OllamaHost:        c.LLM.Ollama.Host,
		OllamaModel:       c.LLM.Ollama.Model,
	}
}

// ProviderOptions returns the settings shared by every completion client.
func (c *Config) ProviderOptions() providers.Options {
	return providers.Options{
		Referer:    c.LLM.OpenRouter.Referer,
		Title:      c.LLM.OpenRouter.Title,
		Timeout:    Seconds(c.LLM.Timeout),
		MaxRetries: c.LLM.MaxRetries,
	}
}
