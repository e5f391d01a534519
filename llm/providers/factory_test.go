package providers

import (
	"testing"

	"github.com/aivoicefromthevoid/mira/llm"
	"github.com/rs/zerolog"
)

func TestForModelCachesBaseClient(t *testing.T) {
	registry := llm.NewProviderRegistry(&llm.ProviderConfig{OpenRouterAPIKey: "k"}, []string{llm.ProviderOpenRouter})
	f := NewFactory(registry, Options{Title: "Mira"}, zerolog.Nop())

	_, key, err := f.ForModel("")
	if err != nil {
		t.Fatalf("ForModel: %v", err)
	}
	if key.Model != llm.DefaultOpenRouterModel {
		t.Fatalf("expected default model, got %s", key.Model)
	}
	if _, _, err := f.ForModel(""); err != nil {
		t.Fatalf("ForModel: %v", err)
	}
	if len(f.cache) != 1 {
		t.Fatalf("expected one cached client, got %d", len(f.cache))
	}

	if _, _, err := f.ForModel("meta-llama/llama-3-8b-instruct:free"); err != nil {
		t.Fatalf("ForModel: %v", err)
	}
	if len(f.cache) != 2 {
		t.Fatalf("expected a client per model, got %d", len(f.cache))
	}
}

func TestForModelWithoutProvider(t *testing.T) {
	f := NewFactory(llm.NewProviderRegistry(&llm.ProviderConfig{}, []string{llm.ProviderOpenRouter}), Options{}, zerolog.Nop())
	if _, _, err := f.ForModel(""); err == nil {
		t.Fatal("expected error when no provider is configured")
	}
}
