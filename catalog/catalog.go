// Package catalog fetches the OpenRouter model list, keeps it for an hour and
// picks the best free model for a set of requirements.
package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aivoicefromthevoid/mira/fault"
	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

const (
	// DefaultTTL is how long a fetched catalog is served from memory.
	DefaultTTL = time.Hour
	// DefaultContextLength is assumed when a model does not report one.
	DefaultContextLength = 4096

	CapabilityText   = "text"
	CapabilityVision = "vision"
	CapabilityTools  = "tools"

	cacheKey = "models"
)

// Pricing is the price per token.
type Pricing struct {
	Prompt     float64 `json:"prompt"`
	Completion float64 `json:"completion"`
}

// Model is one catalog entry.
type Model struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Provider      string   `json:"provider"`
	Pricing       Pricing  `json:"pricing"`
	ContextLength int      `json:"contextLength"`
	IsFree        bool     `json:"isFree"`
	Capabilities  []string `json:"capabilities"`
	Description   string   `json:"description"`
}

// HasCapabilities reports whether m has every capability in caps.
func (m Model) HasCapabilities(caps []string) bool {
	return lo.Every(m.Capabilities, caps)
}

// Config configures a Catalog.
type Config struct {
	APIKey  string
	BaseURL string
	TTL     time.Duration
	Timeout time.Duration
}

// Catalog is the model catalog client.
type Catalog struct {
	apiKey  string
	baseURL string
	ttl     time.Duration
	http    *http.Client
	cache   *ristretto.Cache
	logger  zerolog.Logger
}

// New creates a Catalog.
func New(cfg Config, logger zerolog.Logger) (*Catalog, error) {
	if cfg.APIKey == "" {
		return nil, fault.InvalidInput("openrouter api key is required").
			WithHint("Set OPENROUTER_API_KEY to enable the model selector.")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create catalog cache: %w", err)
	}

	return &Catalog{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		ttl:     cfg.TTL,
		http:    &http.Client{Timeout: cfg.Timeout},
		cache:   cache,
		logger:  logger.With().Str("component", "catalog").Logger(),
	}, nil
}

// Close releases the cache.
func (c *Catalog) Close() {
	c.cache.Close()
}

// Invalidate drops the cached catalog so the next call refetches it.
func (c *Catalog) Invalidate() {
	c.cache.Del(cacheKey)
}

// Models returns every model, from cache when fresh.
func (c *Catalog) Models(ctx context.Context) ([]Model, error) {
	if v, ok := c.cache.Get(cacheKey); ok {
		return v.([]Model), nil
	}

	models, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.SetWithTTL(cacheKey, models, int64(len(models)), c.ttl)
	c.cache.Wait()
	c.logger.Info().Int("models", len(models)).Dur("ttl", c.ttl).Msg("Model catalog refreshed")
	return models, nil
}

func (c *Catalog) fetch(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("build models request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fault.ProviderUnavailable("fetch model catalog", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.ProviderUnavailable("read model catalog", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fault.ProviderUnavailable(fmt.Sprintf("OpenRouter API error: %d", resp.StatusCode), nil)
	}
	if !gjson.ValidBytes(body) {
		return nil, fault.ProviderUnavailable("model catalog is not valid JSON", nil)
	}

	var models []Model
	gjson.GetBytes(body, "data").ForEach(func(_, m gjson.Result) bool {
		models = append(models, transform(m))
		return true
	})
	return models, nil
}

func transform(m gjson.Result) Model {
	id := m.Get("id").String()
	name := m.Get("name").String()

	contextLength := int(m.Get("context_length").Int())
	if contextLength == 0 {
		contextLength = DefaultContextLength
	}

	prompt, completion := m.Get("pricing.prompt"), m.Get("pricing.completion")
	return Model{
		ID:       id,
		Name:     name,
		Provider: provider(id),
		Pricing: Pricing{
			Prompt:     prompt.Float(),
			Completion: completion.Float(),
		},
		ContextLength: contextLength,
		IsFree:        prompt.String() == "0" && completion.String() == "0",
		Capabilities:  capabilities(id, name),
		Description:   m.Get("description").String(),
	}
}

// provider is the id prefix before the first slash.
func provider(id string) string {
	prefix, _, _ := strings.Cut(id, "/")
	if prefix == "" {
		return "unknown"
	}
	return prefix
}

// capabilities infers what a model can do from its name and id.
func capabilities(id, name string) []string {
	id, name = strings.ToLower(id), strings.ToLower(name)
	caps := []string{CapabilityText}
	if strings.Contains(name, "vision") || strings.Contains(name, "multimodal") || strings.Contains(id, "vision") {
		caps = append(caps, CapabilityVision)
	}
	if strings.Contains(name, "tool") || strings.Contains(name, "function") || strings.Contains(id, "tool") {
		caps = append(caps, CapabilityTools)
	}
	return caps
}

// Criteria narrows a model list.
type Criteria struct {
	FreeOnly         bool
	Capabilities     []string
	MinContextLength int
	Providers        []string
	ExcludeProviders []string
}

// Filter returns the models matching every criterion.
func Filter(models []Model, c Criteria) []Model {
	return lo.Filter(models, func(m Model, _ int) bool {
		if c.FreeOnly && !m.IsFree {
			return false
		}
		if len(c.Capabilities) > 0 && !m.HasCapabilities(c.Capabilities) {
			return false
		}
		if m.ContextLength < c.MinContextLength {
			return false
		}
		if len(c.Providers) > 0 && !lo.Contains(c.Providers, m.Provider) {
			return false
		}
		return !lo.Contains(c.ExcludeProviders, m.Provider)
	})
}

// Rank orders models: preferred providers first, then larger context, then
// provider name. The input is not modified.
func Rank(models []Model, preferred []string) []Model {
	out := append([]Model(nil), models...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		ap, bp := lo.Contains(preferred, a.Provider), lo.Contains(preferred, b.Provider)
		if ap != bp {
			return ap
		}
		if a.ContextLength != b.ContextLength {
			return a.ContextLength > b.ContextLength
		}
		return a.Provider < b.Provider
	})
	return out
}

// SelectOptions are the requirements for Select.
type SelectOptions struct {
	Capabilities       []string
	MinContextLength   int
	PreferredProviders []string
	ExcludeProviders   []string
}

// DefaultSelectOptions returns text capability, 4096 tokens of context and a
// preference for mistralai, google and anthropic.
func DefaultSelectOptions() SelectOptions {
	return SelectOptions{
		Capabilities:       []string{CapabilityText},
		MinContextLength:   DefaultContextLength,
		PreferredProviders: []string{"mistralai", "google", "anthropic"},
	}
}

// Select returns the best free model for opts.
func (c *Catalog) Select(ctx context.Context, opts SelectOptions) (Model, error) {
	models, err := c.Models(ctx)
	if err != nil {
		return Model{}, err
	}

	candidates := Filter(models, Criteria{
		FreeOnly:         true,
		Capabilities:     opts.Capabilities,
		MinContextLength: opts.MinContextLength,
		ExcludeProviders: opts.ExcludeProviders,
	})
	if len(candidates) == 0 {
		return Model{}, fault.NotFound("no suitable free models available")
	}

	best := Rank(candidates, opts.PreferredProviders)[0]
	c.logger.Debug().Str("model", best.ID).Int("candidates", len(candidates)).Msg("Model selected")
	return best, nil
}

// Free returns every free model.
func (c *Catalog) Free(ctx context.Context) ([]Model, error) {
	models, err := c.Models(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(models, Criteria{FreeOnly: true}), nil
}

// ByID returns the model with the given id.
func (c *Catalog) ByID(ctx context.Context, id string) (Model, error) {
	models, err := c.Models(ctx)
	if err != nil {
		return Model{}, err
	}
	m, ok := lo.Find(models, func(m Model) bool { return m.ID == id })
	if !ok {
		return Model{}, fault.NotFound("model %s not found", id)
	}
	return m, nil
}

// Stats summarizes the catalog.
type Stats struct {
	Total        int            `json:"total"`
	Free         int            `json:"free"`
	Paid         int            `json:"paid"`
	ByProvider   map[string]int `json:"byProvider"`
	ByCapability map[string]int `json:"byCapability"`
}

// Stats counts models by price, provider and capability.
func (c *Catalog) Stats(ctx context.Context) (Stats, error) {
	models, err := c.Models(ctx)
	if err != nil {
		return Stats{}, err
	}

	free := lo.CountBy(models, func(m Model) bool { return m.IsFree })
	stats := Stats{
		Total:        len(models),
		Free:         free,
		Paid:         len(models) - free,
		ByProvider:   lo.CountValuesBy(models, func(m Model) string { return m.Provider }),
		ByCapability: map[string]int{CapabilityText: 0, CapabilityVision: 0, CapabilityTools: 0},
	}
	for _, m := range models {
		for _, capability := range m.Capabilities {
			if _, ok := stats.ByCapability[capability]; ok {
				stats.ByCapability[capability]++
			}
		}
	}
	return stats, nil
}
