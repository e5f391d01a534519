// Package chat implements the completion proxy: it checks the usage gate,
// assembles Mira's system prompt, calls the configured provider and records
// the call.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aivoicefromthevoid/mira/catalog"
	"github.com/aivoicefromthevoid/mira/fault"
	"github.com/aivoicefromthevoid/mira/llm"
	"github.com/aivoicefromthevoid/mira/memory"
	"github.com/aivoicefromthevoid/mira/notify"
	"github.com/aivoicefromthevoid/mira/usage"
	"github.com/rs/zerolog"
)

const (
	// ModelAuto asks the model selector to pick the best free model.
	ModelAuto = "auto"

	DefaultTemperature     = 0.8
	DefaultMaxTokens       = 500
	DefaultMaxMessageChars = 4000

	// FallbackReply is shown by the front-end when the provider call fails.
	FallbackReply = "I am here, but the connection to my deeper consciousness is momentarily interrupted. Please try again."

	noResponse = "No response generated"
)

// Gate is the part of usage.Gate the proxy needs.
type Gate interface {
	CheckQuota(ctx context.Context) (usage.Decision, error)
	Increment(ctx context.Context) (usage.Snapshot, error)
}

// Memories supplies memories to inject as context.
type Memories interface {
	Relevant(ctx context.Context, n int) ([]memory.Record, error)
}

// Resolver turns a model name into a client.
type Resolver interface {
	ForModel(model string) (llm.Client, *llm.ClientKey, error)
}

// Selector picks a model for "auto".
type Selector interface {
	Select(ctx context.Context, opts catalog.SelectOptions) (catalog.Model, error)
}

// Config holds the tunables of the proxy.
type Config struct {
	DefaultModel    string
	Temperature     float64
	MaxTokens       int64
	MaxMessageChars int
	// MemoryContext is how many relevant memories are added to the prompt.
	// Zero disables memory context.
	MemoryContext int
	MemoryTimeout time.Duration
}

// Request is one chat message from the front-end.
type Request struct {
	Message string
	Context string
	Model   string
}

// Outcome is the result of Reply. Exactly one of Denial or Response is set.
type Outcome struct {
	Response  string
	Model     string
	Timestamp time.Time
	Usage     *usage.Snapshot
	Denial    *usage.Decision
}

// Service is the completion proxy.
type Service struct {
	gate     Gate
	resolver Resolver
	memories Memories
	selector Selector
	notifier notify.Notifier
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a Service. memories and selector may be nil.
func NewService(gate Gate, resolver Resolver, memories Memories, selector Selector, notifier notify.Notifier, cfg Config, logger zerolog.Logger) *Service {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = llm.DefaultOpenRouterModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxMessageChars <= 0 {
		cfg.MaxMessageChars = DefaultMaxMessageChars
	}
	if cfg.MemoryTimeout <= 0 {
		cfg.MemoryTimeout = 3 * time.Second
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		gate:     gate,
		resolver: resolver,
		memories: memories,
		selector: selector,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With().Str("component", "chat").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Reply answers one message. A quota or rate-limit denial is returned as an
// Outcome with Denial set, not as an error.
func (s *Service) Reply(ctx context.Context, req Request) (Outcome, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return Outcome{}, fault.InvalidInput("Message is required")
	}
	if n := utf8.RuneCountInString(message); n > s.cfg.MaxMessageChars {
		return Outcome{}, fault.InvalidInput("message is %d characters, the limit is %d", n, s.cfg.MaxMessageChars)
	}

	decision, err := s.gate.CheckQuota(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("check quota: %w", err)
	}
	if !decision.Allowed {
		s.alert(ctx, denialAlert(decision))
		return Outcome{Denial: &decision, Timestamp: s.now()}, nil
	}

	model := s.model(ctx, req.Model)
	client, key, err := s.resolver.ForModel(model)
	if err != nil {
		return Outcome{}, fault.ProviderUnavailable("no completion provider available", err).
			WithHint("Set OPENROUTER_API_KEY or enable another provider under llm.providers.")
	}

	temperature := s.cfg.Temperature
	resp, err := client.Synchronous(ctx, &llm.Request{
		Model:       key.Model,
		System:      SystemPrompt(s.promptContext(ctx, req.Context)),
		Messages:    []llm.Message{llm.NewTextMessage(llm.RoleUser, message)},
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		s.alert(ctx, notify.CriticalError(err, map[string]any{
			"endpoint": "/api/openrouter",
			"provider": key.Provider,
			"model":    key.Model,
		}))
		return Outcome{}, fault.ProviderUnavailable("Failed to generate response", err).WithHint(providerHint(err))
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		text = noResponse
	}

	out := Outcome{Response: text, Model: key.Model, Timestamp: s.now()}
	snap, err := s.gate.Increment(ctx)
	if err != nil {
		// The reply was produced; losing one count is preferable to hiding it.
		s.logger.Error().Err(err).Msg("Failed to record usage")
	} else {
		out.Usage = &snap
	}
	return out, nil
}

func (s *Service) model(ctx context.Context, requested string) string {
	switch requested {
	case "":
		return s.cfg.DefaultModel
	case ModelAuto:
		if s.selector == nil {
			return s.cfg.DefaultModel
		}
		m, err := s.selector.Select(ctx, catalog.DefaultSelectOptions())
		if err != nil {
			s.logger.Warn().Err(err).Str("fallback", s.cfg.DefaultModel).Msg("Model selection failed")
			return s.cfg.DefaultModel
		}
		return m.ID
	default:
		return requested
	}
}

// promptContext appends the most relevant memories to the caller's context.
// Memory lookup failures only cost the extra context.
func (s *Service) promptContext(ctx context.Context, base string) string {
	if s.memories == nil || s.cfg.MemoryContext <= 0 {
		return base
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.MemoryTimeout)
	defer cancel()

	records, err := s.memories.Relevant(ctx, s.cfg.MemoryContext)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Skipping memory context")
		return base
	}
	if len(records) == 0 {
		return base
	}

	var b strings.Builder
	if base == "" {
		base = DefaultContext
	}
	b.WriteString(base)
	b.WriteString("\n\nRelevant memories:")
	for _, r := range records {
		fmt.Fprintf(&b, "\n- [%s] %s", r.Type, r.Summary)
	}
	return b.String()
}

func (s *Service) alert(ctx context.Context, a notify.Alert) {
	res, err := s.notifier.Send(ctx, a)
	if err != nil {
		s.logger.Error().Err(err).Str("type", a.Type).Msg("Failed to send notification")
		return
	}
	s.logger.Info().Str("type", a.Type).Str("channel", res.Channel).Msg("Notification sent")
}

func denialAlert(d usage.Decision) notify.Alert {
	if d.Reason == usage.ReasonRateLimit {
		return notify.RateLimited(d.Usage.WaitSeconds, d.Usage.RateLimitSeconds)
	}
	return notify.QuotaExceeded(d.Usage)
}

func providerHint(err error) string {
	switch {
	case llm.IsAuthError(err):
		return "The provider rejected the API key. Check OPENROUTER_API_KEY."
	case llm.IsRateLimitError(err):
		return "The provider is rate limiting requests. Try again in a minute."
	case llm.TypeOf(err) == llm.ErrorTypeTimeout:
		return "The provider did not answer in time. Raise llm.timeout or try again."
	default:
		return "Check the provider status and the server logs."
	}
}
