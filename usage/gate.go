// Package usage enforces the daily call quota and the minimum spacing between
// calls for the chat proxy. State lives in a single usage document that is
// reset the first time any operation observes a new UTC day.
//
// The gate does not make check, act and increment atomic. Two callers may both
// be allowed before either increments, so the quota is a soft bound under
// concurrency. Increment itself writes with the version it read, so a lost
// race surfaces as a store conflict rather than a lost count.
package usage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aivoicefromthevoid/mira/docstore"
	"github.com/rs/zerolog"
)

const (
	// DefaultPath is where the usage document lives in the backing store.
	DefaultPath = "memory-storage/usage.json"
	// DefaultQuota is the number of protected calls allowed per UTC day.
	DefaultQuota = 100
	// DefaultRateLimit is the minimum spacing between two protected calls.
	DefaultRateLimit = 10 * time.Second

	dateLayout = "2006-01-02"
)

// Reason explains why a call was denied.
type Reason string

const (
	ReasonQuotaExceeded Reason = "quota_exceeded"
	ReasonRateLimit     Reason = "rate_limit"
)

// Policy holds the limits the gate enforces.
type Policy struct {
	Quota     int
	RateLimit time.Duration
}

// DefaultPolicy returns 100 calls per day, 10 seconds apart.
func DefaultPolicy() Policy {
	return Policy{Quota: DefaultQuota, RateLimit: DefaultRateLimit}
}

// Document is the persisted usage state.
type Document struct {
	Date             string     `json:"date"`
	Count            int        `json:"count"`
	LastCall         *time.Time `json:"last_call"`
	Quota            int        `json:"quota"`
	RateLimitSeconds int        `json:"rate_limit_seconds"`
}

// Snapshot is the usage state reported to callers.
type Snapshot struct {
	Date             string     `json:"date"`
	Count            int        `json:"count"`
	Quota            int        `json:"quota"`
	Remaining        int        `json:"remaining"`
	LastCall         *time.Time `json:"last_call"`
	RateLimitSeconds int        `json:"rate_limit_seconds"`
	WaitSeconds      int        `json:"wait_time_seconds,omitempty"`
}

// Decision is the outcome of CheckQuota. A denial is a normal result, not an
// error.
type Decision struct {
	Allowed bool     `json:"allowed"`
	Reason  Reason   `json:"reason,omitempty"`
	Message string   `json:"message,omitempty"`
	Usage   Snapshot `json:"usage"`
}

// Gate is the quota and rate-limit gate.
type Gate struct {
	updater *docstore.Updater
	path    string
	policy  Policy
	logger  zerolog.Logger
	now     func() time.Time
}

// NewGate creates a Gate storing its document at path.
func NewGate(updater *docstore.Updater, path string, policy Policy, logger zerolog.Logger) *Gate {
	if path == "" {
		path = DefaultPath
	}
	if policy.Quota <= 0 {
		policy.Quota = DefaultQuota
	}
	if policy.RateLimit <= 0 {
		policy.RateLimit = DefaultRateLimit
	}
	return &Gate{
		updater: updater,
		path:    path,
		policy:  policy,
		logger:  logger.With().Str("component", "usage_gate").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Policy returns the limits the gate enforces.
func (g *Gate) Policy() Policy {
	return g.policy
}

func (g *Gate) initial() Document {
	return Document{
		Date:             g.now().Format(dateLayout),
		Quota:            g.policy.Quota,
		RateLimitSeconds: int(g.policy.RateLimit / time.Second),
	}
}

// rollover resets the counter when doc belongs to an earlier day and reports
// whether anything changed.
func (g *Gate) rollover(doc *Document, now time.Time) bool {
	today := now.Format(dateLayout)
	if doc.Date == today {
		return false
	}
	g.logger.Info().Str("previous_date", doc.Date).Int("previous_count", doc.Count).Str("date", today).Msg("Resetting daily quota")
	doc.Date = today
	doc.Count = 0
	doc.Quota = g.policy.Quota
	doc.RateLimitSeconds = int(g.policy.RateLimit / time.Second)
	return true
}

// refresh applies the rollover and persists it immediately when it happened.
func (g *Gate) refresh(ctx context.Context) (Document, error) {
	return docstore.Update(ctx, g.updater, g.path, "Reset daily quota", g.initial, func(doc *Document) error {
		if !g.rollover(doc, g.now()) {
			return docstore.ErrNoChange
		}
		return nil
	})
}

// CheckQuota decides whether a protected call may run now. It never changes
// the count except for the daily reset.
func (g *Gate) CheckQuota(ctx context.Context) (Decision, error) {
	doc, err := g.refresh(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("check quota: %w", err)
	}

	now := g.now()
	snap := g.snapshot(doc)

	if doc.Count >= g.policy.Quota {
		g.logger.Warn().Int("count", doc.Count).Int("quota", g.policy.Quota).Msg("Daily quota exceeded")
		return Decision{
			Reason:  ReasonQuotaExceeded,
			Message: "Daily quota exceeded. Please try again tomorrow.",
			Usage:   snap,
		}, nil
	}

	if doc.LastCall != nil {
		elapsed := now.Sub(*doc.LastCall)
		if elapsed < g.policy.RateLimit {
			wait := int(math.Ceil((g.policy.RateLimit - elapsed).Seconds()))
			snap.WaitSeconds = wait
			g.logger.Debug().Int("wait_seconds", wait).Msg("Rate limit hit")
			return Decision{
				Reason:  ReasonRateLimit,
				Message: fmt.Sprintf("Rate limit exceeded. Please wait %d seconds.", wait),
				Usage:   snap,
			}, nil
		}
	}

	return Decision{Allowed: true, Usage: snap}, nil
}

// Increment records one successful protected call.
func (g *Gate) Increment(ctx context.Context) (Snapshot, error) {
	doc, err := docstore.Update(ctx, g.updater, g.path, "Increment usage count", g.initial, func(doc *Document) error {
		now := g.now()
		g.rollover(doc, now)
		doc.Count++
		doc.LastCall = &now
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("increment usage: %w", err)
	}

	snap := g.snapshot(doc)
	g.logger.Debug().Int("count", snap.Count).Int("remaining", snap.Remaining).Msg("Usage incremented")
	return snap, nil
}

// Stats reports the current usage, persisting the daily reset if one is due.
func (g *Gate) Stats(ctx context.Context) (Snapshot, error) {
	doc, err := g.refresh(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("usage stats: %w", err)
	}
	return g.snapshot(doc), nil
}

func (g *Gate) snapshot(doc Document) Snapshot {
	return Snapshot{
		Date:             doc.Date,
		Count:            doc.Count,
		Quota:            g.policy.Quota,
		Remaining:        g.policy.Quota - doc.Count,
		LastCall:         doc.LastCall,
		RateLimitSeconds: int(g.policy.RateLimit / time.Second),
	}
}
