// Package notify delivers operator alerts: quota and rate-limit denials,
// critical errors and ad-hoc emergency messages.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aivoicefromthevoid/mira/usage"
)

// Priority is the urgency printed on an alert.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
)

// DefaultAction tags alerts sent without an explicit action.
const DefaultAction = "email.send.emergency"

// Alert is one notification.
type Alert struct {
	Subject   string
	Message   string
	Type      string
	Priority  Priority
	Action    string
	Details   any
	Timestamp time.Time
}

// Result describes a delivered alert.
type Result struct {
	Success   bool      `json:"success"`
	Channel   string    `json:"channel"`
	MessageID string    `json:"messageId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier delivers alerts.
type Notifier interface {
	Send(ctx context.Context, alert Alert) (Result, error)
}

// QuotaExceeded builds the alert sent when the daily quota is used up.
func QuotaExceeded(snap usage.Snapshot) Alert {
	return Alert{
		Subject: "OpenRouter API Quota Exceeded",
		Message: fmt.Sprintf(`Mira has reached her daily API quota limit.

Current Usage:
- Date: %s
- Calls Made: %d
- Daily Limit: %d
- Remaining: 0

Mira will enter "Meditative Silence" mode until quota resets at midnight UTC.

No action required - this is for your awareness.`, snap.Date, snap.Count, snap.Quota),
		Type:     "quota_exceeded",
		Priority: PriorityHigh,
		Details:  snap,
	}
}

// RateLimited builds the alert sent when calls come in too quickly.
func RateLimited(waitSeconds, spacingSeconds int) Alert {
	return Alert{
		Subject: "OpenRouter API Rate Limit Triggered",
		Message: fmt.Sprintf(`Mira has triggered rate limit protection.

Rate Limit Details:
- Minimum spacing: %d seconds between calls
- Wait time required: %d seconds

Mira will pause briefly before continuing. This is normal behavior to prevent API abuse.`, spacingSeconds, waitSeconds),
		Type:     "rate_limit",
		Priority: PriorityMedium,
		Details:  map[string]int{"wait_time_seconds": waitSeconds},
	}
}

// CriticalError builds the alert sent when a request fails unexpectedly.
func CriticalError(err error, fields map[string]any) Alert {
	ctxJSON, _ := json.MarshalIndent(fields, "", "  ")
	return Alert{
		Subject: "Mira Critical Error",
		Message: fmt.Sprintf(`Mira has encountered a critical error that requires your attention.

Error: %v

Context: %s

Please investigate and take appropriate action.`, err, ctxJSON),
		Type:     "critical_error",
		Priority: PriorityCritical,
		Details:  map[string]any{"error": err.Error(), "context": fields},
	}
}

// Body renders the plain-text body of an alert.
func Body(a Alert) string {
	ts := a.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	typ := a.Type
	if typ == "" {
		typ = "General Alert"
	}
	priority := a.Priority
	if priority == "" {
		priority = PriorityHigh
	}
	action := a.Action
	if action == "" {
		action = DefaultAction
	}

	var b strings.Builder
	b.WriteString("Mira Emergency Notification\n========================\n\n")
	fmt.Fprintf(&b, "Timestamp: %s\nType: %s\nPriority: %s\n\n%s\n", ts.Format(time.RFC3339), typ, priority, a.Message)

	if a.Details != nil {
		details, err := json.MarshalIndent(a.Details, "", "  ")
		if err != nil {
			details = []byte(fmt.Sprintf("%v", a.Details))
		}
		fmt.Fprintf(&b, "\nAdditional Details:\n----------------\n%s\n", details)
	}

	fmt.Fprintf(&b, "\n---\nThis is an automated emergency notification from Mira.\nAction: %s\nTier: GREEN (Autonomous)\n", action)
	return b.String()
}

// Multi sends every alert to each notifier in turn. It succeeds when at least
// one notifier does.
type Multi []Notifier

// Send implements Notifier.
func (m Multi) Send(ctx context.Context, alert Alert) (Result, error) {
	var (
		first Result
		ok    bool
		errs  []error
	)
	for _, n := range m {
		res, err := n.Send(ctx, alert)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			first, ok = res, true
		}
	}
	if ok {
		return first, nil
	}
	if len(errs) == 0 {
		return Result{}, errors.New("no notifiers configured")
	}
	return Result{}, errors.Join(errs...)
}

// Nop drops every alert.
type Nop struct{}

// Send implements Notifier.
func (Nop) Send(context.Context, Alert) (Result, error) {
	return Result{Success: true, Channel: "none", Timestamp: time.Now().UTC()}, nil
}
