package notify

import (
	"context"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"
)

// Desktop shows alerts as local desktop notifications. It is meant for
// running the daemon on a workstation during development.
type Desktop struct {
	notify func(title, message string) error
	logger zerolog.Logger
}

// NewDesktop creates a Desktop notifier.
func NewDesktop(logger zerolog.Logger) *Desktop {
	return &Desktop{
		notify: func(title, message string) error { return beeep.Notify(title, message, "") },
		logger: logger.With().Str("component", "desktop_notifier").Logger(),
	}
}

// Send implements Notifier.
func (d *Desktop) Send(_ context.Context, alert Alert) (Result, error) {
	title := "Mira: " + alert.Subject
	if err := d.notify(title, alert.Message); err != nil {
		// Common causes: notification permissions not granted, or no notification daemon.
		d.logger.Warn().Err(err).Msg("Failed to send desktop notification")
		return Result{}, err
	}
	return Result{Success: true, Channel: "desktop", Timestamp: time.Now().UTC()}, nil
}
