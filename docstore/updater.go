package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/aivoicefromthevoid/mira/fault"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// ErrNoChange may be returned by an update function to end the cycle without
// writing. Update then returns the document as read and a nil error.
var ErrNoChange = errors.New("docstore: no change")

const (
	// conflictInitialInterval is the first delay before re-reading after a conflict
	conflictInitialInterval = 200 * time.Millisecond
	// conflictMaxInterval caps the delay between conflict retries
	conflictMaxInterval = 2 * time.Second
)

// Updater runs read-modify-write cycles against a Store. A cycle that loses
// the race (stale version token) is re-read and re-applied at most
// conflictRetries times. With zero retries the conflict is surfaced to the
// caller unchanged.
type Updater struct {
	store           Store
	conflictRetries uint64
	logger          zerolog.Logger
}

// NewUpdater creates an Updater over store.
func NewUpdater(store Store, conflictRetries uint64, logger zerolog.Logger) *Updater {
	return &Updater{
		store:           store,
		conflictRetries: conflictRetries,
		logger:          logger.With().Str("component", "docstore_updater").Logger(),
	}
}

// Store returns the underlying backend.
func (u *Updater) Store() Store {
	return u.store
}

// Update reads the document at path (def() when absent), hands it to fn and
// writes the result back with the token obtained by the read. fn must be safe
// to call more than once because conflicts re-run the whole cycle.
func Update[T any](ctx context.Context, u *Updater, path, message string, def func() T, fn func(doc *T) error) (T, error) {
	var result T
	attempt := 0

	operation := func() error {
		attempt++
		doc, version, err := ReadJSON(ctx, u.store, path, def)
		if err != nil {
			return backoff.Permanent(err)
		}

		if err := fn(&doc); err != nil {
			if errors.Is(err, ErrNoChange) {
				result = doc
				return nil
			}
			return backoff.Permanent(err)
		}

		if _, err := WriteJSON(ctx, u.store, path, doc, message, version); err != nil {
			if fault.IsStoreConflict(err) && uint64(attempt) <= u.conflictRetries {
				u.logger.Warn().
					Str("path", path).
					Int("attempt", attempt).
					Uint64("max_retries", u.conflictRetries).
					Err(err).
					Msg("Document changed concurrently, re-reading")
				return err
			}
			return backoff.Permanent(err)
		}
		result = doc
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = conflictInitialInterval
	eb.MaxInterval = conflictMaxInterval
	eb.Multiplier = 2.0
	eb.RandomizationFactor = 0.2
	eb.Reset()

	b := backoff.WithContext(backoff.WithMaxRetries(eb, u.conflictRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
