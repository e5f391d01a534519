package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	// retryInitialDelay is the first delay before retrying a failed completion
	retryInitialDelay = 500 * time.Millisecond
	// retryMaxInterval caps the delay between attempts
	retryMaxInterval = 4 * time.Second
)

// WithRetry retries transient provider failures (network, timeout, 5xx) up
// to maxRetries times. Rate limits are not retried: the caller is waiting on
// an HTTP response and the provider's retry-after is usually a minute.
func WithRetry(client Client, maxRetries uint64, logger zerolog.Logger) Client {
	if maxRetries == 0 {
		return client
	}
	logger = logger.With().Str("component", "llm_retry").Logger()

	return ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		var resp *Response
		attempt := 0

		operation := func() error {
			attempt++
			var err error
			resp, err = client.Synchronous(ctx, req)
			if err == nil {
				return nil
			}
			if !IsRetryableError(err) || IsRateLimitError(err) {
				return backoff.Permanent(err)
			}
			logger.Warn().Err(err).Int("attempt", attempt).Uint64("max_retries", maxRetries).Msg("Completion failed, retrying")
			return err
		}

		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = retryInitialDelay
		eb.MaxInterval = retryMaxInterval
		eb.Multiplier = 2.0
		eb.RandomizationFactor = 0.2
		eb.Reset()

		if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(eb, maxRetries), ctx)); err != nil {
			return nil, err
		}
		return resp, nil
	})
}
