package telephony

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPlacementFailed wraps provider-side dial failures after retries are
// exhausted.
var ErrPlacementFailed = errors.New("telephony: call placement failed")

// PlaceRequest carries everything a provider needs to start an outbound call.
type PlaceRequest struct {
	// CallID is our internal identifier, used for callback correlation.
	CallID string

	To   string
	From string

	// VoiceURL is fetched by the provider when the callee answers.
	VoiceURL string
	// StatusURL receives lifecycle status callbacks.
	StatusURL string
}

// Placement is the provider's acknowledgement of a started call.
type Placement struct {
	// ProviderRef is the provider-side call identifier (Twilio CallSid).
	ProviderRef string
}

// Dialer starts outbound calls. Implementations must honor ctx cancellation.
type Dialer interface {
	Place(ctx context.Context, req PlaceRequest) (Placement, error)
}

// RetryConfig bounds the dial retry loop.
type RetryConfig struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

// DefaultRetryConfig matches the product defaults: three attempts, one second
// doubling backoff capped at five seconds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:       3,
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Second,
		AttemptTimeout: 15 * time.Second,
	}
}

// PlaceWithRetry drives the dialer with bounded retries and exponential
// backoff. The last provider error is wrapped under ErrPlacementFailed.
func PlaceWithRetry(ctx context.Context, d Dialer, req PlaceRequest, cfg RetryConfig) (Placement, error) {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}

	var lastErr error
	backoff := cfg.InitialBackoff
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		attemptCtx := ctx
		cancel := func() {}
		if cfg.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.AttemptTimeout)
		}
		placement, err := d.Place(attemptCtx, req)
		cancel()
		if err == nil {
			return placement, nil
		}
		lastErr = err

		if attempt == cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return Placement{}, fmt.Errorf("%w: %v", ErrPlacementFailed, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return Placement{}, fmt.Errorf("%w: %v", ErrPlacementFailed, lastErr)
}
