package gateway

import (
	"context"
	"errors"
	"github.com/rs/zerolog"
	"time"
)

type RetryConfig struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	AttemptTimeout time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    4,
		BaseDelay:      200 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		Multiplier:     2,
		AttemptTimeout: 10 * time.Second,
	}
}

// Retrying wraps a Gateway; only transient failures are retried.
type Retrying struct {
	Next   Gateway
	Config RetryConfig
	Log    zerolog.Logger
}

func WithRetry(g Gateway, cfg RetryConfig, log zerolog.Logger) *Retrying {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2
	}
	return &Retrying{Next: g, Config: cfg, Log: log}
}

func retry[T any](ctx context.Context, r *Retrying, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	backoff := r.Config.BaseDelay

	for attempt := 1; attempt <= r.Config.MaxAttempts; attempt++ {
		actx, cancel := ctx, context.CancelFunc(func() {})
		if r.Config.AttemptTimeout > 0 {
			actx, cancel = context.WithTimeout(ctx, r.Config.AttemptTimeout)
		}
		result, err := fn(actx)
		cancel()
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.Join(ErrTimeout, err)
		}
		if !IsTransient(err) {
			return zero, err
		}
		lastErr = err
		r.Log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("gateway call failed, retrying")

		if attempt < r.Config.MaxAttempts {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
				backoff = time.Duration(float64(backoff) * r.Config.Multiplier)
				if r.Config.MaxDelay > 0 && backoff > r.Config.MaxDelay {
					backoff = r.Config.MaxDelay
				}
			}
		}
	}
	return zero, lastErr
}

func (r *Retrying) Authorize(ctx context.Context, req AuthorizeRequest) (Authorization, error) {
	return retry(ctx, r, "authorize", func(ctx context.Context) (Authorization, error) {
		return r.Next.Authorize(ctx, req)
	})
}

func (r *Retrying) Verify(ctx context.Context, reference string) (Verification, error) {
	return retry(ctx, r, "verify", func(ctx context.Context) (Verification, error) {
		return r.Next.Verify(ctx, reference)
	})
}

// Disburse relies on the payout reference being idempotent at the processor.
func (r *Retrying) Disburse(ctx context.Context, p Payout) (Transfer, error) {
	return retry(ctx, r, "disburse", func(ctx context.Context) (Transfer, error) {
		return r.Next.Disburse(ctx, p)
	})
}

func (r *Retrying) ResolveAccountName(ctx context.Context, accountNumber, bankCode string) (string, error) {
	return retry(ctx, r, "resolve_account", func(ctx context.Context) (string, error) {
		return r.Next.ResolveAccountName(ctx, accountNumber, bankCode)
	})
}

func (r *Retrying) ListBanks(ctx context.Context, currency string) ([]Bank, error) {
	return retry(ctx, r, "list_banks", func(ctx context.Context) ([]Bank, error) {
		return r.Next.ListBanks(ctx, currency)
	})
}
