package storage

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttled wraps a Bucket so that lookups don't exceed a given rate, waiting
// for a token before each call. The wait honours the context.
type Throttled struct {
	delegate Bucket
	limiter  *rate.Limiter
}

func NewThrottled(delegate Bucket, perSecond float64, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{
		delegate: delegate,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (t *Throttled) GetByID(ctx context.Context, id string) (*Object, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.delegate.GetByID(ctx, id)
}

func (t *Throttled) OpenByPath(ctx context.Context, path string) (*Object, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.delegate.OpenByPath(ctx, path)
}
