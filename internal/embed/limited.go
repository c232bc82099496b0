package embed

import (
	"context"

	"golang.org/x/time/rate"

	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
)

// RateLimitedProvider caps the request rate to a Provider. Batch indexing
// runs many workers; the limiter keeps them from flooding a local model.
type RateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimitedProvider allows rps requests per second with a burst of
// one per second's worth. rps <= 0 disables the limit.
func NewRateLimitedProvider(inner Provider, rps float64) *RateLimitedProvider {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}
	return &RateLimitedProvider{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

// Embed implements Provider. It waits for a token or for ctx.
func (r *RateLimitedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeProviderTimeout, "rate limit wait aborted", err)
	}
	return r.inner.Embed(ctx, text)
}

// ModelName implements Provider.
func (r *RateLimitedProvider) ModelName() string { return r.inner.ModelName() }

// Close implements Provider.
func (r *RateLimitedProvider) Close() error { return r.inner.Close() }
