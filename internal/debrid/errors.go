package debrid

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/vinayydv3695/SeedCore/internal/errkind"
)

// ErrNotCached is returned by CheckCache callers (as a sentinel on
// CacheResult.IsCached == false) when a caller wants the error form instead
// of the boolean (§4.J, §7 NotCached).
var ErrNotCached = errors.New("debrid: torrent not cached")

// ClassifyStatus maps an HTTP status code to the §7/§4.J failure taxonomy,
// shared by every provider adapter so they fail the same way for the same
// class of HTTP response.
func ClassifyStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errkind.New(errkind.AuthFailed, "provider rejected credentials")
	case code == http.StatusTooManyRequests:
		return errkind.New(errkind.NetworkTransient, "rate limited")
	case code >= 500:
		return errkind.New(errkind.NetworkTransient, "provider server error")
	case code >= 400:
		return errkind.New(errkind.FatalProvider, "provider rejected request")
	default:
		return nil
	}
}

// retryableBackoff returns a bounded exponential backoff used for
// transient provider/network errors (§4.J "retried with capped exponential
// backoff").
func retryableBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 2 * time.Minute
	return bo
}

// retryAfterBackOff wraps an ExponentialBackOff, honoring a provider's
// explicit Retry-After hint for the next wait when one was set on the last
// error, and otherwise falling back to ordinary exponential backoff (§7
// "honor Retry-After").
type retryAfterBackOff struct {
	backoff.BackOff
	next time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	if b.next > 0 {
		d := b.next
		b.next = 0
		return d
	}
	return b.BackOff.NextBackOff()
}

// WithRetry runs op, retrying on errkind.NetworkTransient errors with
// capped exponential backoff and giving up immediately on anything else
// (AuthFailed, FatalProvider are not retried per §4.J/§7). When a
// NetworkTransient error carries a RetryAfter hint, that wait is used for
// the next attempt instead of the computed exponential interval.
func WithRetry(ctx context.Context, op func() error) error {
	rb := &retryAfterBackOff{BackOff: retryableBackoff()}
	bo := backoff.WithContext(rb, ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errkind.Is(err, errkind.NetworkTransient) {
			rb.next = errkind.RetryAfter(err)
			return err
		}
		return backoff.Permanent(err)
	}, bo)
}
