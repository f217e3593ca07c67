package pim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultRetryAttempts bounds how many times a remote mutation runs,
	// the first attempt included.
	DefaultRetryAttempts = 10
	// DefaultRetryDelay is the base wait between attempts; attempt n waits
	// n times this long.
	DefaultRetryDelay = time.Second
)

// linearBackOff grows the wait arithmetically: Interval after the first
// failure, twice that after the second, and so on.
type linearBackOff struct {
	Interval time.Duration
	attempt  int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.Interval
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// Retrier runs remote mutations with a bounded retry budget. Transient
// failures (throttling, 5xx, transport errors) are retried; everything else
// surfaces immediately. The zero value uses the default budget and delay.
type Retrier struct {
	Attempts int
	Delay    time.Duration
	Log      *slog.Logger
}

func (r *Retrier) attempts() int {
	if r.Attempts <= 0 {
		return DefaultRetryAttempts
	}
	return r.Attempts
}

func (r *Retrier) delay() time.Duration {
	if r.Delay <= 0 {
		return DefaultRetryDelay
	}
	return r.Delay
}

func (r *Retrier) log() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

// Do invokes fn until it succeeds, fails permanently, or the attempt budget
// runs out, in which case the last error is returned. The count of attempts
// actually made is always returned.
func (r *Retrier) Do(ctx context.Context, desc string, fn func() error) (int, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{Interval: r.delay()}, uint64(r.attempts()-1)), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !Transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		r.log().Warn("retrying after transient failure",
			"operation", desc, "attempt", attempt, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return attempt, fmt.Errorf("%s: %w", desc, err)
	}
	return attempt, nil
}

// Transient reports whether err is worth retrying. Rate limiting and
// server-side failures are; cancellation and other 4xx responses are not.
// Errors that never produced a response count as transport failures and are
// retried.
func Transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusTooManyRequests || respErr.StatusCode >= 500
	}
	return true
}
