package tabular

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"syscall"
	"time"
)

// Default retry configuration values.
const (
	DefMaxRetries    = 2
	DefBaseDelay     = time.Second
	DefMaxDelay      = 10 * time.Second
	DefBackoffFactor = 2.0
	DefTimeout       = 12 * time.Second
)

// RetryPolicy bounds how a Fetcher retries transient failures.
type RetryPolicy struct {
	MaxRetries    int           // retries after the first attempt
	BaseDelay     time.Duration // delay before the first retry
	MaxDelay      time.Duration // cap on any single delay (0 = uncapped)
	BackoffFactor float64       // growth per retry
	JitterFactor  float64       // random spread in [0, 1); 0 keeps delays exact
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    DefMaxRetries,
		BaseDelay:     DefBaseDelay,
		MaxDelay:      DefMaxDelay,
		BackoffFactor: DefBackoffFactor,
	}
}

// Delay returns how long to wait before retry number attempt (0-based):
// BaseDelay * BackoffFactor^attempt, jittered, then capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(factor, float64(attempt))

	if p.JitterFactor > 0 {
		delay *= 1 + p.JitterFactor*(2*rand.Float64()-1)
	}
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// ErrorCategory classifies errors for retry decisions.
type ErrorCategory int

const (
	ErrCategoryFatal     ErrorCategory = iota // never retried
	ErrCategoryRetryable                      // network hiccup, attempt timeout
)

// ClassifyError decides whether err is worth another attempt.
func ClassifyError(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryFatal
	}
	// The caller gave up; retrying would ignore that.
	if errors.Is(err, context.Canceled) {
		return ErrCategoryFatal
	}

	var fe *FetchError
	if errors.As(err, &fe) && fe.Reason != ReasonNetwork {
		return ErrCategoryFatal
	}
	var mce *MissingColumnError
	if errors.As(err, &mce) {
		return ErrCategoryFatal
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrCategoryRetryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCategoryRetryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrCategoryRetryable
	}
	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		switch sysErr {
		case syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED,
			syscall.EPIPE, syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return ErrCategoryRetryable
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"timeout",
		"temporary failure",
		"no such host",
		"network is unreachable",
	} {
		if strings.Contains(errStr, pattern) {
			return ErrCategoryRetryable
		}
	}
	if fe != nil {
		// Transport failures we could not pin down are still network failures.
		return ErrCategoryRetryable
	}
	return ErrCategoryFatal
}

// ShouldRetry reports whether attempt number attempts (1-based, already
// made) may be followed by another one after failing with err.
func (p RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if ClassifyError(err) == ErrCategoryFatal {
		return false
	}
	return attempts <= p.MaxRetries
}

// sleepContext blocks for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
