// Package tabular fetches published spreadsheet feeds as CSV and parses them
// into header-addressable datasets. Transient network failures are retried
// with exponential backoff; format problems are reported immediately.
package tabular

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/infoboard/infoboard/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxBodySize bounds how much of a feed response is read.
const maxBodySize = 8 << 20

var tracer = otel.Tracer("github.com/infoboard/infoboard/pkg/tabular")

// Options configures a Fetcher. Zero values fall back to defaults.
type Options struct {
	Client  *http.Client
	Retry   RetryPolicy
	Timeout time.Duration // per attempt
	Log     logger.Logger
	// Sleep waits between attempts. Tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
	// Now stamps the cache-defeating query token.
	Now func() time.Time
}

// Fetcher downloads and parses CSV feeds.
type Fetcher struct {
	client  *http.Client
	retry   RetryPolicy
	timeout time.Duration
	log     logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

// NewFetcher creates a Fetcher from opts.
func NewFetcher(opts Options) *Fetcher {
	f := &Fetcher{
		client:  opts.Client,
		retry:   opts.Retry,
		timeout: opts.Timeout,
		log:     opts.Log,
		sleep:   opts.Sleep,
		now:     opts.Now,
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.retry == (RetryPolicy{}) {
		f.retry = DefaultRetryPolicy()
	}
	if f.timeout <= 0 {
		f.timeout = DefTimeout
	}
	if f.log == nil {
		f.log = logger.NewNopLogger()
	}
	if f.sleep == nil {
		f.sleep = sleepContext
	}
	if f.now == nil {
		f.now = time.Now
	}
	return f
}

// Fetch retrieves rawURL and parses it. Every failure is a *FetchError;
// test it with errors.Is against ErrTransient or ErrUpstreamFormat.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Dataset, error) {
	ctx, span := tracer.Start(ctx, "tabular.Fetch", trace.WithAttributes(
		attribute.String("feed.url", rawURL),
	))
	defer span.End()

	target, err := bustCache(rawURL, f.now())
	if err != nil {
		fe := &FetchError{URL: rawURL, Reason: ReasonInvalidURL, Err: err}
		span.SetStatus(codes.Error, fe.Error())
		return nil, fe
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		body, err := f.attempt(ctx, target)
		if err == nil {
			span.SetAttributes(attribute.Int("feed.attempts", attempt))
			return f.decode(rawURL, attempt, body, span)
		}
		lastErr = withAttempts(err, rawURL, attempt)
		if !f.retry.ShouldRetry(attempt, lastErr) {
			break
		}
		delay := f.retry.Delay(attempt - 1)
		f.log.Warning("%s: attempt %d/%d failed (%v), retrying in %s",
			rawURL, attempt, f.retry.MaxRetries+1, err, delay)
		if err := f.sleep(ctx, delay); err != nil {
			lastErr = withAttempts(err, rawURL, attempt)
			break
		}
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return nil, lastErr
}

// attempt performs a single bounded request and returns the body.
func (f *Fetcher) attempt(ctx context.Context, target string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{Reason: ReasonNetwork, Err: err}
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.1")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Reason: ReasonNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{Reason: ReasonHTTPStatus, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &FetchError{Reason: ReasonNetwork, Err: err}
	}
	return body, nil
}

func (f *Fetcher) decode(rawURL string, attempts int, body []byte, span trace.Span) (*Dataset, error) {
	if looksLikeHTML(body) {
		err := &FetchError{
			URL:      rawURL,
			Reason:   ReasonWrongContentType,
			Attempts: attempts,
			Err:      errors.New("received an HTML page instead of CSV; check that the sheet is published to the web as CSV"),
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	d := NewDataset(Parse(string(body)))
	if d == nil {
		err := &FetchError{URL: rawURL, Reason: ReasonEmptyDataset, Attempts: attempts}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("feed.rows", len(d.Rows)))
	return d, nil
}

func looksLikeHTML(body []byte) bool {
	head := bytes.TrimSpace(body)
	if len(head) > 64 {
		head = head[:64]
	}
	head = bytes.ToLower(head)
	return bytes.HasPrefix(head, []byte("<!doctype")) || bytes.HasPrefix(head, []byte("<html"))
}

// bustCache appends a t=<unix-ms> token so no cache between us and the
// sheet can answer with an old copy.
func bustCache(rawURL string, now time.Time) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	token := "t=" + strconv.FormatInt(now.UnixMilli(), 10)
	if u.RawQuery == "" {
		u.RawQuery = token
	} else {
		u.RawQuery += "&" + token
	}
	return u.String(), nil
}

func withAttempts(err error, rawURL string, attempts int) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		fe.URL = rawURL
		fe.Attempts = attempts
		return fe
	}
	return &FetchError{URL: rawURL, Reason: ReasonNetwork, Attempts: attempts, Err: err}
}
