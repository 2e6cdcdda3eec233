/*
Package fetch downloads source images with bounded retries.

A fetch makes at most a caller supplied number of attempts. A rate-limited
response (HTTP 429) waits 2^attempt seconds plus up to one second of jitter
before the next attempt; any other failure waits 2^attempt seconds. Once the
attempts are exhausted the fetch fails with ErrRateLimited or ErrFetch.
*/
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"math/rand"
	"net/http"
	"time"

	"github.com/die-net/lrucache"
	"github.com/gregjones/httpcache"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// DefaultMaxBytes caps a response body.
const DefaultMaxBytes = 32 << 20

const userAgent = "ledgallery/1.0"

var (
	// ErrRateLimited is returned when the host kept answering 429 until the
	// attempts ran out.
	ErrRateLimited = errors.New("fetch: rate limited")

	// ErrFetch is returned for any other failure once the attempts ran out.
	ErrFetch = errors.New("fetch: request failed")

	// errTooLarge ends a fetch without further attempts.
	errTooLarge = errors.New("fetch: response too large")
)

// Doer performs HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: %s: unexpected status %d", e.URL, e.StatusCode)
}

// Fetcher retrieves raw image bytes. It holds no per-fetch state and is safe
// for concurrent use.
type Fetcher struct {
	client  Doer
	timeout time.Duration
	logger  logrus.FieldLogger
	sleep   func(context.Context, time.Duration) error
	jitter  func() float64
	max     int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient replaces the HTTP client.
func WithClient(c Doer) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithCache routes requests through an in-memory HTTP cache holding up to
// maxBytes of responses for at most maxAge.
func WithCache(maxBytes int64, maxAge time.Duration) Option {
	return func(f *Fetcher) {
		t := httpcache.NewTransport(lrucache.New(maxBytes, int64(maxAge/time.Second)))
		f.client = &http.Client{Transport: t}
	}
}

// WithTimeout sets the per-request timeout. Zero keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxBytes caps the size of a response body. Zero or less disables the
// cap.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		f.max = n
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l logrus.FieldLogger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// WithSleep replaces the function used to wait between attempts.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(f *Fetcher) {
		f.sleep = fn
	}
}

// WithJitter replaces the source of the [0, 1) jitter added to rate-limit
// backoffs.
func WithJitter(fn func() float64) Option {
	return func(f *Fetcher) {
		f.jitter = fn
	}
}

// New returns a Fetcher using http.DefaultClient unless told otherwise.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:  http.DefaultClient,
		timeout: DefaultTimeout,
		logger:  logrus.StandardLogger(),
		sleep:   Sleep,
		jitter:  rand.Float64,
		max:     DefaultMaxBytes,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Backoff returns the wait before the attempt following attempt (zero based).
func Backoff(attempt int, rateLimited bool, jitter float64) time.Duration {
	d := time.Duration(1<<uint(attempt)) * time.Second
	if rateLimited {
		d += time.Duration(jitter * float64(time.Second))
	}
	return d
}

func (f *Fetcher) get(ctx context.Context, url string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(ioutil.Discard, resp.Body)
		return resp.StatusCode, nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	var body io.Reader = resp.Body
	if f.max > 0 {
		body = io.LimitReader(resp.Body, f.max+1)
	}
	b, err := ioutil.ReadAll(body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if f.max > 0 && int64(len(b)) > f.max {
		return resp.StatusCode, nil, fmt.Errorf("%w: more than %d bytes", errTooLarge, f.max)
	}
	return resp.StatusCode, b, nil
}

// Fetch downloads url making at most maxAttempts attempts. Values below one
// are treated as one.
func (f *Fetcher) Fetch(ctx context.Context, url string, maxAttempts int) ([]byte, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	log := f.logger.WithField("url", url)

	for attempt := 0; ; attempt++ {
		status, b, err := f.get(ctx, url)
		if err == nil {
			return b, nil
		}

		last := attempt >= maxAttempts-1
		rateLimited := status == http.StatusTooManyRequests

		switch {
		case rateLimited && last:
			return nil, ErrRateLimited
		case last, errors.Is(err, errTooLarge):
			return nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}

		d := Backoff(attempt, rateLimited, f.jitter())
		log.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"wait":    d,
		}).WithError(err).Debug("Retrying fetch")

		if err := f.sleep(ctx, d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}
	}
}
