package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleeper struct {
	waits []time.Duration
}

func (s *sleeper) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func newTestFetcher(s *sleeper, opts ...Option) *Fetcher {
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return New(append([]Option{
		WithLogger(logger),
		WithSleep(s.sleep),
		WithJitter(func() float64 { return 0.5 }),
	}, opts...)...)
}

// sequence serves the given status codes in order, then 200 forever.
func sequence(codes ...int) (*httptest.Server, *int32) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&calls, 1)) - 1
		if n < len(codes) {
			w.WriteHeader(codes[n])
			return
		}
		w.Write([]byte("image bytes"))
	}))
	return srv, &calls
}

func TestFetchSuccess(t *testing.T) {
	srv, calls := sequence()
	defer srv.Close()

	s := new(sleeper)
	b, err := newTestFetcher(s).Fetch(context.Background(), srv.URL, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("image bytes"), b)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Empty(t, s.waits)
}

func TestFetchRateLimitedExhausted(t *testing.T) {
	srv, calls := sequence(429, 429, 429)
	defer srv.Close()

	s := new(sleeper)
	b, err := newTestFetcher(s).Fetch(context.Background(), srv.URL, 3)
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.Nil(t, b)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{1500 * time.Millisecond, 2500 * time.Millisecond}, s.waits)
}

func TestFetchRecoversFromRateLimit(t *testing.T) {
	srv, calls := sequence(429, 429)
	defer srv.Close()

	s := new(sleeper)
	b, err := newTestFetcher(s).Fetch(context.Background(), srv.URL, 3)
	require.NoError(t, err)
	assert.NotEmpty(t, b)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestFetchServerError(t *testing.T) {
	srv, calls := sequence(500, 404, 503, 500, 500)
	defer srv.Close()

	s := new(sleeper)
	_, err := newTestFetcher(s).Fetch(context.Background(), srv.URL, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetch))
	assert.False(t, errors.Is(err, ErrRateLimited))
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, s.waits)
}

func TestFetchMixedFailuresEndingInError(t *testing.T) {
	srv, _ := sequence(429, 500)
	defer srv.Close()

	s := new(sleeper)
	_, err := newTestFetcher(s).Fetch(context.Background(), srv.URL, 2)
	assert.True(t, errors.Is(err, ErrFetch))
	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, s.waits)
}

func TestFetchLargerBudget(t *testing.T) {
	srv, calls := sequence(500, 500, 500, 500)
	defer srv.Close()

	s := new(sleeper)
	_, err := newTestFetcher(s).Fetch(context.Background(), srv.URL, 5)
	require.NoError(t, err)
	assert.Equal(t, int32(5), atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, s.waits)
}

func TestFetchConnectionError(t *testing.T) {
	srv, _ := sequence()
	url := srv.URL
	srv.Close()

	s := new(sleeper)
	_, err := newTestFetcher(s).Fetch(context.Background(), url, 0)
	assert.True(t, errors.Is(err, ErrFetch))
	assert.Empty(t, s.waits)
}

func TestFetchCancelledDuringBackoff(t *testing.T) {
	srv, calls := sequence(500, 500, 500)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	f := newTestFetcher(new(sleeper), WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return Sleep(ctx, time.Hour)
	}))

	_, err := f.Fetch(ctx, srv.URL, 3)
	assert.True(t, errors.Is(err, ErrFetch))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestFetchWithCache(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Cache-Control", "max-age=3600")
		w.Write([]byte("cached"))
	}))
	defer srv.Close()

	f := newTestFetcher(new(sleeper), WithCache(1<<20, time.Hour))
	for i := 0; i < 3; i++ {
		b, err := f.Fetch(context.Background(), srv.URL, 1)
		require.NoError(t, err)
		assert.Equal(t, []byte("cached"), b)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchTooLarge(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	s := new(sleeper)
	_, err := newTestFetcher(s, WithMaxBytes(1024)).Fetch(context.Background(), srv.URL, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetch))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, s.waits)

	b, err := newTestFetcher(s, WithMaxBytes(2048)).Fetch(context.Background(), srv.URL, 3)
	require.NoError(t, err)
	assert.Len(t, b, 2048)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(0, false, 0.9))
	assert.Equal(t, 4*time.Second, Backoff(2, false, 0.9))
	assert.Equal(t, 4*time.Second+250*time.Millisecond, Backoff(2, true, 0.25))
}
