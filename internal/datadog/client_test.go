package datadog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chrissnell/wxdatadog/internal/types"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, url string, opts Options) (*Client, *[]time.Duration) {
	t.Helper()
	opts.APIHost = url
	opts.APIKey = "api-key"
	opts.AppKey = "app-key"
	c := NewClient(opts, nil, zap.NewNop().Sugar())

	var mu sync.Mutex
	waits := []time.Duration{}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		waits = append(waits, d)
		mu.Unlock()
		return ctx.Err()
	}
	return c, &waits
}

func decodePayload(t *testing.T, r *http.Request) seriesPayload {
	t.Helper()
	require.Equal(t, "gzip", r.Header.Get("Content-Encoding"))
	zr, err := gzip.NewReader(r.Body)
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)

	var p seriesPayload
	require.NoError(t, json.Unmarshal(raw, &p))
	return p
}

func sampleSubmissions() []types.Submission {
	return []types.Submission{
		{Metric: "weewx.out_temp", Value: 22.5, Timestamp: 1700000000, Host: "backyard", Tags: []string{"location:A"}, Type: types.MetricTypeGauge},
		{Metric: "weewx.barometer", Value: 1019.3, Timestamp: 1700000000, Host: "backyard", Tags: []string{"location:A"}},
	}
}

func TestSendPostsSeries(t *testing.T) {
	var got seriesPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, seriesPath, r.URL.Path)
		assert.Equal(t, "api-key", r.Header.Get("DD-API-KEY"))
		assert.Equal(t, "app-key", r.Header.Get("DD-APPLICATION-KEY"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		got = decodePayload(t, r)
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer ts.Close()

	c, _ := newTestClient(t, ts.URL, Options{MaxTries: 3})
	res, err := c.Send(context.Background(), sampleSubmissions())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Series)
	assert.Equal(t, 1, res.Requests)
	assert.Equal(t, 1, res.Attempts)
	assert.NotEmpty(t, res.BatchID)

	require.Len(t, got.Series, 2)
	assert.Equal(t, "weewx.out_temp", got.Series[0].Metric)
	assert.Equal(t, "gauge", got.Series[0].Type)
	assert.Equal(t, "gauge", got.Series[1].Type)
	assert.Equal(t, [2]float64{1700000000, 22.5}, got.Series[0].Points[0])
	assert.Equal(t, "backyard", got.Series[0].Host)
	assert.Equal(t, []string{"location:A"}, got.Series[0].Tags)
}

func TestSendNothing(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer ts.Close()

	c, _ := newTestClient(t, ts.URL, Options{})
	res, err := c.Send(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Requests)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestSendAuthErrorIsNotRetried(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errors":["Unauthorized"]}`))
	}))
	defer ts.Close()

	c, waits := newTestClient(t, ts.URL, Options{MaxTries: 3, RetryWait: time.Second})
	res, err := c.Send(context.Background(), sampleSubmissions())

	var ae *AuthError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusUnauthorized, ae.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, *waits)
}

func TestSendRequestErrorIsNotRetried(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	c, _ := newTestClient(t, ts.URL, Options{MaxTries: 3})
	_, err := c.Send(context.Background(), sampleSubmissions())

	var re *RequestError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSendRetriesServerErrorsWithBackoff(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c, waits := newTestClient(t, ts.URL, Options{MaxTries: 4, RetryWait: 5 * time.Second, MaxRetryWait: 12 * time.Second})
	res, err := c.Send(context.Background(), sampleSubmissions())

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 12 * time.Second}, *waits)
}

func TestSendRecoversAfterTransientError(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	c, _ := newTestClient(t, ts.URL, Options{MaxTries: 3})
	res, err := c.Send(context.Background(), sampleSubmissions())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 2, res.Series)
}

func TestSendTimesOut(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer ts.Close()
	defer close(release)

	c, _ := newTestClient(t, ts.URL, Options{MaxTries: 3, Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := c.Send(context.Background(), sampleSubmissions())
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSendSplitsLargePayloads(t *testing.T) {
	var mu sync.Mutex
	var sizes []int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := decodePayload(t, r)
		mu.Lock()
		sizes = append(sizes, len(p.Series))
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	subs := make([]types.Submission, 10)
	for i := range subs {
		subs[i] = types.Submission{Metric: "weewx.out_temp", Value: float64(i), Timestamp: 1700000000}
	}

	c, _ := newTestClient(t, ts.URL, Options{MaxPayloadBytes: 250})
	res, err := c.Send(context.Background(), subs)
	require.NoError(t, err)

	assert.Greater(t, res.Requests, 1)
	assert.Equal(t, 10, res.Series)
	total := 0
	for _, n := range sizes {
		total += n
	}
	assert.Equal(t, 10, total)
}

func TestValidate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, validatePath, r.URL.Path)
		if r.Header.Get("DD-API-KEY") != "api-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`{"valid":true}`))
	}))
	defer ts.Close()

	c, _ := newTestClient(t, ts.URL, Options{})
	require.NoError(t, c.Validate(context.Background()))

	bad := NewClient(Options{APIHost: ts.URL, APIKey: "wrong"}, nil, zap.NewNop().Sugar())
	err := bad.Validate(context.Background())
	var ae *AuthError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusForbidden, ae.StatusCode)
}
