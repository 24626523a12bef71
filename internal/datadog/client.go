// Package datadog submits gauge series to the Datadog v1 metrics API.
package datadog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chrissnell/wxdatadog/internal/constants"
	"github.com/chrissnell/wxdatadog/internal/types"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

const (
	seriesPath   = "/api/v1/series"
	validatePath = "/api/v1/validate"

	// DefaultMaxPayloadBytes bounds the uncompressed size of one request body
	DefaultMaxPayloadBytes = 1000000

	maxResponseBody = 64 * 1024
)

// Options configures a Client
type Options struct {
	APIHost         string
	APIKey          string
	AppKey          string
	Timeout         time.Duration
	MaxTries        int
	RetryWait       time.Duration
	MaxRetryWait    time.Duration
	MaxPayloadBytes int
}

// Series is one metric in the series API payload
type Series struct {
	Metric string       `json:"metric"`
	Type   string       `json:"type,omitempty"`
	Points [][2]float64 `json:"points"`
	Host   string       `json:"host,omitempty"`
	Tags   []string     `json:"tags,omitempty"`
}

type seriesPayload struct {
	Series []Series `json:"series"`
}

// Result describes a completed send
type Result struct {
	BatchID  string
	Series   int
	Requests int
	Attempts int
}

// Client posts series to Datadog
type Client struct {
	opts       Options
	httpClient *http.Client
	logger     *zap.SugaredLogger
	sleep      func(context.Context, time.Duration) error
}

// NewClient creates a new Datadog client. A nil httpClient gets a client with
// opts.Timeout as its overall timeout.
func NewClient(opts Options, httpClient *http.Client, logger *zap.SugaredLogger) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxTries < 1 {
		opts.MaxTries = 1
	}
	if opts.MaxRetryWait < opts.RetryWait {
		opts.MaxRetryWait = opts.RetryWait
	}
	if opts.MaxPayloadBytes == 0 {
		opts.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	opts.APIHost = strings.TrimRight(opts.APIHost, "/")

	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		opts:       opts,
		httpClient: httpClient,
		logger:     logger,
		sleep:      sleepContext,
	}
}

// Send posts the submissions, split into as many requests as needed to keep
// each body under the payload limit. It stops at the first request that fails.
func (c *Client) Send(ctx context.Context, subs []types.Submission) (Result, error) {
	res := Result{BatchID: uuid.New().String()}
	if len(subs) == 0 {
		return res, nil
	}

	batches, err := c.encodeBatches(toSeries(subs))
	if err != nil {
		return res, err
	}

	for _, b := range batches {
		attempts, err := c.postWithRetry(ctx, res.BatchID, b.body)
		res.Attempts += attempts
		if err != nil {
			return res, err
		}
		res.Requests++
		res.Series += b.count
	}

	return res, nil
}

// Validate checks the API key against the validation endpoint
func (c *Client) Validate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.APIHost+validatePath, nil)
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}
	c.setAuthHeaders(req)

	return c.do(req)
}

func toSeries(subs []types.Submission) []Series {
	out := make([]Series, 0, len(subs))
	for _, s := range subs {
		metricType := s.Type
		if metricType == "" {
			metricType = types.MetricTypeGauge
		}
		out = append(out, Series{
			Metric: s.Metric,
			Type:   metricType,
			Points: [][2]float64{{float64(s.Timestamp), s.Value}},
			Host:   s.Host,
			Tags:   s.Tags,
		})
	}
	return out
}

type batch struct {
	body  []byte
	count int
}

// encodeBatches splits series into gzip-compressed bodies whose uncompressed
// size stays below MaxPayloadBytes. A single series larger than the limit is
// sent on its own.
func (c *Client) encodeBatches(series []Series) ([]batch, error) {
	var batches []batch
	start := 0
	size := len(`{"series":[]}`)

	flush := func(end int) error {
		body, err := compress(seriesPayload{Series: series[start:end]})
		if err != nil {
			return err
		}
		batches = append(batches, batch{body: body, count: end - start})
		start = end
		return nil
	}

	for i, s := range series {
		raw, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("error encoding series %s: %w", s.Metric, err)
		}
		n := len(raw) + 1
		if i > start && size+n > c.opts.MaxPayloadBytes {
			if err := flush(i); err != nil {
				return nil, err
			}
			size = len(`{"series":[]}`)
		}
		size += n
	}
	if start < len(series) {
		if err := flush(len(series)); err != nil {
			return nil, err
		}
	}
	return batches, nil
}

func compress(payload seriesPayload) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error encoding payload: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// postWithRetry retries transport errors with exponential backoff, up to
// MaxTries attempts. Auth and request errors return immediately.
func (c *Client) postWithRetry(ctx context.Context, batchID string, body []byte) (int, error) {
	wait := c.opts.RetryWait

	for attempt := 1; ; attempt++ {
		err := c.post(ctx, body)
		if err == nil {
			return attempt, nil
		}

		var te *TransportError
		if !errors.As(err, &te) || attempt >= c.opts.MaxTries || ctx.Err() != nil {
			return attempt, err
		}

		c.logger.Warnf("batch %s: attempt %d/%d failed: %v; retrying in %v", batchID, attempt, c.opts.MaxTries, err, wait)
		if serr := c.sleep(ctx, wait); serr != nil {
			return attempt, err
		}

		wait *= 2
		if wait > c.opts.MaxRetryWait {
			wait = c.opts.MaxRetryWait
		}
	}
}

func (c *Client) post(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.APIHost+seriesPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	c.setAuthHeaders(req)

	return c.do(req)
}

func (c *Client) setAuthHeaders(req *http.Request) {
	req.Header.Set("DD-API-KEY", c.opts.APIKey)
	req.Header.Set("DD-APPLICATION-KEY", c.opts.AppKey)
	req.Header.Set("User-Agent", constants.UserAgent)
}

func (c *Client) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("error reading response body: %w", err)}
	}
	body := strings.TrimSpace(string(raw))

	c.logger.Debugf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{StatusCode: resp.StatusCode, Body: body}
	case resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= 500:
		return &TransportError{StatusCode: resp.StatusCode, Body: body}
	default:
		return &RequestError{StatusCode: resp.StatusCode, Body: body}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
