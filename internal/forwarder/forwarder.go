// Package forwarder turns weewx observation records into Datadog gauge
// submissions and sends them from a single background worker.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chrissnell/wxdatadog/internal/datadog"
	"github.com/chrissnell/wxdatadog/internal/health"
	"github.com/chrissnell/wxdatadog/internal/mapping"
	"github.com/chrissnell/wxdatadog/internal/telemetry"
	"github.com/chrissnell/wxdatadog/internal/types"
	"github.com/chrissnell/wxdatadog/pkg/config"
	"go.uber.org/zap"
)

// HealthComponent is the name the forwarder reports its upload status under
const HealthComponent = "datadog"

// Sender transmits a batch of submissions. *datadog.Client implements it.
type Sender interface {
	Send(ctx context.Context, subs []types.Submission) (datadog.Result, error)
}

// Augmenter completes an archive record before it is mapped
type Augmenter interface {
	Complete(ctx context.Context, rec types.Record) (types.Record, error)
}

// Option configures a Forwarder
type Option func(*Forwarder)

// WithLogger sets the logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(f *Forwarder) { f.logger = logger }
}

// WithMetrics sets the Prometheus metrics the forwarder updates
func WithMetrics(m *telemetry.Metrics) Option {
	return func(f *Forwarder) { f.metrics = m }
}

// WithHealth reports upload outcomes to a health manager
func WithHealth(h *health.Manager) Option {
	return func(f *Forwarder) { f.health = h }
}

// WithAugmenter completes archive records from the weewx database
func WithAugmenter(a Augmenter) Option {
	return func(f *Forwarder) { f.augmenter = a }
}

// WithClock replaces time.Now, for stale checks in tests
func WithClock(now func() time.Time) Option {
	return func(f *Forwarder) { f.now = now }
}

// Forwarder maps records to submissions and posts them to Datadog.
// Process is not safe for concurrent use; the queue entry points are.
type Forwarder struct {
	cfg       config.ForwarderConfig
	table     *mapping.Table
	sender    Sender
	tags      []string
	logger    *zap.SugaredLogger
	metrics   *telemetry.Metrics
	health    *health.Manager
	augmenter Augmenter
	now       func() time.Time

	queue    chan types.Record
	lastPost int64
}

// New creates a forwarder. The mapping table is validated here so a bad
// table stops the process at startup rather than dropping metrics later.
func New(cfg config.ForwarderConfig, table *mapping.Table, sender Sender, opts ...Option) (*Forwarder, error) {
	if table == nil {
		return nil, errors.New("forwarder needs a mapping table")
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mapping table: %w", err)
	}
	if sender == nil {
		return nil, errors.New("forwarder needs a sender")
	}

	backlog := cfg.MaxBacklog
	if backlog < 1 {
		backlog = config.DefaultMaxBacklog
	}

	f := &Forwarder{
		cfg:    cfg,
		table:  table,
		sender: sender,
		tags:   cfg.Tags(),
		logger: zap.NewNop().Sugar(),
		now:    time.Now,
		queue:  make(chan types.Record, backlog),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.metrics == nil {
		f.metrics = telemetry.New()
	}

	return f, nil
}

// HandleLoopPacket queues a loop packet for upload. It never blocks.
func (f *Forwarder) HandleLoopPacket(rec types.Record) {
	rec.Type = types.LoopPacket
	f.enqueue(rec)
}

// HandleArchiveRecord queues an archive record for upload. It never blocks.
func (f *Forwarder) HandleArchiveRecord(rec types.Record) {
	rec.Type = types.ArchiveRecord
	f.enqueue(rec)
}

func (f *Forwarder) enqueue(rec types.Record) {
	f.metrics.RecordsReceived.WithLabelValues(string(rec.Type)).Inc()

	if !f.cfg.Binding.Accepts(rec.Type) {
		f.metrics.RecordsSkipped.WithLabelValues(telemetry.ReasonUnbound).Inc()
		f.logger.Debugf("ignoring %s record at %d: binding is %s", rec.Type, rec.Timestamp, f.cfg.Binding)
		return
	}

	for {
		select {
		case f.queue <- rec:
			f.metrics.QueueLength.Set(float64(len(f.queue)))
			return
		default:
		}

		// Full: make room by discarding the oldest record.
		select {
		case old := <-f.queue:
			f.metrics.RecordsDropped.WithLabelValues(telemetry.ReasonBacklog).Inc()
			f.logger.Warnf("backlog of %d records is full, dropping %s record at %d", cap(f.queue), old.Type, old.Timestamp)
		default:
		}
	}
}

// Start runs the upload worker until ctx is cancelled. Records still queued
// at shutdown are dropped.
func (f *Forwarder) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.run(ctx)
	}()
}

func (f *Forwarder) run(ctx context.Context) {
	f.logger.Infof("Datadog forwarder started (binding %s, host %s)", f.cfg.Binding, f.cfg.APIHost)
	for {
		select {
		case <-ctx.Done():
			if n := len(f.queue); n > 0 {
				f.metrics.RecordsDropped.WithLabelValues(telemetry.ReasonShutdown).Add(float64(n))
				f.logger.Infof("shutting down with %d records unsent", n)
			}
			f.metrics.QueueLength.Set(0)
			return
		case rec := <-f.queue:
			f.metrics.QueueLength.Set(float64(len(f.queue)))
			// Errors are logged and counted in Process.
			_ = f.Process(ctx, rec)
		}
	}
}

// Process sends one record synchronously. Skipped records return nil; a
// failed upload returns the error after it has been logged and counted.
func (f *Forwarder) Process(ctx context.Context, rec types.Record) error {
	if f.cfg.Stale > 0 {
		if age := f.now().Sub(rec.Time()); age > f.cfg.Stale {
			f.metrics.RecordsSkipped.WithLabelValues(telemetry.ReasonStale).Inc()
			f.logger.Debugf("skipping %s record at %d: %v old exceeds stale limit %v", rec.Type, rec.Timestamp, age, f.cfg.Stale)
			return nil
		}
	}

	// Archive records are already spaced by the archive interval, so only
	// loop packets are throttled.
	if rec.Type == types.LoopPacket && f.cfg.PostInterval > 0 && f.lastPost != 0 {
		since := time.Duration(rec.Timestamp-f.lastPost) * time.Second
		if since < f.cfg.PostInterval {
			f.metrics.RecordsSkipped.WithLabelValues(telemetry.ReasonThrottled).Inc()
			f.logger.Debugf("skipping loop packet at %d: %v since last post", rec.Timestamp, since)
			return nil
		}
	}

	if rec.Type == types.ArchiveRecord && f.augmenter != nil {
		completed, err := f.augmenter.Complete(ctx, rec)
		if err != nil {
			f.logger.Debugf("could not complete archive record at %d, sending as received: %v", rec.Timestamp, err)
		} else {
			rec = completed
		}
	}

	subs := f.Build(rec)
	if len(subs) == 0 {
		f.metrics.RecordsSkipped.WithLabelValues(telemetry.ReasonNoFields).Inc()
		f.logger.Debugf("%s record at %d has no mapped observations", rec.Type, rec.Timestamp)
		return nil
	}

	if rec.Type == types.LoopPacket {
		f.lastPost = rec.Timestamp
	}

	if f.cfg.SkipUpload {
		f.metrics.RecordsSkipped.WithLabelValues(telemetry.ReasonSkipUpload).Inc()
		f.logger.Infof("skip_upload is set, not sending %d metrics for %s record at %d", len(subs), rec.Type, rec.Timestamp)
		for _, s := range subs {
			f.logger.Debugf("  %s=%v %v", s.Metric, s.Value, s.Tags)
		}
		return nil
	}

	start := time.Now()
	res, err := f.sender.Send(ctx, subs)
	f.metrics.SendAttempts.Add(float64(res.Attempts))
	if err != nil {
		f.fail(rec, res, err)
		return fmt.Errorf("%s record at %d: %w", rec.Type, rec.Timestamp, err)
	}

	f.metrics.ObserveSuccess(f.now(), res.Series, time.Since(start))
	f.reportHealth(fmt.Sprintf("posted %s record at %d", rec.Type, rec.Timestamp), nil)
	if f.cfg.LogSuccess {
		f.logger.Infof("posted %d metrics for %s record at %d (batch %s)", res.Series, rec.Type, rec.Timestamp, res.BatchID)
	}
	return nil
}

func (f *Forwarder) fail(rec types.Record, res datadog.Result, err error) {
	var (
		authErr      *datadog.AuthError
		transportErr *datadog.TransportError
		requestErr   *datadog.RequestError
	)

	reason := telemetry.ReasonTransport
	switch {
	case errors.Is(err, context.Canceled):
		reason = telemetry.ReasonShutdown
		f.logger.Debugf("shutting down, %s record at %d not sent: %v", rec.Type, rec.Timestamp, err)
	case errors.As(err, &authErr):
		reason = telemetry.ReasonAuth
		// Always logged: nothing will reach Datadog until the keys are fixed.
		f.logger.Errorf("Datadog rejected the API key or application key; check api_key and app_key. %s record at %d dropped: %v",
			rec.Type, rec.Timestamp, err)
	case errors.As(err, &requestErr):
		reason = telemetry.ReasonRequest
		if f.cfg.LogFailure {
			f.logger.Errorf("Datadog refused %s record at %d (batch %s): %v", rec.Type, rec.Timestamp, res.BatchID, err)
		}
	case errors.As(err, &transportErr):
		if f.cfg.LogFailure {
			f.logger.Errorf("dropping %s record at %d after %d attempts (batch %s): %v",
				rec.Type, rec.Timestamp, res.Attempts, res.BatchID, err)
		}
	default:
		if f.cfg.LogFailure {
			f.logger.Errorf("failed to send %s record at %d: %v", rec.Type, rec.Timestamp, err)
		}
	}

	f.metrics.RecordsDropped.WithLabelValues(reason).Inc()
	f.reportHealth(fmt.Sprintf("%s record at %d dropped", rec.Type, rec.Timestamp), err)
}

func (f *Forwarder) reportHealth(msg string, err error) {
	if f.health != nil {
		f.health.Report(HealthComponent, msg, err)
	}
}

// Build maps a record to submissions, one per mapped observation with a
// usable value. Unmapped, missing and unconvertible observations are left
// out without affecting the rest.
func (f *Forwarder) Build(rec types.Record) []types.Submission {
	subs := make([]types.Submission, 0, len(rec.Fields))

	for _, field := range rec.FieldNames() {
		m, err := f.table.Lookup(field)
		if err != nil {
			f.metrics.FieldsSkipped.WithLabelValues(telemetry.ReasonUnmapped).Inc()
			f.logger.Debugf("skipping %s: %v", field, err)
			continue
		}

		raw, ok := rec.Value(field)
		if !ok {
			f.metrics.FieldsSkipped.WithLabelValues(telemetry.ReasonMissing).Inc()
			continue
		}

		v, err := m.Convert(raw, rec.Units, f.cfg.TargetUnits)
		if err != nil {
			f.metrics.FieldsSkipped.WithLabelValues(telemetry.ReasonConversion).Inc()
			f.logger.Debugf("skipping %s: %v", field, err)
			continue
		}

		subs = append(subs, types.Submission{
			Metric:    f.metricName(m),
			Value:     v,
			Timestamp: rec.Timestamp,
			Host:      f.cfg.StationName,
			Tags:      f.tags,
			Type:      types.MetricTypeGauge,
		})
	}

	return subs
}

func (f *Forwarder) metricName(m mapping.Mapping) string {
	if f.cfg.Prefix == "" {
		return m.Metric
	}
	return f.cfg.Prefix + "." + m.Metric
}

// QueueLen returns the number of records waiting for the worker
func (f *Forwarder) QueueLen() int {
	return len(f.queue)
}
