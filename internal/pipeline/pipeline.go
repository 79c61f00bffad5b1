package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/agri-data-etl/internal/domain"
	"github.com/couchcryptid/agri-data-etl/internal/observability"
)

// FieldExtractor reads the raw field table.
type FieldExtractor interface {
	ExtractFields(ctx context.Context) ([]domain.RawRecord, error)
}

// WeatherExtractor reads the raw weather station table.
type WeatherExtractor interface {
	ExtractWeather(ctx context.Context) ([]domain.RawRecord, error)
}

// Transformer cleans and merges one run's raw tables.
type Transformer interface {
	Transform(ctx context.Context, fields, weather []domain.RawRecord) ([]domain.MergedRecord, Report, error)
}

// BatchLoader writes one run's merged records to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, batch domain.MergedBatch) error
}

// RunSummary describes one completed run.
type RunSummary struct {
	RunID    string        `json:"run_id"`
	Records  int           `json:"records"`
	Duration time.Duration `json:"duration"`
	Report
}

// Stage errors let callers tell which side of the run failed.
var (
	ErrExtract = errors.New("extract failed")
	ErrLoad    = errors.New("load failed")
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
	// maxOnceAttempts bounds retries when the pipeline runs a single time.
	maxOnceAttempts = 5
)

// Pipeline orchestrates the extract-clean-merge-load cycle.
type Pipeline struct {
	fields      FieldExtractor
	weather     WeatherExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	interval    time.Duration
}

// New creates a Pipeline. An interval of zero makes Run execute once.
func New(f FieldExtractor, w WeatherExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, interval time.Duration) *Pipeline {
	return &Pipeline{
		fields:      f,
		weather:     w,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		interval:    interval,
	}
}

// CheckReadiness returns nil once a batch has been loaded, or an error
// describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not loaded a batch yet")
	}
	return nil
}

// Run executes runs until the context is cancelled. Failed runs are retried
// with exponential backoff. With a zero interval Run returns after the first
// successful run, or with the last error after repeated failures.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "interval", p.interval)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	failures := 0

	for {
		if ctx.Err() != nil {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}

		_, err := p.RunOnce(ctx)
		switch {
		case err == nil:
			backoff = initialBackoff
			failures = 0
			if p.interval == 0 {
				return nil
			}
			if !retry.SleepWithContext(ctx, p.interval) {
				p.logger.Info("pipeline stopping", "reason", ctx.Err())
				return nil
			}
		case ctx.Err() != nil:
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
			failures++
			if p.interval == 0 && failures >= maxOnceAttempts {
				return fmt.Errorf("giving up after %d attempts: %w", failures, err)
			}
			p.logger.Warn("run failed, retrying", "error", err, "attempt", failures, "backoff", backoff)
			if !retry.SleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = retry.NextBackoff(backoff, maxBackoff)
		}
	}
}

// RunOnce extracts both tables concurrently, cleans and merges them, and loads
// the result as one batch. A failed extract or load discards the whole run.
func (p *Pipeline) RunOnce(ctx context.Context) (RunSummary, error) {
	start := time.Now()

	fieldRows, weatherRows, err := p.extract(ctx)
	if err != nil {
		p.metrics.RunsTotal.WithLabelValues("extract_error").Inc()
		p.logger.Error("extract failed", "error", err)
		return RunSummary{}, err
	}
	p.metrics.RowsExtracted.WithLabelValues("field").Add(float64(len(fieldRows)))
	p.metrics.RowsExtracted.WithLabelValues("weather").Add(float64(len(weatherRows)))

	merged, report, err := p.transformer.Transform(ctx, fieldRows, weatherRows)
	if err != nil {
		p.metrics.RunsTotal.WithLabelValues("transform_error").Inc()
		return RunSummary{}, err
	}
	p.observeReport(report)

	batch := domain.NewBatch(merged)
	if err := p.loader.LoadBatch(ctx, batch); err != nil {
		p.metrics.RunsTotal.WithLabelValues("load_error").Inc()
		p.logger.Error("load batch failed", "error", err, "run_id", batch.RunID, "records", len(batch.Records))
		return RunSummary{}, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	summary := RunSummary{
		RunID:    batch.RunID,
		Records:  len(batch.Records),
		Duration: time.Since(start),
		Report:   report,
	}
	p.metrics.RunsTotal.WithLabelValues("success").Inc()
	p.metrics.RunDuration.Observe(summary.Duration.Seconds())
	p.metrics.LastSuccess.Set(float64(batch.ProcessedAt.Unix()))
	p.ready.Store(true)

	p.logger.Info("run complete",
		"run_id", summary.RunID,
		"records", summary.Records,
		"matched", report.Merge.Matched,
		"unmatched", report.Merge.Unmatched,
		"duration", summary.Duration,
	)
	return summary, nil
}

func (p *Pipeline) extract(ctx context.Context) ([]domain.RawRecord, []domain.RawRecord, error) {
	var fieldRows, weatherRows []domain.RawRecord

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := p.fields.ExtractFields(gctx)
		if err != nil {
			return fmt.Errorf("%w: fields: %w", ErrExtract, err)
		}
		fieldRows = rows
		return nil
	})
	g.Go(func() error {
		rows, err := p.weather.ExtractWeather(gctx)
		if err != nil {
			return fmt.Errorf("%w: weather: %w", ErrExtract, err)
		}
		weatherRows = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return fieldRows, weatherRows, nil
}

func (p *Pipeline) observeReport(r Report) {
	dropped := p.metrics.RowsDropped
	dropped.WithLabelValues("field", "empty_id").Add(float64(r.Field.DroppedEmptyID))
	dropped.WithLabelValues("field", "duplicate").Add(float64(r.Field.Duplicates))
	dropped.WithLabelValues("weather", "malformed").Add(float64(r.Weather.Malformed))
	dropped.WithLabelValues("weather", "no_valid_readings").Add(float64(r.Weather.DroppedAnomalous))
	dropped.WithLabelValues("weather", "duplicate").Add(float64(r.Weather.Duplicates))

	for reading, n := range r.Weather.Anomalies {
		p.metrics.Anomalies.WithLabelValues(reading).Add(float64(n))
	}
	p.metrics.MergedRecords.WithLabelValues("true").Add(float64(r.Merge.Matched))
	p.metrics.MergedRecords.WithLabelValues("false").Add(float64(r.Merge.Unmatched))
}
