package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/ushcn-etl/internal/domain"
	"github.com/couchcryptid/ushcn-etl/internal/observability"
)

// StationSource loads a station metadata table.
type StationSource interface {
	Stations(ctx context.Context, f domain.StationFormat) (*domain.StationTable, error)
}

// Source provides both data members and station tables.
type Source interface {
	DataSource
	StationSource
}

// SinkFactory opens the output sink of a variant.
type SinkFactory interface {
	Open(v domain.DatasetVariant) (Sink, error)
}

// StationExporter writes a station table to its own artifact and returns its path.
type StationExporter interface {
	ExportStations(ctx context.Context, t *domain.StationTable) (string, error)
}

// ReportPublisher delivers coverage reports to an external consumer.
type ReportPublisher interface {
	Publish(ctx context.Context, r domain.CoverageReport) error
}

// pather is implemented by sinks that write to a file.
type pather interface {
	Path() string
}

// Runner executes the requested variants concurrently. Station tables are
// loaded once, concurrently, and shared read-only by every variant.
type Runner struct {
	source    Source
	sinks     SinkFactory
	publisher ReportPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	opts      Options
	ready     atomic.Bool
}

// NewRunner creates a Runner. Pass a nil publisher to disable report publishing.
func NewRunner(src Source, sinks SinkFactory, publisher ReportPublisher, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Runner {
	return &Runner{
		source:    src,
		sinks:     sinks,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		opts:      opts,
	}
}

// CheckReadiness returns nil while a run is in progress with at least one
// station table loaded.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("station tables not loaded yet")
	}
	return nil
}

type variantResult struct {
	report domain.CoverageReport
	err    error
}

// Run produces every requested variant and returns one report per variant in
// request order. A failed variant never stops the others; the returned error
// joins every variant failure.
func (r *Runner) Run(ctx context.Context, variants []domain.DatasetVariant) ([]domain.CoverageReport, error) {
	variants = dedupe(variants)
	if len(variants) == 0 {
		return nil, errors.New("no dataset variants requested")
	}

	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID)
	r.metrics.RunInProgress.Set(1)
	defer r.metrics.RunInProgress.Set(0)

	var formats []domain.StationFormat
	for _, v := range variants {
		if f := v.StationFormat(); !slices.Contains(formats, f) {
			formats = append(formats, f)
		}
	}
	tables, loadErrs := r.loadStations(ctx, logger, formats)
	if len(tables) > 0 {
		r.ready.Store(true)
	}
	defer r.ready.Store(false)

	results := make(chan variantResult, len(variants))
	var g errgroup.Group
	for _, v := range variants {
		f := v.StationFormat()
		table, loadErr := tables[f], loadErrs[f]
		g.Go(func() error {
			results <- r.runVariant(ctx, logger, runID, v, table, loadErr)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	byVariant := make(map[string]variantResult, len(variants))
	for res := range results {
		r.publish(ctx, logger, res.report)
		byVariant[res.report.Variant] = res
	}

	reports := make([]domain.CoverageReport, 0, len(variants))
	var errs []error
	for _, v := range variants {
		res := byVariant[v.String()]
		reports = append(reports, res.report)
		if res.err != nil {
			errs = append(errs, res.err)
		}
	}
	if len(errs) > 0 {
		return reports, fmt.Errorf("%d of %d variants failed: %w", len(errs), len(variants), errors.Join(errs...))
	}
	return reports, nil
}

func (r *Runner) loadStations(ctx context.Context, logger *slog.Logger, formats []domain.StationFormat) (map[domain.StationFormat]*domain.StationTable, map[domain.StationFormat]error) {
	var (
		mu     sync.Mutex
		tables = make(map[domain.StationFormat]*domain.StationTable, len(formats))
		errs   = make(map[domain.StationFormat]error)
		g      errgroup.Group
	)
	for _, f := range formats {
		g.Go(func() error {
			t, err := r.source.Stations(ctx, f)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Error("station table load failed", "table", f.String(), "error", err)
				errs[f] = err
				return nil
			}
			r.metrics.StationsLoaded.WithLabelValues(f.String()).Set(float64(t.Len()))
			logger.Info("station table loaded",
				"table", f.String(), "stations", t.Len(), "skipped", t.Skipped(), "duplicates", t.Duplicates())
			if t.Skipped() > 0 {
				logger.Warn("malformed station lines skipped", "table", f.String(), "skipped", t.Skipped(), "first_error", t.FirstError())
			}
			tables[f] = t
			return nil
		})
	}
	_ = g.Wait()
	return tables, errs
}

func (r *Runner) runVariant(ctx context.Context, logger *slog.Logger, runID string, v domain.DatasetVariant, table *domain.StationTable, loadErr error) variantResult {
	label := v.String()
	vlog := logger.With("variant", label)
	start := domain.Now()

	fail := func(report domain.CoverageReport, err error) variantResult {
		report.RunID = runID
		report.Variant = label
		report.Success = false
		report.Error = err.Error()
		if report.StartedAt.IsZero() {
			report.StartedAt = start
		}
		report.FinishedAt = domain.Now()
		r.metrics.VariantSuccess.WithLabelValues(label).Set(0)
		r.metrics.VariantDuration.WithLabelValues(label).Observe(report.FinishedAt.Sub(start).Seconds())
		vlog.Error("variant failed", "error", err, "lines_read", report.LinesRead, "rows_written", report.RowsWritten)
		return variantResult{report: report, err: err}
	}

	if loadErr != nil {
		return fail(domain.CoverageReport{}, &domain.SourceFailure{Variant: v, Source: v.StationFormat().String(), Err: loadErr})
	}

	sink, err := r.sinks.Open(v)
	if err != nil {
		return fail(domain.CoverageReport{}, &domain.SinkFailure{Variant: v, Err: err})
	}

	vlog.Info("variant started", "stations", table.Len())
	report, err := New(v, r.source, table, sink, logger, r.metrics, r.opts).Run(ctx)
	if err != nil {
		if abortErr := sink.Abort(); abortErr != nil {
			vlog.Warn("discard partial artifact failed", "error", abortErr)
		}
		return fail(report, err)
	}
	if err := sink.Close(); err != nil {
		return fail(report, &domain.SinkFailure{Variant: v, Err: err})
	}
	if p, ok := sink.(pather); ok {
		report.Artifact = p.Path()
	}

	report.RunID = runID
	report.FinishedAt = domain.Now()
	r.metrics.VariantSuccess.WithLabelValues(label).Set(1)
	r.metrics.VariantDuration.WithLabelValues(label).Observe(report.FinishedAt.Sub(start).Seconds())

	vlog.Info("variant complete",
		"lines_read", report.LinesRead,
		"lines_skipped", report.LinesSkipped,
		"unknown_elements", report.UnknownElements,
		"filtered", report.Filtered,
		"rows_written", report.RowsWritten,
		"batches", report.Batches,
		"matched", report.Matched,
		"total", report.Total,
		"artifact", report.Artifact,
	)
	if report.Gaps > 0 {
		vlog.Warn("coordinate coverage incomplete",
			"gaps", report.Gaps, "total", report.Total, "gap_sample", report.GapSample)
	}
	return variantResult{report: report}
}

func (r *Runner) publish(ctx context.Context, logger *slog.Logger, report domain.CoverageReport) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, report); err != nil {
		logger.Warn("publish coverage report failed", "variant", report.Variant, "error", err)
	}
}

// ExportStations loads each table and writes it through the exporter. Tables
// fail independently; the returned error joins every failure.
func (r *Runner) ExportStations(ctx context.Context, exporter StationExporter, formats ...domain.StationFormat) ([]string, error) {
	tables, loadErrs := r.loadStations(ctx, r.logger, formats)

	var paths []string
	var errs []error
	for _, f := range formats {
		if err, ok := loadErrs[f]; ok {
			errs = append(errs, fmt.Errorf("%s: %w", f, err))
			continue
		}
		path, err := exporter.ExportStations(ctx, tables[f])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f, err))
			continue
		}
		r.logger.Info("stations exported", "table", f.String(), "stations", tables[f].Len(), "artifact", path)
		paths = append(paths, path)
	}
	return paths, errors.Join(errs...)
}

func dedupe(variants []domain.DatasetVariant) []domain.DatasetVariant {
	out := make([]domain.DatasetVariant, 0, len(variants))
	for _, v := range variants {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
