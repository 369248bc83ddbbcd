package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/couchcryptid/ushcn-etl/internal/domain"
	"github.com/couchcryptid/ushcn-etl/internal/observability"
)

// MemberFunc is called once per archive member holding data lines.
type MemberFunc func(name string, r io.Reader) error

// DataSource streams the data files of a variant.
type DataSource interface {
	Members(ctx context.Context, v domain.DatasetVariant, visit MemberFunc) error
}

// Options tune a variant pipeline.
type Options struct {
	BatchSize          int
	MaxSkipRatio       float64
	GapSampleSize      int
	DropQualityFlagged bool
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		BatchSize:     100_000,
		MaxSkipRatio:  0.05,
		GapSampleSize: domain.DefaultGapSampleSize,
	}
}

// Pipeline turns the data lines of one variant into located column batches:
// parse, expand, attach coordinates, assemble.
type Pipeline struct {
	variant  domain.DatasetVariant
	source   DataSource
	stations domain.StationLookup
	sink     Sink
	logger   *slog.Logger
	metrics  *observability.Metrics
	opts     Options
}

// New creates a Pipeline for one variant.
func New(v domain.DatasetVariant, src DataSource, stations domain.StationLookup, sink Sink, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	return &Pipeline{
		variant:  v,
		source:   src,
		stations: stations,
		sink:     sink,
		logger:   logger.With("variant", v.String()),
		metrics:  metrics,
		opts:     opts,
	}
}

// tally holds the line accounting of one run.
type tally struct {
	read     int64
	skipped  int64
	unknown  int64
	filtered int64
}

// Run processes every member of the variant. The returned report is filled in
// even on failure. Malformed lines are skipped unless their share exceeds
// MaxSkipRatio, which fails the variant with a *domain.SourceFailure, as does
// a run where no measurement matched a station. A sink error fails it with a
// *domain.SinkFailure. Run does not close the sink.
func (p *Pipeline) Run(ctx context.Context) (domain.CoverageReport, error) {
	report := domain.CoverageReport{Variant: p.variant.String(), StartedAt: domain.Now()}
	cov := domain.NewCoverage(p.opts.GapSampleSize)
	asm := NewAssembler(p.variant, p.opts.BatchSize, p.sink, p.metrics)
	var t tally

	err := p.source.Members(ctx, p.variant, func(name string, r io.Reader) error {
		return p.processMember(ctx, name, r, cov, asm, &t)
	})
	if err == nil {
		err = p.checkSkipRatio(t)
	}
	if err == nil {
		err = p.checkCoverage(cov)
	}
	if err == nil {
		err = asm.Flush(ctx)
	}

	report.ApplyCoverage(cov)
	report.LinesRead = t.read
	report.LinesSkipped = t.skipped
	report.UnknownElements = t.unknown
	report.Filtered = t.filtered
	report.RowsWritten = asm.Rows()
	report.Batches = asm.Batches()
	report.FinishedAt = domain.Now()

	if err != nil {
		err = p.classify(err)
		report.Error = err.Error()
		return report, err
	}
	report.Success = true
	return report, nil
}

func (p *Pipeline) processMember(ctx context.Context, name string, r io.Reader, cov *domain.Coverage, asm *Assembler, t *tally) error {
	layout := p.variant.Layout()
	label := p.variant.String()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if lineNo%4096 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		line := sc.Text()
		if line == "" {
			continue
		}
		t.read++
		p.metrics.LinesRead.WithLabelValues(label).Inc()

		rec, err := domain.ParseLine(line, layout)
		if err != nil {
			if errors.Is(err, domain.ErrUnknownElement) {
				t.unknown++
				p.metrics.LinesSkipped.WithLabelValues(label, observability.ReasonUnknownElement).Inc()
				continue
			}
			t.skipped++
			p.metrics.LinesSkipped.WithLabelValues(label, observability.ReasonParse).Inc()
			p.logParseError(name, lineNo, err)
			continue
		}

		for m := range domain.Expand(rec) {
			if p.opts.DropQualityFlagged && m.Flags.Quality != ' ' {
				t.filtered++
				p.metrics.LinesSkipped.WithLabelValues(label, observability.ReasonFiltered).Inc()
				continue
			}
			located, err := domain.Attach(m, p.stations)
			cov.Observe(located, err)
			if err != nil {
				p.metrics.JoinGaps.WithLabelValues(label).Inc()
				continue
			}
			if err := asm.Add(ctx, located); err != nil {
				return err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	return nil
}

func (p *Pipeline) logParseError(member string, lineNo int, err error) {
	var pe *domain.ParseError
	if errors.As(err, &pe) {
		p.logger.Debug("skipping malformed line",
			"file", member, "line", lineNo, "field", pe.Field, "offset", pe.Offset, "error", err)
		return
	}
	p.logger.Debug("skipping malformed line", "file", member, "line", lineNo, "error", err)
}

func (p *Pipeline) checkSkipRatio(t tally) error {
	if t.read == 0 {
		return &domain.SourceFailure{Variant: p.variant, Err: errors.New("no data lines")}
	}
	ratio := float64(t.skipped) / float64(t.read)
	if ratio > p.opts.MaxSkipRatio {
		return &domain.SourceFailure{
			Variant: p.variant,
			Err:     fmt.Errorf("%d of %d lines malformed (%.1f%% > %.1f%%)", t.skipped, t.read, ratio*100, p.opts.MaxSkipRatio*100),
		}
	}
	return nil
}

// checkCoverage fails a variant whose measurements all missed the station
// table.
func (p *Pipeline) checkCoverage(cov *domain.Coverage) error {
	if cov.Total > 0 && cov.Matched == 0 {
		return &domain.SourceFailure{
			Variant: p.variant,
			Source:  p.variant.StationFormat().String(),
			Err:     fmt.Errorf("none of %d measurements matched a station (sample %v)", cov.Total, cov.GapSample()),
		}
	}
	return nil
}

// classify wraps untyped errors so every failure is a source or sink failure.
func (p *Pipeline) classify(err error) error {
	var sf *domain.SourceFailure
	var kf *domain.SinkFailure
	if errors.As(err, &sf) || errors.As(err, &kf) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &domain.SourceFailure{Variant: p.variant, Err: err}
}
