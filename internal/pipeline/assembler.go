package pipeline

import (
	"context"
	"fmt"
	"iter"

	"github.com/couchcryptid/ushcn-etl/internal/domain"
	"github.com/couchcryptid/ushcn-etl/internal/observability"
)

// Sink receives the column batches of a single variant and owns the output
// artifact.
type Sink interface {
	WriteBatch(ctx context.Context, b *domain.ColumnBatch) error
	// Close finalises the artifact.
	Close() error
	// Abort closes and discards a partially written artifact.
	Abort() error
}

// Assembler groups located measurements of one variant into column batches
// of at most threshold rows and hands each full batch to the sink. It holds no
// file state of its own.
type Assembler struct {
	variant   domain.DatasetVariant
	threshold int
	sink      Sink
	metrics   *observability.Metrics

	batch   *domain.ColumnBatch
	rows    int64
	batches int
}

// NewAssembler creates an Assembler. A threshold below 1 is treated as 1.
func NewAssembler(v domain.DatasetVariant, threshold int, sink Sink, metrics *observability.Metrics) *Assembler {
	threshold = max(threshold, 1)
	return &Assembler{
		variant:   v,
		threshold: threshold,
		sink:      sink,
		metrics:   metrics,
		batch:     domain.NewColumnBatch(v, threshold),
	}
}

// Add appends one measurement, flushing when the batch reaches the threshold.
// Unlocated measurements and rows of another granularity are rejected.
func (a *Assembler) Add(ctx context.Context, m domain.Measurement) error {
	if !m.Located {
		return fmt.Errorf("%s: measurement for %s has no coordinates", a.variant, m.StationID)
	}
	if m.Granularity != a.variant.Granularity() {
		return fmt.Errorf("%s: %s measurement does not belong to this variant", a.variant, m.Granularity)
	}
	a.batch.Append(m)
	if a.batch.Len() >= a.threshold {
		return a.Flush(ctx)
	}
	return nil
}

// Flush hands the pending batch to the sink. An empty batch is a no-op.
func (a *Assembler) Flush(ctx context.Context) error {
	n := a.batch.Len()
	if n == 0 {
		return nil
	}
	if err := a.sink.WriteBatch(ctx, a.batch); err != nil {
		return &domain.SinkFailure{Variant: a.variant, Err: err}
	}
	a.rows += int64(n)
	a.batches++
	a.metrics.BatchesFlushed.WithLabelValues(a.variant.String()).Inc()
	a.metrics.BatchRows.Observe(float64(n))
	a.metrics.MeasurementsEmitted.WithLabelValues(a.variant.String()).Add(float64(n))

	// The sink may retain the slices, so start a fresh batch.
	a.batch = domain.NewColumnBatch(a.variant, a.threshold)
	return nil
}

// Rows returns the number of rows written to the sink.
func (a *Assembler) Rows() int64 { return a.rows }

// Batches returns the number of batches written to the sink.
func (a *Assembler) Batches() int { return a.batches }

// Assemble drains measurements into the sink in batches of threshold rows
// and flushes the remainder. It returns the number of rows written.
func Assemble(ctx context.Context, v domain.DatasetVariant, measurements iter.Seq[domain.Measurement], threshold int, sink Sink, metrics *observability.Metrics) (int64, error) {
	a := NewAssembler(v, threshold, sink, metrics)
	for m := range measurements {
		if err := a.Add(ctx, m); err != nil {
			return a.Rows(), err
		}
	}
	if err := a.Flush(ctx); err != nil {
		return a.Rows(), err
	}
	return a.Rows(), nil
}
