// Package parquet writes measurement and station artifacts as snappy
// compressed Parquet files.
package parquet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	parquetgo "github.com/parquet-go/parquet-go"

	"github.com/couchcryptid/ushcn-etl/internal/domain"
	"github.com/couchcryptid/ushcn-etl/internal/pipeline"
)

// Ext is the artifact file extension.
const Ext = "parquet"

const secondsPerDay = 24 * 60 * 60

var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// MeasurementRow is the on-disk schema of a measurement artifact. Date holds
// days since the Unix epoch; monthly rows use the first day of the month.
type MeasurementRow struct {
	ID      string  `parquet:"id,dict"`
	Date    int32   `parquet:"date,date"`
	Element string  `parquet:"element,dict"`
	Value   float64 `parquet:"value"`
	Lat     float64 `parquet:"lat"`
	Lon     float64 `parquet:"lon"`
	MFlag   string  `parquet:"mflag,dict"`
	QFlag   string  `parquet:"qflag,dict"`
	SFlag   string  `parquet:"sflag,dict"`
}

// Time returns the row date as a UTC time.
func (r MeasurementRow) Time() time.Time {
	return epoch.AddDate(0, 0, int(r.Date))
}

func epochDays(t time.Time) int32 {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int32(d.Unix() / secondsPerDay)
}

// SinkFactory creates one Parquet sink per variant in Dir.
type SinkFactory struct {
	Dir string
}

// Open creates the variant's artifact. The file is written under a temporary
// name and renamed into place by Close.
func (f SinkFactory) Open(v domain.DatasetVariant) (pipeline.Sink, error) {
	return Create(filepath.Join(f.Dir, domain.ArtifactName(v.String(), Ext)))
}

// Sink writes column batches to a Parquet file, one row group per batch.
type Sink struct {
	path   string
	file   *os.File
	writer *parquetgo.GenericWriter[MeasurementRow]
	rows   []MeasurementRow
	closed bool
}

// Create opens a sink that will produce path.
func Create(path string) (*Sink, error) {
	file, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".part-*")
	if err != nil {
		return nil, fmt.Errorf("create parquet file: %w", err)
	}
	return &Sink{
		path:   path,
		file:   file,
		writer: parquetgo.NewGenericWriter[MeasurementRow](file, parquetgo.Compression(&parquetgo.Snappy)),
	}, nil
}

// Path returns the final artifact path.
func (s *Sink) Path() string { return s.path }

// WriteBatch appends the batch as a new row group.
func (s *Sink) WriteBatch(ctx context.Context, b *domain.ColumnBatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.rows = s.rows[:0]
	for i := range b.Len() {
		s.rows = append(s.rows, MeasurementRow{
			ID:      b.IDs[i],
			Date:    epochDays(b.Dates[i]),
			Element: b.Elements[i],
			Value:   b.Values[i],
			Lat:     b.Lats[i],
			Lon:     b.Lons[i],
			MFlag:   b.MFlags[i],
			QFlag:   b.QFlags[i],
			SFlag:   b.SFlags[i],
		})
	}
	if _, err := s.writer.Write(s.rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush row group: %w", err)
	}
	return nil
}

// Close finishes the file footer and moves the artifact into place.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := errors.Join(s.writer.Close(), s.file.Close()); err != nil {
		_ = os.Remove(s.file.Name())
		return fmt.Errorf("close parquet file: %w", err)
	}
	if err := os.Rename(s.file.Name(), s.path); err != nil {
		_ = os.Remove(s.file.Name())
		return fmt.Errorf("store parquet file: %w", err)
	}
	return nil
}

// Abort discards the partial file.
func (s *Sink) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.file.Close()
	return os.Remove(s.file.Name())
}

// ReadMeasurements loads every row of a measurement artifact.
func ReadMeasurements(path string) ([]MeasurementRow, error) {
	rows, err := parquetgo.ReadFile[MeasurementRow](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}
