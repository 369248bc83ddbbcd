// Package sqlite writes measurement and station artifacts as SQLite
// databases.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/ushcn-etl/internal/domain"
	"github.com/couchcryptid/ushcn-etl/internal/pipeline"
)

// Ext is the artifact file extension.
const Ext = "db"

const schema = `
DROP TABLE IF EXISTS readings;
CREATE TABLE readings (
	station_id TEXT    NOT NULL,
	year       INTEGER NOT NULL,
	month      INTEGER NOT NULL,
	day        INTEGER,
	element    TEXT    NOT NULL,
	value      REAL    NOT NULL,
	lat        REAL    NOT NULL,
	lon        REAL    NOT NULL,
	mflag      TEXT    NOT NULL,
	qflag      TEXT    NOT NULL,
	sflag      TEXT    NOT NULL
);`

const insertReading = `INSERT INTO readings
	(station_id, year, month, day, element, value, lat, lon, mflag, qflag, sflag)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const indexReadings = `CREATE INDEX readings_key ON readings (station_id, element, year, month, day)`

// open opens the database at path with a single connection.
func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	return db, nil
}

// SinkFactory creates one SQLite sink per variant in Dir.
type SinkFactory struct {
	Dir string
}

// Open creates the variant's database, replacing any readings table already
// in it.
func (f SinkFactory) Open(v domain.DatasetVariant) (pipeline.Sink, error) {
	return Create(filepath.Join(f.Dir, domain.ArtifactName(v.String(), Ext)))
}

// Sink inserts column batches into the readings table, one transaction per
// batch.
type Sink struct {
	path   string
	db     *sql.DB
	closed bool
}

// Create opens a sink writing to the database at path.
func Create(path string) (*Sink, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create readings table: %w", err)
	}
	return &Sink{path: path, db: db}, nil
}

// Path returns the database path.
func (s *Sink) Path() string { return s.path }

// WriteBatch inserts the batch in a single transaction. Monthly rows have a
// NULL day.
func (s *Sink) WriteBatch(ctx context.Context, b *domain.ColumnBatch) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertReading)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	monthly := b.Variant.Granularity() == domain.MonthGranularity
	for i := range b.Len() {
		date := b.Dates[i]
		day := sql.NullInt64{Int64: int64(date.Day()), Valid: !monthly}
		_, err = stmt.ExecContext(ctx,
			b.IDs[i], date.Year(), int(date.Month()), day,
			b.Elements[i], b.Values[i], b.Lats[i], b.Lons[i],
			b.MFlags[i], b.QFlags[i], b.SFlags[i],
		)
		if err != nil {
			return fmt.Errorf("insert reading %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Close indexes the readings and closes the database.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_, idxErr := s.db.Exec(indexReadings)
	if idxErr != nil {
		idxErr = fmt.Errorf("index readings: %w", idxErr)
	}
	return errors.Join(idxErr, s.db.Close())
}

// Abort closes the database and removes it.
func (s *Sink) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.db.Close()
	return removeDatabase(s.path)
}

func removeDatabase(path string) error {
	var errs []error
	for _, p := range []string{path, path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
