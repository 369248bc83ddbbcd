package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/couchcryptid/ushcn-etl/internal/domain"
)

const stationSchema = `
DROP TABLE IF EXISTS stations;
CREATE TABLE stations (
	id        TEXT PRIMARY KEY,
	lat       REAL NOT NULL,
	lon       REAL NOT NULL,
	elevation REAL,
	state     TEXT NOT NULL,
	name      TEXT NOT NULL
);`

// StationExporter writes station tables to Dir.
type StationExporter struct {
	Dir string
}

// ExportStations writes t to its own database and returns the path.
func (e StationExporter) ExportStations(ctx context.Context, t *domain.StationTable) (string, error) {
	path := filepath.Join(e.Dir, domain.ArtifactName(t.Format().String(), Ext))
	db, err := open(path)
	if err != nil {
		return "", err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, stationSchema); err != nil {
		return "", fmt.Errorf("create stations table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO stations (id, lat, lon, elevation, state, name) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range t.Stations() {
		var elev sql.NullFloat64
		if s.Elevation != nil {
			elev = sql.NullFloat64{Float64: *s.Elevation, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, s.ID, s.Latitude, s.Longitude, elev, s.State, s.Name); err != nil {
			return "", fmt.Errorf("insert station %s: %w", s.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit stations: %w", err)
	}
	return path, nil
}
