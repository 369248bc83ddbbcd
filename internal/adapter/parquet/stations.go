package parquet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	parquetgo "github.com/parquet-go/parquet-go"

	"github.com/couchcryptid/ushcn-etl/internal/domain"
)

// StationRow is the on-disk schema of a station export. A nil Elevation is
// written as null.
type StationRow struct {
	ID        string   `parquet:"id"`
	Latitude  float64  `parquet:"lat"`
	Longitude float64  `parquet:"lon"`
	Elevation *float64 `parquet:"elevation"`
	State     string   `parquet:"state,dict"`
	Name      string   `parquet:"name"`
}

// StationExporter writes station tables to Dir.
type StationExporter struct {
	Dir string
}

// ExportStations writes every station of t, ordered by id, and returns the
// artifact path.
func (e StationExporter) ExportStations(ctx context.Context, t *domain.StationTable) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	stations := t.Stations()
	rows := make([]StationRow, len(stations))
	for i, s := range stations {
		rows[i] = StationRow{
			ID:        s.ID,
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Elevation: s.Elevation,
			State:     s.State,
			Name:      s.Name,
		}
	}

	path := filepath.Join(e.Dir, domain.ArtifactName(t.Format().String(), Ext))
	tmp := path + ".part"
	if err := parquetgo.WriteFile(tmp, rows, parquetgo.Compression(&parquetgo.Snappy)); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write stations: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("store stations: %w", err)
	}
	return path, nil
}

// ReadStations loads a station export.
func ReadStations(path string) ([]StationRow, error) {
	rows, err := parquetgo.ReadFile[StationRow](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}
