package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ushcn-etl/internal/domain"
)

type reading struct {
	StationID string
	Year      int
	Month     int
	Day       sql.NullInt64
	Element   string
	Value     float64
	QFlag     string
}

func freezeClock(t *testing.T) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, 7, 16, 12, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func readReadings(t *testing.T, path string) []reading {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query(`SELECT station_id, year, month, day, element, value, qflag FROM readings ORDER BY rowid`)
	require.NoError(t, err)
	defer rows.Close()

	var out []reading
	for rows.Next() {
		var r reading
		require.NoError(t, rows.Scan(&r.StationID, &r.Year, &r.Month, &r.Day, &r.Element, &r.Value, &r.QFlag))
		out = append(out, r)
	}
	require.NoError(t, rows.Err())
	return out
}

func batch(v domain.DatasetVariant, ms ...domain.Measurement) *domain.ColumnBatch {
	b := domain.NewColumnBatch(v, len(ms))
	for _, m := range ms {
		m.Granularity = v.Granularity()
		m.Lat, m.Lon, m.Located = 31.0581, -87.0547, true
		b.Append(m)
	}
	return b
}

func TestSink_Daily(t *testing.T) {
	freezeClock(t)
	dir := t.TempDir()

	sink, err := SinkFactory{Dir: dir}.Open(domain.Daily)
	require.NoError(t, err)
	path := sink.(*Sink).Path()
	assert.Equal(t, filepath.Join(dir, "ushcn-daily-2024-07-16.db"), path)

	ctx := context.Background()
	require.NoError(t, sink.WriteBatch(ctx, batch(domain.Daily,
		domain.Measurement{StationID: "USC00011084", Date: time.Date(1926, 1, 1, 0, 0, 0, 0, time.UTC), Element: domain.ElementTMAX, Value: 21.1},
		domain.Measurement{StationID: "USC00011084", Date: time.Date(1926, 1, 2, 0, 0, 0, 0, time.UTC), Element: domain.ElementTMAX, Value: 3.3, Flags: domain.Flags{Quality: 'I'}},
	)))
	require.NoError(t, sink.WriteBatch(ctx, batch(domain.Daily,
		domain.Measurement{StationID: "USC00011084", Date: time.Date(1926, 1, 1, 0, 0, 0, 0, time.UTC), Element: domain.ElementPRCP, Value: 0},
	)))
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	got := readReadings(t, path)
	assert.Equal(t, []reading{
		{StationID: "USC00011084", Year: 1926, Month: 1, Day: sql.NullInt64{Int64: 1, Valid: true}, Element: "TMAX", Value: 21.1},
		{StationID: "USC00011084", Year: 1926, Month: 1, Day: sql.NullInt64{Int64: 2, Valid: true}, Element: "TMAX", Value: 3.3, QFlag: "I"},
		{StationID: "USC00011084", Year: 1926, Month: 1, Day: sql.NullInt64{Int64: 1, Valid: true}, Element: "PRCP", Value: 0},
	}, got)
}

func TestSink_MonthlyHasNullDay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monthly.db")
	sink, err := Create(path)
	require.NoError(t, err)

	require.NoError(t, sink.WriteBatch(context.Background(), batch(domain.MonthlyFLS52,
		domain.Measurement{StationID: "USH00011084", Date: time.Date(1926, 3, 1, 0, 0, 0, 0, time.UTC), Element: domain.ElementTAVG, Value: 14.52},
	)))
	require.NoError(t, sink.Close())

	got := readReadings(t, path)
	require.Len(t, got, 1)
	assert.False(t, got[0].Day.Valid)
	assert.Equal(t, 3, got[0].Month)
}

func TestSink_RecreatesTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daily.db")
	m := domain.Measurement{StationID: "USC00011084", Date: time.Date(1926, 1, 1, 0, 0, 0, 0, time.UTC), Element: domain.ElementTMIN, Value: -1.1}

	for range 2 {
		sink, err := Create(path)
		require.NoError(t, err)
		require.NoError(t, sink.WriteBatch(context.Background(), batch(domain.Daily, m)))
		require.NoError(t, sink.Close())
	}

	assert.Len(t, readReadings(t, path), 1)
}

func TestSink_Abort(t *testing.T) {
	dir := t.TempDir()
	sink, err := Create(filepath.Join(dir, "daily.db"))
	require.NoError(t, err)

	require.NoError(t, sink.Abort())
	require.NoError(t, sink.Abort())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSink_WriteBatchCancelled(t *testing.T) {
	sink, err := Create(filepath.Join(t.TempDir(), "daily.db"))
	require.NoError(t, err)
	defer sink.Abort()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = sink.WriteBatch(ctx, batch(domain.Daily))
	assert.Error(t, err)
}

func TestStationExporter(t *testing.T) {
	freezeClock(t)
	elev := 213.4
	table := domain.NewStationTable(domain.GHCNStations,
		domain.Station{ID: "USC00437054", Latitude: 44.42, Longitude: -72.0194, Elevation: &elev, State: "VT", Name: "SAINT JOHNSBURY"},
		domain.Station{ID: "USC00011084", Latitude: 31.0581, Longitude: -87.0547, State: "AL", Name: "BREWTON 3 SSE"},
	)

	path, err := StationExporter{Dir: t.TempDir()}.ExportStations(context.Background(), table)
	require.NoError(t, err)
	assert.Equal(t, "ushcn-ghcn-stations-2024-07-16.db", filepath.Base(path))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM stations`).Scan(&count))
	assert.Equal(t, 2, count)

	var missing sql.NullFloat64
	require.NoError(t, db.QueryRow(`SELECT elevation FROM stations WHERE id = ?`, "USC00011084").Scan(&missing))
	assert.False(t, missing.Valid)

	var got float64
	require.NoError(t, db.QueryRow(`SELECT elevation FROM stations WHERE id = ?`, "USC00437054").Scan(&got))
	assert.InDelta(t, 213.4, got, 1e-9)
}
