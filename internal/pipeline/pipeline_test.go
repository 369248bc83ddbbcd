package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/couchcryptid/ushcn-etl/internal/domain"
	"github.com/couchcryptid/ushcn-etl/internal/observability"
	"github.com/couchcryptid/ushcn-etl/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	knownDaily   = "USC00011084"
	knownMonthly = "USH00011084"
	unknownID    = "USC99999999"
)

// --- mocks ---

type member struct {
	name string
	body string
}

type memSource struct {
	members    []member
	tables     map[domain.StationFormat]*domain.StationTable
	stationErr map[domain.StationFormat]error
	membersErr error
}

func (s *memSource) Members(ctx context.Context, v domain.DatasetVariant, visit pipeline.MemberFunc) error {
	if s.membersErr != nil {
		return s.membersErr
	}
	for _, m := range s.members {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !v.Accepts(m.name) {
			continue
		}
		if err := visit(m.name, strings.NewReader(m.body)); err != nil {
			return err
		}
	}
	return nil
}

func (s *memSource) Stations(_ context.Context, f domain.StationFormat) (*domain.StationTable, error) {
	if err := s.stationErr[f]; err != nil {
		return nil, err
	}
	if t, ok := s.tables[f]; ok {
		return t, nil
	}
	return nil, errors.New("no such table")
}

type memSink struct {
	mu       sync.Mutex
	batches  []int
	rows     []domain.Measurement
	writeErr error
	closeErr error
	closed   bool
	aborted  bool
}

func (s *memSink) WriteBatch(_ context.Context, b *domain.ColumnBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.batches = append(s.batches, b.Len())
	for i := range b.Len() {
		s.rows = append(s.rows, b.Row(i))
	}
	return nil
}

func (s *memSink) Close() error {
	s.closed = true
	return s.closeErr
}

func (s *memSink) Abort() error {
	s.aborted = true
	return nil
}

func (s *memSink) Path() string { return "/out/mem" }

type memSinks struct {
	mu      sync.Mutex
	sinks   map[domain.DatasetVariant]*memSink
	openErr error
}

func newMemSinks() *memSinks {
	return &memSinks{sinks: make(map[domain.DatasetVariant]*memSink)}
}

func (f *memSinks) Open(v domain.DatasetVariant) (pipeline.Sink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	s, ok := f.sinks[v]
	if !ok {
		s = &memSink{}
		f.sinks[v] = s
	}
	return s, nil
}

type memPublisher struct {
	mu      sync.Mutex
	reports []domain.CoverageReport
	err     error
}

func (p *memPublisher) Publish(_ context.Context, r domain.CoverageReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, r)
	return p.err
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- helpers ---

func slots(values ...int) []domain.Slot {
	out := make([]domain.Slot, len(values))
	for i, v := range values {
		out[i] = domain.Slot{Value: v, Flags: domain.BlankFlags}
	}
	return out
}

func dailyLine(t *testing.T, id string, year, month int, el domain.Element, values ...int) string {
	t.Helper()
	line, err := domain.FormatLine(domain.RawRecord{
		StationID: id, Year: year, Month: month, Element: el, Slots: slots(values...),
	}, domain.DailyLayout)
	require.NoError(t, err)
	return line
}

func monthlyLine(t *testing.T, id string, year int, el domain.Element, values ...int) string {
	t.Helper()
	line, err := domain.FormatLine(domain.RawRecord{
		StationID: id, Year: year, Element: el, Slots: slots(values...),
	}, domain.MonthlyLayout)
	require.NoError(t, err)
	return line
}

func sharedTable() *domain.StationTable {
	return domain.NewStationTable(domain.GHCNStations,
		domain.Station{ID: knownDaily, Latitude: 31.0581, Longitude: -87.0547},
		domain.Station{ID: knownMonthly, Latitude: 31.0581, Longitude: -87.0547},
	)
}

func lines(ls ...string) string { return strings.Join(ls, "\n") + "\n" }

func located(id string, m domain.Measurement) domain.Measurement {
	m.StationID = id
	m.Lat, m.Lon, m.Located = 31.0581, -87.0547, true
	m.Flags = domain.BlankFlags
	return m
}

// --- tests ---

func TestAssembler_FlushesAtThreshold(t *testing.T) {
	sink := &memSink{}
	metrics := newTestMetrics()
	a := pipeline.NewAssembler(domain.Daily, 2, sink, metrics)

	for range 5 {
		require.NoError(t, a.Add(context.Background(), located(knownDaily, domain.Measurement{Value: 1})))
	}
	assert.Equal(t, []int{2, 2}, sink.batches)
	require.NoError(t, a.Flush(context.Background()))
	require.NoError(t, a.Flush(context.Background()))

	assert.Equal(t, []int{2, 2, 1}, sink.batches)
	assert.Equal(t, int64(5), a.Rows())
	assert.Equal(t, 3, a.Batches())
}

func TestAssembler_Rejects(t *testing.T) {
	sink := &memSink{}
	a := pipeline.NewAssembler(domain.MonthlyRaw, 10, sink, newTestMetrics())

	err := a.Add(context.Background(), domain.Measurement{StationID: unknownID, Granularity: domain.MonthGranularity})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no coordinates")

	err = a.Add(context.Background(), located(knownDaily, domain.Measurement{Granularity: domain.DayGranularity}))
	require.Error(t, err)

	require.NoError(t, a.Flush(context.Background()))
	assert.Empty(t, sink.batches)
}

func TestAssembler_SinkFailure(t *testing.T) {
	sink := &memSink{writeErr: errors.New("disk full")}
	a := pipeline.NewAssembler(domain.Daily, 1, sink, newTestMetrics())

	err := a.Add(context.Background(), located(knownDaily, domain.Measurement{}))
	var sf *domain.SinkFailure
	require.True(t, errors.As(err, &sf))
	assert.Equal(t, domain.Daily, sf.Variant)
	assert.Equal(t, int64(0), a.Rows())
}

func TestAssemble(t *testing.T) {
	ms := make([]domain.Measurement, 7)
	for i := range ms {
		ms[i] = located(knownMonthly, domain.Measurement{Granularity: domain.MonthGranularity, Value: float64(i)})
	}
	sink := &memSink{}
	n, err := pipeline.Assemble(context.Background(), domain.MonthlyTOB, slices.Values(ms), 3, sink, newTestMetrics())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, []int{3, 3, 1}, sink.batches)
	if diff := cmp.Diff(ms, sink.rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestPipeline_Run_Daily(t *testing.T) {
	good := dailyLine(t, knownDaily, 1926, 2, domain.ElementTMAX, 100, 110, domain.Missing, 120)
	snow := good[:17] + "SNOW" + good[21:]
	src := &memSource{members: []member{
		{"ghcnd_hcn/USC00011084.dly", lines(
			good,
			dailyLine(t, unknownID, 1926, 2, domain.ElementTMIN, 33, 22),
			snow,
			"garbage",
		)},
		{"ghcnd_hcn/readme.txt", "not data\n"},
	}}
	sink := &memSink{}
	opts := pipeline.Options{BatchSize: 2, MaxSkipRatio: 0.5, GapSampleSize: 5}

	p := pipeline.New(domain.Daily, src, sharedTable(), sink, newTestLogger(), newTestMetrics(), opts)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Equal(t, "daily", report.Variant)
	assert.Equal(t, int64(4), report.LinesRead)
	assert.Equal(t, int64(1), report.LinesSkipped)
	assert.Equal(t, int64(1), report.UnknownElements)
	assert.Equal(t, int64(5), report.Total)
	assert.Equal(t, int64(3), report.Matched)
	assert.Equal(t, int64(2), report.Gaps)
	assert.Equal(t, []string{unknownID}, report.GapSample)
	assert.Equal(t, report.Total, report.Matched+report.Gaps)
	assert.False(t, report.FullCoverage())
	assert.Equal(t, int64(3), report.RowsWritten)
	assert.Equal(t, 2, report.Batches)
	assert.Equal(t, []int{2, 1}, sink.batches)

	for _, m := range sink.rows {
		assert.True(t, m.Located)
		assert.Equal(t, knownDaily, m.StationID)
	}
	assert.Equal(t, []float64{10, 11, 12}, []float64{sink.rows[0].Value, sink.rows[1].Value, sink.rows[2].Value})
	assert.False(t, sink.closed, "the pipeline leaves the sink to its owner")
}

func TestPipeline_Run_Monthly(t *testing.T) {
	src := &memSource{members: []member{
		{"ushcn.v2.5.5/USH00011084.raw.tmax", lines(monthlyLine(t, knownMonthly, 1894, domain.ElementTMAX, 517, 377, domain.Missing))},
		{"ushcn.v2.5.5/USH00011084.tob.tmax", lines(monthlyLine(t, knownMonthly, 1894, domain.ElementTMAX, 999))},
	}}
	sink := &memSink{}

	p := pipeline.New(domain.MonthlyRaw, src, sharedTable(), sink, newTestLogger(), newTestMetrics(), pipeline.DefaultOptions())
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.FullCoverage())
	assert.Equal(t, int64(1), report.LinesRead)
	require.Len(t, sink.rows, 2)
	assert.Equal(t, 5.17, sink.rows[0].Value)
	assert.Equal(t, 3.77, sink.rows[1].Value)
	assert.Equal(t, domain.MonthGranularity, sink.rows[0].Granularity)
}

func TestPipeline_Run_JoinGapsNeverReachSink(t *testing.T) {
	src := &memSource{members: []member{
		{"USC99999999.dly", lines(dailyLine(t, unknownID, 1926, 2, domain.ElementTMIN, 33, 22, 11))},
		{"USC00011084.dly", lines(dailyLine(t, knownDaily, 1926, 2, domain.ElementTMIN, 44))},
	}}
	sink := &memSink{}

	p := pipeline.New(domain.Daily, src, sharedTable(), sink, newTestLogger(), newTestMetrics(), pipeline.DefaultOptions())
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), report.Gaps)
	assert.Equal(t, int64(1), report.Matched)
	assert.Equal(t, int64(1), report.RowsWritten)
	require.Len(t, sink.rows, 1)
	assert.Equal(t, knownDaily, sink.rows[0].StationID)
	assert.True(t, sink.rows[0].Located)
	assert.False(t, report.FullCoverage())
}

func TestPipeline_Run_NoStationMatched(t *testing.T) {
	src := &memSource{members: []member{
		{"USC00011084.dly", lines(dailyLine(t, knownDaily, 1926, 2, domain.ElementTMIN, 33, 22, 11))},
	}}
	sink := &memSink{}
	empty := domain.NewStationTable(domain.GHCNStations)

	p := pipeline.New(domain.Daily, src, empty, sink, newTestLogger(), newTestMetrics(), pipeline.DefaultOptions())
	report, err := p.Run(context.Background())
	require.Error(t, err)

	var sf *domain.SourceFailure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, domain.Daily, sf.Variant)
	assert.False(t, report.Success)
	assert.Contains(t, report.Error, "none of 3 measurements matched a station")
	assert.Equal(t, int64(3), report.Gaps)
	assert.Equal(t, report.Total, report.Matched+report.Gaps)
	assert.Equal(t, int64(0), report.RowsWritten)
	assert.Empty(t, sink.rows)
}

func TestPipeline_Run_DropQualityFlagged(t *testing.T) {
	rec := domain.RawRecord{
		StationID: knownDaily, Year: 1926, Month: 1, Element: domain.ElementPRCP,
		Slots: []domain.Slot{
			{Value: 5, Flags: domain.BlankFlags},
			{Value: 7, Flags: domain.Flags{Measurement: ' ', Quality: 'X', Source: '6'}},
		},
	}
	line, err := domain.FormatLine(rec, domain.DailyLayout)
	require.NoError(t, err)
	src := &memSource{members: []member{{"USC00011084.dly", lines(line)}}}

	t.Run("kept by default", func(t *testing.T) {
		sink := &memSink{}
		p := pipeline.New(domain.Daily, src, sharedTable(), sink, newTestLogger(), newTestMetrics(), pipeline.DefaultOptions())
		report, err := p.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(2), report.RowsWritten)
		assert.Equal(t, byte('X'), sink.rows[1].Flags.Quality)
	})

	t.Run("dropped when configured", func(t *testing.T) {
		sink := &memSink{}
		opts := pipeline.DefaultOptions()
		opts.DropQualityFlagged = true
		p := pipeline.New(domain.Daily, src, sharedTable(), sink, newTestLogger(), newTestMetrics(), opts)
		report, err := p.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1), report.RowsWritten)
		assert.Equal(t, int64(1), report.Filtered)
		assert.Equal(t, int64(1), report.Total)
	})
}

func TestPipeline_Run_Failures(t *testing.T) {
	good := dailyLine(t, knownDaily, 1926, 1, domain.ElementTMAX, 100)

	t.Run("skip ratio exceeded", func(t *testing.T) {
		src := &memSource{members: []member{{"a.dly", lines(good, "bad", "worse")}}}
		p := pipeline.New(domain.Daily, src, sharedTable(), &memSink{}, newTestLogger(), newTestMetrics(), pipeline.DefaultOptions())
		report, err := p.Run(context.Background())

		var sf *domain.SourceFailure
		require.True(t, errors.As(err, &sf))
		assert.Contains(t, err.Error(), "2 of 3 lines malformed")
		assert.False(t, report.Success)
		assert.Equal(t, err.Error(), report.Error)
	})

	t.Run("no data lines", func(t *testing.T) {
		src := &memSource{members: []member{{"readme.txt", "hello\n"}}}
		p := pipeline.New(domain.Daily, src, sharedTable(), &memSink{}, newTestLogger(), newTestMetrics(), pipeline.DefaultOptions())
		_, err := p.Run(context.Background())

		var sf *domain.SourceFailure
		require.True(t, errors.As(err, &sf))
		assert.Contains(t, err.Error(), "no data lines")
	})

	t.Run("source error", func(t *testing.T) {
		src := &memSource{membersErr: errors.New("gzip: invalid header")}
		p := pipeline.New(domain.MonthlyTOB, src, sharedTable(), &memSink{}, newTestLogger(), newTestMetrics(), pipeline.DefaultOptions())
		_, err := p.Run(context.Background())

		var sf *domain.SourceFailure
		require.True(t, errors.As(err, &sf))
		assert.Equal(t, domain.MonthlyTOB, sf.Variant)
	})

	t.Run("sink error", func(t *testing.T) {
		src := &memSource{members: []member{{"a.dly", lines(good)}}}
		sink := &memSink{writeErr: errors.New("disk full")}
		p := pipeline.New(domain.Daily, src, sharedTable(), sink, newTestLogger(), newTestMetrics(), pipeline.DefaultOptions())
		_, err := p.Run(context.Background())

		var kf *domain.SinkFailure
		require.True(t, errors.As(err, &kf))
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		src := &memSource{members: []member{{"a.dly", lines(good)}}}
		p := pipeline.New(domain.Daily, src, sharedTable(), &memSink{}, newTestLogger(), newTestMetrics(), pipeline.DefaultOptions())
		_, err := p.Run(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
