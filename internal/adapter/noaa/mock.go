package noaa

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/ushcn-etl/internal/domain"
)

// MockOptions shapes a synthetic archive set.
type MockOptions struct {
	// Stations listed in both station files.
	Stations int
	// Unlisted stations have data lines but no station file row.
	Unlisted  int
	FirstYear int
	LastYear  int
	Seed      uint64
	ModTime   time.Time
}

// DefaultMockOptions returns a small set spanning one leap year.
func DefaultMockOptions() MockOptions {
	return MockOptions{
		Stations:  5,
		FirstYear: 2019,
		LastYear:  2020,
		Seed:      1,
		ModTime:   time.Date(2024, 7, 16, 0, 0, 0, 0, time.UTC),
	}
}

// MockSet is a synthetic archive tree laid out like the NCEI data root. Paths
// are relative to the base URL.
type MockSet struct {
	Files map[string][]byte

	// Per variant: non-missing values written, and how many belong to
	// unlisted stations.
	Values        map[domain.DatasetVariant]int
	Gaps          map[domain.DatasetVariant]int
	QualityFlags  map[domain.DatasetVariant]int
	UnknownLines  int
	StationsTotal int
}

type mockStation struct {
	number int
	listed bool
	lat    float64
	lon    float64
	elev   float64
	state  string
}

var mockStates = []string{"AL", "AZ", "CO", "IA", "KS", "MT", "NY", "OR", "TX", "VT"}

// BuildMockSet generates every archive and station file the catalog names.
// The same options always produce the same bytes.
func BuildMockSet(opts MockOptions) (*MockSet, error) {
	if opts.Stations < 1 || opts.LastYear < opts.FirstYear {
		return nil, fmt.Errorf("invalid mock options: %d stations, years %d-%d", opts.Stations, opts.FirstYear, opts.LastYear)
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	stations := make([]mockStation, 0, opts.Stations+opts.Unlisted)
	for i := range opts.Stations + opts.Unlisted {
		stations = append(stations, mockStation{
			number: 10000 + i*37,
			listed: i < opts.Stations,
			lat:    25 + rng.Float64()*24,
			lon:    -124 + rng.Float64()*57,
			elev:   float64(rng.IntN(9999)) / 10,
			state:  mockStates[i%len(mockStates)],
		})
	}

	m := &MockSet{
		Files:         make(map[string][]byte),
		Values:        make(map[domain.DatasetVariant]int),
		Gaps:          make(map[domain.DatasetVariant]int),
		QualityFlags:  make(map[domain.DatasetVariant]int),
		StationsTotal: opts.Stations,
	}
	cat := Catalog{}

	m.stationFiles(cat, stations)
	daily, err := m.dailyMembers(rng, stations, opts)
	if err != nil {
		return nil, err
	}
	if err := m.archive(cat.Archives(domain.Daily)[0], opts.ModTime, daily); err != nil {
		return nil, err
	}

	for _, v := range []domain.DatasetVariant{domain.MonthlyRaw, domain.MonthlyTOB, domain.MonthlyFLS52} {
		for i, el := range []domain.Element{domain.ElementTMAX, domain.ElementTMIN, domain.ElementTAVG} {
			members, err := m.monthlyMembers(rng, stations, opts, v, el)
			if err != nil {
				return nil, err
			}
			if err := m.archive(cat.Archives(v)[i], opts.ModTime, members); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *MockSet) archive(rawURL string, modTime time.Time, files []ArchiveFile) error {
	var buf bytes.Buffer
	if err := WriteTarGz(&buf, modTime, files...); err != nil {
		return fmt.Errorf("mock archive %s: %w", rawURL, err)
	}
	m.Files[strings.TrimPrefix(rawURL, "/")] = buf.Bytes()
	return nil
}

func (m *MockSet) stationFiles(cat Catalog, stations []mockStation) {
	for _, f := range []domain.StationFormat{domain.GHCNStations, domain.USHCNStations} {
		var buf bytes.Buffer
		for _, s := range stations {
			if !s.listed {
				continue
			}
			elev := s.elev
			buf.WriteString(domain.FormatStation(domain.Station{
				ID:        stationID(f, s.number),
				Latitude:  s.lat,
				Longitude: s.lon,
				Elevation: &elev,
				State:     s.state,
				Name:      fmt.Sprintf("MOCK STATION %d", s.number),
			}, f.Layout()))
			buf.WriteByte('\n')
		}
		m.Files[strings.TrimPrefix(cat.StationFile(f), "/")] = buf.Bytes()
	}
}

func stationID(f domain.StationFormat, number int) string {
	if f == domain.USHCNStations {
		return fmt.Sprintf("USH00%06d", number)
	}
	return fmt.Sprintf("USC00%06d", number)
}

func (m *MockSet) dailyMembers(rng *rand.Rand, stations []mockStation, opts MockOptions) ([]ArchiveFile, error) {
	layout := domain.Daily.Layout()
	files := make([]ArchiveFile, 0, len(stations))
	for _, s := range stations {
		id := stationID(domain.GHCNStations, s.number)
		var buf bytes.Buffer
		for year := opts.FirstYear; year <= opts.LastYear; year++ {
			for month := 1; month <= 12; month++ {
				for _, el := range []domain.Element{domain.ElementTMAX, domain.ElementTMIN, domain.ElementPRCP} {
					rec := domain.RawRecord{StationID: id, Year: year, Month: month, Element: el, Slots: make([]domain.Slot, layout.GroupCount)}
					days := domain.DaysIn(year, month)
					for d := range rec.Slots {
						if d >= days {
							rec.Slots[d] = domain.Slot{Value: domain.Missing, Flags: domain.BlankFlags}
							continue
						}
						rec.Slots[d] = m.slot(rng, domain.Daily, s, dailyValue(rng, el), '6')
					}
					line, err := domain.FormatLine(rec, layout)
					if err != nil {
						return nil, err
					}
					buf.WriteString(line)
					buf.WriteByte('\n')
				}
			}
			// One line of an element the pipeline does not carry.
			line, err := domain.FormatLine(domain.RawRecord{StationID: id, Year: year, Month: 1, Element: domain.ElementPRCP}, layout)
			if err != nil {
				return nil, err
			}
			buf.WriteString(line[:layout.Element.Offset] + "SNOW" + line[layout.Element.End():])
			buf.WriteByte('\n')
			m.UnknownLines++
		}
		files = append(files, ArchiveFile{Name: "ghcnd_hcn/" + id + ".dly", Body: buf.Bytes()})
	}
	return files, nil
}

func (m *MockSet) monthlyMembers(rng *rand.Rand, stations []mockStation, opts MockOptions, v domain.DatasetVariant, el domain.Element) ([]ArchiveFile, error) {
	layout := v.Layout()
	files := make([]ArchiveFile, 0, len(stations))
	for _, s := range stations {
		id := stationID(domain.USHCNStations, s.number)
		var buf bytes.Buffer
		for year := opts.FirstYear; year <= opts.LastYear; year++ {
			rec := domain.RawRecord{StationID: id, Year: year, Element: el, Slots: make([]domain.Slot, layout.GroupCount)}
			for i := range rec.Slots {
				rec.Slots[i] = m.slot(rng, v, s, monthlyValue(rng, el, i), ' ')
			}
			line, err := domain.FormatLine(rec, layout)
			if err != nil {
				return nil, err
			}
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
		name := fmt.Sprintf("ushcn.v2.5.5.20240716/%s.%s.%s", id, monthlySuffix(v), strings.ToLower(string(el)))
		files = append(files, ArchiveFile{Name: name, Body: buf.Bytes()})
	}
	return files, nil
}

// slot draws a value with roughly one in ten missing and one in fifty
// quality flagged, and records it in the tallies.
func (m *MockSet) slot(rng *rand.Rand, v domain.DatasetVariant, s mockStation, value int, source byte) domain.Slot {
	if rng.IntN(10) == 0 {
		return domain.Slot{Value: domain.Missing, Flags: domain.BlankFlags}
	}
	flags := domain.Flags{Measurement: ' ', Quality: ' ', Source: source}
	if rng.IntN(50) == 0 {
		flags.Quality = 'I'
		m.QualityFlags[v]++
	}
	m.Values[v]++
	if !s.listed {
		m.Gaps[v]++
	}
	return domain.Slot{Value: value, Flags: flags}
}

// dailyValue returns tenths of a degree or tenths of a millimetre.
func dailyValue(rng *rand.Rand, el domain.Element) int {
	switch el {
	case domain.ElementPRCP:
		if rng.IntN(3) > 0 {
			return 0
		}
		return rng.IntN(400)
	case domain.ElementTMIN:
		return rng.IntN(300) - 150
	default:
		return rng.IntN(300) - 50
	}
}

// monthlyValue returns hundredths of a degree with a seasonal swing.
func monthlyValue(rng *rand.Rand, el domain.Element, month int) int {
	season := []int{-500, -300, 200, 800, 1300, 1800, 2100, 2000, 1600, 1000, 400, -200}[month]
	switch el {
	case domain.ElementTMAX:
		season += 600
	case domain.ElementTMIN:
		season -= 600
	}
	return season + rng.IntN(400) - 200
}

// WriteTo writes every file under dir, creating directories as needed.
func (m *MockSet) WriteTo(dir string) error {
	for name, body := range m.Files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(p), err)
		}
		if err := os.WriteFile(p, body, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
	}
	return nil
}

// Handler serves the files at their relative paths, so a server running it
// can stand in for the NCEI data root.
func (m *MockSet) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := m.Files[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(body)
	})
}
