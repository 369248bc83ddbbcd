package domain

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
)

// missingElevation is the station-file sentinel for an unknown elevation.
const missingElevation = -999.9

// Station is one row of a station metadata file.
type Station struct {
	ID        string
	Latitude  float64
	Longitude float64
	Elevation *float64
	State     string
	Name      string
}

// StationFormat identifies a station metadata file format.
type StationFormat int

const (
	GHCNStations StationFormat = iota
	USHCNStations
)

func (f StationFormat) String() string {
	if f == USHCNStations {
		return "ushcn-stations"
	}
	return "ghcn-stations"
}

// Layout returns the column layout of the format.
func (f StationFormat) Layout() StationLayout {
	if f == USHCNStations {
		return USHCNStationLayout
	}
	return GHCNStationLayout
}

// StationLayout fixes the byte positions of a station metadata line.
type StationLayout struct {
	ID          Field
	Latitude    Field
	Longitude   Field
	Elevation   Field
	State       Field
	StationName Field
}

// GHCNStationLayout is the ghcnd-stations.txt layout.
var GHCNStationLayout = StationLayout{
	ID:          Field{Name: "id", Offset: 0, Width: 11},
	Latitude:    Field{Name: "latitude", Offset: 12, Width: 8},
	Longitude:   Field{Name: "longitude", Offset: 21, Width: 9},
	Elevation:   Field{Name: "elevation", Offset: 31, Width: 6},
	State:       Field{Name: "state", Offset: 38, Width: 2},
	StationName: Field{Name: "name", Offset: 41, Width: 30},
}

// USHCNStationLayout is the ushcn-v2.5-stations.txt layout.
var USHCNStationLayout = StationLayout{
	ID:          Field{Name: "id", Offset: 0, Width: 11},
	Latitude:    Field{Name: "latitude", Offset: 12, Width: 8},
	Longitude:   Field{Name: "longitude", Offset: 21, Width: 9},
	Elevation:   Field{Name: "elevation", Offset: 32, Width: 5},
	State:       Field{Name: "state", Offset: 38, Width: 2},
	StationName: Field{Name: "name", Offset: 41, Width: 30},
}

// ParseStation decodes one station line. Coordinates are required and must be
// in range; elevation, state and name are optional.
func ParseStation(line string, layout StationLayout) (Station, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < layout.Longitude.End() {
		return Station{}, &ParseError{
			Field:  "line",
			Offset: len(line),
			Err:    fmt.Errorf("length %d shorter than %d", len(line), layout.Longitude.End()),
		}
	}

	id := strings.TrimSpace(slice(line, layout.ID))
	if id == "" {
		return Station{}, &ParseError{Field: layout.ID.Name, Offset: layout.ID.Offset, Raw: slice(line, layout.ID), Err: errors.New("blank")}
	}

	lat, err := parseCoordinate(line, layout.Latitude, 90)
	if err != nil {
		return Station{}, err
	}
	lon, err := parseCoordinate(line, layout.Longitude, 180)
	if err != nil {
		return Station{}, err
	}

	s := Station{
		ID:        id,
		Latitude:  lat,
		Longitude: lon,
		State:     strings.TrimSpace(slice(line, layout.State)),
		Name:      strings.TrimSpace(slice(line, layout.StationName)),
	}

	if raw := strings.TrimSpace(slice(line, layout.Elevation)); raw != "" {
		elev, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Station{}, &ParseError{Field: layout.Elevation.Name, Offset: layout.Elevation.Offset, Raw: raw, Err: errors.New("not a number")}
		}
		if elev != missingElevation {
			s.Elevation = &elev
		}
	}
	return s, nil
}

func parseCoordinate(line string, f Field, limit float64) (float64, error) {
	raw := slice(line, f)
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) {
		return 0, &ParseError{Field: f.Name, Offset: f.Offset, Raw: raw, Err: errors.New("not a number")}
	}
	if v < -limit || v > limit {
		return 0, &ParseError{Field: f.Name, Offset: f.Offset, Raw: raw, Err: errors.New("out of range")}
	}
	return v, nil
}

// StationTable maps station ids to stations. It is immutable after
// LoadStations returns and safe for concurrent reads.
type StationTable struct {
	format     StationFormat
	stations   map[string]Station
	skipped    int
	duplicates int
	firstErr   error
}

// LoadStations parses every line of a station file. Malformed lines are
// skipped and counted. The load fails on a read error or when no line at all
// parses, as with an HTML error page saved in place of the file. The first
// occurrence of a duplicated id wins.
func LoadStations(r io.Reader, format StationFormat) (*StationTable, error) {
	layout := format.Layout()
	t := &StationTable{format: format, stations: make(map[string]Station)}

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		s, err := ParseStation(line, layout)
		if err != nil {
			t.skipped++
			if t.firstErr == nil {
				t.firstErr = fmt.Errorf("line %d: %w", lineNo, err)
			}
			continue
		}
		if _, dup := t.stations[s.ID]; dup {
			t.duplicates++
			continue
		}
		t.stations[s.ID] = s
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", format, err)
	}
	if len(t.stations) == 0 && t.skipped > 0 {
		return nil, fmt.Errorf("%s: all %d lines malformed: %w", format, t.skipped, t.firstErr)
	}
	return t, nil
}

// NewStationTable builds a table from already parsed stations.
func NewStationTable(format StationFormat, stations ...Station) *StationTable {
	t := &StationTable{format: format, stations: make(map[string]Station, len(stations))}
	for _, s := range stations {
		if _, dup := t.stations[s.ID]; dup {
			t.duplicates++
			continue
		}
		t.stations[s.ID] = s
	}
	return t
}

// Lookup returns the station with the given id.
func (t *StationTable) Lookup(id string) (Station, bool) {
	s, ok := t.stations[id]
	return s, ok
}

// Format returns the metadata format the table was loaded from.
func (t *StationTable) Format() StationFormat { return t.format }

// Len returns the number of loaded stations.
func (t *StationTable) Len() int { return len(t.stations) }

// Skipped returns the number of malformed lines.
func (t *StationTable) Skipped() int { return t.skipped }

// Duplicates returns the number of lines whose id was already loaded.
func (t *StationTable) Duplicates() int { return t.duplicates }

// FirstError returns the first malformed-line error, if any.
func (t *StationTable) FirstError() error { return t.firstErr }

// Stations returns every station ordered by id.
func (t *StationTable) Stations() []Station {
	out := make([]Station, 0, len(t.stations))
	for _, s := range t.stations {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b Station) int { return strings.Compare(a.ID, b.ID) })
	return out
}
