// Command validate re-reads Parquet measurement artifacts and checks the
// invariants the pipeline promises: every row carries in-range coordinates,
// dates fall inside their month with monthly rows on the first day, elements
// belong to the dataset, and no (id, date, element) key repeats. Given a
// station export it also checks each row's coordinates against it.
//
// Usage:
//
//	go run ./cmd/validate \
//	  --stations ushcn-ghcn-stations-2024-07-16.parquet \
//	  ushcn-daily-2024-07-16.parquet
package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	parquetadapter "github.com/couchcryptid/ushcn-etl/internal/adapter/parquet"
	"github.com/couchcryptid/ushcn-etl/internal/domain"
)

// maxReported caps the errors printed per phase.
const maxReported = 20

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	stationsPath := pflag.StringP("stations", "s", "", "station export to check coordinates against")
	pflag.Parse()

	if pflag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: validate [--stations FILE] ARTIFACT...")
		pflag.PrintDefaults()
		os.Exit(2)
	}

	os.Exit(run(pflag.Args(), *stationsPath))
}

func run(paths []string, stationsPath string) int {
	var stations map[string]parquetadapter.StationRow
	if stationsPath != "" {
		rows, err := parquetadapter.ReadStations(stationsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load stations: %v\n", err)
			return 1
		}
		stations = make(map[string]parquetadapter.StationRow, len(rows))
		for _, s := range rows {
			stations[s.ID] = s
		}
	}

	allPassed := true
	for _, path := range paths {
		fmt.Printf("=== %s ===\n", filepath.Base(path))
		rows, err := parquetadapter.ReadMeasurements(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			return 1
		}
		fmt.Printf("rows: %d\n", len(rows))

		v, err := variantOf(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			return 1
		}
		for _, p := range validate(rows, v, stations) {
			if !report(p) {
				allPassed = false
			}
		}
		fmt.Println()
	}

	if !allPassed {
		fmt.Println("RESULT: FAIL")
		return 1
	}
	fmt.Println("RESULT: PASS")
	return 0
}

// variantOf reads the dataset from an artifact name such as
// "ushcn-monthly-tob-2024-07-16.parquet".
func variantOf(path string) (domain.DatasetVariant, error) {
	name := strings.TrimPrefix(filepath.Base(path), "ushcn-")
	for _, v := range domain.AllVariants() {
		if strings.HasPrefix(name, v.String()+"-") {
			return v, nil
		}
	}
	return 0, fmt.Errorf("cannot tell the dataset of %s", path)
}

func report(p *phase) bool {
	if p.passed() {
		fmt.Printf("  PASS %s\n", p.name)
		return true
	}
	fmt.Printf("  FAIL %s (%d problems)\n", p.name, len(p.errors))
	for i, e := range p.errors {
		if i == maxReported {
			fmt.Printf("       ... %d more\n", len(p.errors)-maxReported)
			break
		}
		fmt.Printf("       %s\n", e)
	}
	return false
}

func validate(rows []parquetadapter.MeasurementRow, v domain.DatasetVariant, stations map[string]parquetadapter.StationRow) []*phase {
	phases := []*phase{
		checkCoordinates(rows),
		checkDates(rows, v),
		checkElements(rows, v),
		checkKeys(rows),
	}
	if stations != nil {
		phases = append(phases, checkStations(rows, stations))
	}
	return phases
}

func checkCoordinates(rows []parquetadapter.MeasurementRow) *phase {
	p := &phase{name: "coordinates present and in range"}
	for i, r := range rows {
		if math.IsNaN(r.Lat) || math.IsNaN(r.Lon) || r.Lat < -90 || r.Lat > 90 || r.Lon < -180 || r.Lon > 180 {
			p.errorf("row %d (%s): coordinates (%v, %v) out of range", i, r.ID, r.Lat, r.Lon)
		}
	}
	return p
}

func checkDates(rows []parquetadapter.MeasurementRow, v domain.DatasetVariant) *phase {
	p := &phase{name: "dates within month"}
	monthly := v.Granularity() == domain.MonthGranularity
	for i, r := range rows {
		d := r.Time()
		if d.Year() < 1800 || d.Year() > domain.Now().Year() {
			p.errorf("row %d (%s): implausible year %d", i, r.ID, d.Year())
		}
		if monthly && d.Day() != 1 {
			p.errorf("row %d (%s): monthly row dated %s", i, r.ID, d.Format("2006-01-02"))
		}
	}
	return p
}

func checkElements(rows []parquetadapter.MeasurementRow, v domain.DatasetVariant) *phase {
	p := &phase{name: "elements belong to dataset"}
	layout := v.Layout()
	for i, r := range rows {
		if _, ok := layout.CodeFor(domain.Element(r.Element)); !ok {
			p.errorf("row %d (%s): element %q not in %s", i, r.ID, r.Element, v)
		}
	}
	return p
}

func checkKeys(rows []parquetadapter.MeasurementRow) *phase {
	p := &phase{name: "no duplicate (id, date, element)"}
	type key struct {
		id      string
		date    int32
		element string
	}
	seen := make(map[key]int, len(rows))
	for i, r := range rows {
		k := key{r.ID, r.Date, r.Element}
		if first, ok := seen[k]; ok {
			p.errorf("rows %d and %d share key %s %s %s", first, i, r.ID, r.Time().Format("2006-01-02"), r.Element)
			continue
		}
		seen[k] = i
	}
	return p
}

func checkStations(rows []parquetadapter.MeasurementRow, stations map[string]parquetadapter.StationRow) *phase {
	p := &phase{name: "coordinates match station table"}
	for i, r := range rows {
		s, ok := stations[r.ID]
		if !ok {
			p.errorf("row %d: station %s not in station table", i, r.ID)
			continue
		}
		if s.Latitude != r.Lat || s.Longitude != r.Lon {
			p.errorf("row %d (%s): (%v, %v) differs from station (%v, %v)", i, r.ID, r.Lat, r.Lon, s.Latitude, s.Longitude)
		}
	}
	return p
}
