package domain

import (
	"fmt"
	"path"
	"strings"
)

// DatasetVariant identifies one independent output dataset.
type DatasetVariant int

const (
	Daily DatasetVariant = iota
	MonthlyRaw
	MonthlyTOB
	MonthlyFLS52
)

var variantNames = map[DatasetVariant]string{
	Daily:        "daily",
	MonthlyRaw:   "monthly-raw",
	MonthlyTOB:   "monthly-tob",
	MonthlyFLS52: "monthly-fls52",
}

// AllVariants returns every dataset variant in a stable order.
func AllVariants() []DatasetVariant {
	return []DatasetVariant{Daily, MonthlyRaw, MonthlyTOB, MonthlyFLS52}
}

func (v DatasetVariant) String() string {
	if name, ok := variantNames[v]; ok {
		return name
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// ParseVariant resolves a variant from its String form.
func ParseVariant(s string) (DatasetVariant, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for v, name := range variantNames {
		if name == s {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown dataset variant %q", s)
}

// Granularity is the time resolution of a variant's rows.
type Granularity int

const (
	DayGranularity Granularity = iota
	MonthGranularity
)

func (g Granularity) String() string {
	if g == MonthGranularity {
		return "month"
	}
	return "day"
}

// Granularity reports whether the variant holds daily or monthly rows.
func (v DatasetVariant) Granularity() Granularity {
	if v == Daily {
		return DayGranularity
	}
	return MonthGranularity
}

// Layout returns the line layout of the variant's data files.
func (v DatasetVariant) Layout() FieldLayout {
	if v == Daily {
		return DailyLayout
	}
	return MonthlyLayout
}

// StationFormat returns the station table the variant joins against.
func (v DatasetVariant) StationFormat() StationFormat {
	if v == Daily {
		return GHCNStations
	}
	return USHCNStations
}

// Accepts reports whether an archive member holds data lines for the variant.
// Daily archives carry one ".dly" file per station; monthly archives encode the
// variant in the member name.
func (v DatasetVariant) Accepts(memberName string) bool {
	base := path.Base(memberName)
	if v == Daily {
		return strings.HasSuffix(base, ".dly")
	}
	got, err := VariantFromFileName(base)
	return err == nil && got == v
}

// VariantFromFileName derives the monthly variant from a USHCN member name
// such as "USH00297610.tob.tmax" or "USH00118916.FLs.52j.tmin". Tags are
// case sensitive.
func VariantFromFileName(name string) (DatasetVariant, error) {
	parts := strings.Split(path.Base(name), ".")
	switch len(parts) {
	case 3:
		switch parts[1] {
		case "raw":
			return MonthlyRaw, nil
		case "tob":
			return MonthlyTOB, nil
		}
	case 4:
		if parts[1] == "FLs" && parts[2] == "52j" {
			return MonthlyFLS52, nil
		}
	}
	return 0, fmt.Errorf("invalid monthly file name %q", name)
}

// ArtifactName returns the dated output file name for a dataset,
// e.g. "ushcn-daily-2024-07-16.parquet".
func ArtifactName(dataset, ext string) string {
	now := clock.Now()
	return fmt.Sprintf("ushcn-%s-%04d-%02d-%02d.%s", dataset, now.Year(), int(now.Month()), now.Day(), ext)
}
