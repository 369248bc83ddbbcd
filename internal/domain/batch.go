package domain

import "time"

// ColumnBatch holds located measurements of one variant in column order. Every
// column slice has the same length. Low-cardinality columns (IDs, Elements and
// the flags) are plain strings so a sink can dictionary-encode them.
type ColumnBatch struct {
	Variant  DatasetVariant
	IDs      []string
	Dates    []time.Time
	Elements []string
	Values   []float64
	Lats     []float64
	Lons     []float64
	MFlags   []string
	QFlags   []string
	SFlags   []string
}

// NewColumnBatch preallocates a batch for capacity rows.
func NewColumnBatch(v DatasetVariant, capacity int) *ColumnBatch {
	return &ColumnBatch{
		Variant:  v,
		IDs:      make([]string, 0, capacity),
		Dates:    make([]time.Time, 0, capacity),
		Elements: make([]string, 0, capacity),
		Values:   make([]float64, 0, capacity),
		Lats:     make([]float64, 0, capacity),
		Lons:     make([]float64, 0, capacity),
		MFlags:   make([]string, 0, capacity),
		QFlags:   make([]string, 0, capacity),
		SFlags:   make([]string, 0, capacity),
	}
}

// Append adds one row. Callers only append located measurements.
func (b *ColumnBatch) Append(m Measurement) {
	b.IDs = append(b.IDs, m.StationID)
	b.Dates = append(b.Dates, m.Date)
	b.Elements = append(b.Elements, string(m.Element))
	b.Values = append(b.Values, m.Value)
	b.Lats = append(b.Lats, m.Lat)
	b.Lons = append(b.Lons, m.Lon)
	b.MFlags = append(b.MFlags, FlagString(m.Flags.Measurement))
	b.QFlags = append(b.QFlags, FlagString(m.Flags.Quality))
	b.SFlags = append(b.SFlags, FlagString(m.Flags.Source))
}

// Len returns the number of rows.
func (b *ColumnBatch) Len() int { return len(b.IDs) }

// Row reconstructs the i-th row as a located Measurement.
func (b *ColumnBatch) Row(i int) Measurement {
	return Measurement{
		StationID:   b.IDs[i],
		Date:        b.Dates[i],
		Granularity: b.Variant.Granularity(),
		Element:     Element(b.Elements[i]),
		Value:       b.Values[i],
		Flags: Flags{
			Measurement: flagByte(b.MFlags[i]),
			Quality:     flagByte(b.QFlags[i]),
			Source:      flagByte(b.SFlags[i]),
		},
		Lat:     b.Lats[i],
		Lon:     b.Lons[i],
		Located: true,
	}
}

func flagByte(s string) byte {
	if s == "" {
		return ' '
	}
	return s[0]
}
