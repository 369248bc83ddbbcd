package domain

// Element is a measured quantity code.
type Element string

const (
	ElementTMAX Element = "TMAX"
	ElementTMIN Element = "TMIN"
	ElementTAVG Element = "TAVG"
	ElementPRCP Element = "PRCP"
)

// Missing is the sentinel value for "no observation".
const Missing = -9999

// Field is a fixed-width column: Width bytes starting at the zero-based Offset.
type Field struct {
	Name   string
	Offset int
	Width  int
}

// End returns the offset one past the field's last byte.
func (f Field) End() int { return f.Offset + f.Width }

// FieldLayout fixes the byte positions of a data line. The repeating group
// section holds GroupCount groups of GroupWidth bytes: a ValueWidth integer
// followed by three single-byte flags.
type FieldLayout struct {
	Name      string
	StationID Field
	Year      Field
	// Month has zero width when each group is one month of the year.
	Month   Field
	Element Field

	GroupOffset int
	GroupWidth  int
	GroupCount  int
	ValueWidth  int

	// Scale divides stored integers into physical units.
	Scale       float64
	Granularity Granularity
	Elements    map[string]Element
}

// DailyLayout is the GHCN-Daily ".dly" line layout.
var DailyLayout = FieldLayout{
	Name:        "ghcn-daily",
	StationID:   Field{Name: "station_id", Offset: 0, Width: 11},
	Year:        Field{Name: "year", Offset: 11, Width: 4},
	Month:       Field{Name: "month", Offset: 15, Width: 2},
	Element:     Field{Name: "element", Offset: 17, Width: 4},
	GroupOffset: 21,
	GroupWidth:  8,
	GroupCount:  31,
	ValueWidth:  5,
	Scale:       10,
	Granularity: DayGranularity,
	Elements: map[string]Element{
		"TMAX": ElementTMAX,
		"TMIN": ElementTMIN,
		"PRCP": ElementPRCP,
	},
}

// MonthlyLayout is the USHCN v2.5 monthly line layout.
var MonthlyLayout = FieldLayout{
	Name:        "ushcn-monthly",
	StationID:   Field{Name: "station_id", Offset: 0, Width: 11},
	Element:     Field{Name: "element", Offset: 11, Width: 1},
	Year:        Field{Name: "year", Offset: 12, Width: 4},
	GroupOffset: 16,
	GroupWidth:  9,
	GroupCount:  12,
	ValueWidth:  6,
	Scale:       100,
	Granularity: MonthGranularity,
	Elements: map[string]Element{
		"1": ElementTMAX,
		"2": ElementTMIN,
		"3": ElementTAVG,
	},
}

// group returns the value field of the i-th repeating group.
func (l FieldLayout) group(i int) Field {
	return Field{Name: "value", Offset: l.GroupOffset + i*l.GroupWidth, Width: l.ValueWidth}
}

// MinWidth is the shortest acceptable line: through the last value field.
// The flag bytes of the final group may be absent.
func (l FieldLayout) MinWidth() int {
	return l.group(l.GroupCount - 1).End()
}

// FullWidth is the length of a line with every flag byte present.
func (l FieldLayout) FullWidth() int {
	return l.GroupOffset + l.GroupCount*l.GroupWidth
}

// CodeFor returns the on-disk code of an element, the inverse of Elements.
func (l FieldLayout) CodeFor(e Element) (string, bool) {
	for code, el := range l.Elements {
		if el == e {
			return code, true
		}
	}
	return "", false
}
