package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Flags are the three single-byte flags that follow each value. A blank flag
// is stored as a space.
type Flags struct {
	Measurement byte
	Quality     byte
	Source      byte
}

// BlankFlags has every flag unset.
var BlankFlags = Flags{Measurement: ' ', Quality: ' ', Source: ' '}

// Slot is one value of a repeating group in its stored integer encoding.
type Slot struct {
	Value int
	Flags Flags
}

// Missing reports whether the slot holds the sentinel.
func (s Slot) Missing() bool { return s.Value == Missing }

// RawRecord is one parsed data line. Daily records hold 31 day slots for a
// single (Year, Month). Monthly records hold 12 month slots for Year and have
// Month == 0.
type RawRecord struct {
	StationID   string
	Year        int
	Month       int
	Element     Element
	Scale       float64
	Granularity Granularity
	Slots       []Slot
}

// ParseLine decodes one fixed-width line. Decoding is strictly positional: a
// short line or a non-numeric numeric field is a *ParseError naming the field
// and offset. An element code outside the layout is an *UnknownElementError.
// Only the layout's GroupCount groups are read; bytes past FullWidth are
// ignored.
func ParseLine(line string, layout FieldLayout) (RawRecord, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < layout.MinWidth() {
		return RawRecord{}, &ParseError{
			Field:  "line",
			Offset: len(line),
			Err:    fmt.Errorf("length %d shorter than %d", len(line), layout.MinWidth()),
		}
	}

	id := strings.TrimSpace(slice(line, layout.StationID))
	if id == "" {
		return RawRecord{}, &ParseError{Field: layout.StationID.Name, Offset: layout.StationID.Offset, Raw: slice(line, layout.StationID), Err: errors.New("blank")}
	}

	year, err := parseInt(line, layout.Year)
	if err != nil {
		return RawRecord{}, err
	}
	if year < 1 {
		return RawRecord{}, &ParseError{Field: layout.Year.Name, Offset: layout.Year.Offset, Raw: slice(line, layout.Year), Err: errors.New("out of range")}
	}

	month := 0
	if layout.Month.Width > 0 {
		month, err = parseInt(line, layout.Month)
		if err != nil {
			return RawRecord{}, err
		}
		if month < 1 || month > 12 {
			return RawRecord{}, &ParseError{Field: layout.Month.Name, Offset: layout.Month.Offset, Raw: slice(line, layout.Month), Err: errors.New("out of range")}
		}
	}

	code := slice(line, layout.Element)
	element, ok := layout.Elements[code]
	if !ok {
		return RawRecord{}, &UnknownElementError{Code: code}
	}

	slots := make([]Slot, layout.GroupCount)
	for i := range slots {
		f := layout.group(i)
		v, err := parseInt(line, f)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.Field = fmt.Sprintf("value[%d]", i+1)
			}
			return RawRecord{}, err
		}
		slots[i] = Slot{
			Value: v,
			Flags: Flags{
				Measurement: flagAt(line, f.End()),
				Quality:     flagAt(line, f.End()+1),
				Source:      flagAt(line, f.End()+2),
			},
		}
	}

	return RawRecord{
		StationID:   id,
		Year:        year,
		Month:       month,
		Element:     element,
		Scale:       layout.Scale,
		Granularity: layout.Granularity,
		Slots:       slots,
	}, nil
}

func slice(line string, f Field) string {
	if f.End() > len(line) {
		if f.Offset >= len(line) {
			return ""
		}
		return line[f.Offset:]
	}
	return line[f.Offset:f.End()]
}

func parseInt(line string, f Field) (int, error) {
	raw := slice(line, f)
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &ParseError{Field: f.Name, Offset: f.Offset, Raw: raw, Err: errors.New("not an integer")}
	}
	return v, nil
}

func flagAt(line string, i int) byte {
	if i >= len(line) {
		return ' '
	}
	return line[i]
}

// FlagString renders a flag byte, with blank as the empty string.
func FlagString(b byte) string {
	if b == ' ' || b == 0 {
		return ""
	}
	return string(b)
}
