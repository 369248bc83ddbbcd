package domain

import (
	"bytes"
	"fmt"
	"strconv"
)

// FormatLine renders a record back into the layout's fixed-width form, the
// inverse of ParseLine. Missing slots are written as the sentinel.
func FormatLine(rec RawRecord, layout FieldLayout) (string, error) {
	code, ok := layout.CodeFor(rec.Element)
	if !ok {
		return "", &UnknownElementError{Code: string(rec.Element)}
	}
	if len(rec.Slots) > layout.GroupCount {
		return "", fmt.Errorf("%d slots exceed %d groups", len(rec.Slots), layout.GroupCount)
	}

	buf := bytes.Repeat([]byte{' '}, layout.FullWidth())
	put := func(f Field, s string, right bool) error {
		if len(s) > f.Width {
			return fmt.Errorf("%s %q wider than %d", f.Name, s, f.Width)
		}
		at := f.Offset
		if right {
			at += f.Width - len(s)
		}
		copy(buf[at:], s)
		return nil
	}

	if err := put(layout.StationID, rec.StationID, false); err != nil {
		return "", err
	}
	if err := put(layout.Year, fmt.Sprintf("%04d", rec.Year), true); err != nil {
		return "", err
	}
	if layout.Month.Width > 0 {
		if err := put(layout.Month, fmt.Sprintf("%02d", rec.Month), true); err != nil {
			return "", err
		}
	}
	if err := put(layout.Element, code, false); err != nil {
		return "", err
	}

	for i := range layout.GroupCount {
		s := Slot{Value: Missing, Flags: BlankFlags}
		if i < len(rec.Slots) {
			s = rec.Slots[i]
		}
		f := layout.group(i)
		if err := put(f, strconv.Itoa(s.Value), true); err != nil {
			return "", err
		}
		buf[f.End()] = orBlank(s.Flags.Measurement)
		buf[f.End()+1] = orBlank(s.Flags.Quality)
		buf[f.End()+2] = orBlank(s.Flags.Source)
	}
	return string(buf), nil
}

// FormatStation renders a station into the given layout.
func FormatStation(s Station, layout StationLayout) string {
	width := layout.StationName.End()
	buf := bytes.Repeat([]byte{' '}, width)
	put := func(f Field, v string, right bool) {
		if len(v) > f.Width {
			v = v[:f.Width]
		}
		at := f.Offset
		if right {
			at += f.Width - len(v)
		}
		copy(buf[at:], v)
	}
	put(layout.ID, s.ID, false)
	put(layout.Latitude, strconv.FormatFloat(s.Latitude, 'f', 4, 64), true)
	put(layout.Longitude, strconv.FormatFloat(s.Longitude, 'f', 4, 64), true)
	if s.Elevation != nil {
		put(layout.Elevation, strconv.FormatFloat(*s.Elevation, 'f', 1, 64), true)
	}
	put(layout.State, s.State, false)
	put(layout.StationName, s.Name, false)
	return string(bytes.TrimRight(buf, " "))
}

func orBlank(b byte) byte {
	if b == 0 {
		return ' '
	}
	return b
}
