package domain

import (
	"iter"
	"time"
)

// Measurement is one long-format row: a single value for one station, date
// and element. Lat and Lon are meaningful only when Located is true, which
// only Attach sets.
type Measurement struct {
	StationID   string
	Date        time.Time
	Granularity Granularity
	Element     Element
	Value       float64
	Flags       Flags
	Lat         float64
	Lon         float64
	Located     bool
}

// DaysIn returns the number of days in the given month.
func DaysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Expand converts a wide record into long-format measurements, skipping
// sentinel slots. Daily records never yield past the last day of their month,
// even though the line always reserves 31 slots. Monthly records yield one
// measurement per non-missing month. The sequence is finite and may be ranged
// over more than once.
func Expand(rec RawRecord) iter.Seq[Measurement] {
	return func(yield func(Measurement) bool) {
		switch {
		case rec.Granularity == DayGranularity:
			n := min(len(rec.Slots), DaysIn(rec.Year, rec.Month))
			for i := range n {
				date := time.Date(rec.Year, time.Month(rec.Month), i+1, 0, 0, 0, 0, time.UTC)
				if !emit(rec, rec.Slots[i], date, yield) {
					return
				}
			}
		case rec.Month != 0:
			// A single monthly scalar.
			if len(rec.Slots) == 0 {
				return
			}
			date := time.Date(rec.Year, time.Month(rec.Month), 1, 0, 0, 0, 0, time.UTC)
			emit(rec, rec.Slots[0], date, yield)
		default:
			n := min(len(rec.Slots), 12)
			for i := range n {
				date := time.Date(rec.Year, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC)
				if !emit(rec, rec.Slots[i], date, yield) {
					return
				}
			}
		}
	}
}

// emit yields one slot unless it is missing. It returns false when the
// consumer stopped iterating.
func emit(rec RawRecord, s Slot, date time.Time, yield func(Measurement) bool) bool {
	if s.Missing() {
		return true
	}
	return yield(Measurement{
		StationID:   rec.StationID,
		Date:        date,
		Granularity: rec.Granularity,
		Element:     rec.Element,
		Value:       toUnits(s.Value, rec.Scale),
		Flags:       s.Flags,
	})
}

func toUnits(v int, scale float64) float64 {
	if scale == 0 {
		return float64(v)
	}
	return float64(v) / scale
}
