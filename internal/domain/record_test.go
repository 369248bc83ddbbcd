package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDailyStation = "USC00011084"
	testShortMonthly = "USH0045726711892 -9999      532    -9999    -9999 Q   1869b    2209     2481     2734     2233     1711      777  3   -50  3"
	testFullMonthly  = "USH0048961511894   517a     377a    1096d    1640b    2231     2485a   -9999     2938    -9999    -9999    -9999    -9999   "
)

// dailyLine builds a daily line from the header and the given groups, padding
// the remaining days with sentinel groups.
func dailyLine(header string, groups ...string) string {
	var b strings.Builder
	b.WriteString(header)
	for _, g := range groups {
		b.WriteString(g)
	}
	for range 31 - len(groups) {
		b.WriteString("-9999   ")
	}
	return b.String()
}

func TestParseLine_Daily(t *testing.T) {
	t.Run("values and flags", func(t *testing.T) {
		line := dailyLine(testDailyStation+"192602TMIN", "   33  6", "   22  6", "  -15 X6")
		rec, err := ParseLine(line, DailyLayout)
		require.NoError(t, err)

		assert.Equal(t, testDailyStation, rec.StationID)
		assert.Equal(t, 1926, rec.Year)
		assert.Equal(t, 2, rec.Month)
		assert.Equal(t, ElementTMIN, rec.Element)
		assert.Equal(t, DayGranularity, rec.Granularity)
		assert.Equal(t, 10.0, rec.Scale)
		require.Len(t, rec.Slots, 31)
		assert.Equal(t, Slot{Value: 33, Flags: Flags{' ', ' ', '6'}}, rec.Slots[0])
		assert.Equal(t, Slot{Value: 22, Flags: Flags{' ', ' ', '6'}}, rec.Slots[1])
		assert.Equal(t, Slot{Value: -15, Flags: Flags{' ', 'X', '6'}}, rec.Slots[2])
		assert.True(t, rec.Slots[30].Missing())
	})

	t.Run("all sentinels", func(t *testing.T) {
		rec, err := ParseLine(dailyLine(testDailyStation+"192601TMAX"), DailyLayout)
		require.NoError(t, err)
		for i, s := range rec.Slots {
			assert.True(t, s.Missing(), "slot %d", i)
		}
	})

	t.Run("trailing flags may be absent", func(t *testing.T) {
		line := strings.TrimRight(dailyLine(testDailyStation+"192601PRCP", "    0  7"), " ")
		assert.Equal(t, DailyLayout.MinWidth(), len(line))
		rec, err := ParseLine(line, DailyLayout)
		require.NoError(t, err)
		assert.Equal(t, BlankFlags, rec.Slots[30].Flags)
	})

	t.Run("carriage return is ignored", func(t *testing.T) {
		_, err := ParseLine(dailyLine(testDailyStation+"192601PRCP")+"\r\n", DailyLayout)
		require.NoError(t, err)
	})
}

func TestParseLine_Monthly(t *testing.T) {
	t.Run("full line", func(t *testing.T) {
		rec, err := ParseLine(testFullMonthly, MonthlyLayout)
		require.NoError(t, err)

		assert.Equal(t, "USH00489615", rec.StationID)
		assert.Equal(t, 1894, rec.Year)
		assert.Equal(t, 0, rec.Month)
		assert.Equal(t, ElementTMAX, rec.Element)
		assert.Equal(t, MonthGranularity, rec.Granularity)
		require.Len(t, rec.Slots, 12)
		assert.Equal(t, Slot{Value: 517, Flags: Flags{'a', ' ', ' '}}, rec.Slots[0])
		assert.Equal(t, 2938, rec.Slots[7].Value)
		assert.True(t, rec.Slots[11].Missing())
	})

	t.Run("bytes past the last group are ignored", func(t *testing.T) {
		line := testFullMonthly + " 1234a   "
		require.Greater(t, len(line), MonthlyLayout.FullWidth())
		rec, err := ParseLine(line, MonthlyLayout)
		require.NoError(t, err)

		want, err := ParseLine(testFullMonthly, MonthlyLayout)
		require.NoError(t, err)
		assert.Equal(t, want, rec)
		require.Len(t, rec.Slots, 12)
	})

	t.Run("short line without trailing spaces", func(t *testing.T) {
		rec, err := ParseLine(testShortMonthly, MonthlyLayout)
		require.NoError(t, err)

		assert.Equal(t, "USH00457267", rec.StationID)
		assert.Equal(t, 1892, rec.Year)
		assert.True(t, rec.Slots[0].Missing())
		assert.Equal(t, Flags{' ', 'Q', ' '}, rec.Slots[3].Flags)
		assert.Equal(t, 2734, rec.Slots[7].Value)
		assert.Equal(t, Slot{Value: -50, Flags: Flags{' ', ' ', '3'}}, rec.Slots[11])
	})

	t.Run("average element", func(t *testing.T) {
		line := testFullMonthly[:11] + "3" + testFullMonthly[12:]
		rec, err := ParseLine(line, MonthlyLayout)
		require.NoError(t, err)
		assert.Equal(t, ElementTAVG, rec.Element)
	})
}

func TestParseLine_Errors(t *testing.T) {
	valid := dailyLine(testDailyStation+"192601TMAX", "  100  6")

	tests := []struct {
		name   string
		line   string
		field  string
		offset int
	}{
		{"short line", valid[:100], "line", 100},
		{"empty line", "", "line", 0},
		{"blank station", strings.Repeat(" ", 11) + valid[11:], "station_id", 0},
		{"non-numeric year", valid[:11] + "19X6" + valid[15:], "year", 11},
		{"month zero", valid[:15] + "00" + valid[17:], "month", 15},
		{"month thirteen", valid[:15] + "13" + valid[17:], "month", 15},
		{"non-numeric value", valid[:21] + "  1O0" + valid[26:], "value[1]", 21},
		{"non-numeric last value", valid[:261] + "  -x9" + valid[266:], "value[31]", 261},
		{"blank value", valid[:29] + "     " + valid[34:], "value[2]", 29},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLine(tt.line, DailyLayout)
			require.Error(t, err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe), "want *ParseError, got %T", err)
			assert.Equal(t, tt.field, pe.Field)
			assert.Equal(t, tt.offset, pe.Offset)
			assert.False(t, errors.Is(err, ErrUnknownElement))
		})
	}
}

func TestParseLine_UnknownElement(t *testing.T) {
	t.Run("daily snowfall", func(t *testing.T) {
		_, err := ParseLine(dailyLine(testDailyStation+"192601SNOW"), DailyLayout)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownElement))

		var ue *UnknownElementError
		require.True(t, errors.As(err, &ue))
		assert.Equal(t, "SNOW", ue.Code)

		var pe *ParseError
		assert.False(t, errors.As(err, &pe))
	})

	t.Run("monthly digit", func(t *testing.T) {
		line := testFullMonthly[:11] + "4" + testFullMonthly[12:]
		_, err := ParseLine(line, MonthlyLayout)
		assert.True(t, errors.Is(err, ErrUnknownElement))
	})
}

func TestFlagString(t *testing.T) {
	assert.Equal(t, "", FlagString(' '))
	assert.Equal(t, "", FlagString(0))
	assert.Equal(t, "Q", FlagString('Q'))
}

func TestFieldLayout_Widths(t *testing.T) {
	assert.Equal(t, 266, DailyLayout.MinWidth())
	assert.Equal(t, 269, DailyLayout.FullWidth())
	assert.Equal(t, 121, MonthlyLayout.MinWidth())
	assert.Equal(t, 124, MonthlyLayout.FullWidth())

	code, ok := MonthlyLayout.CodeFor(ElementTMIN)
	assert.True(t, ok)
	assert.Equal(t, "2", code)

	_, ok = DailyLayout.CodeFor(ElementTAVG)
	assert.False(t, ok)
}
