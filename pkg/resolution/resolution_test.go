package resolution

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name string
		code string
		want Resolution
	}{
		{name: "bare second", code: "s", want: Resolution{Multiplier: 1, Unit: Second}},
		{name: "explicit one", code: "1m", want: Resolution{Multiplier: 1, Unit: Minute}},
		{name: "two digits", code: "30s", want: Resolution{Multiplier: 30, Unit: Second}},
		{name: "hour", code: "6H", want: Resolution{Multiplier: 6, Unit: Hour}},
		{name: "five days", code: "5D", want: Resolution{Multiplier: 5, Unit: Day}},
		{name: "week", code: "W", want: Resolution{Multiplier: 1, Unit: Week}},
		{name: "quarter", code: "3M", want: Resolution{Multiplier: 3, Unit: Month}},
		{name: "year", code: "Y", want: Resolution{Multiplier: 1, Unit: Year}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.code)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, code := range []string{"", "X", "3x", "100H", "12", "H1", " D", "0m", "00D", "d"} {
		t.Run(code, func(t *testing.T) {
			_, err := Parse(code)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
			assert.False(t, Valid(code))
		})
	}
}

func TestResolutionString(t *testing.T) {
	assert.Equal(t, "m", MustParse("1m").String())
	assert.Equal(t, "30m", MustParse("30m").String())
	assert.Equal(t, "3M", MustParse("3M").String())
}

func TestDaily(t *testing.T) {
	for _, code := range []string{"D", "5D", "W", "2W", "M", "3M", "Y"} {
		assert.True(t, MustParse(code).Daily(), code)
	}
	for _, code := range []string{"s", "30s", "m", "15m", "H", "4H"} {
		assert.True(t, MustParse(code).Intraday(), code)
	}
}

func TestEndTimestampFixedUnits(t *testing.T) {
	testCases := []struct {
		code string
		want int64
	}{
		{"s", 101}, {"1s", 101}, {"30s", 130},
		{"m", 160}, {"1m", 160}, {"2m", 220},
		{"H", 3700}, {"1H", 3700}, {"6H", 21700},
		{"D", 86500}, {"2D", 172900},
		{"W", 604900}, {"4W", 2419300},
	}

	for _, tc := range testCases {
		t.Run(tc.code, func(t *testing.T) {
			got, err := EndTimestamp(100, tc.code)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEndTimestampCalendarUnits(t *testing.T) {
	testCases := []struct {
		start int64
		code  string
		want  int64
	}{
		{500, "M", 2678900},
		{12000, "3M", 7788000},
		{50000, "Y", 31586000},
		{50000, "5Y", 157816400},
	}

	for _, tc := range testCases {
		t.Run(tc.code, func(t *testing.T) {
			got, err := EndTimestamp(tc.start, tc.code)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEndTimestampInvalid(t *testing.T) {
	_, err := EndTimestamp(100, "100H")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestAddMonthsClampsToLastDay(t *testing.T) {
	jan31 := time.Date(2021, time.January, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2021, time.February, 28, 0, 0, 0, 0, time.UTC), AddMonths(jan31, 1))

	leap := time.Date(2020, time.January, 31, 12, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2020, time.February, 29, 12, 30, 0, 0, time.UTC), AddMonths(leap, 1))

	feb29 := time.Date(2020, time.February, 29, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2021, time.February, 28, 0, 0, 0, 0, time.UTC), AddMonths(feb29, 12))

	nov := time.Date(2020, time.November, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2021, time.February, 15, 0, 0, 0, 0, time.UTC), AddMonths(nov, 3))
}

func TestMidnight(t *testing.T) {
	assert.Equal(t, int64(946684800), Midnight(946684800))
	assert.Equal(t, int64(946684800), Midnight(946684800+3600))
	assert.True(t, MidnightAligned(0))
	assert.False(t, MidnightAligned(1000))
	assert.Equal(t, int64(-86400), Midnight(-1))
}
