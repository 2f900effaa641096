package ethiopic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheger/billing-engine/ethiopic"
)

// =============================================================================
// KNOWN FIXTURES
// =============================================================================

func TestToEthiopic_KnownDates(t *testing.T) {
	cases := []struct {
		name string
		gy   int
		gm   time.Month
		gd   int
		want ethiopic.Date
	}{
		{"millennium new year", 2007, time.September, 12, ethiopic.Date{Year: 2000, Month: 1, Day: 1}},
		{"new year 2017 EC", 2024, time.September, 11, ethiopic.Date{Year: 2017, Month: 1, Day: 1}},
		{"new year 2016 EC after leap", 2023, time.September, 12, ethiopic.Date{Year: 2016, Month: 1, Day: 1}},
		{"mid year", 2025, time.January, 9, ethiopic.Date{Year: 2017, Month: 5, Day: 1}},
		{"pagume leap day", 2023, time.September, 11, ethiopic.Date{Year: 2015, Month: 13, Day: 6}},
		{"day before new year (common)", 2024, time.September, 10, ethiopic.Date{Year: 2016, Month: 13, Day: 5}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ethiopic.ToEthiopic(tc.gy, tc.gm, tc.gd)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestToGregorian_KnownDates(t *testing.T) {
	y, m, d := ethiopic.ToGregorian(ethiopic.Date{Year: 2000, Month: 1, Day: 1})
	assert.Equal(t, 2007, y)
	assert.Equal(t, time.September, m)
	assert.Equal(t, 12, d)

	y, m, d = ethiopic.ToGregorian(ethiopic.Date{Year: 2017, Month: 1, Day: 1})
	assert.Equal(t, 2024, y)
	assert.Equal(t, time.September, m)
	assert.Equal(t, 11, d)
}

// =============================================================================
// STRUCTURAL PROPERTIES
// =============================================================================

func TestRoundTrip_EveryDayOfFourYearCycle(t *testing.T) {
	// GIVEN: every day of a full 4-year Ethiopian cycle (2013..2016 EC)
	// WHEN: converting to Gregorian and back
	// THEN: the original date is recovered exactly

	for year := 2013; year <= 2016; year++ {
		for month := 1; month <= 13; month++ {
			for day := 1; day <= ethiopic.DaysInMonth(year, month); day++ {
				orig := ethiopic.Date{Year: year, Month: month, Day: day}
				gy, gm, gd := ethiopic.ToGregorian(orig)
				back := ethiopic.ToEthiopic(gy, gm, gd)
				require.Equal(t, orig, back, "round trip %v", orig)
			}
		}
	}
}

func TestToEthiopic_AcrossLeapCycleBoundary(t *testing.T) {
	// GIVEN: the Gregorian days surrounding a leap-year Pagume and the whole
	//        of the following year (the fourth of the 4-year cycle)
	// WHEN: decoding
	// THEN: the leap day stays in Pagume and the next year starts day-exact

	cases := []struct {
		gy   int
		gm   time.Month
		gd   int
		want ethiopic.Date
	}{
		{2023, time.September, 9, ethiopic.Date{Year: 2015, Month: 13, Day: 4}},
		{2023, time.September, 10, ethiopic.Date{Year: 2015, Month: 13, Day: 5}},
		{2023, time.September, 11, ethiopic.Date{Year: 2015, Month: 13, Day: 6}},
		{2023, time.September, 12, ethiopic.Date{Year: 2016, Month: 1, Day: 1}},
		{2024, time.January, 15, ethiopic.Date{Year: 2016, Month: 5, Day: 6}},
		{2024, time.September, 10, ethiopic.Date{Year: 2016, Month: 13, Day: 5}},
		{2024, time.September, 11, ethiopic.Date{Year: 2017, Month: 1, Day: 1}},
	}
	for _, tc := range cases {
		got := ethiopic.ToEthiopic(tc.gy, tc.gm, tc.gd)
		assert.Equal(t, tc.want, got, "%d-%02d-%02d", tc.gy, tc.gm, tc.gd)
	}

	// The leap day must round-trip, not spill into the next new year.
	back := ethiopic.ToEthiopic(ethiopic.ToGregorian(ethiopic.Date{Year: 2015, Month: 13, Day: 6}))
	assert.Equal(t, ethiopic.Date{Year: 2015, Month: 13, Day: 6}, back)
}

func TestGregorianDatesAreContiguous(t *testing.T) {
	// Consecutive Ethiopian days map to consecutive Gregorian days.
	prev := ethiopic.ToTime(ethiopic.Date{Year: 2015, Month: 12, Day: 28})
	cur := ethiopic.Date{Year: 2015, Month: 12, Day: 29}
	for i := 0; i < 20; i++ {
		got := ethiopic.ToTime(cur)
		require.Equal(t, prev.AddDate(0, 0, 1), got, "at %v", cur)
		prev = got

		cur.Day++
		if cur.Day > ethiopic.DaysInMonth(cur.Year, cur.Month) {
			cur.Day = 1
			cur.Month++
			if cur.Month > 13 {
				cur.Month = 1
				cur.Year++
			}
		}
	}
}

func TestIsLeap(t *testing.T) {
	assert.True(t, ethiopic.IsLeap(2015))
	assert.True(t, ethiopic.IsLeap(2011))
	assert.False(t, ethiopic.IsLeap(2016))
	assert.False(t, ethiopic.IsLeap(2017))
}

func TestDaysInMonth(t *testing.T) {
	assert.Equal(t, 30, ethiopic.DaysInMonth(2016, 1))
	assert.Equal(t, 30, ethiopic.DaysInMonth(2016, 12))
	assert.Equal(t, 5, ethiopic.DaysInMonth(2016, ethiopic.Pagume))
	assert.Equal(t, 6, ethiopic.DaysInMonth(2015, ethiopic.Pagume))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, ethiopic.Validate(2016, 13, 5))
	assert.Error(t, ethiopic.Validate(2016, 13, 6), "no leap day in a common year")
	assert.Error(t, ethiopic.Validate(2016, 14, 1))
	assert.Error(t, ethiopic.Validate(2016, 1, 31))
	assert.Error(t, ethiopic.Validate(0, 1, 1))
}

func TestFromTime_IgnoresClock(t *testing.T) {
	noon := time.Date(2024, time.September, 11, 12, 30, 0, 0, time.UTC)
	assert.Equal(t, ethiopic.Date{Year: 2017, Month: 1, Day: 1}, ethiopic.FromTime(noon))
}
