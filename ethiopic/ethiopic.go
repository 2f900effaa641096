/*
Package ethiopic converts between Gregorian and Ethiopian calendar dates.

PURPOSE:
  The Ethiopian calendar has 12 months of exactly 30 days plus a short 13th
  month, Pagume, of 5 days (6 in a leap year). The billing engine computes
  due dates in Ethiopian months and persists them as Gregorian instants, so
  it needs a pure, bidirectional converter.

ALGORITHM:
  Both calendars are mapped through Julian Day Numbers (JDN):
  - Gregorian <-> JDN uses the Fliegel-Van Flandern integer arithmetic.
  - Ethiopic <-> JDN uses the Amete Mihret epoch: 1 Meskerem 1 EC has
    JDN 1724221. The Ethiopic year is a fixed 4-year cycle of 1461 days,
    with the leap year falling when year % 4 == 3.

  No lookup tables, no time zones, no clocks. Dates are plain (y, m, d)
  triples; callers decide how to anchor them in time.Time.

VERIFIED FIXTURES:
  1 Meskerem 2000 EC = 12 September 2007 GC
  1 Meskerem 2017 EC = 11 September 2024 GC
  Pagume 2015 EC has 6 days (2015 % 4 == 3)

SEE ALSO:
  - schedule/generator.go: consumes this package through schedule.Converter
*/
package ethiopic

import (
	"fmt"
	"time"
)

// ameteMihret is the JDN of 1 Meskerem 1 in the Amete Mihret era.
const ameteMihret = 1724221

// Pagume is the 13th Ethiopian month.
const Pagume = 13

// Date is an Ethiopian calendar date.
type Date struct {
	Year  int
	Month int // 1..13
	Day   int // 1..30 (1..5 or 1..6 in Pagume)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d EC", d.Year, d.Month, d.Day)
}

// IsLeap reports whether the Ethiopian year has a 6-day Pagume.
func IsLeap(year int) bool {
	return year%4 == 3
}

// DaysInMonth returns the number of days in an Ethiopian month.
func DaysInMonth(year, month int) int {
	if month == Pagume {
		if IsLeap(year) {
			return 6
		}
		return 5
	}
	return 30
}

// Validate checks that the triple is a real Ethiopian date.
func Validate(year, month, day int) error {
	if year < 1 {
		return fmt.Errorf("ethiopic: year %d out of range", year)
	}
	if month < 1 || month > Pagume {
		return fmt.Errorf("ethiopic: month %d out of range", month)
	}
	if day < 1 || day > DaysInMonth(year, month) {
		return fmt.Errorf("ethiopic: day %d out of range for %d/%d", day, year, month)
	}
	return nil
}

// =============================================================================
// JDN CONVERSIONS
// =============================================================================

// gregorianToJDN implements Fliegel-Van Flandern. Valid for all dates the
// engine can encounter (proleptic Gregorian, positive JDN).
func gregorianToJDN(y int, m time.Month, d int) int {
	mm := int(m)
	a := (mm - 14) / 12
	return (1461*(y+4800+a))/4 +
		(367*(mm-2-12*a))/12 -
		(3*((y+4900+a)/100))/4 +
		d - 32075
}

func jdnToGregorian(jdn int) (int, time.Month, int) {
	l := jdn + 68569
	n := (4 * l) / 146097
	l = l - (146097*n+3)/4
	i := (4000 * (l + 1)) / 1461001
	l = l - (1461*i)/4 + 31
	j := (80 * l) / 2447
	day := l - (2447*j)/80
	l = j / 11
	month := j + 2 - 12*l
	year := 100*(n-49) + i + l
	return year, time.Month(month), day
}

func ethiopicToJDN(d Date) int {
	return ameteMihret - 1 +
		365*(d.Year-1) + d.Year/4 +
		30*(d.Month-1) + d.Day
}

func jdnToEthiopic(jdn int) Date {
	elapsed := jdn - ameteMihret
	cycle := elapsed / 1461 // full 4-year cycles since 1/1/1 EC
	r := elapsed % 1461     // 0-based day within the cycle

	// Cycles start at year 4*cycle+1, so the leap year (year % 4 == 3) is the
	// THIRD year of the cycle. Year starts within a cycle: 0, 365, 730, 1096.
	// Day 1095 is Pagume 6 of the leap year, not day one of the fourth year.
	yearInCycle, dayOfYear := 3, r-1096
	switch {
	case r < 365:
		yearInCycle, dayOfYear = 0, r
	case r < 730:
		yearInCycle, dayOfYear = 1, r-365
	case r < 1096:
		yearInCycle, dayOfYear = 2, r-730
	}

	return Date{
		Year:  4*cycle + yearInCycle + 1,
		Month: dayOfYear/30 + 1,
		Day:   dayOfYear%30 + 1,
	}
}

// =============================================================================
// PUBLIC API
// =============================================================================

// ToEthiopic converts a Gregorian date to its Ethiopian equivalent.
func ToEthiopic(year int, month time.Month, day int) Date {
	return jdnToEthiopic(gregorianToJDN(year, month, day))
}

// ToGregorian converts an Ethiopian date to its Gregorian equivalent.
func ToGregorian(d Date) (int, time.Month, int) {
	return jdnToGregorian(ethiopicToJDN(d))
}

// FromTime converts the date portion of a time.Time (UTC) to Ethiopian.
func FromTime(t time.Time) Date {
	return ToEthiopic(t.Year(), t.Month(), t.Day())
}

// ToTime converts an Ethiopian date to a UTC midnight time.Time.
func ToTime(d Date) time.Time {
	y, m, day := ToGregorian(d)
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}
