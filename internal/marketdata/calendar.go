package marketdata

import "time"

// IsWeekend reports whether day falls on Saturday or Sunday.
func IsWeekend(day time.Time) bool {
	return day.Weekday() == time.Saturday || day.Weekday() == time.Sunday
}

// isMarketHoliday reports whether day is a US exchange holiday. Used only as
// the calendar fallback when no ticker is in scope; per-ticker trading-day
// answers always come from the data itself.
func isMarketHoliday(day time.Time) bool {
	m, d := day.Month(), day.Day()
	switch {
	case m == time.January && d == 1:
		return true
	case m == time.July && d == 4:
		return true
	case m == time.June && d == 19 && day.Year() >= 2022:
		return true
	case m == time.December && d == 25:
		return true
	}
	switch {
	case m == time.January && day.Weekday() == time.Monday && d >= 15 && d <= 21:
		// Martin Luther King Jr. Day, third Monday of January.
		return true
	case m == time.February && day.Weekday() == time.Monday && d >= 15 && d <= 21:
		// Presidents' Day, third Monday of February.
		return true
	case m == time.May && day.Weekday() == time.Monday && d >= 25:
		// Memorial Day, last Monday of May.
		return true
	case m == time.September && day.Weekday() == time.Monday && d <= 7:
		// Labor Day, first Monday of September.
		return true
	case m == time.November && day.Weekday() == time.Thursday && d >= 22 && d <= 28:
		// Thanksgiving, fourth Thursday of November.
		return true
	}
	return day.Equal(goodFriday(day.Year()))
}

// goodFriday computes Good Friday via the Gregorian Easter algorithm.
func goodFriday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	dayOfMonth := (h+l-7*m+114)%31 + 1
	easter := time.Date(year, time.Month(month), dayOfMonth, 0, 0, 0, 0, time.UTC)
	return easter.AddDate(0, 0, -2)
}

// IsBusinessDay reports whether day is a non-weekend, non-holiday day on the
// calendar fallback.
func IsBusinessDay(day time.Time) bool {
	return !IsWeekend(day) && !isMarketHoliday(day)
}
