// Package dayindex converts between YYYY-MM-DD calendar dates and an integer
// day count. A Day carries no time-of-day or zone: Day+1 is always the next
// calendar day and subtracting two Days yields the elapsed whole days.
package dayindex

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Layout is the canonical date layout used at the data layer.
const Layout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// ErrInvalidDate is wrapped by every Parse failure.
var ErrInvalidDate = errors.New("invalid date")

// Day counts calendar days since 1970-01-01 in the proleptic Gregorian calendar.
type Day int

// Parse decodes a YYYY-MM-DD literal. It rejects out-of-range months and days
// and any triple that does not survive calendar construction (2026-02-30);
// it never clamps.
func Parse(s string) (Day, error) {
	s = strings.TrimSpace(s)
	if len(s) != len(Layout) || s[4] != '-' || s[7] != '-' {
		return 0, fmt.Errorf("%w: %q: want YYYY-MM-DD", ErrInvalidDate, s)
	}

	year, ok1 := atoi(s[0:4])
	month, ok2 := atoi(s[5:7])
	day, ok3 := atoi(s[8:10])
	if !ok1 || !ok2 || !ok3 {
		return 0, fmt.Errorf("%w: %q: non-numeric component", ErrInvalidDate, s)
	}
	if month < 1 || month > 12 {
		return 0, fmt.Errorf("%w: %q: month %d out of range", ErrInvalidDate, s, month)
	}
	if day < 1 || day > 31 {
		return 0, fmt.Errorf("%w: %q: day %d out of range", ErrInvalidDate, s, day)
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return 0, fmt.Errorf("%w: %q: no such calendar day", ErrInvalidDate, s)
	}
	return fromUTCMidnight(t), nil
}

// MustParse is Parse for fixtures; it panics on error.
func MustParse(s string) Day {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromTime returns the civil date of t in t's own location.
func FromTime(t time.Time) Day {
	y, m, d := t.Date()
	return fromUTCMidnight(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

func fromUTCMidnight(t time.Time) Day {
	// Midnight UTC is an exact multiple of a day, so truncating division is safe
	// on both sides of the epoch.
	return Day(t.Unix() / secondsPerDay)
}

// Time returns midnight UTC of d.
func (d Day) Time() time.Time {
	return time.Unix(int64(d)*secondsPerDay, 0).UTC()
}

// Format returns the canonical YYYY-MM-DD form.
func (d Day) Format() string { return d.Time().Format(Layout) }

func (d Day) String() string { return d.Format() }

// Add offsets d by n days; n may be negative.
func (d Day) Add(n int) Day { return d + Day(n) }

// AddDays offsets d by n days; n may be negative.
func AddDays(d Day, n int) Day { return d.Add(n) }

// DiffInclusive counts the days from a to b with both endpoints included.
// It is 0 when b is before a.
func DiffInclusive(a, b Day) int {
	if b < a {
		return 0
	}
	return int(b-a) + 1
}

// Min returns the earlier of a and b.
func Min(a, b Day) Day {
	if a < b {
		return a
	}
	return b
}

// Max returns the later of a and b.
func Max(a, b Day) Day {
	if a > b {
		return a
	}
	return b
}

// MarshalText encodes d as YYYY-MM-DD.
func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.Format()), nil
}

// UnmarshalText decodes a YYYY-MM-DD literal.
func (d *Day) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func atoi(s string) (int, bool) {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
