// Package resolution parses bar resolution codes such as "30s", "H", "3M" or "Y"
// and does the period arithmetic that depends on them.
package resolution

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrInvalid is returned for strings that are not resolution codes.
var ErrInvalid = errors.New("invalid resolution")

// Unit is the period unit of a resolution.
type Unit byte

const (
	Second Unit = 's'
	Minute Unit = 'm'
	Hour   Unit = 'H'
	Day    Unit = 'D'
	Week   Unit = 'W'
	Month  Unit = 'M'
	Year   Unit = 'Y'
)

// Pattern is the accepted resolution format: an optional one or two digit
// multiplier followed by a unit letter.
const Pattern = `^\d{0,2}[smHDWMY]$`

var pattern = regexp.MustCompile(Pattern)

// Seconds per unit for the fixed-length units.
var unitSeconds = map[Unit]int64{
	Second: 1,
	Minute: 60,
	Hour:   3600,
	Day:    86400,
	Week:   604800,
}

func (u Unit) String() string { return string(rune(u)) }

// Fixed reports whether every period of this unit has the same length.
func (u Unit) Fixed() bool {
	_, ok := unitSeconds[u]
	return ok
}

// Resolution is a parsed resolution code.
type Resolution struct {
	Multiplier int
	Unit       Unit
}

// Parse validates s and splits it into multiplier and unit. A missing
// multiplier means 1. Parse is stricter than Pattern: a zero multiplier such
// as "0m" or "00D" matches the pattern but is rejected with ErrInvalid, since
// its period would have no length.
func Parse(s string) (Resolution, error) {
	if !pattern.MatchString(s) {
		return Resolution{}, fmt.Errorf("%w: %q must match %s", ErrInvalid, s, Pattern)
	}
	r := Resolution{Multiplier: 1, Unit: Unit(s[len(s)-1])}
	if digits := s[:len(s)-1]; digits != "" {
		n, err := strconv.Atoi(digits)
		if err != nil {
			return Resolution{}, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
		}
		if n == 0 {
			return Resolution{}, fmt.Errorf("%w: %q has a zero multiplier", ErrInvalid, s)
		}
		r.Multiplier = n
	}
	return r, nil
}

// MustParse is Parse for constants; it panics on error.
func MustParse(s string) Resolution {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Valid reports whether s is a well formed resolution code.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// String returns the canonical code, omitting a multiplier of 1.
func (r Resolution) String() string {
	if r.Multiplier == 1 {
		return r.Unit.String()
	}
	return strconv.Itoa(r.Multiplier) + r.Unit.String()
}

// Daily reports whether bars of this resolution are day-aligned (D, W, M, Y).
func (r Resolution) Daily() bool {
	switch r.Unit {
	case Day, Week, Month, Year:
		return true
	}
	return false
}

// Intraday reports whether periods are shorter than a day.
func (r Resolution) Intraday() bool {
	return !r.Daily()
}

// Months returns the number of calendar months in one period, or 0 for the
// fixed-length units.
func (r Resolution) Months() int {
	switch r.Unit {
	case Month:
		return r.Multiplier
	case Year:
		return r.Multiplier * 12
	}
	return 0
}

// Seconds returns the fixed period length in seconds, or 0 for months and years.
func (r Resolution) Seconds() int64 {
	return int64(r.Multiplier) * unitSeconds[r.Unit]
}
