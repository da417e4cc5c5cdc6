package resolution

import "time"

// SecondsPerDay is the length of a UTC day.
const SecondsPerDay int64 = 86400

// EndTimestamp returns the exclusive end of the period that starts at start.
// Months and years are added on the UTC calendar; a day that does not exist in
// the target month is clamped to that month's last day.
func (r Resolution) EndTimestamp(start int64) int64 {
	if months := r.Months(); months > 0 {
		return AddMonths(time.Unix(start, 0).UTC(), months).Unix()
	}
	return start + r.Seconds()
}

// EndTimestamp parses code and returns the end of the period starting at start.
func EndTimestamp(start int64, code string) (int64, error) {
	r, err := Parse(code)
	if err != nil {
		return 0, err
	}
	return r.EndTimestamp(start), nil
}

// AddMonths adds n calendar months to t keeping the time of day. Unlike
// time.AddDate it never overflows into the following month: Jan 31 + 1 month
// is the last day of February.
func AddMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	total := int(month) - 1 + n
	year += total / 12
	total %= 12
	if total < 0 {
		total += 12
		year--
	}
	target := time.Month(total + 1)
	if last := daysIn(year, target, t.Location()); day > last {
		day = last
	}
	return time.Date(year, target, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// Midnight rolls ts back to the start of its UTC day.
func Midnight(ts int64) int64 {
	return ts - mod(ts, SecondsPerDay)
}

// MidnightAligned reports whether ts falls exactly on a UTC day boundary.
func MidnightAligned(ts int64) bool {
	return mod(ts, SecondsPerDay) == 0
}

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
