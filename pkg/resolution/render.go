package resolution

import (
	"encoding/json"
	"time"
	_ "time/tzdata" // instrument timezones must resolve without a system zoneinfo
)

// Kind tells how a rendered timestamp should be read.
type Kind int

const (
	// KindDate is a calendar date with no time of day.
	KindDate Kind = iota
	// KindNaive is a UTC wall-clock time without zone information.
	KindNaive
	// KindAware is a wall-clock time in a specific timezone.
	KindAware
)

const (
	dateLayout  = "2006-01-02"
	naiveLayout = "2006-01-02T15:04:05"
)

// Moment is a rendered timestamp.
type Moment struct {
	Time time.Time
	Kind Kind
}

// Render converts a UNIX timestamp for display. Daily-and-above resolutions
// become a UTC date regardless of loc; otherwise the result is a naive UTC time
// when loc is nil and the local wall-clock time in loc when it is not.
func Render(ts int64, loc *time.Location, r Resolution) Moment {
	t := time.Unix(ts, 0).UTC()
	if r.Daily() {
		y, m, d := t.Date()
		return Moment{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Kind: KindDate}
	}
	if loc == nil {
		return Moment{Time: t, Kind: KindNaive}
	}
	return Moment{Time: t.In(loc), Kind: KindAware}
}

// String formats dates as 2006-01-02, naive times without offset and aware
// times as RFC 3339.
func (m Moment) String() string {
	switch m.Kind {
	case KindDate:
		return m.Time.Format(dateLayout)
	case KindNaive:
		return m.Time.Format(naiveLayout)
	default:
		return m.Time.Format(time.RFC3339)
	}
}

func (m Moment) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// Equal compares kind, instant and, for aware moments, the UTC offset.
func (m Moment) Equal(o Moment) bool {
	if m.Kind != o.Kind || !m.Time.Equal(o.Time) {
		return false
	}
	if m.Kind == KindAware {
		_, a := m.Time.Zone()
		_, b := o.Time.Zone()
		return a == b
	}
	return true
}

// Date returns a KindDate moment for the given calendar day.
func Date(year int, month time.Month, day int) Moment {
	return Moment{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), Kind: KindDate}
}
