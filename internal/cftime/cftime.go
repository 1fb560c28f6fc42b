// Package cftime decodes CF-convention time axes recorded on the Julian
// calendar, as written by the UFS replay NetCDF output.
//
// Standard library time arithmetic assumes the proleptic Gregorian calendar,
// so Julian-calendar timestamps cannot be represented as time.Time without
// losing their calendar identity. A Date keeps the broken-out Julian fields;
// Date.Time reinterprets those fields as a Gregorian instant, which is exactly
// what downstream consumers of the archive expect (and what the replay
// tooling has always done). The reinterpretation round-trips exactly for
// whole-second timestamps; sub-second precision is not carried.
package cftime

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Date is a timestamp on the Julian calendar, broken out into fields.
type Date struct {
	Year  int
	Month int
	Day   int
	Hour  int
	Min   int
	Sec   int
}

// Time reinterprets the date's fields as a UTC time.Time on the Gregorian
// calendar. No calendar conversion is performed; 1994-01-01 Julian maps to
// 1994-01-01 Gregorian.
func (d Date) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, d.Hour, d.Min, d.Sec, 0, time.UTC)
}

// FromTime is the inverse of Time: it copies the broken-out fields of t
// (in UTC) into a Julian-calendar Date. Sub-second precision is dropped.
func FromTime(t time.Time) Date {
	t = t.UTC()
	return Date{
		Year:  t.Year(),
		Month: int(t.Month()),
		Day:   t.Day(),
		Hour:  t.Hour(),
		Min:   t.Minute(),
		Sec:   t.Second(),
	}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", d.Year, d.Month, d.Day, d.Hour, d.Min, d.Sec)
}

// julianDayNumber converts a Julian-calendar date to its Julian day number.
func julianDayNumber(year, month, day int) int64 {
	a := (14 - month) / 12
	y := year + 4800 - a
	m := month + 12*a - 3
	return int64(day) + int64(153*m+2)/5 + 365*int64(y) + int64(y)/4 - 32083
}

// fromJulianDayNumber converts a Julian day number back to a Julian-calendar date.
func fromJulianDayNumber(jdn int64) (year, month, day int) {
	c := jdn + 32082
	d := (4*c + 3) / 1461
	e := c - 1461*d/4
	m := (5*e + 2) / 153
	day = int(e - (153*m+2)/5 + 1)
	month = int(m + 3 - 12*(m/10))
	year = int(d - 4800 + m/10)
	return year, month, day
}

// Add advances the date by dur, carrying day arithmetic on the Julian
// calendar (leap year every four years, no century exception).
func (d Date) Add(dur time.Duration) Date {
	jdn := julianDayNumber(d.Year, d.Month, d.Day)
	sec := int64(d.Hour)*3600 + int64(d.Min)*60 + int64(d.Sec)
	sec += int64(dur / time.Second)

	jdn += sec / 86400
	sec %= 86400
	if sec < 0 {
		sec += 86400
		jdn--
	}

	year, month, day := fromJulianDayNumber(jdn)
	return Date{
		Year:  year,
		Month: month,
		Day:   day,
		Hour:  int(sec / 3600),
		Min:   int(sec % 3600 / 60),
		Sec:   int(sec % 60),
	}
}

// Sub returns the duration d - other on the Julian calendar.
func (d Date) Sub(other Date) time.Duration {
	days := julianDayNumber(d.Year, d.Month, d.Day) - julianDayNumber(other.Year, other.Month, other.Day)
	secs := int64(d.Hour-other.Hour)*3600 + int64(d.Min-other.Min)*60 + int64(d.Sec-other.Sec)
	return time.Duration(days*86400+secs) * time.Second
}

// ParseUnits splits a CF units string, e.g. "hours since 1994-01-01 00:00:00",
// into the tick duration and the epoch date. The epoch is parsed field-wise so
// it stays on the file's calendar rather than being pushed through Gregorian
// date math.
func ParseUnits(units string) (time.Duration, Date, error) {
	unitPart, datePart, found := strings.Cut(units, " since ")
	if !found {
		return 0, Date{}, fmt.Errorf("cftime: units %q missing \"since\"", units)
	}

	var tick time.Duration
	switch strings.ToLower(strings.TrimSpace(unitPart)) {
	case "seconds", "second", "secs", "sec", "s":
		tick = time.Second
	case "minutes", "minute", "mins", "min":
		tick = time.Minute
	case "hours", "hour", "hrs", "hr", "h":
		tick = time.Hour
	case "days", "day", "d":
		tick = 24 * time.Hour
	default:
		return 0, Date{}, fmt.Errorf("cftime: unsupported unit %q in %q", unitPart, units)
	}

	epoch, err := parseEpoch(strings.TrimSpace(datePart))
	if err != nil {
		return 0, Date{}, fmt.Errorf("cftime: units %q: %w", units, err)
	}
	return tick, epoch, nil
}

func parseEpoch(s string) (Date, error) {
	s = strings.ReplaceAll(s, "T", " ")
	var d Date
	n, err := fmt.Sscanf(s, "%d-%d-%d %d:%d:%d", &d.Year, &d.Month, &d.Day, &d.Hour, &d.Min, &d.Sec)
	if err != nil && n < 3 {
		return Date{}, fmt.Errorf("unparseable epoch %q", s)
	}
	if d.Month < 1 || d.Month > 12 || d.Day < 1 || d.Day > 31 {
		return Date{}, fmt.Errorf("epoch %q out of range", s)
	}
	return d, nil
}

// Decode converts raw CF-encoded offsets into Julian-calendar dates.
// Only the julian calendar is supported; anything else in the replay archive
// would indicate a mislabeled file and is rejected.
func Decode(raw []float64, units, calendar string) ([]Date, error) {
	if c := strings.ToLower(strings.TrimSpace(calendar)); c != "julian" && c != "" {
		return nil, fmt.Errorf("cftime: unsupported calendar %q", calendar)
	}
	tick, epoch, err := ParseUnits(units)
	if err != nil {
		return nil, err
	}

	out := make([]Date, len(raw))
	for i, v := range raw {
		secs := v * tick.Seconds()
		if math.Abs(secs-math.Round(secs)) > 1e-6 {
			return nil, fmt.Errorf("cftime: offset %v %s is not a whole second", v, units)
		}
		out[i] = epoch.Add(time.Duration(math.Round(secs)) * time.Second)
	}
	return out, nil
}

// Encode is the inverse of Decode: it expresses dates as offsets from the
// epoch named in units.
func Encode(dates []Date, units string) ([]float64, error) {
	tick, epoch, err := ParseUnits(units)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(dates))
	for i, d := range dates {
		out[i] = d.Sub(epoch).Seconds() / tick.Seconds()
	}
	return out, nil
}
