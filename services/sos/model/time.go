package model

import (
	"fmt"
	"strings"
	"time"
)

// IndeterminateTime marks a request for the first or latest observation.
type IndeterminateTime string

const (
	NotIndeterminate IndeterminateTime = ""
	First            IndeterminateTime = "first"
	Latest           IndeterminateTime = "latest"
)

// ParseIndeterminate recognises the indeterminate time keywords, including
// the "getFirst"/"getLatest" spellings of SOS 1.0.
func ParseIndeterminate(s string) (IndeterminateTime, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "first", "getfirst":
		return First, true
	case "latest", "getlatest":
		return Latest, true
	default:
		return NotIndeterminate, false
	}
}

// Time is a time instant (Begin equal to End), a time period, or an
// indeterminate instant.
type Time struct {
	Begin         time.Time
	End           time.Time
	Indeterminate IndeterminateTime
}

func Instant(t time.Time) Time {
	return Time{Begin: t, End: t}
}

func Period(begin, end time.Time) Time {
	return Time{Begin: begin, End: end}
}

// IsInstant reports whether t is a single point in time.
func (t Time) IsInstant() bool {
	return t.Indeterminate != NotIndeterminate || t.Begin.Equal(t.End)
}

// IsZero reports whether t carries no time at all.
func (t Time) IsZero() bool {
	return t.Indeterminate == NotIndeterminate && t.Begin.IsZero() && t.End.IsZero()
}

func (t Time) String() string {
	switch {
	case t.Indeterminate != NotIndeterminate:
		return string(t.Indeterminate)
	case t.IsInstant():
		return t.Begin.UTC().Format(time.RFC3339Nano)
	default:
		return t.Begin.UTC().Format(time.RFC3339Nano) + "/" + t.End.UTC().Format(time.RFC3339Nano)
	}
}

// ParseTime parses an ISO 8601 instant, a "start/end" period or one of the
// indeterminate keywords.
func ParseTime(s string) (Time, error) {
	s = strings.TrimSpace(s)
	if ind, ok := ParseIndeterminate(s); ok {
		return Time{Indeterminate: ind}, nil
	}
	if begin, end, ok := strings.Cut(s, "/"); ok {
		b, err := parseInstant(begin)
		if err != nil {
			return Time{}, err
		}
		e, err := parseInstant(end)
		if err != nil {
			return Time{}, err
		}
		if e.Before(b) {
			return Time{}, fmt.Errorf("period end %s before start %s", end, begin)
		}
		return Period(b, e), nil
	}
	t, err := parseInstant(s)
	if err != nil {
		return Time{}, err
	}
	return Instant(t), nil
}

func parseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

// TimeExtrema is the min/max snapshot of the time fields of a series.
type TimeExtrema struct {
	PhenomenonTimeStart time.Time
	PhenomenonTimeEnd   time.Time
	ResultTimeMin       time.Time
	ResultTimeMax       time.Time
}

// IsEmpty reports whether no value contributed to the extrema.
func (e TimeExtrema) IsEmpty() bool {
	return e.PhenomenonTimeStart.IsZero() && e.PhenomenonTimeEnd.IsZero()
}

// PhenomenonTime returns the extrema as a time period.
func (e TimeExtrema) PhenomenonTime() Time {
	return Period(e.PhenomenonTimeStart, e.PhenomenonTimeEnd)
}
