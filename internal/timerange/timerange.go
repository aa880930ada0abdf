// Package timerange holds the reference interval and parses user input
// into it.
package timerange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tztimeline/internal/model"
)

var (
	// ErrInvalidInstant marks unparseable date/time input. The edit is
	// rejected and the previous range kept.
	ErrInvalidInstant = errors.New("invalid date/time")
	// ErrDegenerateRange marks End <= Start. It is a validation concern only;
	// the projector accepts such ranges.
	ErrDegenerateRange = errors.New("end must be after start")
)

const (
	dateLayout      = "2006-01-02"
	localLayout     = "2006-01-02T15:04"
	localSecsLayout = "2006-01-02T15:04:05"

	// DefaultLength is the length of a freshly seeded range.
	DefaultLength = time.Hour
)

// State is the current range. Not safe for concurrent use.
type State struct {
	r model.TimeRange
}

// NewState starts from r.
func NewState(r model.TimeRange) *State {
	return &State{r: r}
}

// Range returns the current range.
func (s *State) Range() model.TimeRange {
	return s.r
}

// Set stores next and reports the previous range and whether the reference
// zone changed. Reconciling the selection is the caller's job.
func (s *State) Set(next model.TimeRange) (prev model.TimeRange, referenceChanged bool) {
	prev = s.r
	s.r = next
	return prev, prev.ReferenceTimezoneID != next.ReferenceTimezoneID
}

// Default builds the initial range: the next full hour in the reference
// zone, DefaultLength long. An instant already on the hour is kept.
func Default(now time.Time, referenceID string, loc *time.Location) model.TimeRange {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	y, m, d := local.Date()
	start := time.Date(y, m, d, local.Hour(), 0, 0, 0, time.UTC)
	if local.Minute() > 0 || local.Second() > 0 || local.Nanosecond() > 0 {
		start = start.Add(time.Hour)
	}
	return model.TimeRange{
		Start:               start,
		End:                 start.Add(DefaultLength),
		ReferenceTimezoneID: referenceID,
	}
}

// Validate reports ErrDegenerateRange for End <= Start.
func Validate(r model.TimeRange) error {
	if r.Degenerate() {
		return fmt.Errorf("%w: %s .. %s", ErrDegenerateRange,
			r.Start.Format(localLayout), r.End.Format(localLayout))
	}
	return nil
}

// ParseClock parses "HH:MM" (24-hour).
func ParseClock(v string) (hours, mins int, err error) {
	v = strings.TrimSpace(v)
	hh, mm, ok := strings.Cut(v, ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: clock %q", ErrInvalidInstant, v)
	}
	hours, herr := strconv.Atoi(hh)
	mins, merr := strconv.Atoi(mm)
	if herr != nil || merr != nil || hours < 0 || hours > 23 || mins < 0 || mins > 59 {
		return 0, 0, fmt.Errorf("%w: clock %q", ErrInvalidInstant, v)
	}
	return hours, mins, nil
}

// ParseWallClock combines a "YYYY-MM-DD" date and an "HH:MM" clock into a
// UTC-carried wall-clock value.
func ParseWallClock(date, clock string) (time.Time, error) {
	d, err := time.Parse(dateLayout, strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidInstant, date)
	}
	h, m, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return d.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute), nil
}

// ParseLocal parses "YYYY-MM-DDTHH:MM[:SS]" as a wall-clock value. Any zone
// suffix is rejected; the reference zone is carried separately.
func ParseLocal(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range []string{localLayout, localSecsLayout} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidInstant, v)
}

// FormatLocal is the inverse of ParseLocal.
func FormatLocal(t time.Time) string {
	return t.UTC().Format(localLayout)
}

// WallClock re-expresses the absolute instant t as a wall-clock value in loc.
func WallClock(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	y, m, d := l.Date()
	return time.Date(y, m, d, l.Hour(), l.Minute(), l.Second(), l.Nanosecond(), time.UTC)
}
