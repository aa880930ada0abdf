package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/hashicorp/go-multierror"

	appLog "tztimeline/internal/log"
	"tztimeline/internal/model"
	"tztimeline/internal/timerange"
)

// ErrNoEvent is returned when a calendar holds no usable timed VEVENT.
var ErrNoEvent = errors.New("ics: no timed event")

const (
	utcLayout   = "20060102T150405Z"
	localLayout = "20060102T150405"
)

// Locator loads IANA zones. *catalog.Catalog satisfies it.
type Locator interface {
	Location(id string) (*time.Location, error)
}

// Reference is a reference range read from a calendar event.
type Reference struct {
	UID     string
	Summary string
	Range   model.TimeRange
	// RRule is the raw RRULE value, empty for single events.
	RRule string
}

// ParseReference reads the first timed VEVENT of body as a reference range.
//
// The DTSTART TZID becomes the reference zone. UTC and floating values are
// read in defaultZone. DTEND is converted into the same zone; a missing
// DTEND gives a range of timerange.DefaultLength. Events that cannot be used
// are skipped, and their problems are reported together when none is left.
func ParseReference(body []byte, defaultZone string, locs Locator) (Reference, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Reference{}, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return Reference{}, fmt.Errorf("ics parse: %w", err)
	}

	var result *multierror.Error
	for i, ve := range cal.Events() {
		ref, err := parseVEvent(ve, defaultZone, locs)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("vevent %d: %w", i, err))
			continue
		}
		if result != nil {
			appLog.Warn("ics events skipped before first usable one", "err", result.Error())
		}
		appLog.Info("ics reference imported",
			"uid", ref.UID,
			"reference", ref.Range.ReferenceTimezoneID,
			"start", timerange.FormatLocal(ref.Range.Start),
			"rrule", ref.RRule,
		)
		return ref, nil
	}

	if result == nil {
		return Reference{}, ErrNoEvent
	}
	return Reference{}, fmt.Errorf("%w: %w", ErrNoEvent, result)
}

func parseVEvent(ve *ical.VEvent, defaultZone string, locs Locator) (Reference, error) {
	var out Reference

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = p.Value
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return out, errors.New("missing DTSTART")
	}
	if isAllDay(startProp) {
		return out, errors.New("all-day event has no time range")
	}

	zoneID := tzid(startProp)
	if zoneID == "" {
		zoneID = defaultZone
	}
	zone, err := locs.Location(zoneID)
	if err != nil {
		return out, err
	}

	start, err := propInstant(startProp, zone, locs)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	end := start.Add(timerange.DefaultLength)
	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
		if end, err = propInstant(endProp, zone, locs); err != nil {
			return out, fmt.Errorf("DTEND: %w", err)
		}
	}

	out.Range = model.TimeRange{
		Start:               timerange.WallClock(start, zone),
		End:                 timerange.WallClock(end, zone),
		ReferenceTimezoneID: zoneID,
	}
	return out, nil
}

// propInstant reads a DATE-TIME property as an absolute instant. Values
// without Z or their own TZID are read in fallback.
func propInstant(p *ical.IANAProperty, fallback *time.Location, locs Locator) (time.Time, error) {
	v := strings.TrimSpace(p.Value)
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse(utcLayout, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", timerange.ErrInvalidInstant, v)
		}
		return t, nil
	}

	loc := fallback
	if id := tzid(p); id != "" {
		l, err := locs.Location(id)
		if err != nil {
			return time.Time{}, err
		}
		loc = l
	}
	t, err := time.ParseInLocation(localLayout, v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", timerange.ErrInvalidInstant, v)
	}
	return t, nil
}

func tzid(p *ical.IANAProperty) string {
	if vs := p.ICalParameters[string(ical.ParameterTzid)]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}

// isAllDay detects VALUE=DATE or a bare YYYYMMDD value.
func isAllDay(p *ical.IANAProperty) bool {
	if vs := p.ICalParameters[string(ical.ParameterValue)]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}
