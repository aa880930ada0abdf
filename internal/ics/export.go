// Package ics converts between timelines and iCalendar documents.
package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"tztimeline/internal/model"
	"tztimeline/internal/projector"
)

const productService = "tztimeline"

// ExportOptions tunes Export.
type ExportOptions struct {
	// Stamp is written as DTSTAMP; zero means time.Now.
	Stamp time.Time
	// RRule, when set, is attached to every event.
	RRule string
}

// Export writes one VEVENT per projected zone. Events carry UTC DTSTART and
// DTEND; the summary shows the zone label with its local clock range.
func Export(r model.TimeRange, zones []model.TimezoneDisplay, p model.Projection, opts ExportOptions) string {
	stamp := opts.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}

	byID := make(map[string]model.TimezoneDisplay, len(zones))
	for _, z := range zones {
		byID[z.ID] = z
	}

	cal := ical.NewCalendarFor(productService)
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName("Timeline")
	cal.SetXWRTimezone(r.ReferenceTimezoneID)

	reference := fmt.Sprintf("Reference: %s %s", r.ReferenceTimezoneID, clockRange(r.Start, r.Start, r.End))

	for _, pi := range p.PerZone {
		z, ok := byID[pi.TimezoneID]
		if !ok {
			z = model.TimezoneDisplay{ID: pi.TimezoneID, Name: pi.TimezoneID}
		}

		ev := cal.AddEvent(eventUID(pi))
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(pi.UTCStart)
		ev.SetEndAt(pi.UTCEnd)
		ev.SetSummary(z.Label() + " " + clockRange(r.Start, pi.LocalStart, pi.LocalEnd))
		ev.SetLocation(z.ID)
		ev.SetDescription(reference)
		if opts.RRule != "" {
			ev.AddRrule(opts.RRule)
		}
	}

	return cal.Serialize()
}

func eventUID(pi model.ProjectedInterval) string {
	return fmt.Sprintf("%s-%s@%s", pi.TimezoneID, pi.UTCStart.UTC().Format(utcLayout), productService)
}

// clockRange renders "10:00 PM - 6:00 AM (+1)"; the suffix is the day shift
// of end against the reference start.
func clockRange(refStart, start, end time.Time) string {
	s := projector.FormatClock(start) + " - " + projector.FormatClock(end)
	if d := projector.DayShift(refStart, end); d != 0 {
		s += fmt.Sprintf(" (%+d)", d)
	}
	return s
}
