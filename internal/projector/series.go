package projector

import (
	"errors"
	"fmt"

	"github.com/teambition/rrule-go"

	"tztimeline/internal/model"
)

// DefaultMaxSeries caps recurring projections.
const DefaultMaxSeries = 366

// SeriesEntry is one occurrence of a recurring reference range.
type SeriesEntry struct {
	Range      model.TimeRange  `json:"range"`
	Projection model.Projection `json:"projection"`
}

// ProjectSeries expands rule (an RRULE string such as
// "FREQ=WEEKLY;BYDAY=MO") from r.Start and projects every occurrence. The
// reference wall clock repeats unchanged; offsets are resolved per
// occurrence, so the bars move when either side crosses a transition.
func ProjectSeries(r model.TimeRange, rule string, count int, zones []model.TimezoneDisplay, res Resolver, opts Options) ([]SeriesEntry, error) {
	if rule == "" {
		return nil, errors.New("series: empty rule")
	}
	if count <= 0 || count > DefaultMaxSeries {
		count = DefaultMaxSeries
	}

	rr, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("series: parse rule: %w", err)
	}
	// Wall-clock values are UTC-carried, so recurring in UTC keeps the
	// reference wall clock fixed.
	rr.DTStart(r.Start.UTC())

	dur := r.Duration()
	out := make([]SeriesEntry, 0, count)
	next := rr.Iterator()
	for len(out) < count {
		start, ok := next()
		if !ok {
			break
		}
		occ := model.TimeRange{
			Start:               start,
			End:                 start.Add(dur),
			ReferenceTimezoneID: r.ReferenceTimezoneID,
		}
		p, err := Project(occ, zones, res, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, SeriesEntry{Range: occ, Projection: p})
	}
	return out, nil
}
