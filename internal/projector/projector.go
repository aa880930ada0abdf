// Package projector turns one reference interval into per-zone local
// intervals on a shared plotting axis.
//
// Wall-clock values (TimeRange.Start/End, ProjectedInterval.LocalStart/End)
// are carried as UTC time.Time values whose fields equal the wall clock. The
// offsets applied to them come from a Resolver, evaluated at explicit
// instants.
package projector

import (
	"fmt"
	"time"

	"tztimeline/internal/model"
)

const (
	// DefaultPaddingFraction widens the plot domain by 10% of its width on
	// each side.
	DefaultPaddingFraction = 0.1
	// DefaultNowHalfWindow is the half width of the "around now" bars.
	DefaultNowHalfWindow = 30 * time.Minute
)

// Resolver maps (zone id, instant) to a UTC offset in minutes.
type Resolver interface {
	ResolveOffset(id string, at time.Time) (int, error)
}

// Options are the tunable policy constants.
type Options struct {
	PaddingFraction float64
	NowHalfWindow   time.Duration
}

// DefaultOptions returns the stock policy.
func DefaultOptions() Options {
	return Options{
		PaddingFraction: DefaultPaddingFraction,
		NowHalfWindow:   DefaultNowHalfWindow,
	}
}

func (o Options) normalized() Options {
	if o.PaddingFraction < 0 {
		o.PaddingFraction = 0
	}
	if o.NowHalfWindow <= 0 {
		o.NowHalfWindow = DefaultNowHalfWindow
	}
	return o
}

// Convert re-expresses the wall-clock value t in zone from as a wall-clock
// value in zone to.
//
// The source offset is the one in effect at the instant t denotes (see
// WallOffset); the target offset is taken at the resulting UTC instant.
func Convert(t time.Time, from, to string, res Resolver) (time.Time, error) {
	fromOff, err := WallOffset(res, from, t)
	if err != nil {
		return time.Time{}, fmt.Errorf("convert from: %w", err)
	}
	utc := t.Add(-minutes(fromOff))

	toOff, err := res.ResolveOffset(to, utc)
	if err != nil {
		return time.Time{}, fmt.Errorf("convert to: %w", err)
	}
	return utc.Add(minutes(toOff)), nil
}

// WallOffset returns the offset of zone id in effect at the wall-clock value
// wall. The first lookup reads wall as if it were UTC; the offset at the
// instant that guess implies is the answer. This agrees with time.Date,
// including its choice inside skipped and repeated hours.
func WallOffset(res Resolver, id string, wall time.Time) (int, error) {
	guess, err := res.ResolveOffset(id, wall)
	if err != nil {
		return 0, err
	}
	return res.ResolveOffset(id, wall.Add(-minutes(guess)))
}

// Project computes every zone's local interval and the padded union domain.
//
// The reference offset is resolved once, at the instant r.Start denotes, and
// subtracted from both ends; each target offset is resolved once, at the UTC start, and added
// to both ends. Every bar therefore has exactly the width of r, even when r
// straddles a transition.
//
// Output order follows zones. Empty zones yield an empty PerZone and a nil
// Domain. Inverted or empty ranges are projected as given.
func Project(r model.TimeRange, zones []model.TimezoneDisplay, res Resolver, opts Options) (model.Projection, error) {
	opts = opts.normalized()
	out := model.Projection{PerZone: make([]model.ProjectedInterval, 0, len(zones))}
	if len(zones) == 0 {
		return out, nil
	}

	refOff, err := WallOffset(res, r.ReferenceTimezoneID, r.Start)
	if err != nil {
		return model.Projection{}, fmt.Errorf("reference zone: %w", err)
	}
	utcStart := r.Start.Add(-minutes(refOff))
	utcEnd := r.End.Add(-minutes(refOff))

	var b bounds
	for _, z := range zones {
		off, err := res.ResolveOffset(z.ID, utcStart)
		if err != nil {
			return model.Projection{}, fmt.Errorf("target zone: %w", err)
		}
		pi := model.ProjectedInterval{
			TimezoneID:    z.ID,
			LocalStart:    utcStart.Add(minutes(off)),
			LocalEnd:      utcEnd.Add(minutes(off)),
			UTCStart:      utcStart,
			UTCEnd:        utcEnd,
			OffsetMinutes: off,
		}
		b.update(pi.LocalStart, pi.LocalEnd)
		out.PerZone = append(out.PerZone, pi)
	}

	out.Domain = b.padded(opts.PaddingFraction)
	return out, nil
}

// NowWindow builds a bar of +/- NowHalfWindow around the instant now in every
// zone.
func NowWindow(now time.Time, zones []model.TimezoneDisplay, res Resolver, opts Options) (model.Projection, error) {
	opts = opts.normalized()
	out := model.Projection{PerZone: make([]model.ProjectedInterval, 0, len(zones))}
	if len(zones) == 0 {
		return out, nil
	}

	utc := now.UTC()
	var b bounds
	for _, z := range zones {
		off, err := res.ResolveOffset(z.ID, utc)
		if err != nil {
			return model.Projection{}, fmt.Errorf("target zone: %w", err)
		}
		wall := utc.Add(minutes(off))
		pi := model.ProjectedInterval{
			TimezoneID:    z.ID,
			LocalStart:    wall.Add(-opts.NowHalfWindow),
			LocalEnd:      wall.Add(opts.NowHalfWindow),
			UTCStart:      utc.Add(-opts.NowHalfWindow),
			UTCEnd:        utc.Add(opts.NowHalfWindow),
			OffsetMinutes: off,
		}
		b.update(pi.LocalStart, pi.LocalEnd)
		out.PerZone = append(out.PerZone, pi)
	}

	out.Domain = b.padded(opts.PaddingFraction)
	return out, nil
}

// FormatClock renders a wall-clock value as "3:04 PM".
func FormatClock(wall time.Time) string {
	return wall.UTC().Format("3:04 PM")
}

// DayShift is the calendar-day difference between a local wall-clock value
// and the reference wall-clock value (+1 for "next day").
func DayShift(reference, local time.Time) int {
	ry, rm, rd := reference.UTC().Date()
	ly, lm, ld := local.UTC().Date()
	r := time.Date(ry, rm, rd, 0, 0, 0, 0, time.UTC)
	l := time.Date(ly, lm, ld, 0, 0, 0, 0, time.UTC)
	return int(l.Sub(r).Hours() / 24)
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

// bounds accumulates the earliest start and latest end.
type bounds struct {
	min, max time.Time
	isSet    bool
}

func (b *bounds) update(start, end time.Time) {
	if !b.isSet {
		b.min, b.max = start, end
		b.isSet = true
		return
	}
	if start.Before(b.min) {
		b.min = start
	}
	if end.After(b.max) {
		b.max = end
	}
}

func (b *bounds) padded(fraction float64) *model.PlotDomain {
	if !b.isSet {
		return nil
	}
	pad := time.Duration(float64(b.max.Sub(b.min)) * fraction)
	return &model.PlotDomain{
		Min: b.min.Add(-pad),
		Max: b.max.Add(pad),
	}
}
