// Package app coordinates the catalog, the selection and the time range.
// Every action runs under one mutex and persists its result.
package app

import (
	"strings"
	"sync"
	"time"

	"tztimeline/internal/catalog"
	"tztimeline/internal/clock"
	appLog "tztimeline/internal/log"
	"tztimeline/internal/model"
	"tztimeline/internal/projector"
	"tztimeline/internal/selection"
	"tztimeline/internal/store"
	"tztimeline/internal/timerange"
)

// Filter narrows the zone listing the bulk actions apply to.
type Filter struct {
	BusinessOnly bool
	Query        string
}

// Options wires an App. Catalog is required.
type Options struct {
	Catalog *catalog.Catalog
	// Store may be nil, which disables persistence.
	Store *store.Store
	// Clock defaults to clock.System.
	Clock      clock.Clock
	Projection projector.Options
	// ReferenceZone seeds a fresh range. Empty means the host zone.
	ReferenceZone string
}

// App is safe for concurrent use.
type App struct {
	mu sync.Mutex

	cat   *catalog.Catalog
	store *store.Store
	clock clock.Clock
	opts  projector.Options

	sel *selection.Selection
	rng *timerange.State
}

// Timeline is the renderer input for the current state.
type Timeline struct {
	Range      model.TimeRange         `json:"range"`
	Degenerate bool                    `json:"degenerate"`
	Zones      []model.TimezoneDisplay `json:"zones"`
	Projection model.Projection        `json:"projection"`
}

// New restores persisted state, or seeds a default range in the reference
// zone with that zone selected.
func New(opts Options) *App {
	if opts.Clock == nil {
		opts.Clock = clock.System
	}
	if opts.Store == nil {
		opts.Store = store.New("")
	}
	a := &App{
		cat:   opts.Catalog,
		store: opts.Store,
		clock: opts.Clock,
		opts:  opts.Projection,
	}

	snap, found, err := a.store.Load()
	if err != nil {
		appLog.Error("state load failed; starting fresh", err, "path", a.store.Path())
		found = false
	}

	now := a.clock.Now()
	var r model.TimeRange
	if found && snap.TimeRange != nil && a.cat.Known(snap.TimeRange.ReferenceTimezoneID) {
		r = *snap.TimeRange
	} else {
		ref := a.seedZone(opts.ReferenceZone, now)
		loc, _ := a.cat.Location(ref.ID)
		r = timerange.Default(now, ref.ID, loc)
	}
	a.rng = timerange.NewState(r)

	at := a.referenceInstant(r)
	if found && len(snap.Selection) > 0 {
		a.sel = selection.New(a.cat.Annotate(snap.Selection, at)...)
	} else {
		a.sel = selection.New(a.cat.ResolveOrFallback(r.ReferenceTimezoneID, at))
	}

	appLog.Info("state ready",
		"reference", r.ReferenceTimezoneID,
		"start", timerange.FormatLocal(r.Start),
		"end", timerange.FormatLocal(r.End),
		"selected", a.sel.IDs(),
		"restored", found,
	)
	return a
}

func (a *App) seedZone(id string, now time.Time) model.TimezoneDisplay {
	if id != "" {
		z, err := a.cat.Resolve(id, now)
		if err == nil {
			return z
		}
		appLog.Warn("configured timezone unknown; using host zone", "id", id, "err", err)
	}
	return a.cat.LocalZone(now)
}

// referenceInstant is the absolute instant of r.Start.
func (a *App) referenceInstant(r model.TimeRange) time.Time {
	utc, err := projector.Convert(r.Start, r.ReferenceTimezoneID, "UTC", a.cat)
	if err != nil {
		return r.Start
	}
	return utc
}

// Catalog exposes the shared read-only catalog.
func (a *App) Catalog() *catalog.Catalog {
	return a.cat
}

// Candidates lists the zones matching f, annotated at the current reference
// instant and sorted by offset.
func (a *App) Candidates(f Filter) []model.TimezoneDisplay {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.candidatesLocked(f)
}

func (a *App) candidatesLocked(f Filter) []model.TimezoneDisplay {
	at := a.referenceInstant(a.rng.Range())
	var zones []model.TimezoneDisplay
	if f.BusinessOnly {
		zones = a.cat.ListBusinessAt(at)
	} else {
		zones = a.cat.ListAt(at)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		zones = catalog.Filter(zones, q)
	}
	return zones
}

// Toggle flips id in the selection.
func (a *App) Toggle(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	z, err := a.cat.Resolve(id, a.referenceInstant(a.rng.Range()))
	if err != nil {
		return err
	}
	a.sel.Toggle(z)
	a.persistLocked()
	return nil
}

// SelectAll adds every zone matching f.
func (a *App) SelectAll(f Filter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sel.SelectAll(a.candidatesLocked(f))
	a.persistLocked()
}

// DeselectAll removes every zone matching f.
func (a *App) DeselectAll(f Filter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sel.DeselectAll(a.candidatesLocked(f))
	a.persistLocked()
}

// SelectAllState drives the "select all" checkbox for the zones matching f.
func (a *App) SelectAllState(f Filter) selection.TriState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sel.State(a.candidatesLocked(f))
}

// Range returns the current reference interval.
func (a *App) Range() model.TimeRange {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rng.Range()
}

// Selected returns the selection sorted by offset.
func (a *App) Selected() []model.TimezoneDisplay {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sel.Sorted()
}

// SetRange replaces the reference interval. An empty reference zone keeps
// the current one. An unknown reference zone is rejected with
// catalog.ErrUnknownTimezone and the prior state kept. Degenerate ranges are
// stored; Timeline flags them.
func (a *App) SetRange(next model.TimeRange) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if next.ReferenceTimezoneID == "" {
		next.ReferenceTimezoneID = a.rng.Range().ReferenceTimezoneID
	}

	if _, err := a.cat.Location(next.ReferenceTimezoneID); err != nil {
		return err
	}

	at := a.referenceInstant(next)
	nextRef, err := a.cat.Resolve(next.ReferenceTimezoneID, at)
	if err != nil {
		return err
	}

	sel, r := Reconcile(model.SelectionSet(a.sel.Items()), a.rng.Range(), next, nextRef)
	prev, changed := a.rng.Set(r)
	// Offsets depend on the instant, so every edit re-annotates.
	a.sel.Replace(a.cat.Annotate(sel, at))

	if changed {
		appLog.Info("reference zone changed",
			"from", prev.ReferenceTimezoneID, "to", r.ReferenceTimezoneID,
			"selected", a.sel.IDs())
	}
	a.persistLocked()
	return nil
}

// Timeline projects the current range onto the selection.
func (a *App) Timeline() (Timeline, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := a.rng.Range()
	zones := a.sel.Sorted()
	p, err := projector.Project(r, zones, a.cat, a.opts)
	if err != nil {
		return Timeline{}, err
	}
	return Timeline{
		Range:      r,
		Degenerate: r.Degenerate(),
		Zones:      zones,
		Projection: p,
	}, nil
}

// NowWindow projects the window around the current instant onto the
// selection, and returns that instant.
func (a *App) NowWindow() (time.Time, model.Projection, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()
	p, err := projector.NowWindow(now, a.sel.Sorted(), a.cat, a.opts)
	return now, p, err
}

// Series projects each occurrence of rule, anchored at the current range.
func (a *App) Series(rule string, count int) ([]projector.SeriesEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return projector.ProjectSeries(a.rng.Range(), rule, count, a.sel.Sorted(), a.cat, a.opts)
}

// Snapshot returns the persistable state.
func (a *App) Snapshot() store.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *App) snapshotLocked() store.Snapshot {
	r := a.rng.Range()
	return store.Snapshot{
		TimeRange: &r,
		Selection: model.SelectionSet(a.sel.Items()),
	}
}

// persistLocked saves the state; failures are logged and swallowed.
func (a *App) persistLocked() {
	if err := a.store.Save(a.snapshotLocked()); err != nil {
		appLog.Error("state save failed", err, "path", a.store.Path())
	}
}
