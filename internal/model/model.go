package model

import "time"

// TimezoneDisplay is one zone as shown to the user.
//
// OffsetMinutes and Abbreviation describe the zone at the instant it was
// resolved at. They change across daylight-saving transitions, so a display
// must be re-resolved whenever the reference instant moves.
type TimezoneDisplay struct {
	ID            string `yaml:"id" json:"id"` // IANA identifier, unique key
	Name          string `yaml:"name" json:"name"`
	OffsetMinutes int    `yaml:"offset_minutes" json:"offset_minutes"`
	Abbreviation  string `yaml:"abbreviation" json:"abbreviation"`
	IsBusiness    bool   `yaml:"is_business" json:"is_business"`
}

// Label is the renderer-facing "Name (ABBR)" text.
func (z TimezoneDisplay) Label() string {
	if z.Abbreviation == "" {
		return z.Name
	}
	return z.Name + " (" + z.Abbreviation + ")"
}

// TimeRange is the interval the user entered.
//
// Start and End are wall-clock readings in the reference zone. They are
// carried as UTC time.Time values whose fields equal the wall clock, so
// 09:00 in America/New_York is stored as 09:00Z.
type TimeRange struct {
	Start               time.Time `yaml:"start" json:"start"`
	End                 time.Time `yaml:"end" json:"end"`
	ReferenceTimezoneID string    `yaml:"reference_timezone" json:"reference_timezone"`
}

// Duration is End-Start; negative for inverted ranges.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Degenerate reports End <= Start.
func (r TimeRange) Degenerate() bool {
	return !r.End.After(r.Start)
}

// SelectionSet is the persisted form of the selection. Unique by ID.
type SelectionSet []TimezoneDisplay

// ProjectedInterval is the reference interval re-expressed in one zone.
type ProjectedInterval struct {
	TimezoneID string `json:"timezone_id"`

	// LocalStart / LocalEnd are wall-clock readings in the target zone,
	// UTC-carried like TimeRange, so all zones share one plotting axis.
	LocalStart time.Time `json:"local_start"`
	LocalEnd   time.Time `json:"local_end"`

	// UTCStart / UTCEnd are the absolute instants of the interval.
	UTCStart time.Time `json:"utc_start"`
	UTCEnd   time.Time `json:"utc_end"`

	// OffsetMinutes is the target zone offset applied to both ends.
	OffsetMinutes int `json:"offset_minutes"`
}

// PlotDomain is the shared axis range for all bars.
type PlotDomain struct {
	Min time.Time `json:"min"`
	Max time.Time `json:"max"`
}

// Width is Max-Min.
func (d PlotDomain) Width() time.Duration {
	return d.Max.Sub(d.Min)
}

// Projection is the projector output. Domain is nil when there were no
// zones to project.
type Projection struct {
	PerZone []ProjectedInterval `json:"per_zone"`
	Domain  *PlotDomain         `json:"domain"`
}
