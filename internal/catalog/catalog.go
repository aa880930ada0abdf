// Package catalog is the read-only registry of known timezones. It resolves
// identifiers to offsets and abbreviations at a given instant and produces
// the sorted listings the selector shows.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	_ "time/tzdata" // portable zone data when the host has no zoneinfo

	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"tztimeline/internal/clock"
	appLog "tztimeline/internal/log"
	"tztimeline/internal/model"
)

// ErrUnknownTimezone is returned for identifiers the zone database cannot
// resolve. Callers substitute Fallback().
var ErrUnknownTimezone = errors.New("unknown timezone")

const locationCacheSize = 256

// Options configures a Catalog. Zero values select the defaults.
type Options struct {
	// Business overrides DefaultBusiness when non-nil.
	Business []string
	// Clock supplies the instant ListAll/ListBusiness annotate at.
	Clock clock.Clock
}

// Catalog resolves zones. It is safe for concurrent use.
type Catalog struct {
	entries  []zoneEntry
	names    map[string]string
	business map[string]bool
	clock    clock.Clock

	// Loaded locations are immutable, so caching them is safe; offsets are
	// always computed from the location at the requested instant.
	locs *lru.Cache[string, *time.Location]
}

// New builds a Catalog over the static zone table.
func New(opts Options) *Catalog {
	if opts.Clock == nil {
		opts.Clock = clock.System
	}
	business := opts.Business
	if business == nil {
		business = DefaultBusiness
	}

	locs, err := lru.New[string, *time.Location](locationCacheSize)
	if err != nil {
		panic(err)
	}

	c := &Catalog{
		entries:  slices.Clone(staticZones),
		names:    make(map[string]string, len(staticZones)),
		business: make(map[string]bool, len(business)),
		clock:    opts.Clock,
		locs:     locs,
	}
	for _, e := range c.entries {
		c.names[e.ID] = e.Name
	}
	for _, id := range business {
		c.business[id] = true
	}
	return c
}

// Location loads the *time.Location for id.
func (c *Catalog) Location(id string) (*time.Location, error) {
	if loc, ok := c.locs.Get(id); ok {
		return loc, nil
	}
	// LoadLocation maps "" to UTC and "Local" to the host zone; neither is an
	// identifier a user can pick.
	if id == "" || id == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, id)
	}
	loc, err := time.LoadLocation(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, id)
	}
	c.locs.Add(id, loc)
	return loc, nil
}

// ResolveOffset returns the UTC offset of id at the given instant, in
// minutes east of UTC.
func (c *Catalog) ResolveOffset(id string, at time.Time) (int, error) {
	loc, err := c.Location(id)
	if err != nil {
		return 0, err
	}
	_, secs := at.In(loc).Zone()
	return secs / 60, nil
}

// Resolve builds the display record for id at the given instant.
func (c *Catalog) Resolve(id string, at time.Time) (model.TimezoneDisplay, error) {
	loc, err := c.Location(id)
	if err != nil {
		return model.TimezoneDisplay{}, err
	}
	abbr, secs := at.In(loc).Zone()
	return model.TimezoneDisplay{
		ID:            id,
		Name:          c.displayName(id),
		OffsetMinutes: secs / 60,
		Abbreviation:  abbr,
		IsBusiness:    c.business[id],
	}, nil
}

// Fallback is the safe substitute for an unresolvable zone.
func Fallback() model.TimezoneDisplay {
	return model.TimezoneDisplay{ID: "UTC", Name: "UTC", Abbreviation: "UTC"}
}

// ResolveOrFallback resolves id, substituting Fallback() on failure.
func (c *Catalog) ResolveOrFallback(id string, at time.Time) model.TimezoneDisplay {
	z, err := c.Resolve(id, at)
	if err != nil {
		appLog.Warn("timezone unresolvable; using UTC", "id", id, "err", err)
		return Fallback()
	}
	return z
}

// ListAll returns every static zone annotated at the clock's current
// instant, sorted by offset then name.
func (c *Catalog) ListAll() []model.TimezoneDisplay {
	return c.ListAt(c.clock.Now())
}

// ListAt is ListAll for an explicit instant.
func (c *Catalog) ListAt(at time.Time) []model.TimezoneDisplay {
	out := make([]model.TimezoneDisplay, 0, len(c.entries))
	for _, e := range c.entries {
		z, err := c.Resolve(e.ID, at)
		if err != nil {
			// Only possible with a stripped zone database.
			appLog.Error("static timezone unresolvable", err, "id", e.ID)
			continue
		}
		out = append(out, z)
	}
	SortByOffset(out)
	return out
}

// ListBusiness is ListAll restricted to business zones, order preserved.
func (c *Catalog) ListBusiness() []model.TimezoneDisplay {
	return c.ListBusinessAt(c.clock.Now())
}

// ListBusinessAt is ListBusiness for an explicit instant.
func (c *Catalog) ListBusinessAt(at time.Time) []model.TimezoneDisplay {
	all := c.ListAt(at)
	out := make([]model.TimezoneDisplay, 0, len(c.business))
	for _, z := range all {
		if z.IsBusiness {
			out = append(out, z)
		}
	}
	return out
}

// Annotate re-resolves zones at a new instant, keeping input order.
// Unresolvable entries become Fallback(); duplicate ids are dropped.
func (c *Catalog) Annotate(zones []model.TimezoneDisplay, at time.Time) []model.TimezoneDisplay {
	out := make([]model.TimezoneDisplay, 0, len(zones))
	seen := make(map[string]bool, len(zones))
	for _, z := range zones {
		r := c.ResolveOrFallback(z.ID, at)
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

// Known reports whether id resolves.
func (c *Catalog) Known(id string) bool {
	_, err := c.Location(id)
	return err == nil
}

// ValidateIDs checks every id and reports all failures at once.
func (c *Catalog) ValidateIDs(ids []string) error {
	var result *multierror.Error
	for _, id := range ids {
		if _, err := c.Location(id); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// LocalZone resolves the host zone, or Fallback() when the host zone has no
// IANA name.
func (c *Catalog) LocalZone(at time.Time) model.TimezoneDisplay {
	id := hostZoneID()
	if id == "" {
		return Fallback()
	}
	return c.ResolveOrFallback(id, at)
}

// Filter keeps zones whose id, name or abbreviation contains query,
// case-insensitively. An empty query keeps everything.
func Filter(zones []model.TimezoneDisplay, query string) []model.TimezoneDisplay {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return slices.Clone(zones)
	}
	out := make([]model.TimezoneDisplay, 0, len(zones))
	for _, z := range zones {
		if strings.Contains(strings.ToLower(z.ID), q) ||
			strings.Contains(strings.ToLower(z.Name), q) ||
			strings.Contains(strings.ToLower(z.Abbreviation), q) {
			out = append(out, z)
		}
	}
	return out
}

// SortByOffset sorts in place by offset, ties broken by name.
func SortByOffset(zones []model.TimezoneDisplay) {
	slices.SortStableFunc(zones, func(a, b model.TimezoneDisplay) int {
		if a.OffsetMinutes != b.OffsetMinutes {
			return a.OffsetMinutes - b.OffsetMinutes
		}
		return strings.Compare(a.Name, b.Name)
	})
}

func (c *Catalog) displayName(id string) string {
	if n, ok := c.names[id]; ok {
		return n
	}
	return nameFromID(id)
}

// nameFromID turns "America/Argentina/Buenos_Aires" into "Buenos Aires".
func nameFromID(id string) string {
	if strings.HasPrefix(id, "Etc/") {
		return strings.TrimPrefix(id, "Etc/")
	}
	last := id
	if i := strings.LastIndex(id, "/"); i >= 0 {
		last = id[i+1:]
	}
	last = strings.ReplaceAll(last, "_", " ")
	if last == strings.ToUpper(last) {
		// Abbreviation-style ids ("UTC", "EST5EDT") stay as they are.
		return last
	}
	return cases.Title(language.English).String(last)
}

// hostZoneID finds the IANA name of the host zone from $TZ or the
// /etc/localtime symlink.
func hostZoneID() string {
	if tz := strings.TrimPrefix(os.Getenv("TZ"), ":"); tz != "" {
		return tz
	}
	target, err := os.Readlink("/etc/localtime")
	if err != nil {
		return ""
	}
	const marker = "zoneinfo" + string(filepath.Separator)
	if i := strings.LastIndex(target, marker); i >= 0 {
		return target[i+len(marker):]
	}
	return ""
}
