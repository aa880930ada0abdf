// Package selection tracks which zones the user picked.
package selection

import (
	"slices"

	"tztimeline/internal/catalog"
	"tztimeline/internal/model"
)

// TriState drives the "select all" checkbox.
type TriState string

const (
	None    TriState = "none"
	All     TriState = "all"
	Partial TriState = "partial"
)

// Selection is an id-unique set of zones. The zero value is empty and
// usable. Not safe for concurrent use; the coordinator serializes access.
type Selection struct {
	items []model.TimezoneDisplay
}

// New seeds a selection, dropping duplicate ids.
func New(seed ...model.TimezoneDisplay) *Selection {
	s := &Selection{}
	s.Replace(seed)
	return s
}

// Replace swaps the whole content, e.g. after loading persisted state.
func (s *Selection) Replace(zones []model.TimezoneDisplay) {
	items := make([]model.TimezoneDisplay, 0, len(zones))
	seen := make(map[string]bool, len(zones))
	for _, z := range zones {
		if !seen[z.ID] {
			seen[z.ID] = true
			items = append(items, z)
		}
	}
	s.items = items
}

// Toggle removes z if its id is present, otherwise appends it.
func (s *Selection) Toggle(z model.TimezoneDisplay) {
	if i := s.index(z.ID); i >= 0 {
		s.items = slices.Delete(s.items, i, i+1)
		return
	}
	s.items = append(s.items, z)
}

// Add appends z unless its id is present.
func (s *Selection) Add(z model.TimezoneDisplay) {
	if !s.Contains(z.ID) {
		s.items = append(s.items, z)
	}
}

// Remove drops the zone with the given id, if present.
func (s *Selection) Remove(id string) {
	if i := s.index(id); i >= 0 {
		s.items = slices.Delete(s.items, i, i+1)
	}
}

// SelectAll adds every candidate not yet selected. Other selections stay.
func (s *Selection) SelectAll(candidates []model.TimezoneDisplay) {
	for _, c := range candidates {
		s.Add(c)
	}
}

// DeselectAll removes exactly the candidates. Other selections stay.
func (s *Selection) DeselectAll(candidates []model.TimezoneDisplay) {
	drop := ids(candidates)
	s.items = slices.DeleteFunc(s.items, func(z model.TimezoneDisplay) bool {
		return drop[z.ID]
	})
}

// State reports how many of candidates are selected.
func (s *Selection) State(candidates []model.TimezoneDisplay) TriState {
	want := ids(candidates)
	if len(want) == 0 {
		return None
	}
	n := 0
	for _, z := range s.items {
		if want[z.ID] {
			n++
		}
	}
	switch n {
	case 0:
		return None
	case len(want):
		return All
	default:
		return Partial
	}
}

// Contains reports whether id is selected.
func (s *Selection) Contains(id string) bool {
	return s.index(id) >= 0
}

// Len is the number of selected zones.
func (s *Selection) Len() int {
	return len(s.items)
}

// Items returns a copy in insertion order.
func (s *Selection) Items() []model.TimezoneDisplay {
	return slices.Clone(s.items)
}

// Sorted returns a copy ordered by offset, ties broken by name.
func (s *Selection) Sorted() []model.TimezoneDisplay {
	out := s.Items()
	catalog.SortByOffset(out)
	return out
}

// IDs returns the selected ids in insertion order.
func (s *Selection) IDs() []string {
	out := make([]string, len(s.items))
	for i, z := range s.items {
		out[i] = z.ID
	}
	return out
}

func (s *Selection) index(id string) int {
	return slices.IndexFunc(s.items, func(z model.TimezoneDisplay) bool {
		return z.ID == id
	})
}

func ids(zones []model.TimezoneDisplay) map[string]bool {
	m := make(map[string]bool, len(zones))
	for _, z := range zones {
		m[z.ID] = true
	}
	return m
}
