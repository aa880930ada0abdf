package app

import (
	"tztimeline/internal/model"
	"tztimeline/internal/selection"
)

// Reconcile applies a range edit to both states at once. When the reference
// zone changes, the previous reference zone leaves the selection and nextRef
// joins it unless already present. Edits that keep the reference zone leave
// the selection untouched.
//
// nextRef is the display record of next.ReferenceTimezoneID; it is resolved
// by the caller so this function stays pure.
func Reconcile(sel model.SelectionSet, prev, next model.TimeRange, nextRef model.TimezoneDisplay) (model.SelectionSet, model.TimeRange) {
	s := selection.New(sel...)
	if prev.ReferenceTimezoneID != next.ReferenceTimezoneID {
		s.Remove(prev.ReferenceTimezoneID)
		s.Add(nextRef)
	}
	return model.SelectionSet(s.Items()), next
}
