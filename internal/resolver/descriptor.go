// internal/resolver/descriptor.go
package resolver

import "strings"

// ControlKind classifies a normalized form control.
type ControlKind string

const (
	KindText     ControlKind = "text"
	KindTextarea ControlKind = "textarea"
	KindNumber   ControlKind = "number"
	KindSelect   ControlKind = "select"
	KindRadio    ControlKind = "radio"
	KindCheckbox ControlKind = "checkbox"
	KindFile     ControlKind = "file"
	KindUnknown  ControlKind = "unknown"
)

// Descriptor is the normalized "describe this control" record the resolver
// operates on. The page adapter collects each label source; the resolver only
// ranks them. Dynamic element shapes never leak past this struct.
type Descriptor struct {
	Kind ControlKind

	// Label sources in derivation priority order.
	AccessibleName string // aria-label / placeholder / name attributes
	LabelText      string // associated <label> element
	Legend         string // enclosing fieldset legend
	NearbyText     string // closest preceding sibling text

	Options  []string // for select / radio / checkbox groups
	Required bool
	Filled   bool
}

// Label derives the human-readable label: explicit accessible-name attributes
// first, then the associated label element, then the fieldset legend, then
// nearby sibling text.
func (d Descriptor) Label() string {
	for _, candidate := range []string{d.AccessibleName, d.LabelText, d.Legend, d.NearbyText} {
		if s := strings.TrimSpace(candidate); s != "" {
			return s
		}
	}
	return ""
}

// Choice reports whether the control selects among fixed options.
func (d Descriptor) Choice() bool {
	switch d.Kind {
	case KindSelect, KindRadio, KindCheckbox:
		return true
	}
	return false
}
