// internal/automation/page.go
package automation

import (
	"context"

	"apply-engine/internal/resolver"
)

// Affordance names the progress controls the state machine looks for on a
// form step, in decision-priority order.
type Affordance string

const (
	AffordanceSubmit Affordance = "submit"
	AffordanceReview Affordance = "review"
	AffordanceNext   Affordance = "next"
)

// Control is one visible form input. Describe returns the normalized record
// the field resolver operates on; the action methods apply its resolution.
type Control interface {
	Describe() resolver.Descriptor
	Fill(ctx context.Context, value string) error
	Select(ctx context.Context, option string) error
	Upload(ctx context.Context, path string) error
}

// Page is the normalized surface the state machine drives. The DOM-automation
// primitives behind it (navigate, locate, click, fill) are provided by the
// browser adapter; the machine never touches raw selectors.
type Page interface {
	Navigate(ctx context.Context, url string) error

	// ClickEntry locates the site's apply affordance from an ordered candidate
	// list and clicks the first genuine match. It reports false when none is
	// found.
	ClickEntry(ctx context.Context) (bool, error)

	// SubmittedMarker reports a "previously applied" indicator.
	SubmittedMarker(ctx context.Context) (bool, error)

	// ClosedMarker reports a "posting closed or expired" indicator.
	ClosedMarker(ctx context.Context) (bool, error)

	// Controls returns the currently visible, unfilled form inputs.
	Controls(ctx context.Context) ([]Control, error)

	// NeedsRefill reports visible validation errors or empty required fields.
	NeedsRefill(ctx context.Context) (bool, error)

	// Visible reports whether the affordance is currently actionable.
	Visible(ctx context.Context, a Affordance) (bool, error)

	// Click activates the affordance.
	Click(ctx context.Context, a Affordance) error
}
