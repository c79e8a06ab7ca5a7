// internal/automation/playwright.go
package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"apply-engine/internal/common/logger"
	"apply-engine/internal/resolver"

	"github.com/playwright-community/playwright-go"
)

const controlQuery = "input:visible, textarea:visible, select:visible"

// timeoutFrom caps a default action timeout to the remaining context budget,
// so the step deadline bounds every playwright call made inside the step.
func timeoutFrom(ctx context.Context, fallback float64) float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return fallback
	}
	remaining := float64(time.Until(deadline).Milliseconds())
	if remaining < 1 {
		return 1
	}
	if remaining < fallback {
		return remaining
	}
	return fallback
}

// Candidate selectors per affordance, most specific first. First visible match
// wins; the entry list additionally guards against links that leave the
// posting page.
var (
	entrySelectors = []string{
		"button.jobs-apply-button",
		"button[data-test='apply-button']",
		"a[data-test='apply-button']",
		"button:has-text('Easy Apply')",
		"button:has-text('Apply now')",
		"button:has-text('Apply')",
		"a:has-text('Apply now')",
	}

	submitSelectors = []string{
		"button[aria-label='Submit application']",
		"button[data-test='submit-application']",
		"button:has-text('Submit application')",
		"button:has-text('Submit')",
	}

	reviewSelectors = []string{
		"button[aria-label='Review your application']",
		"button:has-text('Review your application')",
		"button:has-text('Review')",
	}

	nextSelectors = []string{
		"button[aria-label='Continue to next step']",
		"button:has-text('Continue')",
		"button:has-text('Next')",
	}

	closedSelectors = []string{
		"text='No longer accepting applications'",
		"text='This job is no longer available'",
		"text='Position has been filled'",
		".jobs-details-top-card__apply-error",
	}

	submittedSelectors = []string{
		"text='Application submitted'",
		"text='You applied'",
		"text='Applied'",
		".artdeco-inline-feedback--success",
	}

	validationSelectors = []string{
		"[role='alert']",
		".artdeco-inline-feedback--error",
		".fb-form-element__error-text",
	}
)

// describeControl gathers every label source for one form element in a single
// evaluation so the resolver can rank them without extra round trips.
const describeControl = `el => {
	const kind = (() => {
		const tag = el.tagName.toLowerCase();
		if (tag === 'textarea') return 'textarea';
		if (tag === 'select') return 'select';
		const t = (el.getAttribute('type') || 'text').toLowerCase();
		if (['radio', 'checkbox', 'file', 'number'].includes(t)) return t;
		return 'text';
	})();

	const labelText = (() => {
		if (el.labels && el.labels.length > 0) return el.labels[0].innerText;
		const id = el.getAttribute('id');
		if (id) {
			const lab = document.querySelector('label[for="' + CSS.escape(id) + '"]');
			if (lab) return lab.innerText;
		}
		return '';
	})();

	const legend = (() => {
		const fs = el.closest('fieldset');
		const lg = fs ? fs.querySelector('legend') : null;
		return lg ? lg.innerText : '';
	})();

	const nearby = (() => {
		let node = el.previousElementSibling;
		for (let i = 0; node && i < 3; i++, node = node.previousElementSibling) {
			const text = (node.innerText || '').trim();
			if (text) return text;
		}
		return '';
	})();

	const options = (() => {
		if (el.tagName.toLowerCase() === 'select') {
			return Array.from(el.options).map(o => o.label || o.value).filter(Boolean);
		}
		const t = (el.getAttribute('type') || '').toLowerCase();
		if ((t === 'radio' || t === 'checkbox') && el.name) {
			const group = document.querySelectorAll('input[name="' + CSS.escape(el.name) + '"]');
			return Array.from(group).map(i => {
				const lab = i.labels && i.labels.length > 0 ? i.labels[0].innerText : '';
				return (lab || i.value || '').trim();
			}).filter(Boolean);
		}
		return [];
	})();

	const filled = (() => {
		const t = (el.getAttribute('type') || '').toLowerCase();
		if (t === 'radio' || t === 'checkbox') {
			if (!el.name) return el.checked;
			const group = document.querySelectorAll('input[name="' + CSS.escape(el.name) + '"]');
			return Array.from(group).some(i => i.checked);
		}
		return (el.value || '').trim() !== '';
	})();

	return {
		kind: kind,
		accessibleName: el.getAttribute('aria-label') || el.getAttribute('placeholder') || '',
		labelText: labelText.trim(),
		legend: legend.trim(),
		nearbyText: nearby.trim(),
		options: options,
		required: el.required || el.getAttribute('aria-required') === 'true',
		filled: filled,
	};
}`

// PlaywrightPage adapts a playwright tab to the Page abstraction the state
// machine drives.
type PlaywrightPage struct {
	page   playwright.Page
	logger logger.Logger
}

func NewPlaywrightPage(page playwright.Page, log logger.Logger) *PlaywrightPage {
	return &PlaywrightPage{
		page:   page,
		logger: log.WithFields(map[string]interface{}{"component": "page"}),
	}
}

func (p *PlaywrightPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(timeoutFrom(ctx, 30000)),
	})
	if err != nil {
		return fmt.Errorf("goto %s: %w", url, err)
	}
	return nil
}

func (p *PlaywrightPage) ClickEntry(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	for _, selector := range entrySelectors {
		loc := p.page.Locator(selector).First()
		visible, err := loc.IsVisible()
		if err != nil || !visible {
			continue
		}
		if p.leavesPosting(loc) {
			p.logger.Debug("entry candidate rejected, navigates away", map[string]interface{}{"selector": selector})
			continue
		}
		if err := loc.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(timeoutFrom(ctx, 5000))}); err != nil {
			return false, fmt.Errorf("click entry %s: %w", selector, err)
		}
		p.settle(ctx)
		return true, nil
	}
	return false, nil
}

// leavesPosting guards against false positives: apply-styled links that point
// at search or listing views instead of starting the flow in place.
func (p *PlaywrightPage) leavesPosting(loc playwright.Locator) bool {
	href, err := loc.GetAttribute("href")
	if err != nil || href == "" {
		return false
	}
	for _, fragment := range []string{"/jobs/search", "/jobs/collections", "/login", "/signup"} {
		if strings.Contains(href, fragment) {
			return true
		}
	}
	return false
}

func (p *PlaywrightPage) SubmittedMarker(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.anyVisible(submittedSelectors), nil
}

func (p *PlaywrightPage) ClosedMarker(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.anyVisible(closedSelectors), nil
}

func (p *PlaywrightPage) Controls(ctx context.Context) ([]Control, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	locators, err := p.page.Locator(controlQuery).All()
	if err != nil {
		return nil, fmt.Errorf("scan controls: %w", err)
	}

	controls := make([]Control, 0, len(locators))
	seenGroups := map[string]bool{}
	for _, loc := range locators {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		desc, err := p.describe(loc)
		if err != nil {
			p.logger.WithError(err).Debug("control description failed", nil)
			continue
		}
		if desc.Kind == resolver.KindRadio || desc.Kind == resolver.KindCheckbox {
			// One control per group, keyed by its derived label.
			key := desc.Label()
			if seenGroups[key] {
				continue
			}
			seenGroups[key] = true
		}
		controls = append(controls, &playwrightControl{page: p.page, loc: loc, desc: desc})
	}
	return controls, nil
}

func (p *PlaywrightPage) describe(loc playwright.Locator) (resolver.Descriptor, error) {
	raw, err := loc.Evaluate(describeControl, nil)
	if err != nil {
		return resolver.Descriptor{}, err
	}
	fields, ok := raw.(map[string]interface{})
	if !ok {
		return resolver.Descriptor{}, fmt.Errorf("unexpected describe result %T", raw)
	}

	desc := resolver.Descriptor{
		Kind:           resolver.ControlKind(asString(fields["kind"])),
		AccessibleName: asString(fields["accessibleName"]),
		LabelText:      asString(fields["labelText"]),
		Legend:         asString(fields["legend"]),
		NearbyText:     asString(fields["nearbyText"]),
		Required:       asBool(fields["required"]),
		Filled:         asBool(fields["filled"]),
	}
	if opts, ok := fields["options"].([]interface{}); ok {
		for _, o := range opts {
			if s := asString(o); s != "" {
				desc.Options = append(desc.Options, s)
			}
		}
	}
	if desc.Kind == "" {
		desc.Kind = resolver.KindUnknown
	}
	return desc, nil
}

func (p *PlaywrightPage) NeedsRefill(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if p.anyVisible(validationSelectors) {
		return true, nil
	}

	// A required control nobody filled blocks progression the same way a
	// visible validation error does.
	locators, err := p.page.Locator(controlQuery).All()
	if err != nil {
		return false, nil
	}
	descs := make([]resolver.Descriptor, 0, len(locators))
	for _, loc := range locators {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		desc, derr := p.describe(loc)
		if derr != nil {
			continue
		}
		descs = append(descs, desc)
	}
	return anyRequiredUnfilled(descs), nil
}

// anyRequiredUnfilled reports whether any described control is required but
// still has no value.
func anyRequiredUnfilled(descs []resolver.Descriptor) bool {
	for _, d := range descs {
		if d.Required && !d.Filled {
			return true
		}
	}
	return false
}

func (p *PlaywrightPage) Visible(ctx context.Context, a Affordance) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, found := p.firstVisible(p.selectorsFor(a))
	return found, nil
}

func (p *PlaywrightPage) Click(ctx context.Context, a Affordance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc, found := p.firstVisible(p.selectorsFor(a))
	if !found {
		return fmt.Errorf("affordance %s not visible", a)
	}
	if err := loc.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(timeoutFrom(ctx, 5000))}); err != nil {
		return fmt.Errorf("click %s: %w", a, err)
	}
	p.settle(ctx)
	return nil
}

func (p *PlaywrightPage) selectorsFor(a Affordance) []string {
	switch a {
	case AffordanceSubmit:
		return submitSelectors
	case AffordanceReview:
		return reviewSelectors
	case AffordanceNext:
		return nextSelectors
	}
	return nil
}

func (p *PlaywrightPage) firstVisible(selectors []string) (playwright.Locator, bool) {
	for _, selector := range selectors {
		loc := p.page.Locator(selector).First()
		if visible, err := loc.IsVisible(); err == nil && visible {
			return loc, true
		}
	}
	return nil, false
}

func (p *PlaywrightPage) anyVisible(selectors []string) bool {
	_, found := p.firstVisible(selectors)
	return found
}

// settle gives the page a moment to swap the step content after a click,
// without outliving the step deadline.
func (p *PlaywrightPage) settle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	p.page.WaitForTimeout(timeoutFrom(ctx, 800))
}

type playwrightControl struct {
	page playwright.Page
	loc  playwright.Locator
	desc resolver.Descriptor
}

func (c *playwrightControl) Describe() resolver.Descriptor { return c.desc }

func (c *playwrightControl) Fill(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.loc.Fill(value, playwright.LocatorFillOptions{Timeout: playwright.Float(timeoutFrom(ctx, 5000))})
}

func (c *playwrightControl) Select(ctx context.Context, option string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.desc.Kind == resolver.KindSelect {
		_, err := c.loc.SelectOption(playwright.SelectOptionValues{
			Labels: &[]string{option},
		}, playwright.LocatorSelectOptionOptions{Timeout: playwright.Float(timeoutFrom(ctx, 5000))})
		return err
	}
	// Radio and checkbox groups: click the input whose label matches.
	group := c.page.Locator(fmt.Sprintf("label:has-text(%q)", option)).First()
	if visible, err := group.IsVisible(); err == nil && visible {
		return group.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(timeoutFrom(ctx, 5000))})
	}
	return c.loc.Check()
}

func (c *playwrightControl) Upload(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.loc.SetInputFiles(path, playwright.LocatorSetInputFilesOptions{Timeout: playwright.Float(timeoutFrom(ctx, 5000))})
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}
