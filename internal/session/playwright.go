// internal/session/playwright.go
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightLauncher launches persistent Chromium contexts, one profile
// directory per user, so logins survive across runs.
type PlaywrightLauncher struct {
	pw       *playwright.Playwright
	headless bool
}

func NewPlaywrightLauncher(headless bool) (*PlaywrightLauncher, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright driver: %w", err)
	}
	return &PlaywrightLauncher{pw: pw, headless: headless}, nil
}

func (l *PlaywrightLauncher) Launch(_ context.Context, profileDir string, onClose func()) (Browser, error) {
	browserCtx, err := l.pw.Chromium.LaunchPersistentContext(profileDir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(l.headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--no-first-run",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("launch persistent context %s: %w", profileDir, err)
	}

	browser := &playwrightBrowser{ctx: browserCtx}
	browserCtx.OnClose(func(playwright.BrowserContext) {
		browser.markClosed()
		onClose()
	})
	return browser, nil
}

func (l *PlaywrightLauncher) Stop() error {
	return l.pw.Stop()
}

type playwrightBrowser struct {
	ctx    playwright.BrowserContext
	mu     sync.Mutex
	closed bool
}

// Probe runs a trivial evaluation on a live page. A dead driver connection
// surfaces here instead of mid-application.
func (b *playwrightBrowser) Probe(context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("context already closed")
	}
	b.mu.Unlock()

	page, err := b.Page()
	if err != nil {
		return err
	}
	if _, err := page.Evaluate("1 + 1"); err != nil {
		return fmt.Errorf("liveness probe: %w", err)
	}
	return nil
}

// Page returns the context's working tab, creating one when none is open.
func (b *playwrightBrowser) Page() (playwright.Page, error) {
	if pages := b.ctx.Pages(); len(pages) > 0 {
		return pages[0], nil
	}
	page, err := b.ctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	return page, nil
}

func (b *playwrightBrowser) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()
	return b.ctx.Close()
}

func (b *playwrightBrowser) markClosed() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}
