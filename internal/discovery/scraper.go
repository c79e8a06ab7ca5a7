// internal/discovery/scraper.go
package discovery

import (
	"context"
	"fmt"
	"strings"

	"apply-engine/internal/common/logger"
	"apply-engine/internal/models"
	"apply-engine/internal/session"

	"github.com/playwright-community/playwright-go"
)

// Card selector fallbacks, most common layout first. Boards shuffle their
// markup often enough that a single selector rots within months.
var (
	cardSelectors = []string{
		"li.scaffold-layout__list-item",
		".job-card-container",
		"li.jobs-search-results__list-item",
		"[data-test='job-card']",
	}
	cardLink    = "a.job-card-container__link, a[data-test='job-link'], a"
	cardTitle   = ".job-card-list__title, [data-test='job-title'], strong"
	cardCompany = ".job-card-container__primary-description, [data-test='job-company']"
	cardPlace   = ".job-card-container__metadata-item, [data-test='job-location']"

	descriptionSelectors = []string{
		".jobs-description__content",
		"#job-details",
		"[data-test='job-description']",
	}
)

// BrowserBoardSource scrapes a search-results page through the user's own
// authenticated browser context.
type BrowserBoardSource struct {
	sessions  *session.Manager
	userID    string
	platform  string
	searchURL string
	maxScan   int
	backfill  int
	logger    logger.Logger
}

func NewBrowserBoardSource(sessions *session.Manager, userID, platform, searchURL string, maxScan int, log logger.Logger) *BrowserBoardSource {
	return &BrowserBoardSource{
		sessions:  sessions,
		userID:    userID,
		platform:  platform,
		searchURL: searchURL,
		maxScan:   maxScan,
		backfill:  3,
		logger:    log.WithFields(map[string]interface{}{"source": platform}),
	}
}

func (s *BrowserBoardSource) Name() string { return s.platform }

func (s *BrowserBoardSource) Fetch(ctx context.Context) ([]models.JobPosting, error) {
	browser, err := s.sessions.Context(ctx, s.userID)
	if err != nil {
		return nil, err
	}
	page, err := browser.Page()
	if err != nil {
		return nil, err
	}

	if _, err := page.Goto(s.searchURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(30000),
	}); err != nil {
		return nil, fmt.Errorf("load search page: %w", err)
	}

	if _, err := page.WaitForSelector(strings.Join(cardSelectors, ", "), playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(15000),
	}); err != nil {
		s.logger.Warn("no job cards found", map[string]interface{}{"url": s.searchURL})
		return nil, nil
	}

	cards, err := page.Locator(strings.Join(cardSelectors, ", ")).All()
	if err != nil {
		return nil, fmt.Errorf("scan job cards: %w", err)
	}
	if s.maxScan > 0 && len(cards) > s.maxScan {
		cards = cards[:s.maxScan]
	}

	postings := make([]models.JobPosting, 0, len(cards))
	for _, card := range cards {
		posting, ok := s.readCard(card)
		if ok {
			postings = append(postings, posting)
		}
	}

	s.backfillDescriptions(page, postings)
	s.logger.Info("board scraped", map[string]interface{}{"postings": len(postings)})
	return postings, nil
}

func (s *BrowserBoardSource) readCard(card playwright.Locator) (models.JobPosting, bool) {
	href, err := card.Locator(cardLink).First().GetAttribute("href")
	if err != nil || href == "" {
		return models.JobPosting{}, false
	}
	// Tracking params make one job look like many URLs; strip them for dedup.
	if i := strings.IndexByte(href, '?'); i != -1 {
		href = href[:i]
	}
	if !strings.HasPrefix(href, "http") {
		href = "https://www." + s.platform + ".com" + href
	}

	posting := models.JobPosting{
		Platform: s.platform,
		URL:      href,
		Title:    s.innerText(card, cardTitle),
		Company:  s.innerText(card, cardCompany),
		Location: s.innerText(card, cardPlace),
	}
	if posting.Title == "" {
		return models.JobPosting{}, false
	}
	return posting, true
}

func (s *BrowserBoardSource) innerText(card playwright.Locator, selector string) string {
	loc := card.Locator(selector).First()
	if visible, err := loc.IsVisible(); err != nil || !visible {
		return ""
	}
	text, err := loc.InnerText()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// backfillDescriptions visits a bounded number of detail pages so the
// classifier and scorer have text to work with.
func (s *BrowserBoardSource) backfillDescriptions(page playwright.Page, postings []models.JobPosting) {
	limit := s.backfill
	for i := range postings {
		if limit == 0 {
			return
		}
		if postings[i].Description != "" {
			continue
		}
		if _, err := page.Goto(postings[i].URL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(20000),
		}); err != nil {
			s.logger.WithError(err).Debug("detail page load failed", map[string]interface{}{"url": postings[i].URL})
			continue
		}
		for _, selector := range descriptionSelectors {
			loc := page.Locator(selector).First()
			if visible, err := loc.IsVisible(); err != nil || !visible {
				continue
			}
			if text, err := loc.InnerText(); err == nil {
				postings[i].Description = strings.TrimSpace(text)
				break
			}
		}
		limit--
	}
}
