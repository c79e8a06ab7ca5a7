// internal/discovery/source.go
package discovery

import (
	"encoding/json"
	"fmt"
	"net/http"

	"context"

	"apply-engine/internal/common/httpclient"
	"apply-engine/internal/common/logger"
	"apply-engine/internal/models"
)

// Source produces candidate postings from one job board.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]models.JobPosting, error)
}

// HTTPBoardSource reads a JSON board feed. Boards with an export endpoint are
// cheaper to poll than to scrape.
type HTTPBoardSource struct {
	name    string
	url     string
	client  *httpclient.Client
	maxJobs int
	logger  logger.Logger
}

func NewHTTPBoardSource(name, url string, client *httpclient.Client, maxJobs int, log logger.Logger) *HTTPBoardSource {
	return &HTTPBoardSource{
		name:    name,
		url:     url,
		client:  client,
		maxJobs: maxJobs,
		logger:  log.WithFields(map[string]interface{}{"source": name}),
	}
}

func (s *HTTPBoardSource) Name() string { return s.name }

func (s *HTTPBoardSource) Fetch(ctx context.Context) ([]models.JobPosting, error) {
	req, err := http.NewRequest(http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build board request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.DoWithContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch board %s: %w", s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("board %s returned %d", s.name, resp.StatusCode)
	}

	var postings []models.JobPosting
	if err := json.NewDecoder(resp.Body).Decode(&postings); err != nil {
		return nil, fmt.Errorf("decode board feed: %w", err)
	}

	for i := range postings {
		if postings[i].Platform == "" {
			postings[i].Platform = s.name
		}
	}
	if s.maxJobs > 0 && len(postings) > s.maxJobs {
		postings = postings[:s.maxJobs]
	}
	s.logger.Info("board feed fetched", map[string]interface{}{"postings": len(postings)})
	return postings, nil
}
