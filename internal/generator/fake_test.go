package generator_test

import (
	"context"
	"sync"

	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/generator"
)

type reply struct {
	text string
	err  error
}

// scriptedCompleter returns replies in order and repeats the last one.
type scriptedCompleter struct {
	mu       sync.Mutex
	replies  []reply
	requests []generator.Request
}

func (s *scriptedCompleter) Complete(_ context.Context, req generator.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return r.text, r.err
}

type usedHeadings []string

func (u usedHeadings) ListUsedHeadings(context.Context, string) ([]string, error) {
	return u, nil
}

func testCampaign() *domain.Campaign {
	return &domain.Campaign{
		ID:          "camp-1",
		WebsiteID:   "site-1",
		Category:    "Plumbing",
		Location:    "Austin",
		CompanyName: "Acme Plumbing",
		Keyword1:    "emergency plumber",
		Keyword2:    "drain cleaning",
		Keyword3:    "water heater repair",
		Keyword4:    "leak detection",
		Keyword5:    "pipe replacement",
	}
}
