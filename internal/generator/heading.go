package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
)

const (
	// MaxHeadingRunes is the longest heading published as a post title.
	MaxHeadingRunes    = 70
	headingTemperature = 0.8
	headingMaxTokens   = 200
	defaultAttempts    = 3
)

// UsedHeadingStore lists headings already published on a website.
type UsedHeadingStore interface {
	ListUsedHeadings(ctx context.Context, websiteID string) ([]string, error)
}

// HeadingRequest is the input for one batch heading.
type HeadingRequest struct {
	Campaign  *domain.Campaign
	WebsiteID string
}

// HeadingGenerator writes one question-style heading per batch, avoiding
// headings already used on the website.
type HeadingGenerator struct {
	completer   Completer
	store       UsedHeadingStore
	maxAttempts int
	logger      logger.Logger
}

// NewHeadingGenerator accepts a nil completer, in which case every heading comes from the templates.
func NewHeadingGenerator(completer Completer, store UsedHeadingStore, maxAttempts int, log logger.Logger) *HeadingGenerator {
	if maxAttempts <= 0 {
		maxAttempts = defaultAttempts
	}
	return &HeadingGenerator{
		completer:   completer,
		store:       store,
		maxAttempts: maxAttempts,
		logger:      log.With(logger.String("component", "heading_generator")),
	}
}

// Generate returns a heading. A provider error status is returned as
// *APIError; transport failures and duplicates end in the template fallback.
func (g *HeadingGenerator) Generate(ctx context.Context, req HeadingRequest) (string, error) {
	c := req.Campaign
	if c == nil {
		return "", &MissingFieldsError{Fields: []string{"campaign"}}
	}
	if missing := c.MissingFields(); len(missing) > 0 {
		return "", &MissingFieldsError{Fields: missing}
	}

	used := g.usedHeadings(ctx, req.WebsiteID)
	seen := make(map[string]struct{}, len(used))
	for _, h := range used {
		seen[normalizeHeading(h)] = struct{}{}
	}

	if g.completer == nil {
		return fallbackHeading(c, seen), nil
	}

	prompt, err := renderPrompt("heading_user.tmpl", headingPromptData{
		Category:     c.Category,
		Location:     c.Location,
		Keywords:     c.Keywords(),
		UsedHeadings: used,
	})
	if err != nil {
		return "", err
	}

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		text, completeErr := g.completer.Complete(ctx, Request{
			System:      headingSystem,
			Prompt:      prompt,
			Temperature: headingTemperature,
			MaxTokens:   headingMaxTokens,
		})
		if completeErr != nil {
			var apiErr *APIError
			if errors.As(completeErr, &apiErr) {
				return "", apiErr
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", fmt.Errorf("generate heading: %w", ctxErr)
			}
			g.logger.Warn("AI heading unavailable, using template",
				logger.CampaignID(c.ID),
				logger.Error(completeErr),
			)
			return fallbackHeading(c, seen), nil
		}

		heading := CleanHeading(text)
		if heading == "" {
			continue
		}
		if _, dup := seen[normalizeHeading(heading)]; dup {
			g.logger.Debug("Generated heading already used, regenerating",
				logger.CampaignID(c.ID),
				logger.String("heading", heading),
				logger.Int("attempt", attempt),
			)
			continue
		}
		return heading, nil
	}

	g.logger.Warn("No unused AI heading after retries, using template",
		logger.CampaignID(c.ID),
		logger.Int("attempts", g.maxAttempts),
	)
	return fallbackHeading(c, seen), nil
}

func (g *HeadingGenerator) usedHeadings(ctx context.Context, websiteID string) []string {
	if g.store == nil || websiteID == "" {
		return nil
	}
	used, err := g.store.ListUsedHeadings(ctx, websiteID)
	if err != nil {
		g.logger.Warn("Could not load used headings, duplicates possible",
			logger.WebsiteID(websiteID),
			logger.Error(err),
		)
		return nil
	}
	return used
}

// CleanHeading trims whitespace, markdown emphasis and wrapping quotes, keeps
// the first line, and truncates to MaxHeadingRunes on a word boundary.
func CleanHeading(raw string) string {
	h := strings.TrimSpace(raw)
	if line, _, found := strings.Cut(h, "\n"); found {
		h = strings.TrimSpace(line)
	}
	h = strings.Trim(h, "*#")
	h = strings.TrimSpace(h)
	h = strings.Trim(h, "\"'“”‘’`")
	h = strings.TrimSpace(h)
	return truncateRunes(h, MaxHeadingRunes)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)[:limit]
	cut := string(runes)
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:-")
}

func normalizeHeading(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// fallbackHeading picks the first template not yet used on the website.
func fallbackHeading(c *domain.Campaign, seen map[string]struct{}) string {
	templates := []string{
		fmt.Sprintf("What is %s in %s?", c.Category, c.Location),
		fmt.Sprintf("Best %s Services in %s", c.Category, c.Location),
		fmt.Sprintf("Why Choose %s for %s", c.CompanyName, c.Category),
		fmt.Sprintf("Top %s Solutions in %s", c.Category, c.Location),
		fmt.Sprintf("How %s Helps with %s", c.CompanyName, strings.Join(c.Keywords(), ", ")),
	}
	for _, t := range templates {
		t = truncateRunes(t, MaxHeadingRunes)
		if _, dup := seen[normalizeHeading(t)]; !dup {
			return t
		}
	}
	base := truncateRunes(templates[0], MaxHeadingRunes-5)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", base, n)
		if _, dup := seen[normalizeHeading(candidate)]; !dup {
			return candidate
		}
	}
}
