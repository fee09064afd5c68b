package generator

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
)

const (
	contentTemperature = 0.7
	contentMaxTokens   = 4096
)

// ContentRequest is the input for one batch body.
type ContentRequest struct {
	Campaign  *domain.Campaign
	Heading   string
	Backlinks []domain.Backlink
}

// ContentGenerator writes the HTML body embedding the batch URLs.
type ContentGenerator struct {
	completer Completer
	logger    logger.Logger
}

// NewContentGenerator accepts a nil completer, in which case every body is the template.
func NewContentGenerator(completer Completer, log logger.Logger) *ContentGenerator {
	return &ContentGenerator{
		completer: completer,
		logger:    log.With(logger.String("component", "content_generator")),
	}
}

// Generate returns sanitised body HTML without the h1. Provider failures of
// any kind fall back to the template; only invalid input is an error.
func (g *ContentGenerator) Generate(ctx context.Context, req ContentRequest) (string, error) {
	if err := validateContentRequest(req); err != nil {
		return "", err
	}
	c := req.Campaign

	if g.completer == nil {
		return fallbackContent(req)
	}

	urls := make([]string, len(req.Backlinks))
	for i, b := range req.Backlinks {
		urls[i] = b.URL
	}
	prompt, err := renderPrompt("content_user.tmpl", contentPromptData{
		Heading:     req.Heading,
		Category:    c.Category,
		Location:    c.Location,
		CompanyName: c.CompanyName,
		URLs:        urls,
		Keywords:    c.Keywords(),
	})
	if err != nil {
		return "", err
	}

	text, err := g.completer.Complete(ctx, Request{
		System:      contentSystem,
		Prompt:      prompt,
		Temperature: contentTemperature,
		MaxTokens:   contentMaxTokens,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("generate content: %w", ctxErr)
		}
		g.logger.Warn("AI content unavailable, using template",
			logger.CampaignID(c.ID),
			logger.Error(err),
		)
		return fallbackContent(req)
	}

	content := CleanHTML(text)
	if content == "" {
		g.logger.Warn("AI content empty after cleaning, using template", logger.CampaignID(c.ID))
		return fallbackContent(req)
	}
	return content, nil
}

func validateContentRequest(req ContentRequest) error {
	if req.Campaign == nil {
		return &ContentError{Reason: "missing campaign"}
	}
	if strings.TrimSpace(req.Heading) == "" {
		return &ContentError{Reason: "missing heading"}
	}
	if len(req.Backlinks) == 0 {
		return &ContentError{Reason: "no backlinks in batch"}
	}
	for _, b := range req.Backlinks {
		if strings.TrimSpace(b.URL) == "" {
			return &ContentError{Reason: "backlink is missing URL"}
		}
	}
	if missing := req.Campaign.MissingFields(); len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}

func fallbackContent(req ContentRequest) (string, error) {
	c := req.Campaign
	keywords := c.Keywords()
	links := make([]fallbackLink, len(req.Backlinks))
	for i, b := range req.Backlinks {
		anchor := fmt.Sprintf("Resource %d", i+1)
		if i < len(keywords) && strings.TrimSpace(keywords[i]) != "" {
			anchor = keywords[i]
		}
		links[i] = fallbackLink{URL: b.URL, Anchor: anchor}
	}

	var buf bytes.Buffer
	if err := fallbackContentTemplate.Execute(&buf, fallbackContentData{
		Heading:     req.Heading,
		Category:    c.Category,
		Location:    c.Location,
		CompanyName: c.CompanyName,
		Links:       links,
	}); err != nil {
		return "", fmt.Errorf("render fallback content: %w", err)
	}
	return CleanHTML(buf.String()), nil
}
