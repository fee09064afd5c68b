package database

import (
	"context"
	"fmt"

	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// ListHistory returns index history newest first.
func (r *Repository) ListHistory(ctx context.Context, filter domain.HistoryFilter) ([]domain.IndexHistory, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultHistoryLimit
	}
	if filter.Limit > maxHistoryLimit {
		filter.Limit = maxHistoryLimit
	}

	query := `
		SELECT id, campaign_id, website_id, user_id, heading, indexed_url, backlinks_count,
			content_preview, created_at
		FROM index_history
		WHERE 1=1
	`
	args := []any{}
	argPos := 1

	if filter.CampaignID != "" {
		query += fmt.Sprintf(" AND campaign_id = $%d", argPos)
		args = append(args, filter.CampaignID)
		argPos++
	}
	if filter.WebsiteID != "" {
		query += fmt.Sprintf(" AND website_id = $%d", argPos)
		args = append(args, filter.WebsiteID)
		argPos++
	}
	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argPos)
		args = append(args, filter.UserID)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)

	history := []domain.IndexHistory{}
	if err := r.db.SelectContext(ctx, &history, query, args...); err != nil {
		return nil, fmt.Errorf("list index history: %w", err)
	}
	return history, nil
}
