package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
)

const maxUsedHeadings = 500

// CommitBatch writes a published batch in one transaction: backlinks indexed,
// one history row, one used heading, and the campaign counter. The counter is
// clamped to total_backlinks when a total is recorded.
func (r *Repository) CommitBatch(ctx context.Context, commit domain.BatchCommit) (*domain.IndexHistory, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin commit batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	c := commit.Campaign
	n := len(commit.BacklinkIDs)

	if _, err = tx.ExecContext(ctx, `
		UPDATE backlinks
		SET status = 'indexed', indexed_blog_url = $2, heading_generated = $3,
		    indexed_at = $4, error_message = NULL, updated_at = NOW()
		WHERE id = ANY($1)
	`, pq.Array(commit.BacklinkIDs), commit.PostURL, commit.Heading, commit.IndexedAt); err != nil {
		return nil, fmt.Errorf("mark backlinks indexed: %w", err)
	}

	history := &domain.IndexHistory{
		ID:             uuid.NewString(),
		CampaignID:     c.ID,
		WebsiteID:      c.WebsiteID,
		UserID:         c.UserID,
		Heading:        commit.Heading,
		IndexedURL:     commit.PostURL,
		BacklinksCount: n,
		CreatedAt:      commit.IndexedAt,
	}
	if commit.ContentPreview != "" {
		history.ContentPreview = &commit.ContentPreview
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO index_history (id, campaign_id, website_id, user_id, heading, indexed_url,
			backlinks_count, content_preview, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, history.ID, history.CampaignID, history.WebsiteID, history.UserID, history.Heading,
		history.IndexedURL, history.BacklinksCount, history.ContentPreview, history.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert index history: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO used_headings (id, user_id, website_id, heading, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), c.UserID, c.WebsiteID, commit.Heading, commit.IndexedAt); err != nil {
		return nil, fmt.Errorf("insert used heading: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE campaigns
		SET indexed_backlinks = CASE
				WHEN total_backlinks > 0 THEN LEAST(total_backlinks, indexed_backlinks + $2)
				ELSE indexed_backlinks + $2
			END,
			updated_at = NOW()
		WHERE id = $1
	`, c.ID, n); err != nil {
		return nil, fmt.Errorf("increment indexed backlinks: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	return history, nil
}

// ListUsedHeadings returns the most recent headings published on the website.
func (r *Repository) ListUsedHeadings(ctx context.Context, websiteID string) ([]string, error) {
	headings := []string{}
	query := `SELECT heading FROM used_headings WHERE website_id = $1 ORDER BY created_at DESC LIMIT $2`
	if err := r.db.SelectContext(ctx, &headings, query, websiteID, maxUsedHeadings); err != nil {
		return nil, fmt.Errorf("list used headings: %w", err)
	}
	return headings, nil
}

// InsertBacklinks adds pending backlinks, skipping URLs the campaign already
// owns, and recomputes total_backlinks. It returns how many rows were added.
func (r *Repository) InsertBacklinks(ctx context.Context, campaignID string, urls []string) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert backlinks: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err = tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM campaigns WHERE id = $1)`, campaignID); err != nil {
		return 0, fmt.Errorf("check campaign: %w", err)
	}
	if !exists {
		return 0, domain.ErrNotFound
	}

	inserted, err := insertBacklinkRows(ctx, tx, campaignID, urls)
	if err != nil {
		return 0, err
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE campaigns
		SET total_backlinks = (SELECT COUNT(*) FROM backlinks WHERE campaign_id = $1), updated_at = NOW()
		WHERE id = $1
	`, campaignID); err != nil {
		return 0, fmt.Errorf("update total backlinks: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert backlinks: %w", err)
	}
	return inserted, nil
}

func insertBacklinkRows(ctx context.Context, tx *sqlx.Tx, campaignID string, urls []string) (int, error) {
	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO backlinks (id, campaign_id, url, status)
		SELECT $1::uuid, $2::uuid, $3::text, 'pending'
		WHERE NOT EXISTS (SELECT 1 FROM backlinks WHERE campaign_id = $2::uuid AND url = $3::text)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare backlink insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		result, execErr := stmt.ExecContext(ctx, uuid.NewString(), campaignID, u)
		if execErr != nil {
			return 0, fmt.Errorf("insert backlink: %w", execErr)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}
