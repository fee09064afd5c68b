package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
)

const campaignColumns = `id, user_id, website_id, name, category, location, company_name, page_type,
	keyword_1, keyword_2, keyword_3, keyword_4, keyword_5, status, total_backlinks,
	indexed_backlinks, csv_file_path, error_message, created_at, updated_at, completed_at`

const websiteColumns = `id, user_id, name, url, wp_username, wp_app_password, category_id,
	image_model, image_width, image_height, heading_sheet_id, heading_sheet_name, status,
	last_tested_at, created_at, updated_at`

const backlinkColumns = `id, campaign_id, url, status, heading_generated, indexed_blog_url,
	error_message, indexed_at, created_at, updated_at`

// resettableStatuses are the in-flight literals a reset moves back to pending.
var resettableStatuses = pq.StringArray{string(domain.BacklinkProcessing), string(domain.BacklinkLegacyRunning)}

// Repository is the sqlx-backed store.
type Repository struct {
	db *sqlx.DB
}

// NewRepository wraps db.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Ping checks connectivity for the health endpoint.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// GetCampaign returns domain.ErrNotFound when the row is missing.
func (r *Repository) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	campaign := &domain.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	if err := r.db.GetContext(ctx, campaign, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return campaign, nil
}

// GetWebsite returns domain.ErrNotFound when the row is missing.
func (r *Repository) GetWebsite(ctx context.Context, id string) (*domain.Website, error) {
	website := &domain.Website{}
	query := `SELECT ` + websiteColumns + ` FROM websites WHERE id = $1`

	if err := r.db.GetContext(ctx, website, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get website: %w", err)
	}
	return website, nil
}

// ListBacklinks returns every backlink of the campaign in stored order.
func (r *Repository) ListBacklinks(ctx context.Context, campaignID string) ([]domain.Backlink, error) {
	backlinks := []domain.Backlink{}
	query := `SELECT ` + backlinkColumns + ` FROM backlinks WHERE campaign_id = $1 ORDER BY created_at, id`

	if err := r.db.SelectContext(ctx, &backlinks, query, campaignID); err != nil {
		return nil, fmt.Errorf("list backlinks: %w", err)
	}
	return backlinks, nil
}

// UpdateCampaignStatus sets status and error_message. An empty errMsg clears it.
func (r *Repository) UpdateCampaignStatus(
	ctx context.Context, id string, status domain.CampaignStatus, errMsg string,
) error {
	query := `
		UPDATE campaigns
		SET status = $2, error_message = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, string(status), errMsg)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	return requireRow(result)
}

// MarkCampaignCompleted sets completed and completed_at.
func (r *Repository) MarkCampaignCompleted(ctx context.Context, id string) error {
	query := `
		UPDATE campaigns
		SET status = 'completed', completed_at = NOW(), error_message = NULL, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark campaign completed: %w", err)
	}
	return requireRow(result)
}

// MarkBacklinksProcessing claims a batch.
func (r *Repository) MarkBacklinksProcessing(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE backlinks SET status = 'processing', updated_at = NOW() WHERE id = ANY($1)`
	if _, err := r.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("mark backlinks processing: %w", err)
	}
	return nil
}

// ResetBacklinks returns the given in-flight backlinks to pending.
func (r *Repository) ResetBacklinks(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `
		UPDATE backlinks SET status = 'pending', updated_at = NOW()
		WHERE id = ANY($1) AND status = ANY($2)
	`
	result, err := r.db.ExecContext(ctx, query, pq.Array(ids), resettableStatuses)
	if err != nil {
		return 0, fmt.Errorf("reset backlinks: %w", err)
	}
	return result.RowsAffected()
}

// ResetCampaignBacklinks returns every in-flight backlink of the campaign to pending.
func (r *Repository) ResetCampaignBacklinks(ctx context.Context, campaignID string) (int64, error) {
	query := `
		UPDATE backlinks SET status = 'pending', updated_at = NOW()
		WHERE campaign_id = $1 AND status = ANY($2)
	`
	result, err := r.db.ExecContext(ctx, query, campaignID, resettableStatuses)
	if err != nil {
		return 0, fmt.Errorf("reset campaign backlinks: %w", err)
	}
	return result.RowsAffected()
}

// CountRemaining counts pending and processing backlinks.
func (r *Repository) CountRemaining(ctx context.Context, campaignID string) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM backlinks
		WHERE campaign_id = $1 AND status IN ('pending', 'processing')
	`
	if err := r.db.GetContext(ctx, &count, query, campaignID); err != nil {
		return 0, fmt.Errorf("count remaining backlinks: %w", err)
	}
	return count, nil
}

// BacklinkStatusCounts is a status histogram for diagnostics.
func (r *Repository) BacklinkStatusCounts(ctx context.Context, campaignID string) (map[domain.BacklinkStatus]int, error) {
	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}{}
	query := `SELECT status, COUNT(*) AS count FROM backlinks WHERE campaign_id = $1 GROUP BY status`
	if err := r.db.SelectContext(ctx, &rows, query, campaignID); err != nil {
		return nil, fmt.Errorf("count backlinks by status: %w", err)
	}

	counts := make(map[domain.BacklinkStatus]int, len(rows))
	for _, row := range rows {
		counts[domain.BacklinkStatus(row.Status)] = row.Count
	}
	return counts, nil
}

// ListCampaignsByStatus scans the worker queue, least recently touched first.
func (r *Repository) ListCampaignsByStatus(
	ctx context.Context, statuses []domain.CampaignStatus, limit int,
) ([]domain.Campaign, error) {
	if len(statuses) == 0 {
		return []domain.Campaign{}, nil
	}
	literals := make([]string, len(statuses))
	for i, s := range statuses {
		literals[i] = string(s)
	}

	query, args, err := sqlx.In(
		`SELECT `+campaignColumns+` FROM campaigns WHERE status IN (?) ORDER BY updated_at ASC LIMIT ?`,
		literals, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("build campaign status query: %w", err)
	}

	campaigns := []domain.Campaign{}
	if err = r.db.SelectContext(ctx, &campaigns, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list campaigns by status: %w", err)
	}
	return campaigns, nil
}

// TouchWebsiteTested records the outcome of a connection test.
func (r *Repository) TouchWebsiteTested(ctx context.Context, id, status string) error {
	query := `UPDATE websites SET status = $2, last_tested_at = NOW(), updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("touch website tested: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
