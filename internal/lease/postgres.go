package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
)

// PostgresLocker keeps the lease on the campaign row itself, for deployments without Redis.
type PostgresLocker struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgresLocker uses the campaigns.lease_token and lease_expires_at columns.
func NewPostgresLocker(db *sqlx.DB) *PostgresLocker {
	return &PostgresLocker{db: db, now: time.Now}
}

func (p *PostgresLocker) Acquire(ctx context.Context, campaignID string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	result, err := p.db.ExecContext(ctx, `
		UPDATE campaigns
		SET lease_token = $2, lease_expires_at = NOW() + ($3 * INTERVAL '1 millisecond')
		WHERE id = $1 AND (lease_token IS NULL OR lease_expires_at IS NULL OR lease_expires_at <= NOW())
	`, campaignID, token, ttl.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("acquire lease: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("acquire lease rows: %w", err)
	}
	if n == 1 {
		return &Lease{CampaignID: campaignID, Token: token, TTL: ttl, AcquiredAt: p.now()}, nil
	}

	var exists bool
	if err = p.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM campaigns WHERE id = $1)`, campaignID); err != nil {
		return nil, fmt.Errorf("check campaign for lease: %w", err)
	}
	if !exists {
		return nil, domain.ErrNotFound
	}
	return nil, ErrHeld
}

func (p *PostgresLocker) Extend(ctx context.Context, l *Lease) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE campaigns
		SET lease_expires_at = NOW() + ($3 * INTERVAL '1 millisecond')
		WHERE id = $1 AND lease_token = $2
	`, l.CampaignID, l.Token, l.TTL.Milliseconds())
	if err != nil {
		return fmt.Errorf("extend lease: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrLost
	}
	return nil
}

func (p *PostgresLocker) Release(ctx context.Context, l *Lease) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE campaigns SET lease_token = NULL, lease_expires_at = NULL
		WHERE id = $1 AND lease_token = $2
	`, l.CampaignID, l.Token)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

func (p *PostgresLocker) Held(ctx context.Context, campaignID string) (bool, error) {
	var held bool
	err := p.db.GetContext(ctx, &held, `
		SELECT COALESCE(lease_token IS NOT NULL AND lease_expires_at > NOW(), FALSE)
		FROM campaigns WHERE id = $1
	`, campaignID)
	if err != nil {
		return false, fmt.Errorf("check lease: %w", err)
	}
	return held, nil
}
