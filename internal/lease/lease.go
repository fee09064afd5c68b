// Package lease provides the per-campaign exclusive lease that keeps two
// invocations from processing the same campaign at once.
package lease

import (
	"context"
	"errors"
	"time"

	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
)

// ErrLost is returned by Extend or Release when the token no longer owns the lease.
var ErrLost = errors.New("lease lost")

// ErrHeld aliases domain.ErrLeaseHeld so callers can check either.
var ErrHeld = domain.ErrLeaseHeld

// Lease is an acquired lease. Token proves ownership.
type Lease struct {
	CampaignID string
	Token      string
	TTL        time.Duration
	AcquiredAt time.Time
}

// Locker hands out leases keyed by campaign id.
type Locker interface {
	// Acquire returns ErrHeld while another token owns an unexpired lease.
	Acquire(ctx context.Context, campaignID string, ttl time.Duration) (*Lease, error)
	// Extend pushes expiry out by the lease TTL.
	Extend(ctx context.Context, l *Lease) error
	// Release is a no-op when the lease already expired.
	Release(ctx context.Context, l *Lease) error
	// Held reports whether any live lease exists for the campaign.
	Held(ctx context.Context, campaignID string) (bool, error)
}

// Key is the Redis key for a campaign lease.
func Key(campaignID string) string {
	return "indexer:lease:campaign:" + campaignID
}
