package lease

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
)

// Keeper holds an acquired lease for one unit of work. It extends the lease
// every interval and cancels Context with an ErrLost cause once the lease is
// reported lost, or once no extend has succeeded for a full TTL.
type Keeper struct {
	locker Locker
	lease  *Lease
	log    logger.Logger

	ctx    context.Context
	lose   context.CancelCauseFunc
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	extendedAt time.Time
}

// Keep starts the heartbeat for l. A non-positive interval disables the
// background extends; Confirm still checks ownership.
func Keep(ctx context.Context, locker Locker, l *Lease, interval time.Duration, log logger.Logger) *Keeper {
	k := &Keeper{locker: locker, lease: l, log: log, extendedAt: l.AcquiredAt}
	if k.extendedAt.IsZero() {
		k.extendedAt = time.Now()
	}
	k.ctx, k.lose = context.WithCancelCause(ctx)

	tickCtx, cancel := context.WithCancel(k.ctx)
	k.cancel = cancel
	if interval <= 0 {
		return k
	}

	k.wg.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				err := k.extend(tickCtx)
				switch {
				case err == nil:
				case tickCtx.Err() != nil:
					return
				case errors.Is(err, ErrLost):
					return
				default:
					log.Warn("Lease heartbeat failed",
						logger.CampaignID(l.CampaignID),
						logger.Error(err),
					)
				}
			}
		}
	})
	return k
}

// Context is cancelled when the lease is lost or the keeper stops.
func (k *Keeper) Context() context.Context {
	return k.ctx
}

// Confirm extends the lease before an irreversible step. It returns an error
// wrapping ErrLost when ownership cannot be shown. A failed extend inside the
// TTL window is not a loss: no other holder can have acquired yet.
func (k *Keeper) Confirm(ctx context.Context) error {
	if cause := context.Cause(k.ctx); errors.Is(cause, ErrLost) {
		return cause
	}
	if err := k.extend(ctx); err != nil && errors.Is(err, ErrLost) {
		return err
	}
	return nil
}

// Stop ends the heartbeat and waits for it. It does not release the lease.
func (k *Keeper) Stop() {
	k.cancel()
	k.wg.Wait()
	k.lose(nil)
}

func (k *Keeper) extend(ctx context.Context) error {
	started := time.Now()
	err := k.locker.Extend(ctx, k.lease)

	k.mu.Lock()
	defer k.mu.Unlock()
	switch {
	case err == nil:
		k.extendedAt = started
		return nil
	case errors.Is(err, ErrLost):
		k.log.Warn("Campaign lease lost", logger.CampaignID(k.lease.CampaignID))
		k.lose(err)
		return err
	case ctx.Err() != nil:
		return err
	}

	if k.lease.TTL > 0 && time.Since(k.extendedAt) >= k.lease.TTL {
		lost := fmt.Errorf("%w: not extended within %s: %w", ErrLost, k.lease.TTL, err)
		k.log.Warn("Campaign lease expired while extends kept failing",
			logger.CampaignID(k.lease.CampaignID),
			logger.Duration("ttl", k.lease.TTL),
			logger.Error(err),
		)
		k.lose(lost)
		return lost
	}
	return err
}
