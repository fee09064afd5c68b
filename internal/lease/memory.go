package lease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLocker is a process-local Locker for single-instance runs and tests.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memoryEntry
	now    func() time.Time
}

type memoryEntry struct {
	token   string
	expires time.Time
}

// NewMemoryLocker returns an empty locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryLocker) Acquire(_ context.Context, campaignID string, ttl time.Duration) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.leases[campaignID]; ok && now.Before(e.expires) {
		return nil, ErrHeld
	}
	token := uuid.NewString()
	m.leases[campaignID] = memoryEntry{token: token, expires: now.Add(ttl)}
	return &Lease{CampaignID: campaignID, Token: token, TTL: ttl, AcquiredAt: now}, nil
}

func (m *MemoryLocker) Extend(_ context.Context, l *Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.leases[l.CampaignID]
	if !ok || e.token != l.Token || !now.Before(e.expires) {
		return ErrLost
	}
	e.expires = now.Add(l.TTL)
	m.leases[l.CampaignID] = e
	return nil
}

func (m *MemoryLocker) Release(_ context.Context, l *Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.leases[l.CampaignID]; ok && e.token == l.Token {
		delete(m.leases, l.CampaignID)
	}
	return nil
}

func (m *MemoryLocker) Held(_ context.Context, campaignID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.leases[campaignID]
	return ok && m.now().Before(e.expires), nil
}
