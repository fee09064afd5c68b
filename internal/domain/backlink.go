package domain

import (
	"fmt"
	"strings"
	"time"
)

// BacklinkStatus is persisted verbatim.
type BacklinkStatus string

const (
	BacklinkPending    BacklinkStatus = "pending"
	BacklinkProcessing BacklinkStatus = "processing"
	BacklinkIndexed    BacklinkStatus = "indexed"
	BacklinkFailed     BacklinkStatus = "failed"

	// BacklinkLegacyRunning was written by an older orchestrator. It is only read, by reset.
	BacklinkLegacyRunning BacklinkStatus = "running"
)

// ParseBacklinkStatus validates a stored literal, accepting the legacy value.
func ParseBacklinkStatus(s string) (BacklinkStatus, error) {
	switch st := BacklinkStatus(s); st {
	case BacklinkPending, BacklinkProcessing, BacklinkIndexed, BacklinkFailed, BacklinkLegacyRunning:
		return st, nil
	}
	return "", fmt.Errorf("%w: backlink status %q", ErrInvalidStatus, s)
}

// IsTerminal reports whether the backlink is done.
func (s BacklinkStatus) IsTerminal() bool {
	return s == BacklinkIndexed || s == BacklinkFailed
}

// Backlink is one URL to embed and publish.
type Backlink struct {
	ID               string         `db:"id"                json:"id"`
	CampaignID       string         `db:"campaign_id"       json:"campaign_id"`
	URL              string         `db:"url"               json:"url"`
	Status           BacklinkStatus `db:"status"            json:"status"`
	HeadingGenerated *string        `db:"heading_generated" json:"heading_generated,omitempty"`
	IndexedBlogURL   *string        `db:"indexed_blog_url"  json:"indexed_blog_url,omitempty"`
	ErrorMessage     *string        `db:"error_message"     json:"error_message,omitempty"`
	IndexedAt        *time.Time     `db:"indexed_at"        json:"indexed_at,omitempty"`
	CreatedAt        time.Time      `db:"created_at"        json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"        json:"updated_at"`
}

// Selectable reports whether the backlink may join a batch. Processing rows
// stay eligible so orphans from a dead invocation are picked up again.
func (b *Backlink) Selectable() bool {
	if strings.TrimSpace(b.URL) == "" {
		return false
	}
	return b.Status == BacklinkPending || b.Status == BacklinkProcessing
}

// SelectBatch returns the first size selectable backlinks in stored order.
func SelectBatch(backlinks []Backlink, size int) []Backlink {
	batch := make([]Backlink, 0, size)
	for _, b := range backlinks {
		if len(batch) == size {
			break
		}
		if b.Selectable() {
			batch = append(batch, b)
		}
	}
	return batch
}

// BacklinkIDs projects ids in order.
func BacklinkIDs(backlinks []Backlink) []string {
	ids := make([]string, len(backlinks))
	for i := range backlinks {
		ids[i] = backlinks[i].ID
	}
	return ids
}
