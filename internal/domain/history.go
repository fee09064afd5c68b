package domain

import "time"

// IndexHistory is the append-only audit row written once per published batch.
type IndexHistory struct {
	ID             string    `db:"id"              json:"id"`
	CampaignID     string    `db:"campaign_id"     json:"campaign_id"`
	WebsiteID      string    `db:"website_id"      json:"website_id"`
	UserID         string    `db:"user_id"         json:"user_id"`
	Heading        string    `db:"heading"         json:"heading"`
	IndexedURL     string    `db:"indexed_url"     json:"indexed_url"`
	BacklinksCount int       `db:"backlinks_count" json:"backlinks_count"`
	ContentPreview *string   `db:"content_preview" json:"content_preview,omitempty"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
}

// UsedHeading records a heading already published on a website.
type UsedHeading struct {
	ID        string    `db:"id"         json:"id"`
	UserID    string    `db:"user_id"    json:"user_id"`
	WebsiteID string    `db:"website_id" json:"website_id"`
	Heading   string    `db:"heading"    json:"heading"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// HistoryFilter narrows ListHistory. Empty fields do not filter.
type HistoryFilter struct {
	CampaignID string
	WebsiteID  string
	UserID     string
	Limit      int
	Offset     int
}

// BatchCommit is everything written atomically after a successful publish.
type BatchCommit struct {
	Campaign       *Campaign
	BacklinkIDs    []string
	Heading        string
	PostURL        string
	ContentPreview string
	IndexedAt      time.Time
}
