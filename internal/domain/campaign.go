package domain

import (
	"fmt"
	"strings"
	"time"
)

// CampaignStatus is persisted verbatim; the literals are shared with the dashboard.
type CampaignStatus string

const (
	CampaignQueued    CampaignStatus = "queued"
	CampaignRunning   CampaignStatus = "running"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
)

// ParseCampaignStatus validates a stored or user-supplied literal.
func ParseCampaignStatus(s string) (CampaignStatus, error) {
	switch st := CampaignStatus(s); st {
	case CampaignQueued, CampaignRunning, CampaignCompleted, CampaignFailed:
		return st, nil
	}
	return "", fmt.Errorf("%w: campaign status %q", ErrInvalidStatus, s)
}

// IsTerminal reports whether the status ends the lifecycle.
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignCompleted || s == CampaignFailed
}

// KeywordCount is the fixed number of keyword slots on a campaign.
const KeywordCount = 5

// Campaign is one indexing job against one website.
type Campaign struct {
	ID               string         `db:"id"                json:"id"`
	UserID           string         `db:"user_id"           json:"user_id"`
	WebsiteID        string         `db:"website_id"        json:"website_id"`
	Name             string         `db:"name"              json:"name"`
	Category         string         `db:"category"          json:"category"`
	Location         string         `db:"location"          json:"location"`
	CompanyName      string         `db:"company_name"      json:"company_name"`
	PageType         string         `db:"page_type"         json:"page_type"`
	Keyword1         string         `db:"keyword_1"         json:"keyword_1"`
	Keyword2         string         `db:"keyword_2"         json:"keyword_2"`
	Keyword3         string         `db:"keyword_3"         json:"keyword_3"`
	Keyword4         string         `db:"keyword_4"         json:"keyword_4"`
	Keyword5         string         `db:"keyword_5"         json:"keyword_5"`
	Status           CampaignStatus `db:"status"            json:"status"`
	TotalBacklinks   int            `db:"total_backlinks"   json:"total_backlinks"`
	IndexedBacklinks int            `db:"indexed_backlinks" json:"indexed_backlinks"`
	CSVFilePath      *string        `db:"csv_file_path"     json:"csv_file_path,omitempty"`
	ErrorMessage     *string        `db:"error_message"     json:"error_message,omitempty"`
	CreatedAt        time.Time      `db:"created_at"        json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"        json:"updated_at"`
	CompletedAt      *time.Time     `db:"completed_at"      json:"completed_at,omitempty"`
}

// Keywords returns the five keyword slots in order.
func (c *Campaign) Keywords() []string {
	return []string{c.Keyword1, c.Keyword2, c.Keyword3, c.Keyword4, c.Keyword5}
}

// MissingFields lists the targeting fields that are blank.
func (c *Campaign) MissingFields() []string {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("category", c.Category)
	check("location", c.Location)
	check("company_name", c.CompanyName)
	for i, kw := range c.Keywords() {
		check(fmt.Sprintf("keyword_%d", i+1), kw)
	}
	return missing
}
