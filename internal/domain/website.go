package domain

import (
	"strings"
	"time"
)

// Website connection states written by the connection test.
const (
	WebsiteConnected = "connected"
	WebsiteError     = "error"
)

// Website is one WordPress publishing target. The orchestrator only reads it.
type Website struct {
	ID               string     `db:"id"                 json:"id"`
	UserID           string     `db:"user_id"            json:"user_id"`
	Name             string     `db:"name"               json:"name"`
	URL              string     `db:"url"                json:"url"`
	Username         string     `db:"wp_username"        json:"wp_username"`
	AppPassword      string     `db:"wp_app_password"    json:"-"`
	CategoryID       int64      `db:"category_id"        json:"category_id"`
	ImageModel       *string    `db:"image_model"        json:"image_model,omitempty"`
	ImageWidth       *int       `db:"image_width"        json:"image_width,omitempty"`
	ImageHeight      *int       `db:"image_height"       json:"image_height,omitempty"`
	HeadingSheetID   *string    `db:"heading_sheet_id"   json:"heading_sheet_id,omitempty"`
	HeadingSheetName *string    `db:"heading_sheet_name" json:"heading_sheet_name,omitempty"`
	Status           string     `db:"status"             json:"status"`
	LastTestedAt     *time.Time `db:"last_tested_at"     json:"last_tested_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at"         json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"         json:"updated_at"`
}

// MissingFields lists blank connection fields.
func (w *Website) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(w.URL) == "" {
		missing = append(missing, "website_url")
	}
	if strings.TrimSpace(w.Username) == "" {
		missing = append(missing, "wp_username")
	}
	if strings.TrimSpace(w.AppPassword) == "" {
		missing = append(missing, "wp_app_password")
	}
	return missing
}

// BaseURL is the site URL without a trailing slash.
func (w *Website) BaseURL() string {
	return strings.TrimRight(strings.TrimSpace(w.URL), "/")
}
