// Package events provides the campaign lifecycle event envelope published on
// Redis pub/sub for dashboards and other listeners.
package events

import (
	"time"

	"github.com/google/uuid"
)

// ChannelName is the Redis pub/sub channel for campaign events.
const ChannelName = "indexer:campaign-events"

// EventType represents the type of campaign event.
type EventType string

const (
	// CampaignRunning indicates a batch started.
	CampaignRunning EventType = "CAMPAIGN_RUNNING"
	// BatchIndexed indicates a batch was published and committed.
	BatchIndexed EventType = "BATCH_INDEXED"
	// CampaignCompleted indicates no backlinks remain.
	CampaignCompleted EventType = "CAMPAIGN_COMPLETED"
	// CampaignFailed indicates a fatal batch error.
	CampaignFailed EventType = "CAMPAIGN_FAILED"
	// CampaignReset indicates a manual or sweeper reset.
	CampaignReset EventType = "CAMPAIGN_RESET"
)

// CampaignEvent is the envelope for all campaign events.
type CampaignEvent struct {
	EventID    uuid.UUID `json:"event_id"`
	EventType  EventType `json:"event_type"`
	CampaignID string    `json:"campaign_id"`
	WebsiteID  string    `json:"website_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Payload    any       `json:"payload,omitempty"`
}

// New stamps an event id and time.
func New(eventType EventType, campaignID, websiteID string, payload any) CampaignEvent {
	return CampaignEvent{
		EventID:    uuid.New(),
		EventType:  eventType,
		CampaignID: campaignID,
		WebsiteID:  websiteID,
		Timestamp:  time.Now().UTC(),
		Payload:    payload,
	}
}

// BatchIndexedPayload contains data for BATCH_INDEXED events.
type BatchIndexedPayload struct {
	Indexed       int    `json:"indexed"`
	Remaining     int    `json:"remaining"`
	Heading       string `json:"heading"`
	PostURL       string `json:"post_url"`
	ImageAttached bool   `json:"image_attached"`
}

// CampaignFailedPayload contains data for CAMPAIGN_FAILED events.
type CampaignFailedPayload struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// CampaignResetPayload contains data for CAMPAIGN_RESET events.
type CampaignResetPayload struct {
	BacklinksReset int64  `json:"backlinks_reset"`
	Trigger        string `json:"trigger"` // "manual", "sweeper" or "recovery"
}
