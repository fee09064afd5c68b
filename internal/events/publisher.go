// Package events publishes campaign lifecycle events to Redis.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	infraevents "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/events"
	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
)

// Publisher sends campaign events. Publishing is fire-and-forget for callers.
type Publisher interface {
	Publish(ctx context.Context, event infraevents.CampaignEvent)
}

// RedisPublisher publishes JSON events on a pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  logger.Logger
}

// NewRedisPublisher publishes on infraevents.ChannelName.
func NewRedisPublisher(client *redis.Client, log logger.Logger) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: infraevents.ChannelName,
		logger:  log.With(logger.String("component", "event_publisher")),
	}
}

// Publish logs and drops failures.
func (p *RedisPublisher) Publish(ctx context.Context, event infraevents.CampaignEvent) {
	if err := p.publish(ctx, event); err != nil {
		p.logger.Warn("Failed to publish campaign event",
			logger.CampaignID(event.CampaignID),
			logger.String("event_type", string(event.EventType)),
			logger.Error(err),
		)
	}
}

func (p *RedisPublisher) publish(ctx context.Context, event infraevents.CampaignEvent) error {
	messageJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal campaign event: %w", err)
	}
	if err = p.client.Publish(ctx, p.channel, messageJSON).Err(); err != nil {
		return fmt.Errorf("publish campaign event: %w", err)
	}
	return nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, infraevents.CampaignEvent) {}
