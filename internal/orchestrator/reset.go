package orchestrator

import (
	"context"
	"errors"
	"strings"

	infraevents "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/events"
	infralogger "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/lease"
)

// ResetCampaign queues the campaign and returns its in-flight backlinks to
// pending. It is idempotent and does not take the lease, so it also works as
// a manual stop.
func (o *Orchestrator) ResetCampaign(ctx context.Context, campaignID string) error {
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return missingParameter("Campaign ID is required")
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.reset_campaign")
	defer span.End()

	campaign, err := o.deps.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return notFound("Campaign not found", err)
		}
		return internal("load campaign", err)
	}

	restored, err := o.reset(ctx, campaign)
	if err != nil {
		return err
	}
	o.deps.Events.Publish(ctx, infraevents.New(infraevents.CampaignReset, campaign.ID, campaign.WebsiteID,
		infraevents.CampaignResetPayload{BacklinksReset: restored, Trigger: "manual"}))

	o.logger.Info("Campaign reset",
		infralogger.CampaignID(campaign.ID),
		infralogger.Int64("backlinks_reset", restored),
	)
	return nil
}

func (o *Orchestrator) reset(ctx context.Context, campaign *domain.Campaign) (int64, error) {
	if err := o.deps.Store.UpdateCampaignStatus(ctx, campaign.ID, domain.CampaignQueued, ""); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, notFound("Campaign not found", err)
		}
		return 0, internal("queue campaign", err)
	}
	restored, err := o.deps.Store.ResetCampaignBacklinks(ctx, campaign.ID)
	if err != nil {
		return 0, internal("reset campaign backlinks", err)
	}
	return restored, nil
}

// SweepStuck resets every stuck running campaign whose lease is free and
// returns the ids it reset. The sweep holds each campaign's lease while
// resetting it. A running campaign waiting for its next batch is left alone.
func (o *Orchestrator) SweepStuck(ctx context.Context) ([]string, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.sweep_stuck")
	defer span.End()

	running, err := o.deps.Store.ListCampaignsByStatus(ctx,
		[]domain.CampaignStatus{domain.CampaignRunning}, o.cfg.SweepLimit)
	if err != nil {
		return nil, internal("list running campaigns", err)
	}

	reset := make([]string, 0, len(running))
	for i := range running {
		campaign := &running[i]
		ok, sweepErr := o.sweepOne(ctx, campaign)
		if sweepErr != nil {
			o.logger.Warn("Failed to sweep campaign",
				infralogger.CampaignID(campaign.ID),
				infralogger.Error(sweepErr),
			)
			continue
		}
		if ok {
			reset = append(reset, campaign.ID)
		}
	}

	o.deps.Metrics.SweepReset(len(reset))
	if len(reset) > 0 {
		o.logger.Info("Stuck campaigns reset",
			infralogger.Int("count", len(reset)),
			infralogger.Strings("campaign_ids", reset),
		)
	}
	return reset, nil
}

func (o *Orchestrator) sweepOne(ctx context.Context, campaign *domain.Campaign) (bool, error) {
	held, err := o.deps.Locker.Acquire(ctx, campaign.ID, sweepLeaseTTL)
	if err != nil {
		if errors.Is(err, lease.ErrHeld) {
			return false, nil
		}
		return false, err
	}
	defer func() {
		if releaseErr := o.deps.Locker.Release(context.WithoutCancel(ctx), held); releaseErr != nil {
			o.logger.Warn("Failed to release sweep lease",
				infralogger.CampaignID(campaign.ID),
				infralogger.Error(releaseErr),
			)
		}
	}()

	counts, err := o.deps.Store.BacklinkStatusCounts(ctx, campaign.ID)
	if err != nil {
		return false, err
	}
	if !o.stuck(campaign, inFlightCount(counts)) {
		return false, nil
	}

	restored, err := o.reset(ctx, campaign)
	if err != nil {
		return false, err
	}
	o.deps.Events.Publish(ctx, infraevents.New(infraevents.CampaignReset, campaign.ID, campaign.WebsiteID,
		infraevents.CampaignResetPayload{BacklinksReset: restored, Trigger: "sweeper"}))
	return true, nil
}
