package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	infralogger "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
)

// Diagnosis is a read-only health report for one campaign.
type Diagnosis struct {
	CampaignID       string                `json:"campaign_id"`
	Name             string                `json:"name"`
	Status           domain.CampaignStatus `json:"status"`
	TotalBacklinks   int                   `json:"total_backlinks"`
	IndexedBacklinks int                   `json:"indexed_backlinks"`
	StatusCounts     map[string]int        `json:"status_counts"`
	Remaining        int                   `json:"remaining"`
	LeaseHeld        bool                  `json:"lease_held"`
	Stuck            bool                  `json:"stuck"`
	CounterDrift     bool                  `json:"counter_drift"`
	ErrorMessage     string                `json:"error_message,omitempty"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// Diagnose reports backlink states, counters and the lease for one campaign.
func (o *Orchestrator) Diagnose(ctx context.Context, campaignID string) (*Diagnosis, error) {
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return nil, missingParameter("Campaign ID is required")
	}
	campaign, err := o.deps.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, notFound("Campaign not found", err)
		}
		return nil, internal("load campaign", err)
	}
	return o.diagnose(ctx, campaign)
}

// DiagnoseAll reports every queued or running campaign.
func (o *Orchestrator) DiagnoseAll(ctx context.Context) ([]Diagnosis, error) {
	campaigns, err := o.deps.Store.ListCampaignsByStatus(ctx,
		[]domain.CampaignStatus{domain.CampaignQueued, domain.CampaignRunning}, o.cfg.SweepLimit)
	if err != nil {
		return nil, internal("list campaigns", err)
	}

	out := make([]Diagnosis, 0, len(campaigns))
	for i := range campaigns {
		d, diagErr := o.diagnose(ctx, &campaigns[i])
		if diagErr != nil {
			return nil, diagErr
		}
		out = append(out, *d)
	}
	return out, nil
}

func (o *Orchestrator) diagnose(ctx context.Context, campaign *domain.Campaign) (*Diagnosis, error) {
	counts, err := o.deps.Store.BacklinkStatusCounts(ctx, campaign.ID)
	if err != nil {
		return nil, internal("count backlinks", err)
	}
	held, err := o.deps.Locker.Held(ctx, campaign.ID)
	if err != nil {
		return nil, internal("check campaign lease", err)
	}

	d := &Diagnosis{
		CampaignID:       campaign.ID,
		Name:             campaign.Name,
		Status:           campaign.Status,
		TotalBacklinks:   campaign.TotalBacklinks,
		IndexedBacklinks: campaign.IndexedBacklinks,
		StatusCounts:     make(map[string]int, len(counts)),
		LeaseHeld:        held,
		UpdatedAt:        campaign.UpdatedAt,
	}
	for status, n := range counts {
		d.StatusCounts[string(status)] = n
	}
	d.Remaining = counts[domain.BacklinkPending] + counts[domain.BacklinkProcessing] + counts[domain.BacklinkLegacyRunning]
	d.Stuck = campaign.Status == domain.CampaignRunning && !held && o.stuck(campaign, inFlightCount(counts))
	d.CounterDrift = campaign.IndexedBacklinks != counts[domain.BacklinkIndexed] ||
		(campaign.TotalBacklinks > 0 && campaign.IndexedBacklinks > campaign.TotalBacklinks)
	if campaign.ErrorMessage != nil {
		d.ErrorMessage = *campaign.ErrorMessage
	}
	return d, nil
}

// ConnectionResult is the outcome of a WordPress credentials check.
type ConnectionResult struct {
	Success   bool   `json:"success"`
	WebsiteID string `json:"website_id"`
	Status    string `json:"status"`
	User      string `json:"user,omitempty"`
	Error     string `json:"error,omitempty"`
}

// TestConnection calls /users/me with the website credentials and records the
// outcome on the website. A failed check is a result, not an error.
func (o *Orchestrator) TestConnection(ctx context.Context, websiteID string) (*ConnectionResult, error) {
	websiteID = strings.TrimSpace(websiteID)
	if websiteID == "" {
		return nil, missingParameter("Website ID is required")
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.test_connection")
	defer span.End()

	website, err := o.deps.Store.GetWebsite(ctx, websiteID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, notFound("Website not found", err)
		}
		return nil, internal("load website", err)
	}

	result := &ConnectionResult{WebsiteID: website.ID, Status: domain.WebsiteError}
	publisher, err := o.deps.Publishers(website)
	if err == nil {
		user, userErr := publisher.CurrentUser(ctx)
		if userErr == nil {
			result.Success = true
			result.Status = domain.WebsiteConnected
			result.User = user.Name
		}
		err = userErr
	}
	if err != nil {
		result.Error = err.Error()
	}

	if touchErr := o.deps.Store.TouchWebsiteTested(ctx, website.ID, result.Status); touchErr != nil {
		return nil, internal("record connection test", touchErr)
	}

	o.logger.Info("WordPress connection tested",
		infralogger.WebsiteID(website.ID),
		infralogger.Bool("success", result.Success),
	)
	return result, nil
}
