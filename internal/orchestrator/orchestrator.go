// Package orchestrator drives a campaign one batch at a time: lease, select,
// heading, content, best-effort image, publish, commit.
package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	infraevents "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/events"
	infralogger "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/events"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/generator"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/image"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/lease"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/metrics"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/wordpress"
)

const (
	defaultBatchSize    = 5
	defaultLeaseTTL     = 30 * time.Minute
	defaultHeartbeat    = time.Minute
	defaultPreviewRunes = 500
	defaultSweepLimit   = 500
	sweepLeaseTTL       = time.Minute
	outcomeIndexed      = "indexed"
	outcomeCompleted    = "completed"
	outcomeFailed       = "failed"
	outcomeConflict     = "conflict"
	outcomeRejected     = "rejected"
)

// Config is the orchestrator block.
type Config struct {
	BatchSize         int           `yaml:"batch_size"`
	LeaseTTL          time.Duration `yaml:"lease_ttl"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	PreviewRunes      int           `yaml:"preview_runes"`
	SweepLimit        int           `yaml:"sweep_limit"`
}

// SetDefaults fills batch size 5 and a 30 minute lease.
func (c *Config) SetDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaultLeaseTTL
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeat
	}
	if c.PreviewRunes <= 0 {
		c.PreviewRunes = defaultPreviewRunes
	}
	if c.SweepLimit <= 0 {
		c.SweepLimit = defaultSweepLimit
	}
}

// Store is the persistence the orchestrator needs.
type Store interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	GetWebsite(ctx context.Context, id string) (*domain.Website, error)
	ListBacklinks(ctx context.Context, campaignID string) ([]domain.Backlink, error)
	UpdateCampaignStatus(ctx context.Context, id string, status domain.CampaignStatus, errMsg string) error
	MarkCampaignCompleted(ctx context.Context, id string) error
	MarkBacklinksProcessing(ctx context.Context, ids []string) error
	ResetBacklinks(ctx context.Context, ids []string) (int64, error)
	ResetCampaignBacklinks(ctx context.Context, campaignID string) (int64, error)
	CommitBatch(ctx context.Context, commit domain.BatchCommit) (*domain.IndexHistory, error)
	CountRemaining(ctx context.Context, campaignID string) (int, error)
	BacklinkStatusCounts(ctx context.Context, campaignID string) (map[domain.BacklinkStatus]int, error)
	ListCampaignsByStatus(ctx context.Context, statuses []domain.CampaignStatus, limit int) ([]domain.Campaign, error)
	TouchWebsiteTested(ctx context.Context, id, status string) error
}

// HeadingGenerator produces the batch heading.
type HeadingGenerator interface {
	Generate(ctx context.Context, req generator.HeadingRequest) (string, error)
}

// ContentGenerator produces the batch body.
type ContentGenerator interface {
	Generate(ctx context.Context, req generator.ContentRequest) (string, error)
}

// ImageAttacher produces the optional featured image.
type ImageAttacher interface {
	Attach(ctx context.Context, req image.ImageRequest) image.FeaturedImage
}

// Publisher is a WordPress client bound to one website.
type Publisher interface {
	CreatePost(ctx context.Context, req wordpress.PostRequest) (*wordpress.Post, error)
	UploadMedia(ctx context.Context, filename, contentType string, data io.Reader) (*wordpress.Media, error)
	CurrentUser(ctx context.Context) (*wordpress.User, error)
}

// PublisherFactory binds a Publisher to a website.
type PublisherFactory func(w *domain.Website) (Publisher, error)

// WordPressPublishers adapts a wordpress.Factory.
func WordPressPublishers(f *wordpress.Factory) PublisherFactory {
	return func(w *domain.Website) (Publisher, error) {
		client, err := f.ForWebsite(w)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// HistoryIndexer mirrors committed history rows, best-effort.
type HistoryIndexer interface {
	IndexHistory(ctx context.Context, history *domain.IndexHistory) error
}

// Deps are the collaborators. Events, History and Metrics may be nil.
type Deps struct {
	Store      Store
	Locker     lease.Locker
	Headings   HeadingGenerator
	Content    ContentGenerator
	Images     ImageAttacher
	Publishers PublisherFactory
	Events     events.Publisher
	History    HistoryIndexer
	Metrics    *metrics.Metrics
}

// Orchestrator runs batches.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	tracer trace.Tracer
	logger infralogger.Logger
	now    func() time.Time
}

// New fills config defaults. Events, History and Metrics are optional.
func New(cfg Config, deps Deps, log infralogger.Logger) *Orchestrator {
	cfg.SetDefaults()
	if deps.Events == nil {
		deps.Events = events.NopPublisher{}
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		tracer: otel.Tracer("backlink-indexer"),
		logger: log.With(infralogger.String("component", "orchestrator")),
		now:    time.Now,
	}
}

// Result is the outcome of one ProcessBatch call.
type Result struct {
	Success       bool                  `json:"success"`
	CampaignID    string                `json:"campaign_id"`
	Indexed       int                   `json:"indexed"`
	Remaining     int                   `json:"remaining"`
	Status        domain.CampaignStatus `json:"status"`
	Heading       string                `json:"heading,omitempty"`
	PostURL       string                `json:"post_url,omitempty"`
	ImageAttached bool                  `json:"image_attached"`
}

// ProcessBatch publishes at most one batch of the campaign. Errors are *Error.
func (o *Orchestrator) ProcessBatch(ctx context.Context, campaignID string) (*Result, error) {
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return nil, missingParameter("Campaign ID is required")
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.process_batch",
		trace.WithAttributes(attribute.String("campaign_id", campaignID)))
	defer span.End()

	start := o.now()
	result, err := o.processBatch(ctx, campaignID)
	o.deps.Metrics.ObserveBatch(batchOutcome(result, err), o.now().Sub(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("batch.indexed", result.Indexed),
		attribute.Int("batch.remaining", result.Remaining),
		attribute.String("campaign.status", string(result.Status)),
	)
	return result, nil
}

func batchOutcome(result *Result, err error) string {
	if err != nil {
		switch AsError(err).Kind {
		case KindConflict:
			return outcomeConflict
		case KindMissingParameter, KindNotFound:
			return outcomeRejected
		}
		return outcomeFailed
	}
	if result.Status == domain.CampaignCompleted {
		return outcomeCompleted
	}
	return outcomeIndexed
}

func (o *Orchestrator) processBatch(ctx context.Context, campaignID string) (*Result, error) {
	store := o.deps.Store

	campaign, err := store.GetCampaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, notFound("Campaign not found", err)
		}
		return nil, internal("load campaign", err)
	}
	log := o.logger.With(infralogger.CampaignID(campaign.ID), infralogger.WebsiteID(campaign.WebsiteID))

	held, err := o.deps.Locker.Acquire(ctx, campaign.ID, o.cfg.LeaseTTL)
	if err != nil {
		switch {
		case errors.Is(err, lease.ErrHeld):
			o.deps.Metrics.LeaseConflict()
			log.Info("Campaign lease held by another invocation")
			return nil, &Error{Kind: KindConflict, Message: "Campaign is already running", Err: err}
		case errors.Is(err, domain.ErrNotFound):
			return nil, notFound("Campaign not found", err)
		}
		return nil, internal("acquire campaign lease", err)
	}
	releaseCtx := context.WithoutCancel(ctx)
	keeper := lease.Keep(ctx, o.deps.Locker, held, o.cfg.HeartbeatInterval, log)
	defer func() {
		keeper.Stop()
		if releaseErr := o.deps.Locker.Release(releaseCtx, held); releaseErr != nil {
			log.Warn("Failed to release campaign lease", infralogger.Error(releaseErr))
		}
	}()
	ctx = keeper.Context()

	website, err := store.GetWebsite(ctx, campaign.WebsiteID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, notFound("Website not found", err)
		}
		return nil, internal("load website", err)
	}

	if missing := append(website.MissingFields(), campaign.MissingFields()...); len(missing) > 0 {
		msg := "Campaign is missing required fields: " + strings.Join(missing, ", ")
		return nil, o.fail(ctx, log, campaign, nil, configuration(msg, nil))
	}

	backlinks, err := store.ListBacklinks(ctx, campaign.ID)
	if err != nil {
		return nil, o.fail(ctx, log, campaign, nil, internal("list backlinks", err))
	}

	// The lease is ours, so a running row is either the next batch of a
	// healthy campaign or one a dead holder left behind.
	if campaign.Status == domain.CampaignRunning && o.stuck(campaign, countInFlight(backlinks)) {
		if err = o.requeueStuck(ctx, log, campaign); err != nil {
			return nil, err
		}
	}

	if campaign.Status != domain.CampaignRunning {
		if err = store.UpdateCampaignStatus(ctx, campaign.ID, domain.CampaignRunning, ""); err != nil {
			return nil, internal("mark campaign running", err)
		}
		campaign.Status = domain.CampaignRunning
		o.deps.Events.Publish(ctx, infraevents.New(infraevents.CampaignRunning, campaign.ID, campaign.WebsiteID, nil))
	}

	if len(backlinks) == 0 {
		return nil, o.fail(ctx, log, campaign, nil,
			configuration("Campaign has no backlinks to process", domain.ErrNoBacklinks))
	}

	batch := domain.SelectBatch(backlinks, o.cfg.BatchSize)
	if len(batch) == 0 {
		if err = o.complete(ctx, campaign); err != nil {
			return nil, internal("mark campaign completed", err)
		}
		log.Info("No backlinks left to process, campaign completed")
		return &Result{Success: true, CampaignID: campaign.ID, Status: domain.CampaignCompleted}, nil
	}

	ids := domain.BacklinkIDs(batch)
	log = log.With(infralogger.Int("batch_size", len(ids)))
	if err = store.MarkBacklinksProcessing(ctx, ids); err != nil {
		return nil, o.fail(ctx, log, campaign, ids, internal("mark backlinks processing", err))
	}

	return o.runBatch(ctx, log, keeper, campaign, website, batch, ids)
}

// stuck reports whether a running campaign whose lease was free was abandoned
// mid-batch or has not moved for a full lease TTL.
func (o *Orchestrator) stuck(campaign *domain.Campaign, inFlight int) bool {
	return inFlight > 0 || o.now().Sub(campaign.UpdatedAt) > o.cfg.LeaseTTL
}

func inFlightCount(counts map[domain.BacklinkStatus]int) int {
	return counts[domain.BacklinkProcessing] + counts[domain.BacklinkLegacyRunning]
}

func countInFlight(backlinks []domain.Backlink) int {
	n := 0
	for i := range backlinks {
		if backlinks[i].Status == domain.BacklinkProcessing || backlinks[i].Status == domain.BacklinkLegacyRunning {
			n++
		}
	}
	return n
}

// requeueStuck queues a stuck campaign inline. Its orphaned processing rows
// stay selectable and are picked up by this batch.
func (o *Orchestrator) requeueStuck(ctx context.Context, log infralogger.Logger, campaign *domain.Campaign) error {
	log.Warn("Recovering stuck campaign",
		infralogger.Time("updated_at", campaign.UpdatedAt),
	)
	if err := o.deps.Store.UpdateCampaignStatus(ctx, campaign.ID, domain.CampaignQueued, ""); err != nil {
		return internal("requeue stuck campaign", err)
	}
	campaign.Status = domain.CampaignQueued
	o.deps.Metrics.StuckRecovered()
	o.deps.Events.Publish(ctx, infraevents.New(infraevents.CampaignReset, campaign.ID, campaign.WebsiteID,
		infraevents.CampaignResetPayload{Trigger: "recovery"}))
	return nil
}

// runBatch is everything after the batch was claimed. Any failure restores ids to pending.
func (o *Orchestrator) runBatch(
	ctx context.Context,
	log infralogger.Logger,
	keeper *lease.Keeper,
	campaign *domain.Campaign,
	website *domain.Website,
	batch []domain.Backlink,
	ids []string,
) (*Result, error) {
	heading, err := o.step(ctx, "heading", func(ctx context.Context) (string, error) {
		return o.deps.Headings.Generate(ctx, generator.HeadingRequest{Campaign: campaign, WebsiteID: website.ID})
	})
	if err != nil {
		return nil, o.fail(ctx, log, campaign, ids, headingError(err))
	}
	if strings.TrimSpace(heading) == "" {
		return nil, o.fail(ctx, log, campaign, ids, headingError(errors.New("empty heading")))
	}

	content, err := o.step(ctx, "content", func(ctx context.Context) (string, error) {
		return o.deps.Content.Generate(ctx, generator.ContentRequest{Campaign: campaign, Heading: heading, Backlinks: batch})
	})
	if err != nil {
		return nil, o.fail(ctx, log, campaign, ids, contentError(err))
	}
	if strings.TrimSpace(content) == "" {
		return nil, o.fail(ctx, log, campaign, ids, contentError(errors.New("empty content")))
	}

	publisher, err := o.deps.Publishers(website)
	if err != nil {
		return nil, o.fail(ctx, log, campaign, ids, configuration(err.Error(), err))
	}

	// Only the lease owner uploads media or publishes.
	if err = keeper.Confirm(ctx); err != nil {
		return nil, o.abandon(ctx, log, ids, leaseLost(err))
	}
	featured := o.deps.Images.Attach(ctx, image.ImageRequest{Heading: heading, Website: website, Uploader: publisher})
	if !featured.Present {
		o.deps.Metrics.ImageSkipped(featured.SkipReason)
	}

	post, err := o.publish(ctx, publisher, website, heading, content, featured)
	if err != nil {
		return nil, o.fail(ctx, log, campaign, ids, publishError(err))
	}

	if err = keeper.Confirm(ctx); err != nil {
		log.Error("Post published but campaign lease lost before commit",
			infralogger.String("post_url", post.Link),
			infralogger.Error(err),
		)
		return nil, o.abandon(ctx, log, ids, leaseLost(err))
	}
	history, err := o.deps.Store.CommitBatch(ctx, domain.BatchCommit{
		Campaign:       campaign,
		BacklinkIDs:    ids,
		Heading:        heading,
		PostURL:        post.Link,
		ContentPreview: preview(content, o.cfg.PreviewRunes),
		IndexedAt:      o.now().UTC(),
	})
	if err != nil {
		log.Error("Post published but batch commit failed",
			infralogger.String("post_url", post.Link),
			infralogger.Error(err),
		)
		return nil, o.fail(ctx, log, campaign, ids, internal("commit batch", err))
	}
	o.deps.Metrics.AddIndexed(len(ids))
	o.indexHistory(ctx, log, history)

	result := &Result{
		Success:       true,
		CampaignID:    campaign.ID,
		Indexed:       len(ids),
		Status:        domain.CampaignRunning,
		Heading:       heading,
		PostURL:       post.Link,
		ImageAttached: featured.Present,
	}

	remaining, err := o.deps.Store.CountRemaining(ctx, campaign.ID)
	if err != nil {
		return nil, internal("count remaining backlinks", err)
	}
	result.Remaining = remaining

	o.deps.Events.Publish(ctx, infraevents.New(infraevents.BatchIndexed, campaign.ID, campaign.WebsiteID,
		infraevents.BatchIndexedPayload{
			Indexed:       result.Indexed,
			Remaining:     remaining,
			Heading:       heading,
			PostURL:       post.Link,
			ImageAttached: featured.Present,
		}))

	if remaining == 0 {
		if err = o.complete(ctx, campaign); err != nil {
			return nil, internal("mark campaign completed", err)
		}
		result.Status = domain.CampaignCompleted
	}

	log.Info("Batch indexed",
		infralogger.String("post_url", post.Link),
		infralogger.Int("remaining", remaining),
		infralogger.Bool("image_attached", featured.Present),
	)
	return result, nil
}

func (o *Orchestrator) step(
	ctx context.Context, name string, fn func(context.Context) (string, error),
) (string, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator."+name)
	defer span.End()
	out, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (o *Orchestrator) publish(
	ctx context.Context,
	publisher Publisher,
	website *domain.Website,
	heading, content string,
	featured image.FeaturedImage,
) (*wordpress.Post, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.publish")
	defer span.End()

	req := wordpress.PostRequest{Title: heading, Content: content, Status: wordpress.StatusPublish}
	if featured.Present {
		req.FeaturedMedia = featured.MediaID
	}
	if website.CategoryID > 0 {
		req.Categories = []int64{website.CategoryID}
	}

	post, err := publisher.CreatePost(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if strings.TrimSpace(post.Link) == "" {
		err = errors.New("response has no post link")
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int64("wordpress.post_id", post.ID))
	return post, nil
}

// fail restores the claimed backlinks, parks the campaign in failed and
// returns e. Writes use a context that survives caller cancellation. Once the
// lease is lost the campaign row is left to its new holder.
func (o *Orchestrator) fail(
	ctx context.Context, log infralogger.Logger, campaign *domain.Campaign, ids []string, e *Error,
) error {
	if cause := context.Cause(ctx); errors.Is(cause, lease.ErrLost) {
		return o.abandon(ctx, log, ids, leaseLost(cause))
	}
	writeCtx := context.WithoutCancel(ctx)
	o.restore(writeCtx, log, ids)

	if err := o.deps.Store.UpdateCampaignStatus(writeCtx, campaign.ID, domain.CampaignFailed, e.Message); err != nil {
		log.Error("Failed to mark campaign failed", infralogger.Error(err))
	}
	campaign.Status = domain.CampaignFailed

	if e.Kind == KindUpstream {
		o.deps.Metrics.UpstreamFailure(string(e.Source))
	}
	o.deps.Events.Publish(writeCtx, infraevents.New(infraevents.CampaignFailed, campaign.ID, campaign.WebsiteID,
		infraevents.CampaignFailedPayload{Source: string(e.Source), Message: e.Message}))

	log.Error("Batch failed",
		infralogger.String("kind", string(e.Kind)),
		infralogger.String("source", string(e.Source)),
		infralogger.String("error", e.Message),
	)
	return e
}

// abandon gives the claimed backlinks back without touching the campaign row.
func (o *Orchestrator) abandon(ctx context.Context, log infralogger.Logger, ids []string, e *Error) error {
	o.restore(context.WithoutCancel(ctx), log, ids)
	o.deps.Metrics.LeaseLost()
	log.Warn("Campaign lease lost, batch abandoned", infralogger.Error(e.Err))
	return e
}

func (o *Orchestrator) restore(ctx context.Context, log infralogger.Logger, ids []string) {
	if len(ids) == 0 {
		return
	}
	restored, err := o.deps.Store.ResetBacklinks(ctx, ids)
	if err != nil {
		log.Error("Failed to restore batch backlinks to pending", infralogger.Error(err))
		return
	}
	o.deps.Metrics.Restored(restored)
}

func (o *Orchestrator) complete(ctx context.Context, campaign *domain.Campaign) error {
	if err := o.deps.Store.MarkCampaignCompleted(ctx, campaign.ID); err != nil {
		return err
	}
	campaign.Status = domain.CampaignCompleted
	o.deps.Events.Publish(ctx, infraevents.New(infraevents.CampaignCompleted, campaign.ID, campaign.WebsiteID, nil))
	return nil
}

func (o *Orchestrator) indexHistory(ctx context.Context, log infralogger.Logger, history *domain.IndexHistory) {
	if o.deps.History == nil || history == nil {
		return
	}
	if err := o.deps.History.IndexHistory(ctx, history); err != nil {
		log.Warn("Failed to index history for search", infralogger.Error(err))
	}
}

// preview keeps the first n runes of the body for the history row.
func preview(content string, n int) string {
	if utf8.RuneCountInString(content) <= n {
		return content
	}
	return string([]rune(content)[:n])
}
