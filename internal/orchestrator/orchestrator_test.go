package orchestrator_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraevents "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/events"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/generator"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/image"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/wordpress"
)

func requireKind(t *testing.T, err error, kind orchestrator.Kind) *orchestrator.Error {
	t.Helper()
	var oe *orchestrator.Error
	require.ErrorAs(t, err, &oe)
	require.Equal(t, kind, oe.Kind)
	return oe
}

func TestProcessBatch_SevenBacklinksInTwoBatches(t *testing.T) {
	h := newHarness()
	h.store.addBacklinks(campaignID, 7, domain.BacklinkPending)
	ctx := context.Background()

	first, err := h.orch.ProcessBatch(ctx, campaignID)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, 5, first.Indexed)
	assert.Equal(t, 2, first.Remaining)
	assert.Equal(t, domain.CampaignRunning, first.Status)
	assert.True(t, first.ImageAttached)
	assert.Equal(t, domain.CampaignRunning, h.store.campaign(campaignID).Status)

	second, err := h.orch.ProcessBatch(ctx, campaignID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Indexed)
	assert.Equal(t, 0, second.Remaining)
	assert.Equal(t, domain.CampaignCompleted, second.Status)

	c := h.store.campaign(campaignID)
	assert.Equal(t, domain.CampaignCompleted, c.Status)
	assert.NotNil(t, c.CompletedAt)
	assert.Equal(t, 7, c.IndexedBacklinks)
	assert.LessOrEqual(t, c.IndexedBacklinks, c.TotalBacklinks)
	assert.Len(t, h.store.history, 2)
	assert.Len(t, h.store.headings, 2)

	// Every member of a batch carries that batch's heading and link.
	for i, b := range h.store.backlinksOf(campaignID) {
		require.Equal(t, domain.BacklinkIndexed, b.Status)
		require.NotNil(t, b.IndexedBlogURL)
		require.NotEmpty(t, *b.IndexedBlogURL)
		want := first
		if i >= 5 {
			want = second
		}
		assert.Equal(t, want.Heading, *b.HeadingGenerated)
		assert.Equal(t, want.PostURL, *b.IndexedBlogURL)
	}

	require.Len(t, h.publisher.posts, 2)
	post := h.publisher.posts[0]
	assert.Equal(t, wordpress.StatusPublish, post.Status)
	assert.Equal(t, int64(9), post.FeaturedMedia)
	assert.Equal(t, []int64{3}, post.Categories)
	assert.Equal(t, "<p>5 links</p>", post.Content)
}

func TestProcessBatch_ZeroBacklinksFails(t *testing.T) {
	h := newHarness()

	_, err := h.orch.ProcessBatch(context.Background(), campaignID)

	oe := requireKind(t, err, orchestrator.KindUpstream)
	assert.Equal(t, orchestrator.SourceConfiguration, oe.Source)
	assert.ErrorIs(t, err, domain.ErrNoBacklinks)
	c := h.store.campaign(campaignID)
	assert.Equal(t, domain.CampaignFailed, c.Status)
	require.NotNil(t, c.ErrorMessage)
	assert.Contains(t, *c.ErrorMessage, "no backlinks to process")
	assert.Zero(t, h.headingCalls)
}

func TestProcessBatch_AllIndexedCompletesWithoutCalls(t *testing.T) {
	h := newHarness()
	h.store.addBacklinks(campaignID, 3, domain.BacklinkIndexed)

	result, err := h.orch.ProcessBatch(context.Background(), campaignID)
	require.NoError(t, err)

	assert.Equal(t, domain.CampaignCompleted, result.Status)
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, 0, result.Indexed)
	assert.Zero(t, h.headingCalls)
	assert.Zero(t, h.contentCalls)
	assert.Zero(t, h.images.calls)
	assert.Empty(t, h.publisher.posts)
	assert.NotNil(t, h.store.campaign(campaignID).CompletedAt)
}

func TestProcessBatch_LeaseHeldIsConflictWithoutMutation(t *testing.T) {
	h := newHarness()
	h.store.addBacklinks(campaignID, 3, domain.BacklinkProcessing)
	h.store.campaigns[campaignID].Status = domain.CampaignRunning
	_, err := h.locker.Acquire(context.Background(), campaignID, time.Hour)
	require.NoError(t, err)

	_, err = h.orch.ProcessBatch(context.Background(), campaignID)

	oe := requireKind(t, err, orchestrator.KindConflict)
	assert.Equal(t, http.StatusConflict, oe.HTTPStatus())
	assert.Zero(t, h.store.writes)
	assert.Equal(t, domain.CampaignRunning, h.store.campaign(campaignID).Status)
	assert.Equal(t, 3, h.store.statuses(campaignID)[domain.BacklinkProcessing])
}

func TestProcessBatch_StaleRunningCampaignProceeds(t *testing.T) {
	h := newHarness()
	h.store.addBacklinks(campaignID, 2, domain.BacklinkProcessing)
	h.store.addBacklinks(campaignID, 1, domain.BacklinkPending)
	c := h.store.campaigns[campaignID]
	c.Status = domain.CampaignRunning
	c.UpdatedAt = time.Now().Add(-45 * time.Minute)

	// The previous holder's lease expired.
	_, err := h.locker.Acquire(context.Background(), campaignID, time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	result, err := h.orch.ProcessBatch(context.Background(), campaignID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Indexed)
	assert.Equal(t, domain.CampaignCompleted, result.Status)
	assert.Equal(t, 3, h.store.statuses(campaignID)[domain.BacklinkIndexed])
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.StuckRecoveries), 0)
	assert.Equal(t, 1, h.events.count(infraevents.CampaignReset))
}

func TestProcessBatch_HeadingErrorFailsAndRestoresBatch(t *testing.T) {
	h := newHarness()
	h.store.addBacklinks(campaignID, 6, domain.BacklinkPending)
	h.headingErr = &generator.APIError{Provider: "openrouter", StatusCode: 402, Body: "insufficient credits"}

	_, err := h.orch.ProcessBatch(context.Background(), campaignID)

	oe := requireKind(t, err, orchestrator.KindUpstream)
	assert.Equal(t, orchestrator.SourceAI, oe.Source)
	assert.Contains(t, oe.UserMessage(), "OpenRouter API key")

	c := h.store.campaign(campaignID)
	assert.Equal(t, domain.CampaignFailed, c.Status)
	require.NotNil(t, c.ErrorMessage)
	assert.Contains(t, *c.ErrorMessage, "AI service failed: 402 insufficient credits")
	assert.Empty(t, h.store.history)
	assert.Empty(t, h.store.headings)
	assert.Equal(t, 6, h.store.statuses(campaignID)[domain.BacklinkPending])
	assert.Zero(t, h.contentCalls)
}

func TestProcessBatch_ContentErrorFailsAndRestoresBatch(t *testing.T) {
	cases := map[string]struct {
		err     error
		source  orchestrator.Source
		message string
	}{
		"provider": {
			err:     &generator.APIError{Provider: "openrouter", StatusCode: 429, Body: "rate limited"},
			source:  orchestrator.SourceAI,
			message: "AI service failed: 429 rate limited",
		},
		"invalid request": {
			err:     &generator.ContentError{Reason: "no backlinks in batch"},
			source:  orchestrator.SourceContent,
			message: "Content generation failed: no backlinks in batch",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness()
			h.store.addBacklinks(campaignID, 3, domain.BacklinkPending)
			h.onContent = func(context.Context) (string, error) { return "", tc.err }

			_, err := h.orch.ProcessBatch(context.Background(), campaignID)

			oe := requireKind(t, err, orchestrator.KindUpstream)
			assert.Equal(t, tc.source, oe.Source)
			assert.Equal(t, tc.message, oe.Message)
			c := h.store.campaign(campaignID)
			assert.Equal(t, domain.CampaignFailed, c.Status)
			require.NotNil(t, c.ErrorMessage)
			assert.Equal(t, tc.message, *c.ErrorMessage)
			assert.Equal(t, 3, h.store.statuses(campaignID)[domain.BacklinkPending])
			assert.Equal(t, 1, h.headingCalls)
			assert.Zero(t, h.images.calls)
			assert.Empty(t, h.publisher.posts)
			assert.Empty(t, h.store.history)
			assert.InDelta(t, 3, testutil.ToFloat64(h.metrics.BacklinksRestored), 0)
			assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.UpstreamFailures.WithLabelValues(string(tc.source))), 0)
			assert.Equal(t, 1, h.events.count(infraevents.CampaignFailed))
		})
	}
}

func TestProcessBatch_EmptyHeadingFails(t *testing.T) {
	h := newHarness()
	h.store.addBacklinks(campaignID, 2, domain.BacklinkPending)
	h.onHeading = func(context.Context) (string, error) { return " \n ", nil }

	_, err := h.orch.ProcessBatch(context.Background(), campaignID)

	oe := requireKind(t, err, orchestrator.KindUpstream)
	assert.Equal(t, orchestrator.SourceHeading, oe.Source)
	assert.Equal(t, "Heading generation failed: empty heading", oe.Message)
	assert.Equal(t, domain.CampaignFailed, h.store.campaign(campaignID).Status)
	assert.Equal(t, 2, h.store.statuses(campaignID)[domain.BacklinkPending])
	assert.Zero(t, h.contentCalls)
	assert.Empty(t, h.publisher.posts)
}

func TestProcessBatch_EmptyContentFails(t *testing.T) {
	h := newHarness()
	h.store.addBacklinks(campaignID, 2, domain.BacklinkPending)
	h.onContent = func(context.Context) (string, error) { return "", nil }

	_, err := h.orch.ProcessBatch(context.Background(), campaignID)

	oe := requireKind(t, err, orchestrator.KindUpstream)
	assert.Equal(t, orchestrator.SourceContent, oe.Source)
	assert.Equal(t, "Content generation failed: empty content", oe.Message)
	assert.Equal(t, domain.CampaignFailed, h.store.campaign(campaignID).Status)
	assert.Equal(t, 2, h.store.statuses(campaignID)[domain.BacklinkPending])
	assert.Zero(t, h.images.calls)
	assert.Empty(t, h.publisher.posts)
	assert.Empty(t, h.store.history)
}

func TestProcessBatch_PublisherFactoryErrorIsConfiguration(t *testing.T) {
	h := newHarness()
	h.store.addBacklinks(campaignID, 2, domain.BacklinkPending)
	h.publisherErr = errors.New("decrypt app password: cipher: message authentication failed")

	_, err := h.orch.ProcessBatch(context.Background(), campaignID)

	oe := requireKind(t, err, orchestrator.KindUpstream)
	assert.Equal(t, orchestrator.SourceConfiguration, oe.Source)
	require.ErrorIs(t, err, h.publisherErr)
	assert.Equal(t,
		"Campaign configuration error: decrypt app password: cipher: message authentication failed",
		oe.UserMessage())
	c := h.store.campaign(campaignID)
	assert.Equal(t, domain.CampaignFailed, c.Status)
	require.NotNil(t, c.ErrorMessage)
	assert.Equal(t, h.publisherErr.Error(), *c.ErrorMessage)
	assert.Equal(t, 2, h.store.statuses(campaignID)[domain.BacklinkPending])
	assert.Zero(t, h.images.calls)
	assert.Empty(t, h.publisher.posts)
}

func TestProcessBatch_ImageFailureStillIndexes(t *testing.T) {
	h := newHarness()
	h.store.addBacklinks(campaignID, 4, domain.BacklinkPending)
	h.images.result = image.FeaturedImage{SkipReason: image.SkipUpload}

	result, err := h.orch.ProcessBatch(context.Background(), campaignID)
	require.NoError(t, err)

	assert.False(t, result.ImageAttached)
	assert.Equal(t, 4, h.store.statuses(campaignID)[domain.BacklinkIndexed])
	require.Len(t, h.publisher.posts, 1)
	assert.Zero(t, h.publisher.posts[0].FeaturedMedia)
}

func TestProcessBatch_PublishFailure(t *testing.T) {
	h := newHarness()
	h.store.addBacklinks(campaignID, 2, domain.BacklinkPending)
	h.publisher.postErr = &wordpress.APIError{Op: wordpress.OpPost, StatusCode: 401, Body: "rest_cannot_create"}

	_, err := h.orch.ProcessBatch(context.Background(), campaignID)

	oe := requireKind(t, err, orchestrator.KindUpstream)
	assert.Equal(t, orchestrator.SourceWordPress, oe.Source)
	assert.Equal(t, "WordPress post failed: 401 rest_cannot_create", oe.Message)
	assert.Equal(t, http.StatusInternalServerError, oe.HTTPStatus())
	assert.Equal(t, 2, h.store.statuses(campaignID)[domain.BacklinkPending])
	assert.Equal(t, domain.CampaignFailed, h.store.campaign(campaignID).Status)
}

func TestProcessBatch_CommitFailureRestoresBatch(t *testing.T) {
	h := newHarness()
	h.store.addBacklinks(campaignID, 2, domain.BacklinkPending)
	h.store.commitErr = errors.New("connection reset")

	_, err := h.orch.ProcessBatch(context.Background(), campaignID)

	requireKind(t, err, orchestrator.KindInternal)
	assert.Equal(t, 2, h.store.statuses(campaignID)[domain.BacklinkPending])
	assert.Equal(t, domain.CampaignFailed, h.store.campaign(campaignID).Status)
}

func TestProcessBatch_ValidationFailure(t *testing.T) {
	h := newHarness()
	h.store.addBacklinks(campaignID, 2, domain.BacklinkPending)
	h.store.campaigns[campaignID].Keyword3 = ""
	h.store.websites[websiteID].AppPassword = ""

	_, err := h.orch.ProcessBatch(context.Background(), campaignID)

	oe := requireKind(t, err, orchestrator.KindUpstream)
	assert.Equal(t, orchestrator.SourceConfiguration, oe.Source)
	assert.Equal(t, "Campaign configuration error: Campaign is missing required fields: wp_app_password, keyword_3", oe.UserMessage())
	assert.Equal(t, domain.CampaignFailed, h.store.campaign(campaignID).Status)
	assert.Equal(t, 2, h.store.statuses(campaignID)[domain.BacklinkPending])
	assert.Zero(t, h.headingCalls)
}

func TestProcessBatch_BadInput(t *testing.T) {
	h := newHarness()

	_, err := h.orch.ProcessBatch(context.Background(), "  ")
	oe := requireKind(t, err, orchestrator.KindMissingParameter)
	assert.Equal(t, http.StatusBadRequest, oe.HTTPStatus())

	_, err = h.orch.ProcessBatch(context.Background(), "nope")
	oe = requireKind(t, err, orchestrator.KindNotFound)
	assert.Equal(t, http.StatusNotFound, oe.HTTPStatus())
}

func TestProcessBatch_ReleasesLease(t *testing.T) {
	h := newHarness()
	h.store.addBacklinks(campaignID, 1, domain.BacklinkPending)

	_, err := h.orch.ProcessBatch(context.Background(), campaignID)
	require.NoError(t, err)

	held, err := h.locker.Held(context.Background(), campaignID)
	require.NoError(t, err)
	assert.False(t, held)
}
