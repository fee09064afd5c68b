package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	infraevents "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/events"
	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/generator"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/image"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/lease"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/metrics"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/wordpress"
)

// memStore is an in-memory orchestrator.Store. writes counts mutations.
type memStore struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
	websites  map[string]*domain.Website
	backlinks []*domain.Backlink
	history   []domain.IndexHistory
	headings  []string
	writes    int
	commitErr error
}

func newMemStore() *memStore {
	return &memStore{
		campaigns: map[string]*domain.Campaign{},
		websites:  map[string]*domain.Website{},
	}
}

func (s *memStore) addBacklinks(campaignID string, n int, status domain.BacklinkStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range n {
		s.backlinks = append(s.backlinks, &domain.Backlink{
			ID:         fmt.Sprintf("%s-bl-%d", campaignID, len(s.backlinks)+1),
			CampaignID: campaignID,
			URL:        fmt.Sprintf("https://target.example/%s/%d", campaignID, i+1),
			Status:     status,
		})
	}
	if c, ok := s.campaigns[campaignID]; ok {
		c.TotalBacklinks += n
	}
}

func (s *memStore) campaign(id string) domain.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.campaigns[id]
}

func (s *memStore) statuses(campaignID string) map[domain.BacklinkStatus]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[domain.BacklinkStatus]int{}
	for _, b := range s.backlinks {
		if b.CampaignID == campaignID {
			out[b.Status]++
		}
	}
	return out
}

func (s *memStore) backlinksOf(campaignID string) []domain.Backlink {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Backlink
	for _, b := range s.backlinks {
		if b.CampaignID == campaignID {
			out = append(out, *b)
		}
	}
	return out
}

func (s *memStore) GetCampaign(_ context.Context, id string) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) GetWebsite(_ context.Context, id string) (*domain.Website, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.websites[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *memStore) ListBacklinks(_ context.Context, campaignID string) ([]domain.Backlink, error) {
	return s.backlinksOf(campaignID), nil
}

func (s *memStore) UpdateCampaignStatus(_ context.Context, id string, status domain.CampaignStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.writes++
	c.Status = status
	c.ErrorMessage = nil
	if errMsg != "" {
		c.ErrorMessage = &errMsg
	}
	c.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) MarkCampaignCompleted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.writes++
	now := time.Now()
	c.Status = domain.CampaignCompleted
	c.CompletedAt = &now
	c.ErrorMessage = nil
	return nil
}

func (s *memStore) setBacklinkStatus(ids []string, from []domain.BacklinkStatus, to domain.BacklinkStatus) int64 {
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var n int64
	for _, b := range s.backlinks {
		if !want[b.ID] {
			continue
		}
		if from != nil && !containsStatus(from, b.Status) {
			continue
		}
		b.Status = to
		n++
	}
	return n
}

func containsStatus(list []domain.BacklinkStatus, s domain.BacklinkStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var inFlight = []domain.BacklinkStatus{domain.BacklinkProcessing, domain.BacklinkLegacyRunning}

func (s *memStore) MarkBacklinksProcessing(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.setBacklinkStatus(ids, nil, domain.BacklinkProcessing)
	return nil
}

func (s *memStore) ResetBacklinks(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	return s.setBacklinkStatus(ids, inFlight, domain.BacklinkPending), nil
}

func (s *memStore) ResetCampaignBacklinks(_ context.Context, campaignID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	var ids []string
	for _, b := range s.backlinks {
		if b.CampaignID == campaignID {
			ids = append(ids, b.ID)
		}
	}
	return s.setBacklinkStatus(ids, inFlight, domain.BacklinkPending), nil
}

func (s *memStore) CommitBatch(_ context.Context, commit domain.BatchCommit) (*domain.IndexHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return nil, s.commitErr
	}
	s.writes++
	want := map[string]bool{}
	for _, id := range commit.BacklinkIDs {
		want[id] = true
	}
	for _, b := range s.backlinks {
		if want[b.ID] {
			b.Status = domain.BacklinkIndexed
			link, heading, at := commit.PostURL, commit.Heading, commit.IndexedAt
			b.IndexedBlogURL, b.HeadingGenerated, b.IndexedAt = &link, &heading, &at
		}
	}
	h := domain.IndexHistory{
		ID:             fmt.Sprintf("hist-%d", len(s.history)+1),
		CampaignID:     commit.Campaign.ID,
		WebsiteID:      commit.Campaign.WebsiteID,
		Heading:        commit.Heading,
		IndexedURL:     commit.PostURL,
		BacklinksCount: len(commit.BacklinkIDs),
		CreatedAt:      commit.IndexedAt,
	}
	s.history = append(s.history, h)
	s.headings = append(s.headings, commit.Heading)

	c := s.campaigns[commit.Campaign.ID]
	c.IndexedBacklinks += len(commit.BacklinkIDs)
	if c.TotalBacklinks > 0 && c.IndexedBacklinks > c.TotalBacklinks {
		c.IndexedBacklinks = c.TotalBacklinks
	}
	return &h, nil
}

func (s *memStore) CountRemaining(_ context.Context, campaignID string) (int, error) {
	counts := s.statuses(campaignID)
	return counts[domain.BacklinkPending] + counts[domain.BacklinkProcessing], nil
}

func (s *memStore) BacklinkStatusCounts(_ context.Context, campaignID string) (map[domain.BacklinkStatus]int, error) {
	return s.statuses(campaignID), nil
}

func (s *memStore) ListCampaignsByStatus(_ context.Context, statuses []domain.CampaignStatus, limit int) ([]domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Campaign
	for _, c := range s.campaigns {
		for _, st := range statuses {
			if c.Status == st && len(out) < limit {
				out = append(out, *c)
			}
		}
	}
	return out, nil
}

func (s *memStore) TouchWebsiteTested(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.websites[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.writes++
	now := time.Now()
	w.Status = status
	w.LastTestedAt = &now
	return nil
}

type headingFunc func(ctx context.Context, req generator.HeadingRequest) (string, error)

func (f headingFunc) Generate(ctx context.Context, req generator.HeadingRequest) (string, error) {
	return f(ctx, req)
}

type contentFunc func(ctx context.Context, req generator.ContentRequest) (string, error)

func (f contentFunc) Generate(ctx context.Context, req generator.ContentRequest) (string, error) {
	return f(ctx, req)
}

type fixedImage struct {
	result image.FeaturedImage
	calls  int
}

func (f *fixedImage) Attach(context.Context, image.ImageRequest) image.FeaturedImage {
	f.calls++
	return f.result
}

type fakePublisher struct {
	mu      sync.Mutex
	posts   []wordpress.PostRequest
	postErr error
	userErr error
}

func (p *fakePublisher) CreatePost(_ context.Context, req wordpress.PostRequest) (*wordpress.Post, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.postErr != nil {
		return nil, p.postErr
	}
	p.posts = append(p.posts, req)
	n := len(p.posts)
	return &wordpress.Post{ID: int64(n), Link: fmt.Sprintf("https://blog.example/post-%d/", n)}, nil
}

func (p *fakePublisher) UploadMedia(context.Context, string, string, io.Reader) (*wordpress.Media, error) {
	return &wordpress.Media{ID: 9}, nil
}

func (p *fakePublisher) CurrentUser(context.Context) (*wordpress.User, error) {
	if p.userErr != nil {
		return nil, p.userErr
	}
	return &wordpress.User{ID: 1, Name: "Editor"}, nil
}

// recordingEvents keeps every published event type.
type recordingEvents struct {
	mu    sync.Mutex
	types []infraevents.EventType
}

func (r *recordingEvents) Publish(_ context.Context, event infraevents.CampaignEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, event.EventType)
}

func (r *recordingEvents) count(t infraevents.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.types {
		if got == t {
			n++
		}
	}
	return n
}

// unreachableLocker acquires and releases through a MemoryLocker but every
// extend fails as if the backend were down.
type unreachableLocker struct {
	*lease.MemoryLocker
}

func (unreachableLocker) Extend(context.Context, *lease.Lease) error {
	return errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
}

// harness wires an orchestrator over fakes with one campaign on one website.
// The on* hooks replace the default generator output when set.
type harness struct {
	store        *memStore
	locker       *lease.MemoryLocker
	publisher    *fakePublisher
	images       *fixedImage
	events       *recordingEvents
	metrics      *metrics.Metrics
	headingCalls int
	contentCalls int
	headingErr   error
	onHeading    func(ctx context.Context) (string, error)
	onContent    func(ctx context.Context) (string, error)
	publisherErr error
	orch         *orchestrator.Orchestrator
}

const (
	campaignID = "camp-1"
	websiteID  = "site-1"
)

func newHarness() *harness {
	h := &harness{
		store:     newMemStore(),
		locker:    lease.NewMemoryLocker(),
		publisher: &fakePublisher{},
		images:    &fixedImage{result: image.FeaturedImage{MediaID: 9, Present: true}},
		events:    &recordingEvents{},
		metrics:   metrics.New(prometheus.NewRegistry()),
	}
	h.store.websites[websiteID] = &domain.Website{
		ID:          websiteID,
		URL:         "https://blog.example",
		Username:    "editor",
		AppPassword: "app pass",
		CategoryID:  3,
	}
	h.store.campaigns[campaignID] = &domain.Campaign{
		ID:          campaignID,
		WebsiteID:   websiteID,
		Name:        "Austin plumbing",
		Category:    "Plumbing",
		Location:    "Austin",
		CompanyName: "Acme Plumbing",
		Keyword1:    "emergency plumber",
		Keyword2:    "drain cleaning",
		Keyword3:    "water heater repair",
		Keyword4:    "leak detection",
		Keyword5:    "pipe replacement",
		Status:      domain.CampaignQueued,
		UpdatedAt:   time.Now(),
	}
	h.rebuild(orchestrator.Config{}, nil)
	return h
}

// rebuild replaces the orchestrator with one built from cfg. edit may swap
// collaborators before construction.
func (h *harness) rebuild(cfg orchestrator.Config, edit func(*orchestrator.Deps)) {
	deps := orchestrator.Deps{
		Store:  h.store,
		Locker: h.locker,
		Headings: headingFunc(func(ctx context.Context, req generator.HeadingRequest) (string, error) {
			h.headingCalls++
			if h.onHeading != nil {
				return h.onHeading(ctx)
			}
			if h.headingErr != nil {
				return "", h.headingErr
			}
			return fmt.Sprintf("Who Is the Best Plumber in %s? #%d", req.Campaign.Location, h.headingCalls), nil
		}),
		Content: contentFunc(func(ctx context.Context, req generator.ContentRequest) (string, error) {
			h.contentCalls++
			if h.onContent != nil {
				return h.onContent(ctx)
			}
			return fmt.Sprintf("<p>%d links</p>", len(req.Backlinks)), nil
		}),
		Images: h.images,
		Publishers: func(*domain.Website) (orchestrator.Publisher, error) {
			if h.publisherErr != nil {
				return nil, h.publisherErr
			}
			return h.publisher, nil
		},
		Events:  h.events,
		Metrics: h.metrics,
	}
	if edit != nil {
		edit(&deps)
	}
	h.orch = orchestrator.New(cfg, deps, logger.NewNop())
}
