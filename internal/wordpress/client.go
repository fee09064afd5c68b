// Package wordpress talks to the WordPress REST API of a customer website
// using application-password basic auth.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	infraerrors "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/errors"
	infrahttp "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/http"
	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
)

const (
	apiPrefix      = "/wp-json/wp/v2"
	maxResponse    = 1 << 20
	StatusPublish  = "publish"
	defaultTimeout = 60 * time.Second
)

// Operation names the REST call that failed.
type Operation string

const (
	OpPost  Operation = "post"
	OpMedia Operation = "media upload"
	OpUser  Operation = "connection test"
)

// APIError is a non-2xx answer from WordPress.
type APIError struct {
	Op         Operation
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("WordPress %s failed: %d %s", e.Op, e.StatusCode, e.Body)
}

// Config is the wordpress block.
type Config struct {
	Timeout            time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `env:"WORDPRESS_INSECURE_SKIP_VERIFY" yaml:"insecure_skip_verify"`
}

// Factory hands out per-website clients sharing one connection pool.
type Factory struct {
	http   *http.Client
	logger logger.Logger
}

// NewFactory builds the shared HTTP client.
func NewFactory(cfg Config, log logger.Logger) *Factory {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	if cfg.InsecureSkipVerify {
		log.Warn("TLS certificate verification is disabled for WordPress sites",
			logger.String("component", "wordpress_client"),
		)
	}
	return &Factory{
		http:   infrahttp.NewClient(infrahttp.ClientConfig{Timeout: timeout, InsecureSkipVerify: cfg.InsecureSkipVerify}),
		logger: log,
	}
}

// ForWebsite returns a client bound to the website's URL and credentials.
func (f *Factory) ForWebsite(w *domain.Website) (*Client, error) {
	if w == nil {
		return nil, errors.New("website is required")
	}
	if missing := w.MissingFields(); len(missing) > 0 {
		return nil, fmt.Errorf("website missing %s", strings.Join(missing, ", "))
	}
	return &Client{
		baseURL:  w.BaseURL(),
		username: w.Username,
		password: w.AppPassword,
		client:   f.http,
		logger: f.logger.With(
			logger.String("component", "wordpress_client"),
			logger.WebsiteID(w.ID),
		),
	}, nil
}

// Client is bound to one website.
type Client struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	logger   logger.Logger
}

// PostRequest is the body of POST /posts.
type PostRequest struct {
	Title         string  `json:"title"`
	Content       string  `json:"content"`
	Status        string  `json:"status"`
	FeaturedMedia int64   `json:"featured_media,omitempty"`
	Categories    []int64 `json:"categories,omitempty"`
}

// Post is the subset of the created post we keep.
type Post struct {
	ID   int64  `json:"id"`
	Link string `json:"link"`
}

// Media is an uploaded attachment.
type Media struct {
	ID        int64  `json:"id"`
	SourceURL string `json:"source_url"`
}

// User is the authenticated account.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// CreatePost publishes an article. Status defaults to publish.
func (c *Client) CreatePost(ctx context.Context, req PostRequest) (*Post, error) {
	if req.Status == "" {
		req.Status = StatusPublish
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal post: %w", err)
	}

	methodLogger := c.logger.With(
		logger.String("title", req.Title),
		logger.Int64("featured_media", req.FeaturedMedia),
	)
	methodLogger.Debug("Creating WordPress post")

	var post Post
	if err = c.do(ctx, OpPost, http.MethodPost, "/posts", "application/json", bytes.NewReader(payload), &post); err != nil {
		methodLogger.Error("WordPress post failed", logger.Error(err))
		return nil, err
	}

	methodLogger.Info("WordPress post created",
		logger.Int64("post_id", post.ID),
		logger.String("link", post.Link),
	)
	return &post, nil
}

// UploadMedia uploads a file as multipart field "file".
func (c *Client) UploadMedia(ctx context.Context, filename, contentType string, data io.Reader) (*Media, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreatePart(mediaPartHeader(filename, contentType))
	if err != nil {
		return nil, fmt.Errorf("create media part: %w", err)
	}
	if _, err = io.Copy(part, data); err != nil {
		return nil, fmt.Errorf("write media part: %w", err)
	}
	if err = mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	var media Media
	if err = c.do(ctx, OpMedia, http.MethodPost, "/media", mw.FormDataContentType(), &body, &media); err != nil {
		return nil, err
	}
	c.logger.Debug("WordPress media uploaded",
		logger.Int64("media_id", media.ID),
		logger.String("filename", filename),
	)
	return &media, nil
}

// CurrentUser verifies the credentials.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, OpUser, http.MethodGet, "/users/me", "", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) do(ctx context.Context, op Operation, method, path, contentType string, body io.Reader, out any) error {
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("wordpress %s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if parseErr := infraerrors.ParseHTTPError(resp); parseErr != nil {
		var httpErr *infraerrors.HTTPError
		errors.As(parseErr, &httpErr)
		c.logger.Warn("WordPress returned error status",
			logger.String("operation", string(op)),
			logger.Int("status", resp.StatusCode),
			logger.String("code", httpErr.Code),
			logger.Duration("duration", time.Since(start)),
		)
		return &APIError{Op: op, StatusCode: httpErr.StatusCode, Code: httpErr.Code, Body: httpErr.Body}
	}

	if err = json.NewDecoder(io.LimitReader(resp.Body, maxResponse)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}
