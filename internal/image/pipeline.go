// Package image attaches an AI-rendered featured image to a post. Every step
// is best-effort: a failure yields FeaturedImage{Present: false} and the post
// is published without one.
package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	infraerrors "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/errors"
	infrahttp "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/http"
	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/generator"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/wordpress"
)

// Skip reasons, one per step.
const (
	SkipDisabled   = "disabled"
	SkipRender     = "render"
	SkipUpload     = "upload"
	SkipNoUploader = "no_uploader"
)

const (
	uploadFilename    = "featured-image.jpg"
	defaultImageType  = "image/jpeg"
	maxImageBytes     = 20 << 20
	promptTemperature = 0.7
	promptMaxTokens   = 300
	promptSystem      = "You are a professional image prompt engineer. Write one concise prompt for a " +
		"realistic editorial photograph that illustrates the given blog heading. No text, logos or " +
		"watermarks in the image. Output only the prompt."
)

// Config is the image block.
type Config struct {
	Enabled bool          `env:"IMAGE_ENABLED"  yaml:"enabled"`
	BaseURL string        `env:"IMAGE_BASE_URL" yaml:"base_url"`
	Width   int           `yaml:"width"`
	Height  int           `yaml:"height"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// SetDefaults fills the public renderer and a 1200x630 flux render.
func (c *Config) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://image.pollinations.ai"
	}
	if c.Width == 0 {
		c.Width = 1200
	}
	if c.Height == 0 {
		c.Height = 630
	}
	if c.Model == "" {
		c.Model = "flux"
	}
	if c.Timeout == 0 {
		c.Timeout = 2 * time.Minute
	}
}

// Uploader stores the rendered file on the website.
type Uploader interface {
	UploadMedia(ctx context.Context, filename, contentType string, data io.Reader) (*wordpress.Media, error)
}

// ImageRequest is the input for one featured image.
type ImageRequest struct {
	Heading  string
	Website  *domain.Website
	Uploader Uploader
}

// FeaturedImage is the optional outcome. MediaID is only meaningful when Present.
type FeaturedImage struct {
	MediaID    int64
	Present    bool
	SkipReason string
	Prompt     string
}

// Pipeline runs prompt, render and upload.
type Pipeline struct {
	cfg       Config
	completer generator.Completer
	client    *http.Client
	logger    logger.Logger
}

// NewPipeline accepts a nil completer, in which case the fallback prompt is always used.
func NewPipeline(cfg Config, completer generator.Completer, log logger.Logger) *Pipeline {
	cfg.SetDefaults()
	return &Pipeline{
		cfg:       cfg,
		completer: completer,
		client: infrahttp.NewClient(infrahttp.ClientConfig{
			Timeout:               cfg.Timeout,
			ResponseHeaderTimeout: cfg.Timeout,
		}),
		logger: log.With(logger.String("component", "image_pipeline")),
	}
}

// Attach never fails the caller.
func (p *Pipeline) Attach(ctx context.Context, req ImageRequest) FeaturedImage {
	ctx, span := otel.Tracer("backlink-indexer").Start(ctx, "image.attach")
	defer span.End()

	if !p.cfg.Enabled {
		return FeaturedImage{SkipReason: SkipDisabled}
	}
	if req.Uploader == nil {
		return FeaturedImage{SkipReason: SkipNoUploader}
	}

	prompt := p.prompt(ctx, req.Heading)
	result := FeaturedImage{Prompt: prompt}

	width, height, model := p.dimensions(req.Website)
	data, contentType, err := p.render(ctx, prompt, width, height, model)
	if err != nil {
		p.logger.Warn("Featured image render failed, publishing without image",
			logger.String("step", SkipRender),
			logger.Error(err),
		)
		result.SkipReason = SkipRender
		span.SetAttributes(attribute.String("image.skip_reason", SkipRender))
		return result
	}

	media, err := req.Uploader.UploadMedia(ctx, uploadFilename, contentType, bytes.NewReader(data))
	if err != nil {
		p.logger.Warn("Featured image upload failed, publishing without image",
			logger.String("step", SkipUpload),
			logger.Error(err),
		)
		result.SkipReason = SkipUpload
		span.SetAttributes(attribute.String("image.skip_reason", SkipUpload))
		return result
	}

	result.MediaID = media.ID
	result.Present = true
	span.SetAttributes(attribute.Int64("image.media_id", media.ID))
	return result
}

func (p *Pipeline) prompt(ctx context.Context, heading string) string {
	fallback := "Featured image for: " + heading
	if p.completer == nil {
		return fallback
	}
	text, err := p.completer.Complete(ctx, generator.Request{
		System:      promptSystem,
		Prompt:      fmt.Sprintf("Create image prompt for: %q", heading),
		Temperature: promptTemperature,
		MaxTokens:   promptMaxTokens,
	})
	if err != nil {
		p.logger.Warn("Image prompt generation failed, using fallback prompt", logger.Error(err))
		return fallback
	}
	if text = strings.TrimSpace(text); text == "" {
		return fallback
	}
	return text
}

// dimensions prefers the website's overrides.
func (p *Pipeline) dimensions(w *domain.Website) (width, height int, model string) {
	width, height, model = p.cfg.Width, p.cfg.Height, p.cfg.Model
	if w == nil {
		return width, height, model
	}
	if w.ImageWidth != nil && *w.ImageWidth > 0 {
		width = *w.ImageWidth
	}
	if w.ImageHeight != nil && *w.ImageHeight > 0 {
		height = *w.ImageHeight
	}
	if w.ImageModel != nil && strings.TrimSpace(*w.ImageModel) != "" {
		model = strings.TrimSpace(*w.ImageModel)
	}
	return width, height, model
}

// RenderURL builds the renderer GET URL.
func (p *Pipeline) RenderURL(prompt string, width, height int, model string) string {
	q := url.Values{}
	q.Set("width", strconv.Itoa(width))
	q.Set("height", strconv.Itoa(height))
	q.Set("model", model)
	q.Set("nologo", "true")
	return strings.TrimRight(p.cfg.BaseURL, "/") + "/prompt/" + url.PathEscape(prompt) + "?" + q.Encode()
}

func (p *Pipeline) render(ctx context.Context, prompt string, width, height int, model string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.RenderURL(prompt, width, height, model), http.NoBody)
	if err != nil {
		return nil, "", fmt.Errorf("create render request: %w", err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("render image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if parseErr := infraerrors.ParseHTTPError(resp); parseErr != nil {
		return nil, "", fmt.Errorf("render image: %w", parseErr)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, "", errors.New("render image: empty body")
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("render image: larger than %d bytes", maxImageBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		contentType = defaultImageType
	}
	p.logger.Debug("Featured image rendered",
		logger.Int("bytes", len(data)),
		logger.Duration("duration", time.Since(start)),
	)
	return data, contentType, nil
}
