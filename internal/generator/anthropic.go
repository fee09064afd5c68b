package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	infrahttp "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/http"
)

const providerAnthropic = "anthropic"

// AnthropicConfig is the ai.anthropic block.
type AnthropicConfig struct {
	APIKey     string        `env:"ANTHROPIC_API_KEY"  yaml:"api_key"`
	BaseURL    string        `env:"ANTHROPIC_BASE_URL" yaml:"base_url"`
	Model      string        `env:"ANTHROPIC_MODEL"    yaml:"model"`
	MaxTokens  int           `yaml:"max_tokens"`
	MaxRetries int           `yaml:"max_retries"`
	Timeout    time.Duration `yaml:"timeout"`
}

// SetDefaults fills model and limits.
func (c *AnthropicConfig) SetDefaults() {
	if c.Model == "" {
		c.Model = "claude-3-5-haiku-latest"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.Timeout == 0 {
		c.Timeout = 3 * time.Minute
	}
}

// AnthropicCompleter calls the Messages API through the official SDK.
type AnthropicCompleter struct {
	client    anthropic.Client
	model     string
	maxTokens int
	hasKey    bool
}

// NewAnthropicCompleter builds the SDK client. Retries are left to the SDK.
func NewAnthropicCompleter(cfg AnthropicConfig) *AnthropicCompleter {
	cfg.SetDefaults()
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithHTTPClient(infrahttp.NewClient(infrahttp.ClientConfig{Timeout: cfg.Timeout})),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicCompleter{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		hasKey:    cfg.APIKey != "",
	}
}

// Complete implements Completer.
func (a *AnthropicCompleter) Complete(ctx context.Context, req Request) (string, error) {
	if !a.hasKey {
		return "", ErrNotConfigured
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = a.maxTokens
	}

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   int64(maxTokens),
		System:      []anthropic.TextBlockParam{{Text: req.System}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt))},
		Temperature: anthropic.Float(req.Temperature),
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &APIError{Provider: providerAnthropic, StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
		}
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
