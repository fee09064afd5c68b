package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/circuitbreaker"
	infraerrors "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/errors"
	infrahttp "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/http"
	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/retry"
)

const (
	providerOpenRouter = "openrouter"
	maxCompletionBody  = 10 << 20
)

// OpenRouterConfig is the ai.openrouter block.
type OpenRouterConfig struct {
	APIKey      string        `env:"OPENROUTER_API_KEY"  yaml:"api_key"`
	BaseURL     string        `env:"OPENROUTER_BASE_URL" yaml:"base_url"`
	Model       string        `env:"OPENROUTER_MODEL"    yaml:"model"`
	SiteURL     string        `yaml:"site_url"`
	SiteName    string        `yaml:"site_name"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	// RequestsPerMinute throttles outgoing calls; zero disables the limiter.
	RequestsPerMinute int `env:"OPENROUTER_RPM" yaml:"requests_per_minute"`
}

// SetDefaults fills the public endpoint and the free model.
func (c *OpenRouterConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.Model == "" {
		c.Model = "openai/gpt-oss-20b:free"
	}
	if c.SiteName == "" {
		c.SiteName = "North Cloud Backlink Indexer"
	}
	if c.Timeout == 0 {
		c.Timeout = 3 * time.Minute
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Second
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// OpenRouterCompleter calls the OpenRouter chat completions API.
type OpenRouterCompleter struct {
	cfg     OpenRouterConfig
	client  *http.Client
	breaker *circuitbreaker.Breaker
	limiter *rate.Limiter
	retry   retry.Config
	logger  logger.Logger
}

// NewOpenRouterCompleter builds a client with retry on 429/5xx and a circuit breaker.
func NewOpenRouterCompleter(cfg OpenRouterConfig, log logger.Logger) *OpenRouterCompleter {
	cfg.SetDefaults()
	c := &OpenRouterCompleter{
		cfg:    cfg,
		client: infrahttp.NewClient(infrahttp.ClientConfig{Timeout: cfg.Timeout}),
		logger: log.With(logger.String("provider", providerOpenRouter)),
		retry: retry.Config{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: cfg.RetryDelay,
			MaxDelay:     10 * cfg.RetryDelay,
			Multiplier:   2.0,
			IsRetryable:  isRetryableCompletion,
		},
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	c.breaker = circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
		IsFailure:        isRetryableCompletion,
		OnStateChange: func(from, to circuitbreaker.State) {
			c.logger.Warn("OpenRouter circuit breaker state changed",
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})
	return c
}

// Complete implements Completer.
func (c *OpenRouterCompleter) Complete(ctx context.Context, req Request) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrNotConfigured
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	var text string
	err = c.breaker.Execute(ctx, func() error {
		return retry.Retry(ctx, c.retry, func() error {
			if waitErr := c.wait(ctx); waitErr != nil {
				return retry.Permanent(waitErr)
			}
			var callErr error
			text, callErr = c.call(ctx, payload)
			return callErr
		})
	})
	if err != nil {
		// Surface the provider's own error rather than the retry wrapper.
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return "", apiErr
		}
		return "", err
	}
	return text, nil
}

func (c *OpenRouterCompleter) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		c.logger.Warn("OpenRouter rate limiter wait failed", logger.Error(err))
		return fmt.Errorf("wait for completion slot: %w", err)
	}
	return nil
}

func (c *OpenRouterCompleter) call(ctx context.Context, payload []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("create completion request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.SiteURL != "" {
		httpReq.Header.Set("HTTP-Referer", c.cfg.SiteURL)
	}
	httpReq.Header.Set("X-Title", c.cfg.SiteName)

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if parseErr := infraerrors.ParseHTTPError(resp); parseErr != nil {
		var httpErr *infraerrors.HTTPError
		errors.As(parseErr, &httpErr)
		c.logger.Warn("OpenRouter returned error status",
			logger.Int("status", resp.StatusCode),
			logger.Duration("duration", time.Since(start)),
		)
		return "", &APIError{Provider: providerOpenRouter, StatusCode: httpErr.StatusCode, Body: httpErr.Body}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCompletionBody))
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}

	var decoded chatResponse
	if err = json.Unmarshal(body, &decoded); err != nil {
		return "", retry.Permanent(fmt.Errorf("decode completion response: %w", err))
	}
	if decoded.Error != nil {
		status := decoded.Error.Code
		if status == 0 {
			status = http.StatusBadGateway
		}
		return "", &APIError{Provider: providerOpenRouter, StatusCode: status, Body: decoded.Error.Message}
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return "", retry.Permanent(ErrEmptyCompletion)
	}

	c.logger.Debug("OpenRouter completion received",
		logger.String("model", c.cfg.Model),
		logger.Duration("duration", time.Since(start)),
		logger.Int("length", len(decoded.Choices[0].Message.Content)),
	)
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}

// isRetryableCompletion retries throttling, server errors and transport failures.
func isRetryableCompletion(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return infraerrors.IsRetryableStatus(apiErr.StatusCode)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrEmptyCompletion) {
		return false
	}
	return true
}
