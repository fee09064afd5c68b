// Package generator produces the heading and HTML body for a batch using a
// chat-completion provider, with deterministic fallbacks.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotConfigured is returned by a provider that has no credentials.
	ErrNotConfigured = errors.New("ai provider not configured")
	// ErrEmptyCompletion is returned when the provider answered without text.
	ErrEmptyCompletion = errors.New("ai provider returned no completion")
)

// Request is one chat completion.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// APIError is a non-success answer from the provider. Unlike transport
// failures it is surfaced instead of falling back.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("AI service failed: %d %s", e.StatusCode, e.Body)
}

// MissingFieldsError names the blank campaign fields.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "Campaign is missing required fields: " + strings.Join(e.Fields, ", ")
}

// ContentError is an invalid content request.
type ContentError struct {
	Reason string
}

func (e *ContentError) Error() string {
	return "Content generation failed: " + e.Reason
}
