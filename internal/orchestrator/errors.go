package orchestrator

import (
	"errors"
	"net/http"

	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/generator"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/wordpress"
)

// Kind classifies an orchestrator error for the caller.
type Kind string

const (
	KindMissingParameter Kind = "missing_parameter"
	KindConflict         Kind = "conflict"
	KindNotFound         Kind = "not_found"
	KindUpstream         Kind = "upstream"
	KindInternal         Kind = "internal"
)

// Source names the collaborator behind an upstream failure.
type Source string

const (
	SourceAI            Source = "ai"
	SourceWordPress     Source = "wordpress"
	SourceConfiguration Source = "configuration"
	SourceHeading       Source = "heading"
	SourceContent       Source = "content"
	SourceStore         Source = "store"
)

// Error is returned by every orchestrator operation. Message is the raw text
// stored on the campaign; UserMessage is what an operator sees.
type Error struct {
	Kind    Kind
	Source  Source
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the kind to a response code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindMissingParameter:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage is the friendly text for dashboards.
func (e *Error) UserMessage() string {
	switch e.Source {
	case SourceAI:
		return "Failed to generate content using AI service. Please check your OpenRouter API key or try again later."
	case SourceWordPress:
		return "Failed to post content to WordPress. Please check your website credentials and ensure your WordPress site is accessible."
	case SourceConfiguration:
		return "Campaign configuration error: " + e.Message
	case SourceHeading:
		return "Failed to generate heading. Please check your campaign configuration and try again."
	case SourceContent:
		return "Failed to generate content. Please check your campaign configuration and try again."
	}
	return e.Message
}

// AsError unwraps err into *Error, wrapping anything else as internal.
func AsError(err error) *Error {
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	return &Error{Kind: KindInternal, Source: SourceStore, Message: err.Error(), Err: err}
}

func missingParameter(msg string) *Error {
	return &Error{Kind: KindMissingParameter, Message: msg}
}

func notFound(msg string, err error) *Error {
	return &Error{Kind: KindNotFound, Message: msg, Err: err}
}

func internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Source: SourceStore, Message: msg + ": " + err.Error(), Err: err}
}

func leaseLost(err error) *Error {
	return &Error{Kind: KindConflict, Message: "Campaign lease was lost during the batch", Err: err}
}

func configuration(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Source: SourceConfiguration, Message: msg, Err: err}
}

// headingError classifies a heading generator failure.
func headingError(err error) *Error {
	var apiErr *generator.APIError
	var missing *generator.MissingFieldsError
	switch {
	case errors.As(err, &apiErr):
		return &Error{Kind: KindUpstream, Source: SourceAI, Message: apiErr.Error(), Err: err}
	case errors.As(err, &missing):
		return configuration(missing.Error(), err)
	}
	return &Error{Kind: KindUpstream, Source: SourceHeading, Message: "Heading generation failed: " + err.Error(), Err: err}
}

// contentError classifies a content generator failure.
func contentError(err error) *Error {
	var apiErr *generator.APIError
	var missing *generator.MissingFieldsError
	var contentErr *generator.ContentError
	switch {
	case errors.As(err, &apiErr):
		return &Error{Kind: KindUpstream, Source: SourceAI, Message: apiErr.Error(), Err: err}
	case errors.As(err, &missing):
		return configuration(missing.Error(), err)
	case errors.As(err, &contentErr):
		return &Error{Kind: KindUpstream, Source: SourceContent, Message: contentErr.Error(), Err: err}
	}
	return &Error{Kind: KindUpstream, Source: SourceContent, Message: "Content generation failed: " + err.Error(), Err: err}
}

// publishError classifies a WordPress failure.
func publishError(err error) *Error {
	var wpErr *wordpress.APIError
	if errors.As(err, &wpErr) {
		return &Error{Kind: KindUpstream, Source: SourceWordPress, Message: wpErr.Error(), Err: err}
	}
	return &Error{Kind: KindUpstream, Source: SourceWordPress, Message: "WordPress post failed: " + err.Error(), Err: err}
}
