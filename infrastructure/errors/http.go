// Package errors holds the HTTP error type shared by the outbound clients.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MinErrorStatusCode is the first status treated as a failure.
const MinErrorStatusCode = 400

const maxErrorBody = 64 << 10

// HTTPError is a non-2xx response from an upstream API.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
	// Code is the machine-readable code when the upstream sends one (WordPress does).
	Code    string
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP error (%d %s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, e.Status)
}

// ParseHTTPError returns nil for a success status. Otherwise it reads at most
// 64KiB of body and lifts code/message/error fields out of a JSON payload.
func ParseHTTPError(resp *http.Response) error {
	if resp.StatusCode < MinErrorStatusCode {
		return nil
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    fmt.Sprintf("read error body: %v", readErr),
		}
	}

	httpErr := &HTTPError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
		Message:    string(body),
	}

	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return httpErr
	}

	httpErr.Code = payload.Code
	switch {
	case payload.Message != "":
		httpErr.Message = payload.Message
	case payload.Error != nil:
		// OpenRouter nests {"error":{"message":...}}; others send a string.
		switch v := payload.Error.(type) {
		case string:
			httpErr.Message = v
		case map[string]any:
			if msg, ok := v["message"].(string); ok {
				httpErr.Message = msg
			}
		}
	}
	return httpErr
}

// StatusCode extracts the upstream status from anywhere in err's chain.
func StatusCode(err error) (int, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode, true
	}
	return 0, false
}

// IsRetryableStatus reports whether status is worth another attempt.
func IsRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
