// Package apperr defines the failure kinds surfaced by model calls and
// response streaming.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TimeoutError reports an outbound call that exceeded its deadline
type TimeoutError struct {
	Provider string
	Bound    time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s request timed out after %s", e.Provider, e.Bound)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// APIError reports a non-2xx response from a remote provider
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, e.Message)
}

// EmptyResponseError reports a successful response that carried no usable text.
// BlockReason is set when the provider refused the prompt for safety reasons.
type EmptyResponseError struct {
	Provider    string
	BlockReason string
}

func (e *EmptyResponseError) Error() string {
	if e.BlockReason != "" {
		return fmt.Sprintf("%s returned no content: blocked (%s)", e.Provider, e.BlockReason)
	}
	return fmt.Sprintf("%s returned an empty response", e.Provider)
}

// SinkError wraps a failure returned by a caller-supplied token callback
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("token sink failed: %v", e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// gatewaySignatures are substrings that identify an unreachable vision proxy
var gatewaySignatures = []string{
	"bad gateway",
	"err_ngrok",
	"tunnel not found",
}

// IsGatewayUnavailable reports whether err has the shape of a 502 from the
// vision proxy. Only these failures may be replaced by the canned fallback.
func IsGatewayUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadGateway {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range gatewaySignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
