package core

import (
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// ErrorType classifies gateway errors for clients.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a client error (bad or missing
	// fields, unsupported provider).
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	// ErrorTypeMissingCredential indicates no usable API key could be
	// resolved for an operation that requires one.
	ErrorTypeMissingCredential ErrorType = "missing_credential"
	// ErrorTypeMissingEndpoint indicates no base URL was supplied for a
	// provider that requires one.
	ErrorTypeMissingEndpoint ErrorType = "missing_endpoint"
	// ErrorTypeUpstream indicates an upstream provider call failed.
	ErrorTypeUpstream ErrorType = "upstream_error"
	// ErrorTypeNotFound indicates the requested resource does not exist.
	ErrorTypeNotFound ErrorType = "not_found"
)

// GatewayError is the error type surfaced by every gateway component.
type GatewayError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	Provider   string    `json:"provider,omitempty"`
	// Original error for debugging, not exposed to clients.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface.
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the HTTP status code for this error.
func (e *GatewayError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeInvalidRequest, ErrorTypeMissingCredential, ErrorTypeMissingEndpoint:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to the response body shape.
func (e *GatewayError) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"type":    e.Type,
			"message": e.Message,
		},
	}
}

// NewInvalidRequestError creates a new invalid request error (400).
func NewInvalidRequestError(message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewMissingCredentialError creates an error for a listing or generation
// call attempted without a resolvable API key (400).
func NewMissingCredentialError(provider string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeMissingCredential,
		Message:    "API key not provided for provider " + provider,
		StatusCode: http.StatusBadRequest,
		Provider:   provider,
	}
}

// NewMissingEndpointError creates an error for a gateway call attempted
// without a base URL (400).
func NewMissingEndpointError(provider string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeMissingEndpoint,
		Message:    "base_url required for provider " + provider,
		StatusCode: http.StatusBadRequest,
		Provider:   provider,
	}
}

// NewUpstreamError creates an error for a failed provider call (502).
func NewUpstreamError(provider, message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeUpstream,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Provider:   provider,
		Err:        err,
	}
}

// NewNotFoundError creates a new not found error (404).
func NewNotFoundError(message string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// ParseUpstreamError builds an upstream error from a provider's non-2xx
// response. Providers usually encode a JSON payload with the real message
// under error.message or message; when neither is present the raw body is
// used verbatim.
func ParseUpstreamError(provider string, statusCode int, body []byte) *GatewayError {
	message := string(body)
	if m := gjson.GetBytes(body, "error.message"); m.Exists() && m.String() != "" {
		message = m.String()
	} else if m := gjson.GetBytes(body, "message"); m.Exists() && m.String() != "" {
		message = m.String()
	}

	return NewUpstreamError(provider, fmt.Sprintf("%s responded %d: %s", provider, statusCode, message), nil)
}
