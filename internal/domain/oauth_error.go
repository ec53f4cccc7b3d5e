package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuthError is a failure reported by (or while talking to) the OAuth provider.
// It is surfaced to the client verbatim: StatusCode becomes the response status
// and Message the body's "error" field.
type OAuthError struct {
	StatusCode int
	Message    string
	Cause      error
}

// NewOAuthError creates an OAuthError. A status outside the 4xx/5xx range is
// replaced with 502 so the response is never mistaken for success.
func NewOAuthError(statusCode int, message string, cause error) *OAuthError {
	if statusCode < http.StatusBadRequest || statusCode > 599 {
		statusCode = http.StatusBadGateway
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}
	return &OAuthError{StatusCode: statusCode, Message: message, Cause: cause}
}

func (e *OAuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("oauth: %d %s: %v", e.StatusCode, e.Message, e.Cause)
	}
	return fmt.Sprintf("oauth: %d %s", e.StatusCode, e.Message)
}

func (e *OAuthError) Unwrap() error {
	return e.Cause
}

// AsOAuthError extracts an OAuthError from err. Any other error is reported as
// a 502 provider failure, since callers cannot tell transient from permanent.
func AsOAuthError(err error) *OAuthError {
	if err == nil {
		return nil
	}
	var oauthErr *OAuthError
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	return NewOAuthError(http.StatusBadGateway, "OAuth provider unavailable", err)
}
