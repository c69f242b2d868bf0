package mpesa

import "fmt"

// AuthError means the token exchange was rejected or credentials are absent.
// It is fatal for the current request and not retryable.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("mpesa auth failed: %s", e.Reason)
}

// RejectedError carries the gateway's explicit rejection of a push request.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("mpesa rejected request (code %s): %s", e.Code, e.Message)
}

// UnavailableError wraps network-level or 5xx failures. Callers may retry.
type UnavailableError struct {
	Status int
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mpesa unavailable (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("mpesa unavailable (status %d)", e.Status)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
