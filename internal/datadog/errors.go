package datadog

import "fmt"

// AuthError means Datadog rejected the API or application key. It is never
// retried within a send, but later sends still go out.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("datadog rejected credentials (status %d): %s", e.StatusCode, e.Body)
}

// TransportError is a network failure, a timeout or a server-side error.
// These are retried with backoff.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("error sending to datadog: %v", e.Err)
	}
	return fmt.Sprintf("datadog unavailable (status %d): %s", e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RequestError means Datadog refused the payload itself. Retrying won't help.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("datadog refused request (status %d): %s", e.StatusCode, e.Body)
}
