package bps

import "fmt"

// AuthError means the session cookie was rejected: the upstream answered with
// a login redirect or an HTML page where JSON was expected. Always fatal;
// retrying with the same cookie cannot succeed.
type AuthError struct {
	URL    string
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %s", e.URL, e.Reason)
}

// TransportError covers network failures and non-success HTTP statuses.
type TransportError struct {
	URL    string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("request %s: HTTP %d", e.URL, e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedError means the upstream answered 200 with a payload that does not
// match the expected shape.
type MalformedError struct {
	URL string
	Err error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.URL, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }
