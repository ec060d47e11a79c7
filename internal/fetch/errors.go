package fetch

import "fmt"

// Kind classifies a fetch failure for retry and reporting decisions.
type Kind string

// Fetch error kinds.
const (
	KindTimeout          Kind = "timeout"
	KindHTTP             Kind = "http_error"
	KindDomainNotAllowed Kind = "domain_not_allowed"
	KindNetwork          Kind = "network_error"
)

// Error is the typed failure returned by the Client. Status is set only
// for KindHTTP.
type Error struct {
	Kind   Kind
	URL    string
	Status int
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.Status)
	case KindDomainNotAllowed:
		return fmt.Sprintf("fetch %s: domain not allowed", e.URL)
	default:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt can succeed. 4xx statuses
// and disallowed domains are terminal; everything else is transient.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindDomainNotAllowed:
		return false
	case KindHTTP:
		return e.Status >= 500
	default:
		return true
	}
}
