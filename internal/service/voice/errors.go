package voice

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an upstream failure.
type Kind string

const (
	KindAuth        Kind = "upstream-auth-error"
	KindUnavailable Kind = "upstream-unavailable"
	KindMalformed   Kind = "malformed-response"
)

// UpstreamError is returned by every channel when the provider call fails.
type UpstreamError struct {
	Channel string
	Kind    Kind
	Status  int
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s channel: %s (status %d): %v", e.Channel, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s channel: %s: %v", e.Channel, e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind, defaulting to KindUnavailable for foreign errors.
func KindOf(err error) Kind {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Kind
	}
	return KindUnavailable
}

// IsKind reports whether err is an UpstreamError of the given kind.
func IsKind(err error, kind Kind) bool {
	var upstream *UpstreamError
	return errors.As(err, &upstream) && upstream.Kind == kind
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	default:
		return KindUnavailable
	}
}

func newError(channel string, kind Kind, err error) *UpstreamError {
	return &UpstreamError{Channel: channel, Kind: kind, Err: err}
}
