package backoff

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

type Kind int

const (
	KindPermanent Kind = iota
	KindTransient
	KindStaleCursor
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindStaleCursor:
		return "stale_cursor"
	default:
		return "permanent"
	}
}

var (
	ErrTransient        = errors.New("transient provider error")
	ErrPermanent        = errors.New("permanent provider error")
	ErrStaleCursor      = errors.New("stale sync cursor")
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// StatusError is implemented by provider errors that carry an HTTP status.
// Reason is the provider's machine readable cause, e.g. "rateLimitExceeded".
type StatusError interface {
	error
	HTTPStatus() int
	Reason() string
}

type ProviderError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrPermanent:
		return e.Kind == KindPermanent
	case ErrStaleCursor:
		return e.Kind == KindStaleCursor
	}
	return false
}

//nolint:gochecknoglobals //lookup table
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
}

// Classify decides whether err is worth another attempt.
func Classify(err error) Kind {
	if err == nil {
		return KindPermanent
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Kind
	}

	if errors.Is(err, context.Canceled) {
		return KindPermanent
	}

	var statusErr StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.HTTPStatus(), statusErr.Reason())
	}

	if isNetworkError(err) {
		return KindTransient
	}

	return KindPermanent
}

func classifyStatus(status int, reason string) Kind {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusRequestTimeout:
		return KindTransient
	case http.StatusGone:
		return KindStaleCursor
	case http.StatusForbidden:
		// 403 doubles as the quota response
		if rateLimitReasons[reason] {
			return KindTransient
		}
		return KindPermanent
	default:
		return KindPermanent
	}
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsNotFound reports a 404 from the provider.
func IsNotFound(err error) bool {
	var statusErr StatusError
	return errors.As(err, &statusErr) && statusErr.HTTPStatus() == http.StatusNotFound
}
