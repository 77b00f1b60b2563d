// Package resilience guards calls to external providers with retry and
// circuit breaking, and classifies provider errors as transient or permanent.
package resilience

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
)

// Error classes recorded on failures and metrics.
const (
	ClassTransient = "transient"
	ClassPermanent = "permanent"
)

// TransientError marks a provider failure that may succeed on a later call:
// rate limiting, 5xx, timeouts, dropped connections.
type TransientError struct {
	Provider string
	Status   int
	Err      error
}

func (e *TransientError) Error() string {
	if e.Provider == "" {
		return e.Err.Error()
	}
	return e.Provider + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError. status may be zero.
func Transient(provider string, status int, err error) error {
	if err == nil {
		err = eris.Errorf("status %d", status)
	}
	return &TransientError{Provider: provider, Status: status, Err: err}
}

var transientMessages = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"unexpected eof",
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// TransientStatus reports whether an HTTP status is retryable.
func TransientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// StatusError builds the error for a non-2xx provider response, marking it
// transient when the status allows a retry.
func StatusError(provider string, code int, body string) error {
	if len(body) > 200 {
		body = body[:200]
	}
	err := eris.Errorf("unexpected status %d: %s", code, strings.TrimSpace(body))
	if TransientStatus(code) {
		return &TransientError{Provider: provider, Status: code, Err: err}
	}
	return eris.Wrap(err, provider)
}

// Classify returns ClassTransient or ClassPermanent.
func Classify(err error) string {
	if IsTransient(err) {
		return ClassTransient
	}
	return ClassPermanent
}
