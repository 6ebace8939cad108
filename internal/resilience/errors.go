package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps an error that is safe to retry (e.g., 429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// PermanentError wraps an error that retrying cannot fix: unreadable input or
// rejected credentials. Code carries the upstream error code when known.
type PermanentError struct {
	Err  error
	Code string
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps an error as permanent with an optional error code.
func NewPermanentError(err error, code string) *PermanentError {
	return &PermanentError{Err: err, Code: code}
}

var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"no such host",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"transport connection broken",
	"overloaded",
	"rate limit",
}

var permanentPatterns = []string{
	"encrypted",
	"password protected",
	"password-protected",
	"corrupted",
	"corrupt pdf",
	"invalid base64",
	"invalid x-api-key",
	"invalid api key",
	"authentication_error",
	"permission_error",
	"unauthorized",
	"forbidden",
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient error patterns (network
// timeouts, connection resets, DNS failures). Permanent errors are never transient.
func IsTransient(err error) bool {
	if err == nil || IsPermanent(err) {
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

	return containsAny(strings.ToLower(err.Error()), transientPatterns)
}

// IsPermanent returns true if the error chain holds a PermanentError or its
// text names an unrecoverable condition (encrypted or corrupted input, bad
// credentials).
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	var pe *PermanentError
	if errors.As(err, &pe) {
		return true
	}

	return containsAny(strings.ToLower(err.Error()), permanentPatterns)
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient issue that is safe to retry: a request timeout, rate limiting or
// any 5xx.
func IsTransientHTTPStatus(statusCode int) bool {
	switch {
	case statusCode == 408, // Request Timeout
		statusCode == 429: // Too Many Requests
		return true
	default:
		return statusCode >= 500 && statusCode < 600
	}
}

// IsPermanentHTTPStatus returns true for credential failures.
func IsPermanentHTTPStatus(statusCode int) bool {
	return statusCode == 401 || statusCode == 403
}

// ErrorKind labels an error for persistence and logging.
type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindPermanent ErrorKind = "permanent"
	KindUnknown   ErrorKind = "unknown"
)

// ClassifyError categorizes an error. Transient failures are candidates for
// later reprocessing; permanent and unknown failures are not retried.
func ClassifyError(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case IsPermanent(err):
		return KindPermanent
	case IsTransient(err):
		return KindTransient
	default:
		return KindUnknown
	}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
