package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/sells-group/adcrawl/internal/browser"
	"github.com/sells-group/adcrawl/internal/model"
)

// TransientError marks an error as safe to retry regardless of its cause.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err so IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// retryable page-visit failures: the markup or network was not ready yet.
var retryable = []error{
	model.ErrRequiredElementNotFound,
	model.ErrNetworkResponseNotCorrelated,
	model.ErrPersistenceFailure,
	browser.ErrTimeout,
	context.DeadlineExceeded,
}

// IsTransient reports whether a failed page visit is worth another attempt.
// Input validation failures such as a missing domain are never retried.
func IsTransient(err error) bool {
	if err == nil || model.IsPermanent(err) || errors.Is(err, context.Canceled) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	for _, target := range retryable {
		if errors.Is(err, target) {
			return true
		}
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
	for _, p := range []string{
		"net::err_",
		"connection reset by peer",
		"broken pipe",
		"navigation failed",
		"target closed",
		"i/o timeout",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
