package model

import (
	"errors"

	"github.com/rotisserie/eris"
)

var (
	// ErrRequiredElementNotFound aborts a page visit: a core markup
	// assumption did not hold.
	ErrRequiredElementNotFound = eris.New("required element not found")
	// ErrFrameNotFound aborts a single frame-backed variant.
	ErrFrameNotFound = eris.New("embedded frame not found")
	// ErrNetworkResponseNotCorrelated aborts a listing visit.
	ErrNetworkResponseNotCorrelated = eris.New("listing response not correlated")
	// ErrPersistenceFailure marks a rolled-back save.
	ErrPersistenceFailure = eris.New("persistence failure")
	// ErrDomainMissing means a listing URL has no domain or term query.
	ErrDomainMissing = eris.New("domain missing")
	// ErrInvalidURL means a detail URL carries no advertiser/creative codes.
	ErrInvalidURL = eris.New("invalid creative url")
)

// PersistenceError wraps the cause of a failed, rolled-back save.
type PersistenceError struct {
	Code string
	Err  error
}

func (e *PersistenceError) Error() string {
	return "persistence failure: creative " + e.Code + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is matches ErrPersistenceFailure.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistenceFailure
}

// IsPermanent reports whether err should not be retried by the crawl engine.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrDomainMissing) || errors.Is(err, ErrInvalidURL)
}
