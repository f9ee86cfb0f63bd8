package resilience

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"

	"github.com/sells-group/adcrawl/internal/browser"
	"github.com/sells-group/adcrawl/internal/model"
)

func TestIsTransient_Nil(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_VisitFailures(t *testing.T) {
	cases := map[string]error{
		"required element": eris.Wrap(model.ErrRequiredElementNotFound, "router: detail"),
		"listing response": eris.Wrap(model.ErrNetworkResponseNotCorrelated, "router: listing"),
		"browser timeout":  fmt.Errorf("wait: %w", browser.ErrTimeout),
		"deadline":         fmt.Errorf("visit: %w", context.DeadlineExceeded),
		"persistence":      &model.PersistenceError{Code: "CR1", Err: errors.New("deadlock detected")},
		"explicit":         Transient(errors.New("blocked")),
		"conn reset":       fmt.Errorf("dial: %w", syscall.ECONNRESET),
		"chrome net error": errors.New("navigate: net::ERR_CONNECTION_CLOSED"),
	}
	for name, err := range cases {
		if !IsTransient(err) {
			t.Errorf("%s: expected transient", name)
		}
	}
}

func TestIsTransient_Permanent(t *testing.T) {
	cases := map[string]error{
		"domain missing": eris.Wrap(model.ErrDomainMissing, "router: listing"),
		"invalid url":    eris.Wrap(model.ErrInvalidURL, "router: detail"),
		"canceled":       fmt.Errorf("visit: %w", context.Canceled),
		"plain":          errors.New("unexpected markup"),
		"wrapped permanent transient": Transient(model.ErrDomainMissing),
	}
	for name, err := range cases {
		if IsTransient(err) {
			t.Errorf("%s: expected permanent", name)
		}
	}
}

func TestTransient_Nil(t *testing.T) {
	if Transient(nil) != nil {
		t.Error("Transient(nil) should be nil")
	}
}
