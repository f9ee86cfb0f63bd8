// Package browser defines the capability surface the extraction code needs
// from a rendered page. Implementations live in rodbrowser (Chrome via
// go-rod) and htmldom (static HTML fixtures).
package browser

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// ErrTimeout is returned when a bounded wait expires.
var ErrTimeout = eris.New("browser: wait timed out")

// WaitState selects what WaitElement waits for.
type WaitState int

const (
	// StateAttached waits for the element to exist in the DOM.
	StateAttached WaitState = iota
	// StateVisible waits for the element to be rendered and visible.
	StateVisible
)

// Element is a handle to a DOM element inside some frame.
type Element interface {
	Text(ctx context.Context) (string, error)
	// Attr returns the attribute value and whether it was present.
	Attr(ctx context.Context, name string) (string, bool, error)
	HTML(ctx context.Context) (string, error)
	// Query returns the first matching descendant, or nil.
	Query(ctx context.Context, selector string) (Element, error)
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	// Children returns the direct element children matching selector.
	Children(ctx context.Context, selector string) ([]Element, error)
	// Closest returns the nearest ancestor-or-self matching selector, or nil.
	Closest(ctx context.Context, selector string) (Element, error)
	ComputedStyle(ctx context.Context, property string) (string, error)
	Visible(ctx context.Context) (bool, error)
	Click(ctx context.Context) error
	Type(ctx context.Context, text string) error
	ScrollIntoView(ctx context.Context) error
	// Screenshot returns PNG bytes of the element.
	Screenshot(ctx context.Context) ([]byte, error)
	// ContentFrame returns the frame hosted by an iframe element, or nil
	// when the frame is not attached yet.
	ContentFrame(ctx context.Context) (Frame, error)
	// WaitQuery waits up to timeout for a descendant matching selector.
	WaitQuery(ctx context.Context, selector string, timeout time.Duration) (Element, error)
}

// Frame is a document: the main page or an embedded frame.
type Frame interface {
	URL() string
	// Query returns the first matching element, or nil.
	Query(ctx context.Context, selector string) (Element, error)
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	// ChildFrames returns the directly nested frames in document order.
	ChildFrames(ctx context.Context) ([]Frame, error)
	HTML(ctx context.Context) (string, error)
	// WaitStable waits until the frame stops changing.
	WaitStable(ctx context.Context, d time.Duration) error
}

// ResponseMatch selects a network response.
type ResponseMatch struct {
	URLContains string
}

// Response is a captured network response.
type Response struct {
	URL    string
	Status int
	Body   []byte
}

// ResponseWaiter resolves to the first response matching its ResponseMatch
// observed after it was armed.
type ResponseWaiter interface {
	Wait(ctx context.Context, timeout time.Duration) (*Response, error)
}

// Page is the top-level rendered document of a visit.
type Page interface {
	Frame
	// WaitElement waits up to timeout for selector to reach state.
	WaitElement(ctx context.Context, selector string, state WaitState, timeout time.Duration) (Element, error)
	// Visible reports whether an element matching selector is visible now.
	Visible(ctx context.Context, selector string) (bool, error)
	WaitNetworkIdle(ctx context.Context, timeout time.Duration) error
	// ExpectResponse arms a waiter before the action that triggers the
	// request.
	ExpectResponse(ctx context.Context, m ResponseMatch) (ResponseWaiter, error)
	Navigate(ctx context.Context, url string) error
	SetViewport(ctx context.Context, width, height int) error
	Close() error
}

// Opener creates pages for the crawl engine.
type Opener interface {
	NewPage(ctx context.Context) (Page, error)
}
