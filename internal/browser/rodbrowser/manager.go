// Package rodbrowser drives Chrome through go-rod and adapts rod pages,
// frames and elements to the browser capability interfaces.
package rodbrowser

import (
	"context"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/browser"
)

// Config configures the Chrome process.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local Chrome.
	RemoteURL string
	Headless  bool
	Stealth   bool
	// Flags are extra Chrome command-line switches.
	Flags map[string]string
}

// DefaultFlags are the Chrome switches creative pages need to autoplay
// video inside cross-origin frames.
func DefaultFlags() map[string]string {
	return map[string]string{
		"disable-infobars":                 "",
		"window-position":                  "0,0",
		"ignore-certificate-errors":        "",
		"disable-dev-shm-usage":            "",
		"disable-translate":                "",
		"autoplay-policy":                  "no-user-gesture-required",
		"use-fake-device-for-media-stream": "",
		"disable-blink-features":           "AutomationControlled",
		"disable-web-security":             "",
	}
}

// Manager owns one Chrome instance and opens pages on it.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

var _ browser.Opener = (*Manager)(nil)

// NewManager creates a Manager. Chrome starts lazily on the first NewPage.
// A nil Flags map takes DefaultFlags.
func NewManager(cfg Config) *Manager {
	if cfg.Flags == nil {
		cfg.Flags = DefaultFlags()
	}
	return &Manager{cfg: cfg}
}

// Start launches or connects to Chrome if not already running.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.startLocked(ctx)
	return err
}

func (m *Manager) startLocked(ctx context.Context) (*rod.Browser, error) {
	if m.closed {
		return nil, eris.New("rodbrowser: manager is closed")
	}
	if m.browser != nil {
		return m.browser, nil
	}

	wsURL := m.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(m.cfg.Headless).Delete("enable-automation")
		for k, v := range m.cfg.Flags {
			if v == "" {
				l = l.Set(flags.Flag(k))
				continue
			}
			l = l.Set(flags.Flag(k), v)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, eris.Wrap(err, "rodbrowser: launch")
		}
		wsURL = u
		m.lnch = l
		zap.L().Info("launched local chrome", zap.String("url", wsURL), zap.Bool("headless", m.cfg.Headless))
	} else {
		zap.L().Info("connecting to remote chrome", zap.String("url", wsURL))
	}

	b := rod.New().Context(ctx).ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, eris.Wrap(err, "rodbrowser: connect")
	}
	m.browser = b.Context(context.Background())
	return m.browser, nil
}

// NewPage opens a blank tab, applying stealth patches when configured.
func (m *Manager) NewPage(ctx context.Context) (browser.Page, error) {
	m.mu.Lock()
	b, err := m.startLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var p *rod.Page
	if m.cfg.Stealth {
		p, err = stealth.Page(b)
	} else {
		p, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, eris.Wrap(err, "rodbrowser: create page")
	}
	return &Page{frame: frame{page: p}}, nil
}

// Close shuts Chrome down.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	return eris.Wrap(err, "rodbrowser: close")
}
