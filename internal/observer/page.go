// Package observer watches the meeting tab. It polls the page DOM for call
// status, mints single-use capture grants for tab audio, and renders the
// optional on-screen panel.
package observer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/meetcap/meetcap/internal/util"
)

// Sentinel errors for observer operations.
var (
	ErrNoCallTab      = errors.New("no active call tab found")
	ErrTabGone        = errors.New("call tab no longer exists")
	ErrInvalidToken   = errors.New("capture token invalid or already used")
	ErrBrowserOffline = errors.New("browser connection unavailable")
)

const domTimeout = 2 * time.Second

// PageDOM is the slice of page inspection the detector needs. The production
// implementation wraps a DevTools page; tests substitute a fake.
type PageDOM interface {
	URL() string
	Title() string
	Exists(selector string) bool
	Text(selector string) (string, bool)
}

// Browser is a connection to the user's running browser over the DevTools
// protocol.
type Browser struct {
	browser *rod.Browser
}

// Connect attaches to a browser. With a control URL it attaches to an
// already running instance; otherwise it launches one.
func Connect(ctx context.Context, controlURL string) (*Browser, error) {
	if controlURL == "" {
		u, err := launcher.New().
			Headless(false).
			Leakless(false).
			Launch()
		if err != nil {
			return nil, util.WrapError("launch browser", err)
		}
		controlURL = u
	}

	b := rod.New().Context(ctx).ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, util.WrapError("connect to browser", err)
	}
	return &Browser{browser: b}, nil
}

// FindCallPage returns the first open tab on the meeting origin, along with
// its stable tab identifier.
func (b *Browser) FindCallPage(origin string) (*rod.Page, string, error) {
	pages, err := b.browser.Pages()
	if err != nil {
		return nil, "", util.WrapError("list pages", err)
	}

	for _, page := range pages {
		info, err := page.Info()
		if err != nil {
			continue
		}
		if strings.HasPrefix(info.URL, origin) {
			return page, string(page.TargetID), nil
		}
	}
	return nil, "", ErrNoCallTab
}

// PageByID resolves a tab identifier back to its page.
func (b *Browser) PageByID(tabID string) (*rod.Page, error) {
	pages, err := b.browser.Pages()
	if err != nil {
		return nil, util.WrapError("list pages", err)
	}
	for _, page := range pages {
		if string(page.TargetID) == tabID {
			return page, nil
		}
	}
	return nil, ErrTabGone
}

// Close disconnects from the browser without closing the user's tabs.
func (b *Browser) Close() error {
	return b.browser.Close()
}

// rodDOM adapts a DevTools page to PageDOM. Every lookup is bounded so a
// wedged renderer cannot stall the polling loop.
type rodDOM struct {
	page *rod.Page
}

func (d *rodDOM) URL() string {
	info, err := d.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (d *rodDOM) Title() string {
	info, err := d.page.Info()
	if err != nil {
		return ""
	}
	return info.Title
}

func (d *rodDOM) Exists(selector string) bool {
	has, _, err := d.page.Timeout(domTimeout).Has(selector)
	return err == nil && has
}

func (d *rodDOM) Text(selector string) (string, bool) {
	has, el, err := d.page.Timeout(domTimeout).Has(selector)
	if err != nil || !has {
		return "", false
	}
	text, err := el.Text()
	if err != nil {
		return "", false
	}
	return text, true
}
