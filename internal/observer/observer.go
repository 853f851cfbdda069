package observer

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/meetcap/meetcap/internal/config"
	"github.com/meetcap/meetcap/internal/protocol"
)

// inCallControlSelectors mark a live call. Any single hit is enough; the
// sets cover several meeting UI generations.
var inCallControlSelectors = []string{
	"[aria-label*='Leave call']",
	"[aria-label*='End call']",
	"[aria-label*='Hang up']",
	"[aria-label*='Turn off camera']",
	"[data-is-muted]",
}

// titleSelectors are tried in priority order before falling back to the
// document title.
var titleSelectors = []string{
	"[data-meeting-title]",
	"[data-call-title]",
	"h1",
}

var participantSelectors = []string{
	"[aria-label*='participant']",
	"[data-participant-count]",
	".participant-count",
}

var digitsPattern = regexp.MustCompile(`\d+`)

// ReportFunc receives call status changes together with the tab they were
// observed on.
type ReportFunc func(obs protocol.CallObservation, tabID string)

// Observer polls the meeting tab on a fixed interval and reports call status
// deltas. It also tracks the current call tab so recording can be bound to
// it.
type Observer struct {
	browser *Browser
	cfg     config.MeetingConfig
	report  ReportFunc

	mu     sync.Mutex
	last   *protocol.CallObservation
	tabID  string
	grants map[string]string // token -> tab ID, removed on redemption
}

// New creates an observer for the given browser connection.
func New(browser *Browser, cfg config.MeetingConfig, report ReportFunc) *Observer {
	return &Observer{
		browser: browser,
		cfg:     cfg,
		report:  report,
		grants:  make(map[string]string),
	}
}

// Run polls until the context is canceled. The first detection happens
// immediately, not one interval in.
func (o *Observer) Run(ctx context.Context) {
	interval := time.Duration(o.cfg.PollMs) * time.Millisecond

	o.poll()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.poll()
		}
	}
}

func (o *Observer) poll() {
	var (
		obs   protocol.CallObservation
		tabID string
	)

	page, id, err := o.browser.FindCallPage(o.cfg.Origin)
	if err == nil {
		tabID = id
		obs = Detect(&rodDOM{page: page}, &o.cfg)
	}

	o.mu.Lock()
	changed := o.last == nil || !o.last.Equal(obs)
	o.last = &obs
	o.tabID = tabID
	o.mu.Unlock()

	if changed {
		slog.Debug("call status changed",
			"active", obs.CallActive,
			"title", obs.MeetingTitle,
			"tab", tabID)
		o.report(obs, tabID)
	}
}

// ResolveCallTab returns the tab the current call runs on. It fails when no
// call is active.
func (o *Observer) ResolveCallTab() (tabID, title string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.last == nil || !o.last.CallActive || o.tabID == "" {
		return "", "", ErrNoCallTab
	}
	return o.tabID, o.last.MeetingTitle, nil
}

// Detect inspects one page and derives the call observation. Lookups that
// find nothing degrade to fallbacks; the function never fails.
func Detect(dom PageDOM, cfg *config.MeetingConfig) protocol.CallObservation {
	return protocol.CallObservation{
		CallActive:       detectActive(dom, cfg.CallPath),
		MeetingTitle:     detectTitle(dom, cfg.AppName),
		ParticipantCount: detectParticipants(dom),
	}
}

// detectActive combines two independent signals so the detector survives UI
// redesigns: the URL shape and the presence of in-call controls.
func detectActive(dom PageDOM, callPath string) bool {
	if u, err := url.Parse(dom.URL()); err == nil && callPath != "" {
		if strings.Contains(u.Path, callPath) {
			return true
		}
	}
	for _, sel := range inCallControlSelectors {
		if dom.Exists(sel) {
			return true
		}
	}
	return false
}

func detectTitle(dom PageDOM, fallback string) string {
	for _, sel := range titleSelectors {
		if text, ok := dom.Text(sel); ok {
			if trimmed := strings.TrimSpace(text); trimmed != "" {
				return trimmed
			}
		}
	}
	if title := strings.TrimSpace(dom.Title()); title != "" {
		return title
	}
	return fallback
}

func detectParticipants(dom PageDOM) *int {
	for _, sel := range participantSelectors {
		text, ok := dom.Text(sel)
		if !ok {
			continue
		}
		match := digitsPattern.FindString(text)
		if match == "" {
			continue
		}
		n, err := strconv.Atoi(match)
		if err != nil {
			continue
		}
		return &n
	}
	return nil
}
