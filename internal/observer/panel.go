package observer

import (
	"log/slog"
	"sync"

	"github.com/ysmood/gson"

	"github.com/meetcap/meetcap/internal/protocol"
)

// panelJS creates or updates the overlay in the corner of the call tab. The
// error line clears itself after five seconds. Button clicks go through the
// exposed command callback.
const panelJS = `(phase, badgeText, errMsg) => {
	let el = document.getElementById('__meetcap_panel');
	if (!el) {
		el = document.createElement('div');
		el.id = '__meetcap_panel';
		el.style.cssText = 'position:fixed;top:12px;right:12px;z-index:2147483647;' +
			'background:rgba(20,20,20,.92);color:#eee;font:12px sans-serif;' +
			'padding:8px 10px;border-radius:6px;min-width:140px';
		el.innerHTML = '<div id="__meetcap_status"></div>' +
			'<div id="__meetcap_err" style="color:#f66"></div>' +
			'<div style="margin-top:6px">' +
			'<button data-cmd="START_RECORDING">rec</button> ' +
			'<button data-cmd="PAUSE_RECORDING">pause</button> ' +
			'<button data-cmd="RESUME_RECORDING">resume</button> ' +
			'<button data-cmd="STOP_RECORDING">stop</button></div>';
		el.addEventListener('click', (e) => {
			const cmd = e.target.getAttribute('data-cmd');
			if (cmd && window.meetcapCommand) { window.meetcapCommand(cmd); }
		});
		document.body.appendChild(el);
	}
	document.getElementById('__meetcap_status').textContent =
		badgeText ? phase + ' [' + badgeText + ']' : phase;
	const errEl = document.getElementById('__meetcap_err');
	errEl.textContent = errMsg || '';
	if (errMsg) {
		clearTimeout(window.__meetcapErrTimer);
		window.__meetcapErrTimer = setTimeout(() => { errEl.textContent = ''; }, 5000);
	}
}`

// CommandFunc forwards a panel button press as a protocol message type.
type CommandFunc func(msgType string)

// Panel renders recording state into the call tab. Everything is best
// effort: a failed render is logged and skipped, never surfaced to the state
// machine.
type Panel struct {
	browser  *Browser
	dispatch CommandFunc

	mu      sync.Mutex
	exposed map[string]bool // tab IDs with the command callback installed
}

func NewPanel(browser *Browser, dispatch CommandFunc) *Panel {
	return &Panel{
		browser:  browser,
		dispatch: dispatch,
		exposed:  make(map[string]bool),
	}
}

// Render draws the overlay on the given tab.
func (p *Panel) Render(tabID string, state *protocol.RecordingState) {
	page, err := p.browser.PageByID(tabID)
	if err != nil {
		slog.Debug("panel render skipped", "tab", tabID, "error", err)
		return
	}

	p.mu.Lock()
	needExpose := !p.exposed[tabID]
	if needExpose {
		p.exposed[tabID] = true
	}
	p.mu.Unlock()

	if needExpose {
		_, err := page.Expose("meetcapCommand", func(data gson.JSON) (any, error) {
			p.dispatch(data.Str())
			return nil, nil
		})
		if err != nil {
			slog.Warn("failed to expose panel command callback", "error", err)
		}
	}

	if _, err := page.Eval(panelJS, state.Phase, state.Badge.Text, state.LastError); err != nil {
		slog.Debug("panel render failed", "error", err)
	}
}

// Remove deletes the overlay from the tab.
func (p *Panel) Remove(tabID string) {
	page, err := p.browser.PageByID(tabID)
	if err != nil {
		return
	}
	js := `() => { const el = document.getElementById('__meetcap_panel'); if (el) { el.remove(); } }`
	if _, err := page.Eval(js); err != nil {
		slog.Debug("panel remove failed", "error", err)
	}
}
