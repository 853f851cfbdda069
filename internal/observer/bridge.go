package observer

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/google/uuid"
	"github.com/ysmood/gson"

	"github.com/meetcap/meetcap/internal/capture"
	"github.com/meetcap/meetcap/internal/util"
)

// captureJS hooks every playing media element on the page into a shared
// audio graph and ships 16-bit PCM back through the exposed callback. The
// hook keeps the element connected to the speakers so the user still hears
// the call.
const captureJS = `() => {
	if (window.__meetcapActive) { return 'already-active'; }
	window.__meetcapActive = true;

	// An element can join only one MediaElementSource for the life of the
	// page, so a later session must reuse the first graph instead of
	// building a second one.
	if (window.__meetcapGraph) {
		window.__meetcapGraph.ctx.resume();
		return 'reactivated';
	}

	const ctx = new AudioContext({ sampleRate: %d });
	const mix = ctx.createGain();
	const tap = ctx.createScriptProcessor(4096, %d, %d);
	mix.connect(tap);
	tap.connect(ctx.destination);
	window.__meetcapGraph = { ctx: ctx, mix: mix, tap: tap };

	tap.onaudioprocess = (e) => {
		if (!window.__meetcapActive) { return; }
		const ch0 = e.inputBuffer.getChannelData(0);
		const ch1 = e.inputBuffer.numberOfChannels > 1 ? e.inputBuffer.getChannelData(1) : ch0;
		const out = new Uint8Array(ch0.length * 4);
		const view = new DataView(out.buffer);
		for (let i = 0; i < ch0.length; i++) {
			const l = Math.max(-1, Math.min(1, ch0[i]));
			const r = Math.max(-1, Math.min(1, ch1[i]));
			view.setInt16(i * 4, l * 0x7fff, true);
			view.setInt16(i * 4 + 2, r * 0x7fff, true);
		}
		window.sendAudioData(Array.from(out));
	};

	const hooked = new WeakSet();
	const hook = (el) => {
		if (hooked.has(el)) { return; }
		hooked.add(el);
		try {
			const src = ctx.createMediaElementSource(el);
			src.connect(mix);
			src.connect(ctx.destination);
		} catch (err) { /* element already claimed by another graph */ }
	};

	document.querySelectorAll('audio, video').forEach(hook);
	new MutationObserver((muts) => {
		for (const m of muts) {
			for (const node of m.addedNodes) {
				if (node.tagName === 'AUDIO' || node.tagName === 'VIDEO') { hook(node); }
			}
		}
	}).observe(document.body, { childList: true, subtree: true });

	return 'active';
}`

const stopCaptureJS = `() => {
	window.__meetcapActive = false;
	if (window.__meetcapGraph) { window.__meetcapGraph.ctx.suspend(); }
}`

// GrantCapture mints a single-use token authorizing capture of the given
// tab. The token is consumed by OpenStream.
func (o *Observer) GrantCapture(tabID string) (string, error) {
	if _, err := o.browser.PageByID(tabID); err != nil {
		return "", err
	}

	token := uuid.NewString()
	o.mu.Lock()
	o.grants[token] = tabID
	o.mu.Unlock()
	return token, nil
}

// OpenStream redeems a capture token and starts streaming the tab's audio.
// A token works exactly once.
func (o *Observer) OpenStream(ctx context.Context, token string) (capture.Source, error) {
	o.mu.Lock()
	tabID, ok := o.grants[token]
	delete(o.grants, token)
	o.mu.Unlock()
	if !ok {
		return nil, ErrInvalidToken
	}

	page, err := o.browser.PageByID(tabID)
	if err != nil {
		return nil, err
	}
	return openTabSource(ctx, page)
}

// tabSource streams PCM produced by the in-page capture hook.
type tabSource struct {
	page   *rod.Page
	frames chan []byte
	unbind func() error

	mu     sync.Mutex
	err    error
	closed bool
}

func openTabSource(ctx context.Context, page *rod.Page) (*tabSource, error) {
	t := &tabSource{
		page:   page,
		frames: make(chan []byte, 16),
	}

	unbind, err := page.Expose("sendAudioData", func(data gson.JSON) (any, error) {
		arr := data.Arr()
		if len(arr) == 0 {
			return nil, nil
		}
		buf := make([]byte, len(arr))
		for i, v := range arr {
			buf[i] = byte(v.Num())
		}

		t.mu.Lock()
		if !t.closed {
			select {
			case t.frames <- buf:
			default:
				// Drop rather than stall the page's audio thread.
			}
		}
		t.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return nil, util.WrapError("expose audio callback", err)
	}
	t.unbind = unbind

	js := fmt.Sprintf(captureJS, capture.SampleRate, capture.Channels, capture.Channels)
	if _, err := page.Context(ctx).Eval(js); err != nil {
		return nil, util.WrapError("install capture hook", err)
	}
	return t, nil
}

func (t *tabSource) Frames() <-chan []byte {
	return t.frames
}

func (t *tabSource) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *tabSource) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	_, _ = t.page.Eval(stopCaptureJS)
	if t.unbind != nil {
		_ = t.unbind()
	}
	close(t.frames)
	return nil
}
