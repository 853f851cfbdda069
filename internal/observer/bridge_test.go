package observer

import (
	"strings"
	"testing"
)

// A media element can be claimed by createMediaElementSource exactly once per
// page, so the capture script must reuse the page's audio graph on every
// session after the first. These checks pin that contract on the embedded
// scripts.
func TestCaptureScriptReusesPageAudioGraph(t *testing.T) {
	reuse := strings.Index(captureJS, "window.__meetcapGraph")
	build := strings.Index(captureJS, "new AudioContext")
	if reuse == -1 || build == -1 {
		t.Fatal("capture script lost its graph reuse branch")
	}
	if reuse > build {
		t.Error("capture script builds a new AudioContext before checking for the existing graph")
	}
	if !strings.Contains(captureJS, "__meetcapGraph.ctx.resume()") {
		t.Error("capture script does not resume the reused graph")
	}
	if !strings.Contains(captureJS, "window.__meetcapGraph = ") {
		t.Error("capture script does not persist the graph for later sessions")
	}
}

func TestStopScriptSuspendsWithoutDestroyingGraph(t *testing.T) {
	if !strings.Contains(stopCaptureJS, "window.__meetcapActive = false") {
		t.Error("stop script does not deactivate the tap")
	}
	if !strings.Contains(stopCaptureJS, "__meetcapGraph.ctx.suspend()") {
		t.Error("stop script does not suspend the audio context")
	}
	// Closing the context would orphan every hooked element for the rest of
	// the page's life.
	if strings.Contains(stopCaptureJS, "close()") || strings.Contains(stopCaptureJS, "__meetcapGraph = null") {
		t.Error("stop script must not destroy the page audio graph")
	}
}
