package observer

import (
	"testing"

	"github.com/meetcap/meetcap/internal/config"
	"github.com/meetcap/meetcap/internal/protocol"
)

type fakeDOM struct {
	url      string
	title    string
	elements map[string]string // selector -> text; presence implies Exists
}

func (f *fakeDOM) URL() string   { return f.url }
func (f *fakeDOM) Title() string { return f.title }

func (f *fakeDOM) Exists(selector string) bool {
	_, ok := f.elements[selector]
	return ok
}

func (f *fakeDOM) Text(selector string) (string, bool) {
	text, ok := f.elements[selector]
	return text, ok
}

func meetCfg() *config.MeetingConfig {
	return &config.MeetingConfig{
		AppName:  "Meet",
		Origin:   "https://meet.example.com",
		CallPath: "/call/",
		PollMs:   1500,
	}
}

func TestDetectActiveByURLPath(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"call path", "https://meet.example.com/call/abc-def", true},
		{"lobby", "https://meet.example.com/", false},
		{"landing page", "https://meet.example.com/landing", false},
		{"call path in query only", "https://meet.example.com/?next=/call/x", false},
		{"unparseable", "://bad", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dom := &fakeDOM{url: tt.url}
			obs := Detect(dom, meetCfg())
			if obs.CallActive != tt.want {
				t.Errorf("CallActive = %v, want %v", obs.CallActive, tt.want)
			}
		})
	}
}

func TestDetectActiveByInCallControls(t *testing.T) {
	dom := &fakeDOM{
		url:      "https://meet.example.com/landing",
		elements: map[string]string{"[aria-label*='Leave call']": ""},
	}
	obs := Detect(dom, meetCfg())
	if !obs.CallActive {
		t.Error("in-call control should mark the call active regardless of URL")
	}
}

func TestDetectTitleChain(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		elements map[string]string
		want     string
	}{
		{
			"dedicated title element wins",
			"Meet - some tab",
			map[string]string{"[data-meeting-title]": "Weekly Sync", "h1": "Other"},
			"Weekly Sync",
		},
		{
			"falls through empty selector text",
			"Meet - some tab",
			map[string]string{"[data-meeting-title]": "  ", "h1": "Planning"},
			"Planning",
		},
		{
			"document title fallback",
			"  Quarterly Review  ",
			nil,
			"Quarterly Review",
		},
		{
			"app name as last resort",
			"",
			nil,
			"Meet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dom := &fakeDOM{title: tt.title, elements: tt.elements}
			obs := Detect(dom, meetCfg())
			if obs.MeetingTitle != tt.want {
				t.Errorf("MeetingTitle = %q, want %q", obs.MeetingTitle, tt.want)
			}
		})
	}
}

func TestDetectParticipants(t *testing.T) {
	tests := []struct {
		name     string
		elements map[string]string
		want     *int
	}{
		{"plain count", map[string]string{"[data-participant-count]": "12"}, intPtr(12)},
		{"digits inside label", map[string]string{"[aria-label*='participant']": "8 participants in call"}, intPtr(8)},
		{"no digits", map[string]string{"[aria-label*='participant']": "participants"}, nil},
		{"element missing", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dom := &fakeDOM{elements: tt.elements}
			obs := Detect(dom, meetCfg())
			switch {
			case tt.want == nil && obs.ParticipantCount != nil:
				t.Errorf("ParticipantCount = %d, want nil", *obs.ParticipantCount)
			case tt.want != nil && obs.ParticipantCount == nil:
				t.Errorf("ParticipantCount = nil, want %d", *tt.want)
			case tt.want != nil && *obs.ParticipantCount != *tt.want:
				t.Errorf("ParticipantCount = %d, want %d", *obs.ParticipantCount, *tt.want)
			}
		})
	}
}

func TestDetectIsIdempotent(t *testing.T) {
	dom := &fakeDOM{
		url:      "https://meet.example.com/call/abc",
		title:    "Weekly Sync",
		elements: map[string]string{"[data-participant-count]": "5"},
	}
	cfg := meetCfg()

	first := Detect(dom, cfg)
	second := Detect(dom, cfg)
	if !first.Equal(second) {
		t.Errorf("same DOM produced different observations: %+v vs %+v", first, second)
	}
}

func TestObservationEqual(t *testing.T) {
	base := protocol.CallObservation{CallActive: true, MeetingTitle: "Sync", ParticipantCount: intPtr(3)}

	if !base.Equal(protocol.CallObservation{CallActive: true, MeetingTitle: "Sync", ParticipantCount: intPtr(3)}) {
		t.Error("identical observations reported unequal")
	}
	if base.Equal(protocol.CallObservation{CallActive: true, MeetingTitle: "Sync", ParticipantCount: intPtr(4)}) {
		t.Error("different counts reported equal")
	}
	if base.Equal(protocol.CallObservation{CallActive: true, MeetingTitle: "Sync"}) {
		t.Error("nil vs set count reported equal")
	}
}

func TestResolveCallTabRequiresActiveCall(t *testing.T) {
	o := New(nil, *meetCfg(), func(protocol.CallObservation, string) {})

	if _, _, err := o.ResolveCallTab(); err != ErrNoCallTab {
		t.Errorf("err = %v, want ErrNoCallTab", err)
	}

	o.mu.Lock()
	o.last = &protocol.CallObservation{CallActive: true, MeetingTitle: "Sync"}
	o.tabID = "tab-7"
	o.mu.Unlock()

	tabID, title, err := o.ResolveCallTab()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tabID != "tab-7" || title != "Sync" {
		t.Errorf("got (%q, %q)", tabID, title)
	}
}

func intPtr(n int) *int { return &n }
