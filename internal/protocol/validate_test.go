package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodeDeleteRequest(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"valid", `{"id":"6ba7b810-9dad-41d1-80b4-00c04fd430c8"}`, ""},
		{"missing id", `{}`, "id is required"},
		{"empty payload", ``, "id is required"},
		{"malformed id", `{"id":"not-a-uuid"}`, "id must be a valid id"},
		{"broken json", `{`, "invalid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &Message{Type: MsgDeleteRecording, Data: json.RawMessage(tt.data)}
			var req DeleteRequest
			err := Decode(msg, &req)

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Decode: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeStartRequestNotesLimit(t *testing.T) {
	var req StartRequest
	msg := &Message{Type: MsgStartRecording, Data: json.RawMessage(`{"notes":"ok"}`)}
	if err := Decode(msg, &req); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if req.Notes != "ok" {
		t.Errorf("notes = %q", req.Notes)
	}

	long := `{"notes":"` + strings.Repeat("a", 2001) + `"}`
	msg = &Message{Type: MsgStartRecording, Data: json.RawMessage(long)}
	if err := Decode(msg, &StartRequest{}); err == nil {
		t.Error("expected notes over the limit to fail validation")
	}
}

func TestResponseHelpers(t *testing.T) {
	ok := Ok(map[string]int{"n": 1})
	if !ok.OK || ok.Error != "" || ok.Result == nil {
		t.Errorf("Ok() = %+v", ok)
	}

	fail := Fail(errors.New("fake failure"))
	if fail.OK || fail.Error != "fake failure" {
		t.Errorf("Fail() = %+v", fail)
	}
}
