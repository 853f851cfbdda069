package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meetcap/meetcap/internal/config"
	"github.com/meetcap/meetcap/internal/protocol"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), &config.StorageConfig{Mode: config.StorageLocal})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func testRecord(id, artifactID string) *protocol.RecordingRecord {
	now := time.Now()
	return &protocol.RecordingRecord{
		ID:           id,
		Filename:     filepath.Base(artifactID),
		ArtifactID:   artifactID,
		CreatedAt:    now,
		StartedAt:    now.Add(-time.Minute),
		EndedAt:      now,
		DurationSec:  60,
		MeetingTitle: "Weekly Sync",
		Format:       protocol.FormatWebM,
		Folder:       "Recordings",
	}
}

func TestSaveArtifactAndSidecar(t *testing.T) {
	s := newTestStore(t)

	id, err := s.SaveArtifact("Recordings", "Meet_2026-03-09_14-05_call.webm", []byte("webm-bytes"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if id != "recordings/Recordings/Meet_2026-03-09_14-05_call.webm" {
		t.Errorf("artifact id = %q", id)
	}

	data, err := os.ReadFile(s.ArtifactPath(id))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(data) != "webm-bytes" {
		t.Errorf("artifact content = %q", data)
	}

	meta := &protocol.SessionMetadata{MeetingTitle: "Weekly Sync", Notes: "agenda"}
	if err := s.WriteSidecar(id, meta); err != nil {
		t.Fatalf("sidecar: %v", err)
	}

	sidecarPath := filepath.Join(s.dataDir, "recordings", "Recordings", "Meet_2026-03-09_14-05_call.json")
	raw, err := os.ReadFile(sidecarPath)
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	var got protocol.SessionMetadata
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("parse sidecar: %v", err)
	}
	if got.MeetingTitle != "Weekly Sync" || got.Notes != "agenda" {
		t.Errorf("sidecar = %+v", got)
	}
}

func TestAppendAndListNewestFirst(t *testing.T) {
	s := newTestStore(t)

	for i := range 3 {
		rec := testRecord(fmt.Sprintf("id-%d", i), fmt.Sprintf("recordings/r/%d.webm", i))
		if err := s.AppendRecord(rec); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	records, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len = %d, want 3", len(records))
	}
	if records[0].ID != "id-2" || records[2].ID != "id-0" {
		t.Errorf("order = [%s %s %s], want newest first", records[0].ID, records[1].ID, records[2].ID)
	}
}

func TestHistoryCapEvictsOldest(t *testing.T) {
	s := newTestStore(t)

	// The record that will fall off the end, with a real artifact on disk.
	artifactID, err := s.SaveArtifact("r", "oldest.webm", []byte("x"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.AppendRecord(testRecord("oldest", artifactID)); err != nil {
		t.Fatalf("append: %v", err)
	}

	for i := range MaxHistoryEntries {
		rec := testRecord(fmt.Sprintf("id-%d", i), fmt.Sprintf("recordings/r/%d.webm", i))
		if err := s.AppendRecord(rec); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	records, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != MaxHistoryEntries {
		t.Fatalf("len = %d, want %d", len(records), MaxHistoryEntries)
	}
	for _, rec := range records {
		if rec.ID == "oldest" {
			t.Fatal("evicted record still present in index")
		}
	}
	if _, err := os.Stat(s.ArtifactPath(artifactID)); !os.IsNotExist(err) {
		t.Error("evicted artifact still on disk")
	}
}

func TestDeleteRemovesEntryAndFiles(t *testing.T) {
	s := newTestStore(t)

	artifactID, err := s.SaveArtifact("r", "target.webm", []byte("x"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.WriteSidecar(artifactID, &protocol.SessionMetadata{MeetingTitle: "t"}); err != nil {
		t.Fatalf("sidecar: %v", err)
	}
	if err := s.AppendRecord(testRecord("keep", "recordings/r/keep.webm")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendRecord(testRecord("target", artifactID)); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := s.Delete("target"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	records, _ := s.List()
	if len(records) != 1 || records[0].ID != "keep" {
		t.Errorf("remaining records = %+v", records)
	}
	if _, err := os.Stat(s.ArtifactPath(artifactID)); !os.IsNotExist(err) {
		t.Error("deleted artifact still on disk")
	}
	sidecar := filepath.Join(s.dataDir, "recordings", "r", "target.json")
	if _, err := os.Stat(sidecar); !os.IsNotExist(err) {
		t.Error("deleted sidecar still on disk")
	}
}

func TestDeleteUnknownID(t *testing.T) {
	s := newTestStore(t)
	if err := s.Delete("nope"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestCorruptHistoryStartsFresh(t *testing.T) {
	s := newTestStore(t)

	if err := os.WriteFile(s.historyPath(), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt index: %v", err)
	}

	records, err := s.List()
	if err != nil {
		t.Fatalf("list over corrupt index: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("records = %d, want none", len(records))
	}

	if _, err := os.Stat(s.historyPath() + ".corrupt"); err != nil {
		t.Error("corrupt index was not preserved for inspection")
	}

	// The store keeps working afterwards.
	if err := s.AppendRecord(testRecord("id-1", "recordings/r/1.webm")); err != nil {
		t.Fatalf("append after corruption: %v", err)
	}
	records, _ = s.List()
	if len(records) != 1 {
		t.Errorf("records = %d, want 1", len(records))
	}
}

func TestNonLocalModeRequiresCredentials(t *testing.T) {
	_, err := New(t.TempDir(), &config.StorageConfig{Mode: config.StorageS3})
	if err == nil {
		t.Fatal("expected error for s3 mode without credentials")
	}
}
