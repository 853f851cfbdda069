// Package store persists finalized recordings. Artifacts are written under
// the data directory, recording metadata lives in a sidecar JSON file next to
// each artifact, and the history index is a single JSON file holding the most
// recent entries newest first.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/meetcap/meetcap/internal/config"
	"github.com/meetcap/meetcap/internal/protocol"
	"github.com/meetcap/meetcap/internal/util"
)

// MaxHistoryEntries caps the history index. Older entries and their artifacts
// are evicted when the cap is exceeded.
const MaxHistoryEntries = 200

const historyFile = "history.json"

// ErrRecordNotFound is returned when a history entry does not exist.
var ErrRecordNotFound = errors.New("recording not found")

// Store manages recording artifacts and the history index on disk.
type Store struct {
	mu      sync.RWMutex
	dataDir string
	mirror  *Mirror
}

// New creates a store rooted at dataDir. The directory is created if missing.
func New(dataDir string, storageCfg *config.StorageConfig) (*Store, error) {
	if err := util.CheckPathWritable(dataDir); err != nil {
		return nil, util.WrapError("data directory", err)
	}

	s := &Store{dataDir: dataDir}

	if storageCfg != nil && storageCfg.Mode != config.StorageLocal {
		if !storageCfg.S3Configured() {
			return nil, fmt.Errorf("storage mode %q requires S3 credentials", storageCfg.Mode)
		}
		mirror, err := newMirror(storageCfg)
		if err != nil {
			return nil, util.WrapError("create S3 mirror", err)
		}
		s.mirror = mirror
	}

	return s, nil
}

// Mirror returns the S3 mirror, or nil when storage is local-only.
func (s *Store) Mirror() *Mirror {
	return s.mirror
}

// SaveArtifact writes the encoded recording to disk and returns the artifact
// path relative to the data directory. The relative path doubles as the
// artifact identifier in history entries.
func (s *Store) SaveArtifact(folder, filename string, data []byte) (string, error) {
	relPath := filepath.Join("recordings", folder, filename)
	absPath := filepath.Join(s.dataDir, relPath)

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", util.WrapError("create recording directory", err)
	}
	if err := os.WriteFile(absPath, data, 0o644); err != nil {
		return "", util.WrapError("write artifact", err)
	}

	return filepath.ToSlash(relPath), nil
}

// WriteSidecar writes session metadata next to an artifact. The sidecar path
// is the artifact path with its extension replaced by .json. Sidecar failures
// are reported but never block finalization.
func (s *Store) WriteSidecar(artifactID string, meta *protocol.SessionMetadata) error {
	absPath := filepath.Join(s.dataDir, filepath.FromSlash(artifactID))
	sidecarPath := strings.TrimSuffix(absPath, filepath.Ext(absPath)) + ".json"

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return util.WrapError("marshal sidecar", err)
	}
	if err := os.WriteFile(sidecarPath, data, 0o644); err != nil {
		return util.WrapError("write sidecar", err)
	}
	return nil
}

// ArtifactPath returns the absolute path of an artifact.
func (s *Store) ArtifactPath(artifactID string) string {
	return filepath.Join(s.dataDir, filepath.FromSlash(artifactID))
}

// AppendRecord prepends a record to the history index. When the cap is
// exceeded the oldest entries are dropped and their artifacts removed.
func (s *Store) AppendRecord(record *protocol.RecordingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadLocked()
	if err != nil {
		return err
	}

	records = append([]protocol.RecordingRecord{*record}, records...)

	var evicted []protocol.RecordingRecord
	if len(records) > MaxHistoryEntries {
		evicted = records[MaxHistoryEntries:]
		records = records[:MaxHistoryEntries]
	}

	if err := s.saveLocked(records); err != nil {
		return err
	}

	for i := range evicted {
		s.removeArtifactFiles(&evicted[i])
	}
	return nil
}

// List returns all history entries, newest first.
func (s *Store) List() ([]protocol.RecordingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadLocked()
}

// Delete removes a history entry together with its artifact and sidecar.
// File removal is best effort; the index entry is always removed.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadLocked()
	if err != nil {
		return err
	}

	idx := -1
	for i := range records {
		if records[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrRecordNotFound
	}

	removed := records[idx]
	records = append(records[:idx], records[idx+1:]...)

	if err := s.saveLocked(records); err != nil {
		return err
	}

	s.removeArtifactFiles(&removed)
	return nil
}

func (s *Store) removeArtifactFiles(record *protocol.RecordingRecord) {
	absPath := s.ArtifactPath(record.ArtifactID)
	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove artifact", "path", absPath, "error", err)
	}
	sidecarPath := strings.TrimSuffix(absPath, filepath.Ext(absPath)) + ".json"
	if err := os.Remove(sidecarPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove sidecar", "path", sidecarPath, "error", err)
	}
}

func (s *Store) historyPath() string {
	return filepath.Join(s.dataDir, historyFile)
}

func (s *Store) loadLocked() ([]protocol.RecordingRecord, error) {
	data, err := os.ReadFile(s.historyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, util.WrapError("read history", err)
	}

	var records []protocol.RecordingRecord
	if err := json.Unmarshal(data, &records); err != nil {
		// A corrupt index must not brick the recorder. Start fresh and keep
		// the broken file around for inspection.
		backupPath := s.historyPath() + ".corrupt"
		if renameErr := os.Rename(s.historyPath(), backupPath); renameErr != nil {
			slog.Error("failed to preserve corrupt history", "error", renameErr)
		} else {
			slog.Error("history index corrupt, starting fresh", "backup", backupPath, "error", err)
		}
		return nil, nil
	}
	return records, nil
}

func (s *Store) saveLocked(records []protocol.RecordingRecord) error {
	if records == nil {
		records = []protocol.RecordingRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return util.WrapError("marshal history", err)
	}

	tmpPath := s.historyPath() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return util.WrapError("write history", err)
	}
	if err := os.Rename(tmpPath, s.historyPath()); err != nil {
		return util.WrapError("replace history", err)
	}
	return nil
}
