package notify

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/meetcap/meetcap/internal/config"
	"github.com/meetcap/meetcap/internal/eventlog"
	"github.com/meetcap/meetcap/internal/protocol"
	"github.com/meetcap/meetcap/internal/store"
	"github.com/meetcap/meetcap/internal/util"
)

// Notifier fans a finalized recording out to every configured channel:
// webhook, Graph email, and the S3 mirror.
type Notifier struct {
	cfg    *config.Config
	mirror *store.Mirror
	events *eventlog.Logger

	mu    sync.Mutex
	graph *GraphClient
}

// New creates a notifier. mirror may be nil when storage is local-only.
func New(cfg *config.Config, mirror *store.Mirror, events *eventlog.Logger) *Notifier {
	return &Notifier{cfg: cfg, mirror: mirror, events: events}
}

// RecordingFinalized delivers all notifications for one recording. It is
// wired as a coordinator finalize hook and already runs off the command
// loop.
func (n *Notifier) RecordingFinalized(record *protocol.RecordingRecord, artifactPath string) {
	snap := n.cfg.Snapshot()

	if snap.HasWebhook() {
		util.LogNotifyResult(func() error {
			return SendRecordingWebhook(snap.WebhookURL, record)
		}, "webhook")
	}

	if snap.HasEmail() {
		if client := n.graphClient(&snap.Email); client != nil {
			util.LogNotifyResult(func() error {
				return client.SendRecordingMail(record)
			}, "email")
		}
	}

	if n.mirror != nil {
		n.uploadArtifact(record, artifactPath)
	}
}

// TestChannels exercises every configured delivery channel with a probe:
// a test webhook POST and an S3 round trip. Used by the settings UI to
// verify credentials before the first real recording.
func (n *Notifier) TestChannels(ctx context.Context) error {
	snap := n.cfg.Snapshot()

	if snap.HasWebhook() {
		if err := SendTestWebhook(snap.WebhookURL); err != nil {
			return util.WrapError("test webhook", err)
		}
	}
	if n.mirror != nil {
		if err := n.mirror.TestConnection(ctx); err != nil {
			return util.WrapError("test storage mirror", err)
		}
	}
	return nil
}

// graphClient lazily builds the Graph client so credentials edited at
// runtime take effect on the next recording.
func (n *Notifier) graphClient(cfg *config.EmailConfig) *GraphClient {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.graph == nil {
		client, err := NewGraphClient(cfg)
		if err != nil {
			slog.Warn("email notifications disabled", "error", err)
			return nil
		}
		n.graph = client
	}
	return n.graph
}

func (n *Notifier) uploadArtifact(record *protocol.RecordingRecord, artifactPath string) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		slog.Error("mirror upload skipped, artifact unreadable", "path", artifactPath, "error", err)
		return
	}

	err = n.mirror.Upload(context.Background(), record.ArtifactID, data, record.Format.ContentType())
	if err != nil {
		slog.Error("mirror upload failed", "artifact", record.ArtifactID, "error", err)
		n.logUpload(eventlog.UploadFailed, record, err)
		return
	}

	slog.Info("artifact mirrored", "artifact", record.ArtifactID, "bytes", len(data))
	n.logUpload(eventlog.UploadCompleted, record, nil)
}

func (n *Notifier) logUpload(eventType eventlog.EventType, record *protocol.RecordingRecord, uploadErr error) {
	details := &eventlog.RecordingDetails{
		RecordID: record.ID,
		Filename: record.Filename,
		S3Key:    record.ArtifactID,
	}
	if uploadErr != nil {
		details.Error = uploadErr.Error()
	}
	if err := n.events.LogRecording(eventType, details); err != nil {
		slog.Warn("failed to write event log", "type", eventType, "error", err)
	}
}
