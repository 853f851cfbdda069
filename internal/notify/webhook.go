// Package notify delivers finalized-recording notifications over the
// configured channels. Delivery is best effort and runs off the recording
// path; a failed notification never affects the artifact.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/meetcap/meetcap/internal/protocol"
	"github.com/meetcap/meetcap/internal/util"
)

// WebhookPayload is POSTed to the configured endpoint after each finalized
// recording.
type WebhookPayload struct {
	Event            string  `json:"event"`
	Filename         string  `json:"filename"`
	MeetingTitle     string  `json:"meeting_title"`
	DurationSec      float64 `json:"duration_sec"`
	Format           string  `json:"format"`
	ParticipantCount *int    `json:"participant_count,omitempty"`
	Notes            string  `json:"notes,omitempty"`
	Timestamp        string  `json:"timestamp"`
}

// SendRecordingWebhook notifies the endpoint of a finalized recording.
func SendRecordingWebhook(webhookURL string, record *protocol.RecordingRecord) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:            "recording_finalized",
		Filename:         record.Filename,
		MeetingTitle:     record.MeetingTitle,
		DurationSec:      record.DurationSec,
		Format:           string(record.Format),
		ParticipantCount: record.ParticipantCount,
		Notes:            record.Notes,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	})
}

// SendTestWebhook sends a test notification.
func SendTestWebhook(webhookURL string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "test",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func sendWebhook(webhookURL string, payload *WebhookPayload) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
