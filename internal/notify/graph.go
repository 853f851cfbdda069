package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/meetcap/meetcap/internal/config"
	"github.com/meetcap/meetcap/internal/protocol"
	"github.com/meetcap/meetcap/internal/util"
)

const (
	graphBaseURL     = "https://graph.microsoft.com/v1.0"
	graphScope       = "https://graph.microsoft.com/.default"
	tokenURLTemplate = "https://login.microsoftonline.com/%s/oauth2/v2.0/token" //nolint:gosec // URL template, not a credential

	maxRetries       = 3
	initialRetryWait = 1 * time.Second
	maxRetryWait     = 30 * time.Second

	httpTimeout = 30 * time.Second
)

// GraphClient sends recording notification emails via Microsoft Graph.
type GraphClient struct {
	fromAddress string
	recipients  []string
	httpClient  *http.Client
}

// NewGraphClient creates an email client from the notification settings.
func NewGraphClient(cfg *config.EmailConfig) (*GraphClient, error) {
	if !util.IsConfigured(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, cfg.FromAddress) {
		return nil, fmt.Errorf("email notification settings incomplete")
	}

	recipients := splitRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no email recipients configured")
	}

	conf := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf(tokenURLTemplate, cfg.TenantID),
		Scopes:       []string{graphScope},
	}

	// Configure base HTTP client with timeout to prevent indefinite hangs
	baseClient := &http.Client{Timeout: httpTimeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, baseClient)

	return &GraphClient{
		fromAddress: cfg.FromAddress,
		recipients:  recipients,
		httpClient:  conf.Client(ctx),
	}, nil
}

func splitRecipients(raw string) []string {
	var out []string
	for _, r := range strings.Split(raw, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

type graphMailRequest struct {
	Message graphMessage `json:"message"`
}

type graphMessage struct {
	Subject      string           `json:"subject"`
	Body         graphBody        `json:"body"`
	ToRecipients []graphRecipient `json:"toRecipients"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEmailAddress struct {
	Address string `json:"address"`
}

// SendRecordingMail emails the configured recipients about a finalized
// recording.
func (c *GraphClient) SendRecordingMail(record *protocol.RecordingRecord) error {
	subject := fmt.Sprintf("Recording finished: %s", record.MeetingTitle)
	body := fmt.Sprintf(
		"Meeting: %s\nFile: %s\nDuration: %s\nFormat: %s\nRecorded: %s",
		record.MeetingTitle,
		record.Filename,
		util.FormatDuration(record.DurationSec),
		record.Format,
		record.StartedAt.Format(time.RFC1123),
	)
	return c.sendMail(subject, body)
}

func (c *GraphClient) sendMail(subject, body string) error {
	req := graphMailRequest{
		Message: graphMessage{
			Subject: subject,
			Body:    graphBody{ContentType: "Text", Content: body},
		},
	}
	for _, addr := range c.recipients {
		req.Message.ToRecipients = append(req.Message.ToRecipients,
			graphRecipient{EmailAddress: graphEmailAddress{Address: addr}})
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return util.WrapError("marshal mail request", err)
	}
	return c.doWithRetry(jsonData)
}

// doWithRetry sends the email request with automatic retries.
func (c *GraphClient) doWithRetry(jsonData []byte) error {
	apiURL := fmt.Sprintf("%s/users/%s/sendMail", graphBaseURL, url.PathEscape(c.fromAddress))
	backoff := util.NewBackoff(initialRetryWait, maxRetryWait)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff.Next())
		}

		req, err := http.NewRequest(http.MethodPost, apiURL, bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("send request: %w", err)
			continue
		}

		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("graph API returned %d: %s", resp.StatusCode, string(respBody))
			continue
		default:
			return fmt.Errorf("graph API returned %d: %s", resp.StatusCode, string(respBody))
		}
	}
	return fmt.Errorf("send mail failed after %d attempts: %w", maxRetries+1, lastErr)
}
