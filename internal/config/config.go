// Package config provides application configuration management.
package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/meetcap/meetcap/internal/protocol"
	"github.com/meetcap/meetcap/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort       = 8090
	DefaultFolder        = "Recordings"
	DefaultAppName       = "Meet"
	DefaultMeetingOrigin = "https://meet.google.com"
	DefaultCallPath      = "/call/"
	DefaultDataDir       = "data"
	DefaultPollMs        = 1500
)

// SystemConfig holds daemon-level settings that require restart.
type SystemConfig struct {
	Port       int    `json:"port"`        // Control server port
	DataDir    string `json:"data_dir"`    // Root directory for artifacts, history, state
	FFmpegPath string `json:"ffmpeg_path"` // Path to FFmpeg binary (empty = use PATH)
	BrowserURL string `json:"browser_url"` // DevTools control URL of the target browser
}

// MeetingConfig identifies the meeting application the observer watches.
type MeetingConfig struct {
	AppName  string `json:"app_name"`  // Short name used in filenames
	Origin   string `json:"origin"`    // Page origin hosting calls
	CallPath string `json:"call_path"` // URL path segment marking an active call
	PollMs   int    `json:"poll_ms"`   // Observer poll interval in milliseconds
}

// Settings holds the user-facing recording preferences. They are read at the
// start of each session; the coordinator never mutates them except Notes,
// which is cleared after each finalize.
type Settings struct {
	SourceMode      protocol.SourceMode `json:"source_mode"`
	Format          protocol.Format     `json:"format"`
	Folder          string              `json:"folder"`
	BeepOnStart     bool                `json:"beep_on_start"`
	ConsentAccepted bool                `json:"consent_accepted"`
	OnScreenBadge   bool                `json:"on_screen_badge"`
	Notes           string              `json:"notes"`
}

// StorageMode determines where finalized artifacts are saved.
type StorageMode string

// Supported storage modes.
const (
	StorageLocal StorageMode = "local" // Save only to local filesystem
	StorageS3    StorageMode = "s3"    // Upload only, local copy removed after upload
	StorageBoth  StorageMode = "both"  // Save locally AND upload to S3
)

// StorageConfig holds artifact destination settings.
type StorageConfig struct {
	Mode              StorageMode `json:"mode"`
	S3Endpoint        string      `json:"s3_endpoint"`
	S3Bucket          string      `json:"s3_bucket"`
	S3AccessKeyID     string      `json:"s3_access_key_id"`
	S3SecretAccessKey string      `json:"s3_secret_access_key"`
}

// S3Configured reports whether the S3 mirror has the required fields.
func (s *StorageConfig) S3Configured() bool {
	return util.IsConfigured(s.S3Bucket, s.S3AccessKeyID, s.S3SecretAccessKey)
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url"` // POSTed a payload after each finalized recording
}

// EmailConfig holds Microsoft Graph email notification settings.
type EmailConfig struct {
	TenantID     string `json:"tenant_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	FromAddress  string `json:"from_address"`
	Recipients   string `json:"recipients"`
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig `json:"webhook"`
	Email   EmailConfig   `json:"email"`
}

// TranscriptConfig holds the live speech-to-text side channel settings.
// The side channel is best-effort: a misconfigured or unreachable endpoint
// never affects a recording.
type TranscriptConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"` // WebSocket URL of the STT service
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System        SystemConfig        `json:"system"`
	Meeting       MeetingConfig       `json:"meeting"`
	Settings      Settings            `json:"settings"`
	Storage       StorageConfig       `json:"storage"`
	Notifications NotificationsConfig `json:"notifications"`
	Transcript    TranscriptConfig    `json:"transcript"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port:    DefaultWebPort,
			DataDir: DefaultDataDir,
		},
		Meeting: MeetingConfig{
			AppName:  DefaultAppName,
			Origin:   DefaultMeetingOrigin,
			CallPath: DefaultCallPath,
			PollMs:   DefaultPollMs,
		},
		Settings: Settings{
			SourceMode: protocol.SourceBoth,
			Format:     protocol.FormatWebM,
			Folder:     DefaultFolder,
		},
		Storage:  StorageConfig{Mode: StorageLocal},
		filePath: filePath,
	}
}

// Load reads config from file, creating a default one if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return util.WrapError("read config", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()
	return c.validateLocked()
}

// validateLocked checks configuration fields for correctness. Caller must hold c.mu.
func (c *Config) validateLocked() error {
	if !c.Settings.SourceMode.IsValid() {
		return fmt.Errorf("invalid source_mode %q: must be 'both', 'system', or 'mic'", c.Settings.SourceMode)
	}
	if !c.Settings.Format.IsValid() {
		return fmt.Errorf("invalid format %q: must be 'webm', 'wav', or 'mp3'", c.Settings.Format)
	}
	if err := util.ValidatePath("folder", c.Settings.Folder); err != nil {
		return err
	}
	switch c.Storage.Mode {
	case StorageLocal, StorageS3, StorageBoth:
	default:
		return fmt.Errorf("invalid storage mode %q", c.Storage.Mode)
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}
	if c.System.DataDir == "" {
		c.System.DataDir = DefaultDataDir
	}
	if c.Meeting.AppName == "" {
		c.Meeting.AppName = DefaultAppName
	}
	if c.Meeting.Origin == "" {
		c.Meeting.Origin = DefaultMeetingOrigin
	}
	if c.Meeting.CallPath == "" {
		c.Meeting.CallPath = DefaultCallPath
	}
	if c.Meeting.PollMs == 0 {
		c.Meeting.PollMs = DefaultPollMs
	}
	if c.Settings.SourceMode == "" {
		c.Settings.SourceMode = protocol.SourceBoth
	}
	if c.Settings.Format == "" {
		c.Settings.Format = protocol.FormatWebM
	}
	if c.Settings.Folder == "" {
		c.Settings.Folder = DefaultFolder
	}
	if c.Storage.Mode == "" {
		c.Storage.Mode = StorageLocal
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.filePath), 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}
	return nil
}

// CurrentSettings returns a copy of the recording settings.
func (c *Config) CurrentSettings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Settings
}

// UpdateSettings replaces the recording settings and saves the configuration.
func (c *Config) UpdateSettings(s Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.Settings
	c.Settings = s
	if err := c.validateLocked(); err != nil {
		c.Settings = prev
		return err
	}
	return c.saveLocked()
}

// ClearNotes resets the transient notes field and saves the configuration.
func (c *Config) ClearNotes() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Settings.Notes = ""
	return c.saveLocked()
}

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	Port       int
	DataDir    string
	FFmpegPath string
	BrowserURL string

	AppName  string
	Origin   string
	CallPath string
	PollMs   int

	Settings Settings
	Storage  StorageConfig

	WebhookURL      string
	Email           EmailConfig
	TranscriptOn    bool
	TranscriptWSURL string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Port:       c.System.Port,
		DataDir:    cmp.Or(c.System.DataDir, DefaultDataDir),
		FFmpegPath: c.System.FFmpegPath,
		BrowserURL: c.System.BrowserURL,

		AppName:  c.Meeting.AppName,
		Origin:   c.Meeting.Origin,
		CallPath: c.Meeting.CallPath,
		PollMs:   cmp.Or(c.Meeting.PollMs, DefaultPollMs),

		Settings: c.Settings,
		Storage:  c.Storage,

		WebhookURL:      c.Notifications.Webhook.URL,
		Email:           c.Notifications.Email,
		TranscriptOn:    c.Transcript.Enabled,
		TranscriptWSURL: c.Transcript.Endpoint,
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasEmail reports whether Graph email notifications are configured.
func (s *Snapshot) HasEmail() bool {
	return util.IsConfigured(s.Email.TenantID, s.Email.ClientID, s.Email.ClientSecret,
		s.Email.FromAddress, s.Email.Recipients)
}
