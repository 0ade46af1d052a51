// Package config handles configuration loading and validation for the agent.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the agent configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Queue    QueueConfig    `yaml:"queue"`
	Capture  CaptureConfig  `yaml:"capture"`
	Idle     IdleConfig     `yaml:"idle"`
	Session  SessionConfig  `yaml:"session"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Channel  ChannelConfig  `yaml:"channel"`
	Health   HealthConfig   `yaml:"health"`
	Policy   PolicyConfig   `yaml:"policy"`
	Report   ReportConfig   `yaml:"report"`
}

// ServerConfig locates the remote collector.
type ServerConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIPrefix      string        `yaml:"api_prefix"`
	ClientID       string        `yaml:"client_id"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// QueueConfig controls the durable upload queue and scratch folder.
type QueueConfig struct {
	Dir          string `yaml:"dir"`
	MaxRetries   int    `yaml:"max_retries"`
	AdoptOrphans *bool  `yaml:"adopt_orphans"` // nil = default (true)
}

// CaptureConfig controls artifact capture and disk-pressure handling.
type CaptureConfig struct {
	Command            []string      `yaml:"command"`
	Extension          string        `yaml:"extension"`
	DiskCheckInterval  time.Duration `yaml:"disk_check_interval"`
	LockOnDiskPressure bool          `yaml:"lock_on_disk_pressure"`
	LockCommand        []string      `yaml:"lock_command"`
}

// IdleConfig controls the user-idle monitor.
type IdleConfig struct {
	Command      []string      `yaml:"command"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// SessionConfig controls the session-lock monitor.
type SessionConfig struct {
	Command      []string      `yaml:"command"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DeliveryConfig controls the upload worker.
type DeliveryConfig struct {
	UploadAttempts  int           `yaml:"upload_attempts"`
	UploadBaseDelay time.Duration `yaml:"upload_base_delay"`
	FailurePause    time.Duration `yaml:"failure_pause"`
	ReconnectWait   time.Duration `yaml:"reconnect_wait"`
}

// ChannelConfig controls reconnection of the acknowledgment channel.
type ChannelConfig struct {
	ReconnectMin time.Duration `yaml:"reconnect_min"`
	ReconnectMax time.Duration `yaml:"reconnect_max"`
}

// HealthConfig controls the periodic health report.
type HealthConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// PolicyConfig controls remote policy polling.
type PolicyConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// ReportConfig controls event/error reporting to the collector.
type ReportConfig struct {
	Enabled *bool `yaml:"enabled"` // nil = default (true)
}

// DefaultConfig returns a Config with sensible defaults. Server.BaseURL has
// no default and must be provided.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			APIPrefix:      "/api/v1",
			ClientID:       defaultClientID(),
			RequestTimeout: 10 * time.Second,
		},
		Queue: QueueConfig{
			Dir:        filepath.Join(os.TempDir(), "auditclient"),
			MaxRetries: 3,
		},
		Capture: CaptureConfig{
			Command:           []string{"import", "-window", "root", "png:-"},
			Extension:         "png",
			DiskCheckInterval: 5 * time.Second,
			LockCommand:       []string{"loginctl", "lock-session"},
		},
		Idle: IdleConfig{
			Command:      []string{"xprintidle"},
			PollInterval: time.Second,
		},
		Session: SessionConfig{
			Command:      []string{"loginctl", "show-session", "self", "-p", "LockedHint", "--value"},
			PollInterval: 2 * time.Second,
		},
		Delivery: DeliveryConfig{
			UploadAttempts:  3,
			UploadBaseDelay: 3 * time.Second,
			FailurePause:    5 * time.Second,
			ReconnectWait:   5 * time.Second,
		},
		Channel: ChannelConfig{
			ReconnectMin: time.Second,
			ReconnectMax: 30 * time.Second,
		},
		Health: HealthConfig{
			Interval: 2 * time.Minute,
		},
		Policy: PolicyConfig{
			RefreshInterval: 30 * time.Second,
		},
	}
}

func defaultClientID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown-client"
	}
	return host
}

// Load reads configuration from the given path and validates it. If
// configPath is empty or doesn't exist, defaults are used (and fail
// validation until a base URL is supplied).
func Load(configPath string) (*Config, error) {
	cfg, err := Read(configPath)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Read parses the config file and applies defaults without validating.
func Read(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	d := DefaultConfig()

	if c.Server.APIPrefix == "" {
		c.Server.APIPrefix = d.Server.APIPrefix
	}
	if c.Server.ClientID == "" {
		c.Server.ClientID = d.Server.ClientID
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = d.Server.RequestTimeout
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")

	if c.Queue.Dir == "" {
		c.Queue.Dir = d.Queue.Dir
	}
	if c.Queue.MaxRetries == 0 {
		c.Queue.MaxRetries = d.Queue.MaxRetries
	}

	if len(c.Capture.Command) == 0 {
		c.Capture.Command = d.Capture.Command
	}
	if c.Capture.Extension == "" {
		c.Capture.Extension = d.Capture.Extension
	}
	c.Capture.Extension = strings.TrimPrefix(c.Capture.Extension, ".")
	if c.Capture.DiskCheckInterval == 0 {
		c.Capture.DiskCheckInterval = d.Capture.DiskCheckInterval
	}
	if len(c.Capture.LockCommand) == 0 {
		c.Capture.LockCommand = d.Capture.LockCommand
	}

	if len(c.Idle.Command) == 0 {
		c.Idle.Command = d.Idle.Command
	}
	if c.Idle.PollInterval == 0 {
		c.Idle.PollInterval = d.Idle.PollInterval
	}
	if len(c.Session.Command) == 0 {
		c.Session.Command = d.Session.Command
	}
	if c.Session.PollInterval == 0 {
		c.Session.PollInterval = d.Session.PollInterval
	}

	if c.Delivery.UploadAttempts == 0 {
		c.Delivery.UploadAttempts = d.Delivery.UploadAttempts
	}
	if c.Delivery.UploadBaseDelay == 0 {
		c.Delivery.UploadBaseDelay = d.Delivery.UploadBaseDelay
	}
	if c.Delivery.FailurePause == 0 {
		c.Delivery.FailurePause = d.Delivery.FailurePause
	}
	if c.Delivery.ReconnectWait == 0 {
		c.Delivery.ReconnectWait = d.Delivery.ReconnectWait
	}

	if c.Channel.ReconnectMin == 0 {
		c.Channel.ReconnectMin = d.Channel.ReconnectMin
	}
	if c.Channel.ReconnectMax == 0 {
		c.Channel.ReconnectMax = d.Channel.ReconnectMax
	}
	if c.Health.Interval == 0 {
		c.Health.Interval = d.Health.Interval
	}
	if c.Policy.RefreshInterval == 0 {
		c.Policy.RefreshInterval = d.Policy.RefreshInterval
	}
}

// AdoptOrphans reports whether unreferenced artifacts are enqueued at startup.
func (c *Config) AdoptOrphans() bool {
	return c.Queue.AdoptOrphans == nil || *c.Queue.AdoptOrphans
}

// ReportEnabled reports whether events are posted to the collector.
func (c *Config) ReportEnabled() bool {
	return c.Report.Enabled == nil || *c.Report.Enabled
}

// QueueFile returns the path of the persisted queue snapshot.
func (c *Config) QueueFile() string {
	return filepath.Join(c.Queue.Dir, "upload-queue.txt")
}

// Endpoint joins the API prefix and path onto the base URL.
func (c *Config) Endpoint(path string) string {
	return c.Server.BaseURL + c.Server.APIPrefix + path
}

// HeartbeatURL returns the websocket URL of the acknowledgment channel.
func (c *Config) HeartbeatURL() (string, error) {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/ws/heartbeat"
	u.RawQuery = url.Values{"clientId": []string{c.Server.ClientID}}.Encode()
	return u.String(), nil
}

// Validate checks that the configuration is structurally valid.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server.base_url must be an absolute http(s) URL")
	}

	if c.Server.ClientID == "" {
		return fmt.Errorf("server.client_id cannot be empty")
	}

	if c.Queue.Dir == "" {
		return fmt.Errorf("queue.dir cannot be empty")
	}

	if c.Queue.MaxRetries < 1 {
		return fmt.Errorf("queue.max_retries must be at least 1")
	}

	if c.Delivery.UploadAttempts < 1 {
		return fmt.Errorf("delivery.upload_attempts must be at least 1")
	}

	if c.Channel.ReconnectMax < c.Channel.ReconnectMin {
		return fmt.Errorf("channel.reconnect_max must not be below channel.reconnect_min")
	}

	for name, argv := range map[string][]string{
		"capture.command": c.Capture.Command,
		"idle.command":    c.Idle.Command,
		"session.command": c.Session.Command,
	} {
		if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
	}

	return nil
}
