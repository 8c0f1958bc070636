package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// MinTokenLength is the minimum recommended length for IPC authentication tokens
const MinTokenLength = 32

// Default configuration values exported for documentation and validation
const (
	DefaultAppServerCommand = "codex"
	DefaultApprovalPolicy   = "on-request"
	DefaultSandboxPolicy    = "workspace-write"
	DefaultListPageSize     = 20
	DefaultIPCBind          = "127.0.0.1:4399"
	DefaultSessionTTL       = 12 * time.Hour
	DefaultNotifyThreshold  = 10 * time.Second
	DefaultNotifyPerMinute  = 6
	DefaultWatchDebounce    = 400 * time.Millisecond
	DefaultEventLogRetain   = 7 * 24 * time.Hour
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "auto"
)

// Config represents the complete Overseer configuration
type Config struct {
	StateDir  string          `yaml:"state_dir"`
	AppServer AppServerConfig `yaml:"app_server"`
	IPC       IPCConfig       `yaml:"ipc"`
	Notify    NotifyConfig    `yaml:"notify"`
	EventLog  EventLogConfig  `yaml:"event_log"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// AppServerConfig configures the agent backend process and default turn options.
type AppServerConfig struct {
	Command        string   `yaml:"command"` // Binary to spawn, one instance per workspace
	Args           []string `yaml:"args"`    // Extra args appended after the built-in ones
	Model          string   `yaml:"model"`   // Empty means backend default
	Effort         string   `yaml:"effort"`  // Reasoning effort: minimal/low/medium/high, empty for default
	ApprovalPolicy string   `yaml:"approval_policy"`
	SandboxPolicy  string   `yaml:"sandbox_policy"`
	ListPageSize   int      `yaml:"list_page_size"` // Page size for thread listing
}

// IPCConfig configures the local HTTP/WebSocket bridge.
type IPCConfig struct {
	BindAddress    string        `yaml:"bind_address"`
	AuthToken      string        `yaml:"auth_token"`
	RequireToken   bool          `yaml:"require_token"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	SessionSecret  string        `yaml:"session_secret"` // HMAC key for browser session tokens
	SessionTTL     time.Duration `yaml:"session_ttl"`
	PublicMetrics  bool          `yaml:"public_metrics"` // Serve /metrics without a token
}

// NotifyConfig controls turn-completion notifications.
type NotifyConfig struct {
	Enabled   bool           `yaml:"enabled"`
	Threshold time.Duration  `yaml:"threshold"`  // Minimum turn duration before a notification fires
	PerMinute int            `yaml:"per_minute"` // Rate limit across all adapters
	Slack     SlackConfig    `yaml:"slack"`
	Telegram  TelegramConfig `yaml:"telegram"`
	WebPush   WebPushConfig  `yaml:"web_push"`
	NATS      NATSConfig     `yaml:"nats"`
}

// SlackConfig configures Slack notifications
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"` // Incoming webhook URL
	Channel    string `yaml:"channel"`     // Optional channel override
}

// TelegramConfig configures Telegram notifications
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"` // From @BotFather
	ChatID   string `yaml:"chat_id"`   // User or group chat ID
}

// WebPushConfig configures browser push notifications
type WebPushConfig struct {
	Enabled         bool   `yaml:"enabled"`
	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	Subscriber      string `yaml:"subscriber"` // mailto: contact for the push service
}

// NATSConfig configures remote notification delivery over NATS.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// EventLogConfig configures the debug event log database.
type EventLogConfig struct {
	Path      string        `yaml:"path"` // Empty means <state_dir>/events.db
	Retention time.Duration `yaml:"retention"`
}

// WatcherConfig configures the per-workspace filesystem watcher.
type WatcherConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // auto, json, text
}

// TracingConfig controls the stdout OpenTelemetry exporter.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns a config with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		AppServer: AppServerConfig{
			Command:        DefaultAppServerCommand,
			ApprovalPolicy: DefaultApprovalPolicy,
			SandboxPolicy:  DefaultSandboxPolicy,
			ListPageSize:   DefaultListPageSize,
		},
		IPC: IPCConfig{
			BindAddress: DefaultIPCBind,
			SessionTTL:  DefaultSessionTTL,
		},
		Notify: NotifyConfig{
			Threshold: DefaultNotifyThreshold,
			PerMinute: DefaultNotifyPerMinute,
		},
		EventLog: EventLogConfig{
			Retention: DefaultEventLogRetain,
		},
		Watcher: WatcherConfig{
			Enabled:  true,
			Debounce: DefaultWatchDebounce,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load loads configuration from ~/.overseer/config.yaml if present.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	path := ""
	if home != "" {
		path = filepath.Join(home, ".overseer", "config.yaml")
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file path. A missing file
// is not an error; defaults plus environment overrides apply.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadAndMerge(cfg, path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.applyStateDir()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadAndMerge loads a YAML file over the defaults already in cfg.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides for secrets and
// the most common deployment knobs.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OVERSEER_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("OVERSEER_APP_SERVER"); v != "" {
		cfg.AppServer.Command = v
	}
	if v := os.Getenv("OVERSEER_IPC_BIND"); v != "" {
		cfg.IPC.BindAddress = v
	}
	if v := os.Getenv("OVERSEER_IPC_TOKEN"); v != "" {
		cfg.IPC.AuthToken = v
		cfg.IPC.RequireToken = true
	}
	if v := os.Getenv("OVERSEER_SESSION_SECRET"); v != "" {
		cfg.IPC.SessionSecret = v
	}
	if v := os.Getenv("OVERSEER_SLACK_WEBHOOK"); v != "" {
		cfg.Notify.Slack.WebhookURL = v
		cfg.Notify.Slack.Enabled = true
	}
	if v := os.Getenv("OVERSEER_TELEGRAM_TOKEN"); v != "" {
		cfg.Notify.Telegram.BotToken = v
	}
	if v := os.Getenv("OVERSEER_NATS_URL"); v != "" {
		cfg.Notify.NATS.URL = v
	}
}

// applyStateDir resolves the state directory and dependent paths.
func (c *Config) applyStateDir() {
	if c.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.Getenv("HOME")
		}
		c.StateDir = filepath.Join(home, ".overseer")
	}
	if c.EventLog.Path == "" {
		c.EventLog.Path = filepath.Join(c.StateDir, "events.db")
	}
}

// WorkspacesPath returns the path of the workspace registry file.
func (c *Config) WorkspacesPath() string {
	return filepath.Join(c.StateDir, "workspaces.json")
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	switch c.AppServer.ApprovalPolicy {
	case "on-request", "never":
	default:
		return fmt.Errorf("invalid approval_policy %q (want on-request or never)", c.AppServer.ApprovalPolicy)
	}
	switch c.AppServer.SandboxPolicy {
	case "workspace-write", "read-only", "danger-full-access":
	default:
		return fmt.Errorf("invalid sandbox_policy %q", c.AppServer.SandboxPolicy)
	}
	if c.AppServer.Command == "" {
		return fmt.Errorf("app_server.command must not be empty")
	}
	if c.AppServer.ListPageSize <= 0 {
		return fmt.Errorf("app_server.list_page_size must be positive")
	}
	if c.Notify.Threshold < 0 {
		return fmt.Errorf("notify.threshold must not be negative")
	}
	if c.Notify.PerMinute <= 0 {
		return fmt.Errorf("notify.per_minute must be positive")
	}
	if c.IPC.RequireToken && len(c.IPC.AuthToken) < MinTokenLength {
		return fmt.Errorf("ipc.auth_token must be at least %d characters when require_token is set", MinTokenLength)
	}
	switch c.Logging.Format {
	case "auto", "json", "text":
	default:
		return fmt.Errorf("invalid logging.format %q (want auto, json, or text)", c.Logging.Format)
	}
	return nil
}
