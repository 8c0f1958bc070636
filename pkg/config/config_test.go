package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/odvcencio/overseer/pkg/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	if cfg.AppServer.Command == "" {
		t.Fatalf("default app server command should be populated: %+v", cfg.AppServer)
	}
	if cfg.AppServer.ApprovalPolicy != "on-request" {
		t.Fatalf("unexpected approval policy: %q", cfg.AppServer.ApprovalPolicy)
	}
	if cfg.AppServer.ListPageSize <= 0 {
		t.Fatalf("unexpected list page size: %d", cfg.AppServer.ListPageSize)
	}
	if cfg.Notify.Threshold <= 0 {
		t.Fatalf("unexpected notify threshold: %v", cfg.Notify.Threshold)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("OVERSEER_IPC_TOKEN", "")
	t.Setenv("OVERSEER_STATE_DIR", "")

	cfgYAML := `
app_server:
  command: /usr/local/bin/agent-server
  model: gpt-5-codex
  effort: high
ipc:
  bind_address: 127.0.0.1:9000
watcher:
  enabled: false
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfgYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.AppServer.Command != "/usr/local/bin/agent-server" {
		t.Errorf("command = %q", cfg.AppServer.Command)
	}
	if cfg.AppServer.Model != "gpt-5-codex" {
		t.Errorf("model = %q", cfg.AppServer.Model)
	}
	if cfg.IPC.BindAddress != "127.0.0.1:9000" {
		t.Errorf("bind = %q", cfg.IPC.BindAddress)
	}
	if cfg.Watcher.Enabled {
		t.Error("watcher should be disabled by file override")
	}
	// Untouched sections keep their defaults.
	if cfg.AppServer.ApprovalPolicy != "on-request" {
		t.Errorf("approval policy = %q", cfg.AppServer.ApprovalPolicy)
	}
	if cfg.EventLog.Path != filepath.Join(cfg.StateDir, "events.db") {
		t.Errorf("event log path = %q", cfg.EventLog.Path)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("OVERSEER_STATE_DIR", "")

	cfg, err := config.LoadFromPath(filepath.Join(dir, "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.AppServer.Command != config.DefaultAppServerCommand {
		t.Errorf("command = %q", cfg.AppServer.Command)
	}
	if cfg.StateDir != filepath.Join(dir, ".overseer") {
		t.Errorf("state dir = %q", cfg.StateDir)
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("OVERSEER_STATE_DIR", filepath.Join(dir, "state"))
	t.Setenv("OVERSEER_IPC_TOKEN", "0123456789abcdef0123456789abcdef")
	t.Setenv("OVERSEER_SLACK_WEBHOOK", "https://hooks.slack.example/T000/B000/XXX")

	cfg, err := config.LoadFromPath("")
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.StateDir != filepath.Join(dir, "state") {
		t.Errorf("state dir = %q", cfg.StateDir)
	}
	if !cfg.IPC.RequireToken {
		t.Error("token env should force require_token")
	}
	if !cfg.Notify.Slack.Enabled {
		t.Error("slack webhook env should enable the adapter")
	}
}

func TestValidateRejectsBadPolicies(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"approval", func(c *config.Config) { c.AppServer.ApprovalPolicy = "sometimes" }},
		{"sandbox", func(c *config.Config) { c.AppServer.SandboxPolicy = "yolo" }},
		{"page size", func(c *config.Config) { c.AppServer.ListPageSize = 0 }},
		{"short token", func(c *config.Config) { c.IPC.RequireToken = true; c.IPC.AuthToken = "short" }},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSessionTTLDefault(t *testing.T) {
	cfg := config.DefaultConfig()
	if cfg.IPC.SessionTTL != 12*time.Hour {
		t.Fatalf("session ttl = %v", cfg.IPC.SessionTTL)
	}
}
