package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/odvcencio/overseer/pkg/config"
	"github.com/odvcencio/overseer/pkg/engine"
	"github.com/odvcencio/overseer/pkg/eventlog"
	"github.com/odvcencio/overseer/pkg/observability"
	"github.com/odvcencio/overseer/pkg/telemetry"
	"github.com/odvcencio/overseer/pkg/thread"
	"github.com/odvcencio/overseer/pkg/workspace"
)

func testLogger() *observability.Logger {
	return observability.NewLoggerTo(io.Discard, "test", slog.LevelDebug, false)
}

func TestRunVersionFlag(t *testing.T) {
	if code := run([]string{"-version"}); code != 0 {
		t.Fatalf("run(-version)=%d want 0", code)
	}
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	if code := run([]string{"-no-such-flag"}); code != 2 {
		t.Fatalf("run(-no-such-flag)=%d want 2", code)
	}
}

func TestLoadConfigExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "state_dir: " + dir + "\nipc:\n  bind_address: \"127.0.0.1:9999\"\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.IPC.BindAddress != "127.0.0.1:9999" {
		t.Fatalf("bind=%q want 127.0.0.1:9999", cfg.IPC.BindAddress)
	}
	if cfg.AppServer.Command != "codex" {
		t.Fatalf("command=%q want default codex", cfg.AppServer.Command)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.IPC.BindAddress != "127.0.0.1:4399" {
		t.Fatalf("bind=%q want default", cfg.IPC.BindAddress)
	}
}

func TestBuildSendersNothingEnabled(t *testing.T) {
	senders, push, err := buildSenders(config.NotifyConfig{}, nil, testLogger())
	if err != nil {
		t.Fatalf("buildSenders: %v", err)
	}
	if len(senders) != 0 || push != nil {
		t.Fatalf("expected no senders, got %d (push=%v)", len(senders), push)
	}
}

func TestBuildSendersSlackRequiresWebhook(t *testing.T) {
	cfg := config.NotifyConfig{Slack: config.SlackConfig{Enabled: true}}
	if _, _, err := buildSenders(cfg, nil, testLogger()); err == nil {
		t.Fatalf("expected error for slack without webhook URL")
	}
}

func TestBuildSendersWebPushGeneratesKeys(t *testing.T) {
	events, err := eventlog.Open(filepath.Join(t.TempDir(), "events.db"), testLogger())
	if err != nil {
		t.Fatalf("open event log: %v", err)
	}
	defer events.Close()

	cfg := config.NotifyConfig{
		WebPush: config.WebPushConfig{Enabled: true, Subscriber: "mailto:ops@example.com"},
	}
	senders, push, err := buildSenders(cfg, events, testLogger())
	if err != nil {
		t.Fatalf("buildSenders: %v", err)
	}
	if push == nil {
		t.Fatalf("expected web push adapter")
	}
	if len(senders) != 1 {
		t.Fatalf("senders=%d want 1", len(senders))
	}
	if push.VAPIDPublicKey() == "" {
		t.Fatalf("expected generated VAPID public key")
	}
}

func TestOpenWorkspaceReusesRegistration(t *testing.T) {
	logger := testLogger()
	hub := telemetry.NewHub()
	defer hub.Close()
	eng := engine.New(thread.NewStore(), hub, logger, engine.Options{})

	registry, err := workspace.LoadRegistry(filepath.Join(t.TempDir(), "workspaces.json"))
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	manager := workspace.NewManager(registry, eng, logger, workspace.ManagerOptions{
		Command: "/nonexistent/overseer-test-backend",
	})
	defer manager.Close()

	dir := t.TempDir()
	ctx := context.Background()
	openWorkspace(ctx, manager, dir, logger)
	openWorkspace(ctx, manager, dir, logger)

	if got := len(registry.List()); got != 1 {
		t.Fatalf("registrations=%d want 1", got)
	}
}

func TestPruneLoopReturnsOnCancel(t *testing.T) {
	events, err := eventlog.Open(filepath.Join(t.TempDir(), "events.db"), testLogger())
	if err != nil {
		t.Fatalf("open event log: %v", err)
	}
	defer events.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pruneLoop(ctx, events, time.Hour, testLogger()); err != nil {
		t.Fatalf("pruneLoop: %v", err)
	}
}
