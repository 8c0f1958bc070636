package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/odvcencio/overseer/pkg/appserver"
	"github.com/odvcencio/overseer/pkg/config"
	"github.com/odvcencio/overseer/pkg/engine"
	"github.com/odvcencio/overseer/pkg/eventlog"
	"github.com/odvcencio/overseer/pkg/gitwatch"
	"github.com/odvcencio/overseer/pkg/ipc"
	"github.com/odvcencio/overseer/pkg/notify"
	"github.com/odvcencio/overseer/pkg/observability"
	"github.com/odvcencio/overseer/pkg/telemetry"
	"github.com/odvcencio/overseer/pkg/thread"
	"github.com/odvcencio/overseer/pkg/workspace"
)

// Version information - set via ldflags during build
var (
	version   = "0.1.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

const pruneInterval = time.Hour

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("overseer", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the config file (default ~/.overseer/config.yaml)")
	openPath := fs.String("workspace", "", "register this directory as a workspace and connect it on startup")
	showVersion := fs.Bool("version", false, "print version information and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *showVersion {
		printVersion()
		return 0
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "overseer: %v\n", err)
		return 2
	}

	logger := newLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, *openPath, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon exited", "error", err)
		return 1
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// newLogger builds the root logger. Format "auto" writes text when
// stderr is a terminal and JSON otherwise, so journald and file
// redirects get structured output without extra configuration.
func newLogger(cfg config.LoggingConfig) *observability.Logger {
	json := true
	switch cfg.Format {
	case "text":
		json = false
	case "json":
	default:
		json = !term.IsTerminal(int(os.Stderr.Fd()))
	}
	return observability.NewLoggerTo(os.Stderr, "overseer", observability.ParseLevel(cfg.Level), json)
}

// serve wires the daemon together: store, signal hub, engine, workspace
// manager, git watcher, notifier, and the IPC bridge, then runs until
// the context is cancelled or a component fails.
func serve(ctx context.Context, cfg *config.Config, openPath string, logger *observability.Logger) error {
	logger.Info("starting overseer",
		"version", version,
		"bind", cfg.IPC.BindAddress,
		"state_dir", cfg.StateDir)

	if cfg.Tracing.Enabled {
		tp, err := observability.NewTracerProvider("overseer", version)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	store := thread.NewStore()
	hub := telemetry.NewHub()
	defer hub.Close()

	eng := engine.New(store, hub, logger, engine.Options{
		Model:          cfg.AppServer.Model,
		Effort:         cfg.AppServer.Effort,
		ApprovalPolicy: cfg.AppServer.ApprovalPolicy,
		SandboxPolicy:  cfg.AppServer.SandboxPolicy,
		ListPageSize:   cfg.AppServer.ListPageSize,
	})

	registry, err := workspace.LoadRegistry(cfg.WorkspacesPath())
	if err != nil {
		return fmt.Errorf("load workspace registry: %w", err)
	}

	manager := workspace.NewManager(registry, eng, logger, workspace.ManagerOptions{
		Command:   cfg.AppServer.Command,
		ExtraArgs: cfg.AppServer.Args,
		Client: appserver.ClientInfo{
			Name:    "overseer",
			Title:   "Overseer",
			Version: version,
		},
	})
	defer manager.Close()

	events, err := eventlog.Open(cfg.EventLog.Path, logger)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer events.Close()
	stopEventFollow := events.Follow(hub)
	defer stopEventFollow()

	var watcher *gitwatch.Service
	if cfg.Watcher.Enabled {
		watcher = gitwatch.NewService(cfg.Watcher.Debounce, hub, logger)
		defer watcher.Close()
	}

	var (
		observer *notify.Observer
		push     *notify.WebPush
	)
	if cfg.Notify.Enabled {
		senders, webPush, err := buildSenders(cfg.Notify, events, logger)
		if err != nil {
			return err
		}
		push = webPush
		observer = notify.NewObserver(store, logger, notify.Config{
			Threshold: cfg.Notify.Threshold,
			PerMinute: cfg.Notify.PerMinute,
		}, senders...)
		defer observer.Close()
		stopObserver := observer.Follow(hub)
		defer stopObserver()
	}

	server, err := ipc.NewServer(ipc.Config{
		BindAddress:    cfg.IPC.BindAddress,
		AuthToken:      cfg.IPC.AuthToken,
		RequireToken:   cfg.IPC.RequireToken,
		AllowedOrigins: cfg.IPC.AllowedOrigins,
		SessionSecret:  cfg.IPC.SessionSecret,
		SessionTTL:     cfg.IPC.SessionTTL,
		PublicMetrics:  cfg.IPC.PublicMetrics,
		Version:        version,
	}, ipc.Deps{
		Manager:  manager,
		Engine:   eng,
		Signals:  hub,
		Events:   events,
		Observer: observer,
		Push:     push,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create ipc server: %w", err)
	}

	if openPath != "" {
		openWorkspace(ctx, manager, openPath, logger)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(ctx)
	})
	g.Go(func() error {
		manager.ConnectAll(ctx)
		return nil
	})
	if watcher != nil {
		g.Go(func() error {
			return followWorkspaces(ctx, watcher, registry, hub, logger)
		})
	}
	if cfg.EventLog.Retention > 0 {
		g.Go(func() error {
			return pruneLoop(ctx, events, cfg.EventLog.Retention, logger)
		})
	}
	return g.Wait()
}

// openWorkspace handles -workspace. A directory that is already
// registered is connected under its existing id rather than piling up
// duplicate registrations across restarts.
func openWorkspace(ctx context.Context, manager *workspace.Manager, path string, logger *observability.Logger) {
	abs, err := filepath.Abs(path)
	if err != nil {
		logger.Error("resolve workspace path", "path", path, "error", err)
		return
	}
	for _, ws := range manager.Registry().List() {
		if ws.Path == abs {
			if err := manager.Connect(ctx, ws.ID); err != nil {
				logger.Warn("workspace connect failed", "workspace_id", ws.ID, "error", err)
			}
			return
		}
	}
	if _, err := manager.Add(ctx, abs, ""); err != nil {
		logger.Error("register workspace", "path", abs, "error", err)
	}
}

// followWorkspaces keeps a git watcher on every registered workspace.
// Watching again on each connect signal picks up workspaces added over
// the bridge after boot; Watch replaces any previous watcher for the id.
func followWorkspaces(ctx context.Context, watcher *gitwatch.Service, registry *workspace.Registry, hub *telemetry.Hub, logger *observability.Logger) error {
	watch := func(id string) {
		ws, ok := registry.Get(id)
		if !ok {
			return
		}
		if err := watcher.Watch(ws.ID, ws.Path); err != nil {
			logger.Warn("git watch failed",
				"workspace_id", ws.ID,
				"path", ws.Path,
				"error", err)
		}
	}

	for _, ws := range registry.List() {
		watch(ws.ID)
	}

	signals, cancel := hub.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			if sig.Kind == telemetry.SignalWorkspaceConnected {
				watch(sig.WorkspaceID)
			}
		}
	}
}

// pruneLoop trims expired event log rows once at startup and then on an
// hourly cadence.
func pruneLoop(ctx context.Context, events *eventlog.Log, retention time.Duration, logger *observability.Logger) error {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		n, err := events.Prune(retention)
		switch {
		case errors.Is(err, eventlog.ErrClosed):
			return nil
		case err != nil:
			logger.Warn("event log prune failed", "error", err)
		case n > 0:
			logger.Debug("event log pruned", "rows", n)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// buildSenders assembles the notification adapters enabled in config.
// The web push adapter is also returned on its own so the bridge can
// serve the VAPID public key and manage subscriptions.
func buildSenders(cfg config.NotifyConfig, events *eventlog.Log, logger *observability.Logger) ([]notify.Sender, *notify.WebPush, error) {
	var senders []notify.Sender

	if cfg.Slack.Enabled {
		slack, err := notify.NewSlack(notify.SlackConfig{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("slack notifications: %w", err)
		}
		senders = append(senders, slack)
	}
	if cfg.Telegram.Enabled {
		telegram, err := notify.NewTelegram(notify.TelegramConfig{
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("telegram notifications: %w", err)
		}
		senders = append(senders, telegram)
	}
	if cfg.NATS.Enabled {
		bus, err := notify.NewNATS(notify.NATSConfig{
			URL:     cfg.NATS.URL,
			Subject: cfg.NATS.Subject,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("nats notifications: %w", err)
		}
		senders = append(senders, bus)
	}

	var push *notify.WebPush
	if cfg.WebPush.Enabled {
		wp, err := notify.NewWebPush(events, notify.WebPushConfig{
			VAPIDPublicKey:  cfg.WebPush.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.WebPush.VAPIDPrivateKey,
			Subscriber:      cfg.WebPush.Subscriber,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("web push notifications: %w", err)
		}
		push = wp
		senders = append(senders, wp)
	}

	return senders, push, nil
}

func printVersion() {
	fmt.Printf("Overseer %s\n", version)
	if commit != "unknown" {
		fmt.Printf("  Commit:     %s\n", commit)
	}
	if buildDate != "unknown" {
		fmt.Printf("  Built:      %s\n", buildDate)
	}
	fmt.Printf("  Go version: %s\n", runtime.Version())
}
