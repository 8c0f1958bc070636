package workspace

import (
	"context"
	"fmt"
	"sync"

	"github.com/odvcencio/overseer/pkg/appserver"
	"github.com/odvcencio/overseer/pkg/engine"
	"github.com/odvcencio/overseer/pkg/observability"
)

// appServerArg is the subcommand every backend binary is launched with.
const appServerArg = "app-server"

// ManagerOptions carries the backend launch configuration.
type ManagerOptions struct {
	// Command is the default app-server binary; a workspace's own Command
	// field overrides it. ExtraArgs follow the app-server subcommand.
	Command   string
	ExtraArgs []string
	Client    appserver.ClientInfo
}

// Manager owns one running backend session per workspace and keeps the
// engine attached to it. Sessions start on demand; a crashed session is
// replaced on the next Connect.
type Manager struct {
	registry *Registry
	engine   *engine.Engine
	logger   *observability.Logger
	opts     ManagerOptions

	mu       sync.Mutex
	sessions map[string]*appserver.Session
}

func NewManager(registry *Registry, eng *engine.Engine, logger *observability.Logger, opts ManagerOptions) *Manager {
	return &Manager{
		registry: registry,
		engine:   eng,
		logger:   logger,
		opts:     opts,
		sessions: make(map[string]*appserver.Session),
	}
}

// Info is a workspace plus its live connection state.
type Info struct {
	Workspace
	Connected bool `json:"connected"`
}

// Registry exposes the backing registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// List returns registered workspaces with their connection state, sorted
// by display name.
func (m *Manager) List() []Info {
	workspaces := m.registry.List()
	infos := make([]Info, 0, len(workspaces))
	for _, ws := range workspaces {
		infos = append(infos, Info{Workspace: ws, Connected: m.Connected(ws.ID)})
	}
	return infos
}

// Connected reports whether the workspace has a live backend process.
func (m *Manager) Connected(id string) bool {
	_, ok := m.Session(id)
	return ok
}

// Session returns the workspace's live backend session, if any. Callers
// use it for passthrough RPCs the engine does not own (model catalog,
// rate limits, skills).
func (m *Manager) Session(id string) (*appserver.Session, bool) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-sess.Exited():
		return nil, false
	default:
		return sess, true
	}
}

// Add registers a directory and connects its backend. Registration sticks
// even when the backend fails to start; Connect can be retried later.
func (m *Manager) Add(ctx context.Context, path, command string) (Workspace, error) {
	ws, err := m.registry.Add(path, command)
	if err != nil {
		return Workspace{}, err
	}
	if err := m.Connect(ctx, ws.ID); err != nil {
		m.logger.Warn("workspace added but backend did not start",
			"workspace_id", ws.ID,
			"error", err)
	}
	return ws, nil
}

// Connect spawns the workspace's backend unless a live session already
// exists.
func (m *Manager) Connect(ctx context.Context, id string) error {
	ws, ok := m.registry.Get(id)
	if !ok {
		return ErrNotFound
	}

	m.mu.Lock()
	if sess, ok := m.sessions[id]; ok {
		select {
		case <-sess.Exited():
			delete(m.sessions, id)
		default:
			m.mu.Unlock()
			return nil
		}
	}
	m.mu.Unlock()

	command := m.opts.Command
	if ws.Command != "" {
		command = ws.Command
	}
	sess, err := appserver.Start(ctx, appserver.Options{
		Command:     command,
		Args:        append([]string{appServerArg}, m.opts.ExtraArgs...),
		Dir:         ws.Path,
		WorkspaceID: id,
		Client:      m.opts.Client,
		Logger:      m.logger.WithWorkspace(id),
	})
	if err != nil {
		return fmt.Errorf("connect workspace %s: %w", ws.Name, err)
	}

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		alive := true
		select {
		case <-existing.Exited():
			alive = false
		default:
		}
		if alive {
			// Lost the race to a concurrent Connect; keep the first.
			m.mu.Unlock()
			sess.Close()
			return nil
		}
	}
	m.sessions[id] = sess
	m.mu.Unlock()

	m.engine.AttachWorkspace(id, ws.Path, sess, sess.Events(), sess.Done())
	go m.reapOnExit(id, sess)
	m.logger.Info("workspace connected", "workspace_id", id, "path", ws.Path)
	return nil
}

// reapOnExit detaches the engine once the backend dies so the next
// Connect starts clean.
func (m *Manager) reapOnExit(id string, sess *appserver.Session) {
	<-sess.Exited()
	m.mu.Lock()
	current := m.sessions[id] == sess
	if current {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if current {
		m.engine.DetachWorkspace(id)
		m.logger.Info("workspace backend exited", "workspace_id", id)
	}
}

// Disconnect stops the workspace's backend process if one is running.
func (m *Manager) Disconnect(id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.engine.DetachWorkspace(id)
	if err := sess.Close(); err != nil {
		m.logger.Warn("backend shutdown", "workspace_id", id, "error", err)
	}
}

// Remove disconnects the workspace and deletes it from the registry.
func (m *Manager) Remove(id string) error {
	if err := m.registry.Remove(id); err != nil {
		return err
	}
	m.Disconnect(id)
	return nil
}

// ConnectAll connects every registered workspace, logging failures and
// moving on.
func (m *Manager) ConnectAll(ctx context.Context) {
	for _, ws := range m.registry.List() {
		if err := m.Connect(ctx, ws.ID); err != nil {
			m.logger.Warn("workspace connect failed",
				"workspace_id", ws.ID,
				"error", err)
		}
	}
}

// Close stops every backend session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*appserver.Session)
	m.mu.Unlock()

	for id, sess := range sessions {
		m.engine.DetachWorkspace(id)
		sess.Close()
	}
}
