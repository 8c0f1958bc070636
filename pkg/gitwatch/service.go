package gitwatch

import (
	"sync"
	"time"

	"github.com/odvcencio/overseer/pkg/observability"
	"github.com/odvcencio/overseer/pkg/telemetry"
)

// Service runs one watcher per workspace.
type Service struct {
	debounce time.Duration
	hub      *telemetry.Hub
	logger   *observability.Logger

	mu       sync.Mutex
	watchers map[string]*Watcher
}

func NewService(debounce time.Duration, hub *telemetry.Hub, logger *observability.Logger) *Service {
	return &Service{
		debounce: debounce,
		hub:      hub,
		logger:   logger,
		watchers: make(map[string]*Watcher),
	}
}

// Watch starts watching the workspace root, replacing any previous
// watcher for the same workspace.
func (s *Service) Watch(workspaceID, root string) error {
	w, err := NewWatcher(workspaceID, root, s.debounce, s.hub, s.logger)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.watchers[workspaceID]
	s.watchers[workspaceID] = w
	s.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	s.logger.Debug("watching workspace", "workspace_id", workspaceID, "path", root)
	return nil
}

// Unwatch stops the workspace's watcher if one is running.
func (s *Service) Unwatch(workspaceID string) {
	s.mu.Lock()
	w, ok := s.watchers[workspaceID]
	if ok {
		delete(s.watchers, workspaceID)
	}
	s.mu.Unlock()
	if ok {
		w.Stop()
	}
}

// Close stops every watcher.
func (s *Service) Close() {
	s.mu.Lock()
	watchers := s.watchers
	s.watchers = make(map[string]*Watcher)
	s.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
}
