// Package workspace tracks registered project directories and manages the
// backend session attached to each one.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned for operations on an unregistered workspace id.
var ErrNotFound = errors.New("workspace: not found")

// Settings holds per-workspace shell preferences persisted with the entry.
type Settings struct {
	SidebarCollapsed bool `json:"sidebarCollapsed"`
}

// Workspace is one registered project directory. Command optionally
// overrides the configured app-server binary for this workspace only.
type Workspace struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Command  string   `json:"command,omitempty"`
	Settings Settings `json:"settings"`
}

// Registry persists workspaces to a JSON file. Mutations rewrite the file
// through a temp file + rename so a crash never leaves it half-written.
type Registry struct {
	mu      sync.Mutex
	path    string
	entries map[string]Workspace
}

// LoadRegistry reads the registry file. A missing file is an empty
// registry, not an error.
func LoadRegistry(path string) (*Registry, error) {
	r := &Registry{path: path, entries: make(map[string]Workspace)}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read workspace registry: %w", err)
	}
	var list []Workspace
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse workspace registry %s: %w", path, err)
	}
	for _, ws := range list {
		if ws.ID != "" {
			r.entries[ws.ID] = ws
		}
	}
	return r, nil
}

// Add registers a directory under a fresh id. The display name is the
// directory's base name.
func (r *Registry) Add(path, command string) (Workspace, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Workspace{}, fmt.Errorf("resolve workspace path %s: %w", path, err)
	}
	name := filepath.Base(abs)
	if name == "." || name == string(filepath.Separator) {
		name = "Workspace"
	}
	ws := Workspace{
		ID:      uuid.NewString(),
		Name:    name,
		Path:    abs,
		Command: strings.TrimSpace(command),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[ws.ID] = ws
	if err := r.save(); err != nil {
		delete(r.entries, ws.ID)
		return Workspace{}, err
	}
	return ws, nil
}

// Remove drops a workspace from the registry.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.entries[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.entries, id)
	if err := r.save(); err != nil {
		r.entries[id] = ws
		return err
	}
	return nil
}

// UpdateSettings replaces a workspace's settings and persists the change.
func (r *Registry) UpdateSettings(id string, settings Settings) (Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.entries[id]
	if !ok {
		return Workspace{}, ErrNotFound
	}
	prev := ws
	ws.Settings = settings
	r.entries[id] = ws
	if err := r.save(); err != nil {
		r.entries[id] = prev
		return Workspace{}, err
	}
	return ws, nil
}

// Get returns a workspace by id.
func (r *Registry) Get(id string) (Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.entries[id]
	return ws, ok
}

// List returns all workspaces sorted by display name.
func (r *Registry) List() []Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := make([]Workspace, 0, len(r.entries))
	for _, ws := range r.entries {
		list = append(list, ws)
	}
	sortWorkspaces(list)
	return list
}

// save writes the registry file. Caller holds r.mu.
func (r *Registry) save() error {
	list := make([]Workspace, 0, len(r.entries))
	for _, ws := range r.entries {
		list = append(list, ws)
	}
	sortWorkspaces(list)

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encode workspace registry: %w", err)
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".workspaces-*.json")
	if err != nil {
		return fmt.Errorf("write workspace registry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write workspace registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write workspace registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write workspace registry: %w", err)
	}
	return nil
}

func sortWorkspaces(list []Workspace) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID < list[j].ID
	})
}
