package appserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/overseer/pkg/observability"
)

// Options configures a backend session.
type Options struct {
	// Command is the app-server executable. Args are passed through as-is;
	// most backends expect an "app-server" subcommand argument.
	Command string
	Args    []string

	// Dir is the working directory for the child process, normally the
	// workspace path.
	Dir string
	Env []string

	// WorkspaceID tags synthetic events and log lines.
	WorkspaceID string

	Client ClientInfo
	Logger *observability.Logger
}

// Session is one running app-server process and its RPC client. The
// embedded Client provides the full call surface.
type Session struct {
	*Client

	cmd  *exec.Cmd
	done chan struct{}

	loopErr error
	exitErr error
}

// Start spawns the backend, wires the stdio loops, and performs the
// initialize handshake. ctx bounds startup only; the session lives until
// Close or process exit.
func Start(ctx context.Context, opts Options) (*Session, error) {
	if strings.TrimSpace(opts.Command) == "" {
		return nil, errors.New("appserver: command is required")
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = opts.Env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", opts.Command, err)
	}

	client := NewClient(NewTransport(stdout, stdin), opts.Logger)
	s := &Session{
		Client: client,
		cmd:    cmd,
		done:   make(chan struct{}),
	}

	var group errgroup.Group
	group.Go(client.ReadLoop)
	group.Go(func() error {
		s.stderrLoop(stderr)
		return nil
	})
	go func() {
		defer close(s.done)
		s.loopErr = group.Wait()
		// Pipes are drained; safe to reap.
		s.exitErr = cmd.Wait()
		client.Close()
		if opts.Logger != nil {
			opts.Logger.Info("app server exited",
				"workspace_id", opts.WorkspaceID,
				"err", s.exitErr)
		}
	}()

	if _, err := client.Handshake(ctx, opts.Client); err != nil {
		s.kill()
		<-s.done
		return nil, fmt.Errorf("app server handshake: %w", err)
	}

	params, _ := json.Marshal(map[string]string{"workspaceId": opts.WorkspaceID})
	client.emit(Event{Method: EventConnected, Params: params})
	return s, nil
}

// stderrLoop turns backend stderr lines into events so diagnostics reach
// the same consumers as protocol traffic.
func (s *Session) stderrLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		params, _ := json.Marshal(map[string]string{"message": line})
		s.Client.emit(Event{Method: EventStderr, Params: params})
	}
}

func (s *Session) kill() {
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}

// Close kills the backend process and fails in-flight calls. It returns
// the process exit error, ignoring the kill we caused.
func (s *Session) Close() error {
	s.Client.Close()
	s.kill()
	<-s.done
	var exitErr *exec.ExitError
	if errors.As(s.exitErr, &exitErr) {
		return nil
	}
	return s.exitErr
}

// Wait blocks until the backend exits on its own and returns its exit
// error.
func (s *Session) Wait() error {
	<-s.done
	return s.exitErr
}

// Exited is closed once the process is reaped.
func (s *Session) Exited() <-chan struct{} {
	return s.done
}
