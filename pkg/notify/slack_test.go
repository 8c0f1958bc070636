package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewSlack(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SlackConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     SlackConfig{WebhookURL: "https://hooks.slack.com/services/xxx"},
			wantErr: false,
		},
		{
			name:    "valid config with channel",
			cfg:     SlackConfig{WebhookURL: "https://hooks.slack.com/services/xxx", Channel: "#agents"},
			wantErr: false,
		},
		{
			name:    "missing webhook URL",
			cfg:     SlackConfig{WebhookURL: ""},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := NewSlack(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if adapter.Name() != "slack" {
				t.Errorf("Name() = %q, want 'slack'", adapter.Name())
			}
		})
	}
}

func TestSlackSend(t *testing.T) {
	var mu sync.Mutex
	var receivedPayload map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		receivedPayload = payload

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	adapter, err := NewSlack(SlackConfig{
		WebhookURL: server.URL,
		Channel:    "#agents",
	})
	if err != nil {
		t.Fatalf("NewSlack: %v", err)
	}

	tests := []struct {
		name        string
		event       Event
		wantColor   string
		titlePrefix string
	}{
		{
			name: "completed turn",
			event: Event{
				ID:          "01JXYZ0000000000000000TEST",
				Kind:        KindTurnCompleted,
				WorkspaceID: "ws-1",
				ThreadID:    "t-1",
				Title:       "Refactor storage",
				Preview:     "Moved everything behind the interface.",
				Duration:    42 * time.Second,
				Timestamp:   time.Now(),
			},
			wantColor:   "#2EB67D",
			titlePrefix: ":white_check_mark:",
		},
		{
			name: "failed turn",
			event: Event{
				ID:          "01JXYZ0000000000000000FAIL",
				Kind:        KindTurnFailed,
				WorkspaceID: "ws-1",
				ThreadID:    "t-2",
				Title:       "Broken build",
				Preview:     "model overloaded",
				Duration:    90 * time.Second,
				Timestamp:   time.Now(),
			},
			wantColor:   "#E01E5A",
			titlePrefix: ":x:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := adapter.Send(context.Background(), tt.event); err != nil {
				t.Fatalf("Send() error: %v", err)
			}

			mu.Lock()
			defer mu.Unlock()

			if username, ok := receivedPayload["username"].(string); !ok || username != "Overseer" {
				t.Errorf("username = %v, want 'Overseer'", receivedPayload["username"])
			}
			if channel, ok := receivedPayload["channel"].(string); !ok || channel != "#agents" {
				t.Errorf("channel = %v, want '#agents'", receivedPayload["channel"])
			}

			attachments, ok := receivedPayload["attachments"].([]interface{})
			if !ok || len(attachments) != 1 {
				t.Fatalf("expected 1 attachment, got %v", receivedPayload["attachments"])
			}
			attachment, ok := attachments[0].(map[string]interface{})
			if !ok {
				t.Fatal("attachment is not a map")
			}

			if color := attachment["color"]; color != tt.wantColor {
				t.Errorf("color = %v, want %v", color, tt.wantColor)
			}
			title, _ := attachment["title"].(string)
			if !strings.HasPrefix(title, tt.titlePrefix) {
				t.Errorf("title = %q, want prefix %q", title, tt.titlePrefix)
			}
			if !strings.Contains(title, tt.event.Title) {
				t.Errorf("title = %q, want it to contain %q", title, tt.event.Title)
			}
			if text := attachment["text"]; text != tt.event.Preview {
				t.Errorf("text = %v, want the preview", text)
			}
			footer, _ := attachment["footer"].(string)
			if !strings.Contains(footer, "ws-1") {
				t.Errorf("footer = %q, want the workspace id", footer)
			}
		})
	}
}

func TestSlackNoChannelOverride(t *testing.T) {
	var mu sync.Mutex
	var receivedPayload map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		json.NewDecoder(r.Body).Decode(&receivedPayload)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	adapter, err := NewSlack(SlackConfig{WebhookURL: server.URL})
	if err != nil {
		t.Fatalf("NewSlack: %v", err)
	}

	event := Event{
		ID:          "01JXYZ0000000000000000NOCH",
		Kind:        KindTurnCompleted,
		WorkspaceID: "ws-1",
		ThreadID:    "t-1",
		Title:       "Done",
		Timestamp:   time.Now(),
	}

	if err := adapter.Send(context.Background(), event); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()

	if _, ok := receivedPayload["channel"]; ok {
		t.Error("channel should not be set when not configured")
	}
}

func TestSlackSendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal error"))
	}))
	defer server.Close()

	adapter, err := NewSlack(SlackConfig{WebhookURL: server.URL})
	if err != nil {
		t.Fatalf("NewSlack: %v", err)
	}

	event := Event{
		ID:          "01JXYZ0000000000000000ERRS",
		Kind:        KindTurnCompleted,
		WorkspaceID: "ws-1",
		ThreadID:    "t-1",
		Title:       "Test",
		Timestamp:   time.Now(),
	}

	if err := adapter.Send(context.Background(), event); err == nil {
		t.Error("expected error for 500 response")
	}
}
