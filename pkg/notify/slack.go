package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Slack sends notifications through a Slack incoming webhook.
type Slack struct {
	webhookURL string
	channel    string
	client     *http.Client
}

// SlackConfig configures the Slack adapter.
type SlackConfig struct {
	// WebhookURL is the Slack incoming webhook URL
	WebhookURL string

	// Channel overrides the webhook's default channel (optional)
	Channel string
}

// NewSlack creates a Slack adapter.
func NewSlack(cfg SlackConfig) (*Slack, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}

	return &Slack{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		client:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Name returns the adapter name.
func (s *Slack) Name() string {
	return "slack"
}

// Send posts the event as a single attachment.
func (s *Slack) Send(ctx context.Context, ev Event) error {
	emoji := ":white_check_mark:"
	color := "#2EB67D"
	if ev.Kind == KindTurnFailed {
		emoji = ":x:"
		color = "#E01E5A"
	}

	payload := map[string]interface{}{
		"username":   "Overseer",
		"icon_emoji": ":robot_face:",
		"attachments": []map[string]interface{}{
			{
				"color":     color,
				"title":     fmt.Sprintf("%s %s", emoji, ev.Title),
				"text":      ev.Preview,
				"footer":    fmt.Sprintf("Workspace %s, finished in %s", ev.WorkspaceID, ev.Duration.Round(time.Second)),
				"ts":        ev.Timestamp.Unix(),
				"mrkdwn_in": []string{"text"},
			},
		},
	}

	if s.channel != "" {
		payload["channel"] = s.channel
	}

	return s.sendWebhook(ctx, payload)
}

func (s *Slack) sendWebhook(ctx context.Context, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack webhook error: %s", string(body))
	}

	return nil
}

// Close closes the adapter.
func (s *Slack) Close() error {
	return nil
}
