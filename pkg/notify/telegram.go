package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const telegramAPIBase = "https://api.telegram.org"

// Telegram sends notifications through the Telegram bot API.
type Telegram struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

// TelegramConfig configures the Telegram adapter.
type TelegramConfig struct {
	// BotToken is the Telegram bot token from @BotFather
	BotToken string

	// ChatID is the chat/user ID to send messages to
	ChatID string
}

// NewTelegram creates a Telegram adapter.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if cfg.ChatID == "" {
		return nil, fmt.Errorf("chat ID is required")
	}

	return &Telegram{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		baseURL:  telegramAPIBase,
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Name returns the adapter name.
func (t *Telegram) Name() string {
	return "telegram"
}

// Send sends the event as a Markdown message.
func (t *Telegram) Send(ctx context.Context, ev Event) error {
	var msg strings.Builder

	switch ev.Kind {
	case KindTurnFailed:
		msg.WriteString("❌ *Turn failed*\n\n")
	default:
		msg.WriteString("✅ *Turn finished*\n\n")
	}

	msg.WriteString("*")
	msg.WriteString(escapeMarkdown(ev.Title))
	msg.WriteString("*")

	if ev.Preview != "" {
		msg.WriteString("\n\n")
		msg.WriteString(escapeMarkdown(ev.Preview))
	}

	msg.WriteString("\n\n_")
	msg.WriteString(escapeMarkdown(fmt.Sprintf("Workspace %s, finished in %s", ev.WorkspaceID, ev.Duration.Round(time.Second))))
	msg.WriteString("_")

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       msg.String(),
		"parse_mode": "Markdown",
	}

	return t.sendRequest(ctx, "sendMessage", payload)
}

func (t *Telegram) sendRequest(ctx context.Context, method string, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error: %s", string(body))
	}

	return nil
}

// Close closes the adapter.
func (t *Telegram) Close() error {
	return nil
}

// escapeMarkdown escapes the characters Telegram's legacy Markdown mode
// treats as formatting.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"`", "\\`",
	)
	return replacer.Replace(s)
}
