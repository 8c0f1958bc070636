package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/odvcencio/overseer/pkg/eventlog"
	"github.com/odvcencio/overseer/pkg/observability"
)

// SubscriptionStore persists browser push subscriptions. *eventlog.Log
// satisfies it.
type SubscriptionStore interface {
	ListSubscriptions() ([]eventlog.PushSubscription, error)
	DeleteSubscription(endpoint string) error
}

// WebPush sends notifications to every registered browser subscription.
type WebPush struct {
	store        SubscriptionStore
	logger       *observability.Logger
	vapidPublic  string
	vapidPrivate string
	subscriber   string
}

// WebPushConfig configures the Web Push adapter.
type WebPushConfig struct {
	// VAPIDPublicKey and VAPIDPrivateKey are the base64url-encoded VAPID
	// key pair. When either is empty a fresh pair is generated, which
	// invalidates existing subscriptions on restart.
	VAPIDPublicKey  string
	VAPIDPrivateKey string

	// Subscriber is the mailto: or https: contact sent to the push service
	Subscriber string
}

// pushPayload is the JSON body the service worker receives. Tag lets the
// browser collapse repeated notifications for the same thread.
type pushPayload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Tag   string         `json:"tag,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// NewWebPush creates a Web Push adapter backed by the given subscription
// store.
func NewWebPush(store SubscriptionStore, cfg WebPushConfig, logger *observability.Logger) (*WebPush, error) {
	if store == nil {
		return nil, fmt.Errorf("subscription store is required")
	}
	if cfg.Subscriber == "" {
		return nil, fmt.Errorf("subscriber contact is required")
	}

	vapidPublic := cfg.VAPIDPublicKey
	vapidPrivate := cfg.VAPIDPrivateKey
	if vapidPublic == "" || vapidPrivate == "" {
		pub, priv, err := GenerateVAPIDKeys()
		if err != nil {
			return nil, fmt.Errorf("generate VAPID keys: %w", err)
		}
		vapidPublic = pub
		vapidPrivate = priv
	}

	return &WebPush{
		store:        store,
		logger:       logger,
		vapidPublic:  vapidPublic,
		vapidPrivate: vapidPrivate,
		subscriber:   cfg.Subscriber,
	}, nil
}

// Name returns the adapter name.
func (w *WebPush) Name() string {
	return "webpush"
}

// VAPIDPublicKey returns the public key browsers need to subscribe.
func (w *WebPush) VAPIDPublicKey() string {
	return w.vapidPublic
}

// Send pushes the event to every stored subscription. Subscriptions the
// push service reports gone are pruned rather than treated as failures.
func (w *WebPush) Send(ctx context.Context, ev Event) error {
	subs, err := w.store.ListSubscriptions()
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	payload, err := json.Marshal(pushPayload{
		Title: ev.Title,
		Body:  ev.Preview,
		Tag:   ev.ThreadID,
		Data: map[string]any{
			"kind":        string(ev.Kind),
			"workspaceId": ev.WorkspaceID,
			"threadId":    ev.ThreadID,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for _, sub := range subs {
		if err := w.sendTo(ctx, sub, payload); err != nil {
			lastErr = fmt.Errorf("subscription %s: %w", sub.ID, err)
		}
	}
	return lastErr
}

func (w *WebPush) sendTo(ctx context.Context, sub eventlog.PushSubscription, payload []byte) error {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, wpSub, &webpush.Options{
		Subscriber:      w.subscriber,
		VAPIDPublicKey:  w.vapidPublic,
		VAPIDPrivateKey: w.vapidPrivate,
		TTL:             3600,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	// The push service says the browser unsubscribed; drop the record.
	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		if derr := w.store.DeleteSubscription(sub.Endpoint); derr != nil {
			w.logger.Warn("failed to prune expired push subscription",
				slog.String("subscription_id", sub.ID),
				slog.String("error", derr.Error()),
			)
		}
		return nil
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned status %d", resp.StatusCode)
	}

	return nil
}

// Close closes the adapter.
func (w *WebPush) Close() error {
	return nil
}

// GenerateVAPIDKeys returns a fresh base64url-encoded VAPID key pair for
// first-run setup.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", err
	}
	return pub, priv, nil
}
