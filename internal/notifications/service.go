package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sendit/internal/config"
)

const userAgent = "SendIt-Go/0.1.0"

// Event enumerates the notifications sendit can publish.
type Event string

const (
	EventTransferFailed    Event = "transfer_failed"
	EventTransferCancelled Event = "transfer_cancelled"
	EventDownloadsComplete Event = "downloads_complete"
	EventCommandFailed     Event = "command_failed"
	EventTest              Event = "test"
)

// Payload carries the values a message template reads.
type Payload map[string]string

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventTransferFailed:    cfg.Notifications.Errors,
			EventCommandFailed:     cfg.Notifications.Errors,
			EventTransferCancelled: cfg.Notifications.Cancellations,
			EventDownloadsComplete: cfg.Notifications.Completions,
			EventTest:              true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, p Payload) (message, bool) {
	switch event {
	case EventTransferFailed:
		reason := strings.TrimSpace(p["reason"])
		if reason == "" {
			reason = "unknown error"
		}
		return message{
			title:    "SendIt - Transfer Failed",
			body:     fmt.Sprintf("❌ %s %s failed: %s", directionLabel(p["queue"]), p["name"], reason),
			tags:     []string{"sendit", "error", "alert"},
			priority: "high",
		}, true
	case EventTransferCancelled:
		return message{
			title: "SendIt - Cancelled",
			body:  fmt.Sprintf("⏹️ Download cancelled: %s", p["name"]),
			tags:  []string{"sendit", "download", "cancelled"},
		}, true
	case EventDownloadsComplete:
		body := "✅ All downloads finished"
		if count := strings.TrimSpace(p["count"]); count != "" {
			body = fmt.Sprintf("✅ All downloads finished: %s files", count)
		}
		return message{
			title: "SendIt - Downloads Complete",
			body:  body,
			tags:  []string{"sendit", "download", "completed"},
		}, true
	case EventCommandFailed:
		return message{
			title:    "SendIt - Error",
			body:     fmt.Sprintf("❌ Error with %s: %s", p["command"], strings.TrimSpace(p["error"])),
			tags:     []string{"sendit", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "SendIt - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"sendit", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func directionLabel(queueName string) string {
	if queueName == "outbound" {
		return "Upload of"
	}
	return "Download of"
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
