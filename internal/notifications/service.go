package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"viralforge/internal/config"
)

const userAgent = "viralforge/0.1.0"

// Event identifies a pipeline milestone worth a push notification.
type Event string

const (
	EventProductionCompleted Event = "production_completed"
	EventProductionFailed    Event = "production_failed"
	EventBudgetWarning       Event = "budget_warning"
	EventBudgetExceeded      Event = "budget_exceeded"
	EventQuarantined         Event = "quarantined"
	EventStrategyReady       Event = "strategy_ready"
	EventError               Event = "error"
	EventTest                Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service defines the notification surface exposed to pipeline components.
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
			EventProductionCompleted: cfg.Notifications.Production,
			EventProductionFailed:    cfg.Notifications.Production,
			EventStrategyReady:       cfg.Notifications.Production,
			EventBudgetWarning:       cfg.Notifications.Budget,
			EventBudgetExceeded:      cfg.Notifications.Budget,
			EventQuarantined:         cfg.Notifications.Quarantine,
			EventError:               cfg.Notifications.Errors,
			EventTest:                true,
		},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, data Payload) (payload, bool) {
	switch event {
	case EventProductionCompleted:
		title := stringValue(data, "title")
		message := fmt.Sprintf("🎬 Video ready: %s", title)
		if cost := stringValue(data, "cost"); cost != "" {
			message += fmt.Sprintf(" (%s)", cost)
		}
		if failed := intValue(data, "segments_failed"); failed > 0 {
			message += fmt.Sprintf("\n%d scene(s) missing", failed)
		}
		if ref := stringValue(data, "final_ref"); ref != "" {
			message += "\n" + ref
		}
		return payload{
			title:   "viralforge - Video Ready",
			message: message,
			tags:    []string{"viralforge", "production", "completed"},
		}, true
	case EventProductionFailed:
		return payload{
			title:    "viralforge - Production Failed",
			message:  fmt.Sprintf("❌ %s: %s", stringValue(data, "title"), stringValue(data, "reason")),
			tags:     []string{"viralforge", "production", "failed"},
			priority: "high",
		}, true
	case EventStrategyReady:
		return payload{
			title:   "viralforge - Strategy Ready",
			message: fmt.Sprintf("📝 Awaiting approval: %s (strategy #%d)", stringValue(data, "title"), intValue(data, "strategy_id")),
			tags:    []string{"viralforge", "strategy", "review"},
		}, true
	case EventBudgetWarning:
		return payload{
			title: "viralforge - Budget Warning",
			message: fmt.Sprintf("⚠️ %s of %s spent today (%s)",
				stringValue(data, "spent"), stringValue(data, "limit"), stringValue(data, "reason")),
			tags: []string{"viralforge", "budget", "warning"},
		}, true
	case EventBudgetExceeded:
		return payload{
			title:    "viralforge - Budget Exceeded",
			message:  fmt.Sprintf("🛑 Daily budget exceeded: %s of %s. Paid work resumes tomorrow.", stringValue(data, "spent"), stringValue(data, "limit")),
			tags:     []string{"viralforge", "budget", "exceeded"},
			priority: "high",
		}, true
	case EventQuarantined:
		return payload{
			title: "viralforge - Output Quarantined",
			message: fmt.Sprintf("🧪 %s output for %s #%d failed validation twice\n%s",
				stringValue(data, "schema"), stringValue(data, "subject"), intValue(data, "subject_id"), stringValue(data, "errors")),
			tags: []string{"viralforge", "validation", "review"},
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := stringValue(data, "context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if msg := stringValue(data, "error"); msg != "" {
			builder.WriteString(msg)
		} else {
			builder.WriteString("unknown")
		}
		return payload{
			title:    "viralforge - Error",
			message:  builder.String(),
			tags:     []string{"viralforge", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return payload{
			title:    "viralforge - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"viralforge", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func stringValue(data Payload, key string) string {
	switch v := data[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func intValue(data Payload, key string) int64 {
	switch v := data[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n.client == nil {
		return errors.New("ntfy client not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
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
