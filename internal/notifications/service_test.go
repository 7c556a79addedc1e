package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"viralforge/internal/budget"
	"viralforge/internal/config"
	"viralforge/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "production completed",
			event: notifications.EventProductionCompleted,
			payload: notifications.Payload{
				"title":           "Pasta in 60 seconds",
				"cost":            budget.FromDollars(0.75),
				"segments_failed": 1,
				"final_ref":       "file:///srv/artifacts/productions/j1/final.mp4",
			},
			expectTitle:   "viralforge - Video Ready",
			expectMessage: "🎬 Video ready: Pasta in 60 seconds ($0.75)\n1 scene(s) missing\nfile:///srv/artifacts/productions/j1/final.mp4",
			expectTags:    "viralforge,production,completed",
		},
		{
			name:           "production failed",
			event:          notifications.EventProductionFailed,
			payload:        notifications.Payload{"title": "Pasta", "reason": "all segments failed"},
			expectTitle:    "viralforge - Production Failed",
			expectMessage:  "❌ Pasta: all segments failed",
			expectTags:     "viralforge,production,failed",
			expectPriority: "high",
		},
		{
			name:           "budget exceeded",
			event:          notifications.EventBudgetExceeded,
			payload:        notifications.Payload{"spent": "$20.10", "limit": "$20.00"},
			expectTitle:    "viralforge - Budget Exceeded",
			expectMessage:  "🛑 Daily budget exceeded: $20.10 of $20.00. Paid work resumes tomorrow.",
			expectTags:     "viralforge,budget,exceeded",
			expectPriority: "high",
		},
		{
			name:  "quarantined",
			event: notifications.EventQuarantined,
			payload: notifications.Payload{
				"schema":     "analysis",
				"subject":    "candidate",
				"subject_id": int64(42),
				"errors":     "summary: required",
			},
			expectTitle:   "viralforge - Output Quarantined",
			expectMessage: "🧪 analysis output for candidate #42 failed validation twice\nsummary: required",
			expectTags:    "viralforge,validation,review",
		},
		{
			name:           "error",
			event:          notifications.EventError,
			payload:        notifications.Payload{"error": errors.New("disk full"), "context": "produce (task #7)"},
			expectTitle:    "viralforge - Error",
			expectMessage:  "❌ Error with produce (task #7): disk full",
			expectTags:     "viralforge,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonoursToggles(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Budget = false
	cfg.Notifications.Quarantine = false

	svc := notifications.NewService(&cfg)
	for _, event := range []notifications.Event{
		notifications.EventBudgetWarning,
		notifications.EventBudgetExceeded,
		notifications.EventQuarantined,
		notifications.Event("unknown"),
	} {
		if err := svc.Publish(context.Background(), event, notifications.Payload{}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
	if calls != 0 {
		t.Fatalf("expected suppressed events to skip ntfy, got %d calls", calls)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic reserved", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
