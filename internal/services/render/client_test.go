package render

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"viralforge/internal/services"
)

func TestRenderDownloadsClip(t *testing.T) {
	var got generateRequest
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/fal-ai/veo3.1/fast", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Key fal-key" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"video": map[string]any{"url": server.URL + "/files/clip.mp4"}})
	})
	mux.HandleFunc("/files/clip.mp4", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("mp4data"))
	})

	client := NewClient(Config{BaseURL: server.URL, APIKey: "fal-key", Mode: ModeProduction})
	out := filepath.Join(t.TempDir(), "segment-000.mp4")
	if err := client.Render(context.Background(), Segment{Index: 0, Prompt: "sunrise over São Paulo", Seconds: 8}, out); err != nil {
		t.Fatalf("Render: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil || string(data) != "mp4data" {
		t.Fatalf("clip = %q, %v", data, err)
	}
	if got.Duration != "8s" || got.AspectRatio != "9:16" || got.Prompt != "sunrise over São Paulo" {
		t.Fatalf("request = %+v", got)
	}
}

func TestRequestSecondsCapsTestMode(t *testing.T) {
	test := NewClient(Config{Mode: ModeTest})
	prod := NewClient(Config{Mode: ModeProduction})
	if got := test.RequestSeconds(Segment{Seconds: 8}); got != 5 {
		t.Fatalf("test mode seconds = %d", got)
	}
	if got := prod.RequestSeconds(Segment{Seconds: 8}); got != 8 {
		t.Fatalf("production mode seconds = %d", got)
	}
}

func TestMaxSegmentSecondsFollowsMode(t *testing.T) {
	tests := []struct {
		mode       string
		configured int
		want       int
	}{
		{ModeTest, 8, 5},
		{ModeTest, 4, 4},
		{ModeTest, 0, 5},
		{"", 8, 5},
		{ModeProduction, 8, 8},
		{ModeProduction, 0, 0},
	}
	for _, tt := range tests {
		if got := MaxSegmentSeconds(tt.mode, tt.configured); got != tt.want {
			t.Errorf("MaxSegmentSeconds(%q, %d) = %d, want %d", tt.mode, tt.configured, got, tt.want)
		}
	}
}

func TestRenderClientErrorIsProvider(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"content policy"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "k"})
	err := client.Render(context.Background(), Segment{Prompt: "x", Seconds: 4}, filepath.Join(t.TempDir(), "s.mp4"))
	if services.KindOf(err) != services.KindProvider {
		t.Fatalf("expected provider error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("4xx should not be retried, calls=%d", calls)
	}
}

func TestRenderMissingURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"video":{}}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "k", MaxRetries: -1})
	if err := client.Render(context.Background(), Segment{Prompt: "x", Seconds: 4}, filepath.Join(t.TempDir(), "s.mp4")); err == nil {
		t.Fatal("expected error")
	}
}
