package production

import (
	"testing"

	"viralforge/internal/config"
	"viralforge/internal/services/render"
)

func TestSegmentCapMatchesRenderMode(t *testing.T) {
	cfg := config.Default()
	cfg.Render.MaxSegmentSeconds = 8

	cfg.Render.Mode = config.RenderModeTest
	if got := segmentCap(&cfg); got != 5 {
		t.Fatalf("test mode cap = %v, want 5", got)
	}
	cfg.Render.Mode = config.RenderModeProduction
	if got := segmentCap(&cfg); got != 8 {
		t.Fatalf("production mode cap = %v, want 8", got)
	}

	// Reconciled lengths never exceed what the client requests.
	cfg.Render.Mode = config.RenderModeTest
	client := render.NewClient(render.Config{Mode: cfg.Render.Mode})
	prompts := Reconcile([]Prompt{{Scene: 1, Text: "a", Seconds: 4}, {Scene: 2, Text: "b", Seconds: 4}}, 18, segmentCap(&cfg))
	for _, p := range prompts {
		requested := client.RequestSeconds(render.Segment{Index: p.Scene, Prompt: p.Text, Seconds: requestSeconds(p.Seconds)})
		if float64(requested) != p.Seconds {
			t.Fatalf("job records %v seconds but the client requests %d", p.Seconds, requested)
		}
	}
}
