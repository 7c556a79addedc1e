package pipeline

import (
	"fmt"
	"strings"
	"time"

	"viralforge/internal/store"
	"viralforge/internal/structured"
)

// AnalystSystemPrompt is sent with every analysis request.
const AnalystSystemPrompt = `You are a short-form video analyst. You study why a video performs and explain how to replicate it.

Judge the hook, the visuals, the audio, the on-camera performance, the development, the call to action and the viral factors. Scores are between 0 and 1.

Use the Portuguese enum values exactly as listed in the field outline.

You must respond ONLY with a single JSON object. No markdown, no commentary.`

// StrategistSystemPrompt is sent with every strategy request.
const StrategistSystemPrompt = `You are a content strategist for short vertical videos. You turn an analysis of a performing video into an original video plan.

Write a hook, a development and a call to action that can be narrated in under 60 seconds. Split the visuals into scenes of 3 to 10 seconds each; every scene prompt must describe a single continuous shot a video model can render without text overlays.

You must respond ONLY with a single JSON object. No markdown, no commentary.`

func analysisPrompt(c *store.Candidate, schema *structured.Schema, now time.Time) string {
	var b strings.Builder
	b.WriteString("Analyze this video.\n\n")
	fmt.Fprintf(&b, "Platform: %s\n", c.Platform)
	if c.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", c.URL)
	}
	if c.Author != "" {
		fmt.Fprintf(&b, "Author: %s\n", c.Author)
	}
	fmt.Fprintf(&b, "Views: %d\nLikes: %d\nComments: %d\n", c.Views, c.Likes, c.Comments)
	if c.PostedAt != nil {
		fmt.Fprintf(&b, "Posted: %s (%.1f days ago)\n", c.PostedAt.UTC().Format(time.RFC3339), now.Sub(*c.PostedAt).Hours()/24)
	}
	fmt.Fprintf(&b, "Pre-filter score: %.2f\n", c.Score)
	if caption := strings.TrimSpace(c.Caption); caption != "" {
		fmt.Fprintf(&b, "\nCaption:\n%s\n", caption)
	}
	fmt.Fprintf(&b, "\nReturn a JSON object with these fields:\n%s\n", schema.Outline())
	return b.String()
}

func strategyPrompt(c *store.Candidate, analysis string, schema *structured.Schema) string {
	var b strings.Builder
	b.WriteString("Create an original video plan inspired by this analysis.\n\n")
	fmt.Fprintf(&b, "Source platform: %s\n", c.Platform)
	if c.Author != "" {
		fmt.Fprintf(&b, "Source author: %s\n", c.Author)
	}
	fmt.Fprintf(&b, "\nAnalysis:\n%s\n", strings.TrimSpace(analysis))
	fmt.Fprintf(&b, "\nReturn a JSON object with these fields:\n%s\n", schema.Outline())
	return b.String()
}
