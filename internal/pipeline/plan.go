package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"viralforge/internal/production"
)

// Plan is the decoded strategy payload.
type Plan struct {
	Title             string        `json:"title"`
	Concept           string        `json:"concept"`
	TargetNiche       string        `json:"target_niche"`
	HookScript        string        `json:"hook_script"`
	DevelopmentScript string        `json:"development_script"`
	CTAScript         string        `json:"cta_script"`
	Scenes            []ScenePrompt `json:"veo_prompts"`
	Hashtags          []string      `json:"suggested_hashtags"`
	Caption           string        `json:"suggested_caption"`
	PostingTime       string        `json:"best_posting_time"`
	Music             string        `json:"suggested_music"`
}

// ScenePrompt is one renderable scene of a plan.
type ScenePrompt struct {
	SceneNumber       int    `json:"scene_number"`
	DurationSeconds   int    `json:"duration_seconds"`
	VisualDescription string `json:"visual_description"`
	CameraMovement    string `json:"camera_movement"`
	Mood              string `json:"mood"`
}

// DecodePlan parses a stored strategy payload.
func DecodePlan(payload []byte) (Plan, error) {
	var p Plan
	if err := json.Unmarshal(payload, &p); err != nil {
		return Plan{}, fmt.Errorf("decode strategy: %w", err)
	}
	return p, nil
}

// Script joins hook, development and call to action into the narration text.
func (p Plan) Script() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.HookScript, p.DevelopmentScript, p.CTAScript} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Prompts converts the scenes into render prompts, in scene order as given.
func (p Plan) Prompts() []production.Prompt {
	out := make([]production.Prompt, 0, len(p.Scenes))
	for i, scene := range p.Scenes {
		number := scene.SceneNumber
		if number <= 0 {
			number = i + 1
		}
		out = append(out, production.Prompt{
			Scene:   number,
			Text:    scene.renderText(),
			Seconds: float64(scene.DurationSeconds),
		})
	}
	return out
}

func (s ScenePrompt) renderText() string {
	text := strings.TrimSpace(s.VisualDescription)
	if camera := strings.TrimSpace(s.CameraMovement); camera != "" {
		text += ". Camera: " + camera
	}
	if mood := strings.TrimSpace(s.Mood); mood != "" {
		text += ". Mood: " + mood
	}
	return text
}

// Check rejects plans that cannot be produced.
func (p Plan) Check() error {
	var errs []error
	if strings.TrimSpace(p.Title) == "" {
		errs = append(errs, errors.New("title is empty"))
	}
	if p.Script() == "" {
		errs = append(errs, errors.New("script is empty"))
	}
	if len(p.Scenes) == 0 {
		errs = append(errs, errors.New("no scene prompts"))
	}
	for i, scene := range p.Scenes {
		if strings.TrimSpace(scene.VisualDescription) == "" {
			errs = append(errs, fmt.Errorf("scene %d has no visual description", i+1))
		}
	}
	return errors.Join(errs...)
}
