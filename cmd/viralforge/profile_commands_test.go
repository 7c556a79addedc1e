package main

import (
	"context"
	"encoding/json"
	"testing"

	"viralforge/internal/store"
)

func TestProfileAddListAndBaselines(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"profile", "add", "@daily.science_facts", "--platform", "tiktok", "--niche", "science", "--views", "20000"}, env.configPath)
	if err != nil {
		t.Fatalf("profile add: %v", err)
	}
	requireContains(t, out, "Profile #1 added (tiktok @daily.science_facts)")

	out, _, err = runCLI(t, []string{"profile", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("profile list: %v", err)
	}
	requireContains(t, out, "Daily Science Facts")
	requireContains(t, out, "20000")

	out, _, err = runCLI(t, []string{"profile", "list", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("profile list --json: %v", err)
	}
	var profiles []store.Profile
	if err := json.Unmarshal([]byte(out), &profiles); err != nil {
		t.Fatalf("decode profiles: %v\n%s", err, out)
	}
	if len(profiles) != 1 || profiles[0].Baselines.Views != 20000 || profiles[0].Baselines.Likes != env.cfg.Score.DefaultLikes {
		t.Fatalf("unexpected profiles %+v", profiles)
	}

	ctx := context.Background()
	cand, err := env.store.UpsertCandidate(ctx, store.CandidateInput{
		ProfileID: 1, Platform: "tiktok", ExternalID: "v1", Views: 20000, Likes: 0, Comments: 0,
	})
	if err != nil {
		t.Fatalf("UpsertCandidate: %v", err)
	}
	if cand.NormalizedViews != 0.5 {
		t.Fatalf("expected views normalized against the profile, got %v", cand.NormalizedViews)
	}

	out, _, err = runCLI(t, []string{"profile", "baselines", "1", "--views", "10000"}, env.configPath)
	if err != nil {
		t.Fatalf("profile baselines: %v", err)
	}
	requireContains(t, out, "1 candidates rescored")

	cand, err = env.store.GetCandidate(ctx, cand.ID)
	if err != nil {
		t.Fatalf("GetCandidate: %v", err)
	}
	if cand.NormalizedViews != 1 {
		t.Fatalf("expected rescored candidate, got %v", cand.NormalizedViews)
	}
}

func TestProfileCommandsRejectBadInput(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"profile", "add", "someone"}, env.configPath); err == nil {
		t.Fatal("expected --platform to be required")
	}
	if _, _, err := runCLI(t, []string{"profile", "baselines", "42", "--views", "1"}, env.configPath); err == nil {
		t.Fatal("expected missing profile error")
	}
	if _, _, err := runCLI(t, []string{"profile", "baselines", "abc"}, env.configPath); err == nil {
		t.Fatal("expected invalid id error")
	}
}

func TestProfileTitle(t *testing.T) {
	tests := []struct {
		handle, name, want string
	}{
		{"daily.science_facts", "", "Daily Science Facts"},
		{"@chef-ana", "", "Chef Ana"},
		{"x", "Explicit Name", "Explicit Name"},
	}
	for _, tt := range tests {
		if got := profileTitle(tt.handle, tt.name); got != tt.want {
			t.Errorf("profileTitle(%q, %q) = %q, want %q", tt.handle, tt.name, got, tt.want)
		}
	}
}
