package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"viralforge/internal/score"
	"viralforge/internal/store"
)

func newProfileCommand(ctx *commandContext) *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage tracked accounts and their scoring baselines",
	}
	profileCmd.AddCommand(newProfileAddCommand(ctx))
	profileCmd.AddCommand(newProfileListCommand(ctx))
	profileCmd.AddCommand(newProfileBaselinesCommand(ctx))
	return profileCmd
}

func newProfileAddCommand(ctx *commandContext) *cobra.Command {
	var platform, niche, displayName string
	var views, likes, comments int64

	cmd := &cobra.Command{
		Use:   "add <handle>",
		Short: "Track a new account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(platform) == "" {
				return fmt.Errorf("--platform is required")
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			baselines := score.DefaultBaselines()
			if cfg, _ := ctx.ensureConfig(); cfg != nil {
				baselines = score.Baselines{
					Views:    cfg.Score.DefaultViews,
					Likes:    cfg.Score.DefaultLikes,
					Comments: cfg.Score.DefaultComments,
				}
			}
			if views > 0 {
				baselines.Views = views
			}
			if likes > 0 {
				baselines.Likes = likes
			}
			if comments > 0 {
				baselines.Comments = comments
			}
			profile, err := st.CreateProfile(cmd.Context(), store.Profile{
				Handle:      args[0],
				Platform:    platform,
				Niche:       niche,
				DisplayName: profileTitle(args[0], displayName),
				Baselines:   baselines,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile #%d added (%s @%s)\n", profile.ID, profile.Platform, profile.Handle)
			return nil
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "", "Platform of the account (tiktok, instagram, youtube)")
	cmd.Flags().StringVar(&niche, "niche", "", "Content niche")
	cmd.Flags().StringVar(&displayName, "name", "", "Display name")
	cmd.Flags().Int64Var(&views, "views", 0, "Typical views per post")
	cmd.Flags().Int64Var(&likes, "likes", 0, "Typical likes per post")
	cmd.Flags().Int64Var(&comments, "comments", 0, "Typical comments per post")
	return cmd
}

func newProfileListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			profiles, err := st.ListProfiles(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, profiles)
			}
			if len(profiles) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No profiles tracked")
				return nil
			}
			rows := make([][]string, 0, len(profiles))
			for _, p := range profiles {
				rows = append(rows, []string{
					strconv.FormatInt(p.ID, 10),
					p.Platform,
					"@" + p.Handle,
					profileTitle(p.Handle, p.DisplayName),
					p.Niche,
					strconv.FormatInt(p.Baselines.Views, 10),
					strconv.FormatInt(p.Baselines.Likes, 10),
					strconv.FormatInt(p.Baselines.Comments, 10),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Platform", "Handle", "Name", "Niche", "Views", "Likes", "Comments"},
				rows, 0, 5, 6, 7))
			return nil
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newProfileBaselinesCommand(ctx *commandContext) *cobra.Command {
	var views, likes, comments int64
	cmd := &cobra.Command{
		Use:   "baselines <profile-id>",
		Short: "Replace a profile's baselines and rescore its candidates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "profile")
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			profile, err := st.GetProfile(cmd.Context(), id)
			if err != nil {
				return err
			}
			if profile == nil {
				return fmt.Errorf("profile %d not found", id)
			}
			next := profile.Baselines
			if cmd.Flags().Changed("views") {
				next.Views = views
			}
			if cmd.Flags().Changed("likes") {
				next.Likes = likes
			}
			if cmd.Flags().Changed("comments") {
				next.Comments = comments
			}
			if next.Views < 0 || next.Likes < 0 || next.Comments < 0 {
				return fmt.Errorf("baselines must not be negative")
			}
			rescored, err := st.UpdateProfileBaselines(cmd.Context(), id, next)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile #%d baselines set to %d views, %d likes, %d comments (%d candidates rescored)\n",
				id, next.Views, next.Likes, next.Comments, rescored)
			return nil
		},
	}
	cmd.Flags().Int64Var(&views, "views", 0, "Typical views per post")
	cmd.Flags().Int64Var(&likes, "likes", 0, "Typical likes per post")
	cmd.Flags().Int64Var(&comments, "comments", 0, "Typical comments per post")
	return cmd
}

var titleCaser = cases.Title(language.Und)

// profileTitle prefers the explicit display name and otherwise derives one
// from the handle: "daily.science_facts" becomes "Daily Science Facts".
func profileTitle(handle, displayName string) string {
	if name := strings.TrimSpace(displayName); name != "" {
		return name
	}
	words := strings.FieldsFunc(strings.TrimPrefix(strings.TrimSpace(handle), "@"), func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	return titleCaser.String(strings.Join(words, " "))
}
