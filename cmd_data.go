package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/continuum-app/continuum-cli/api"
	"github.com/continuum-app/continuum-cli/tokenstore"
)

var supportedLanguages = []string{"id", "en"}

// ensureLoggedIn fails fast when no tokens are stored, so commands do not
// send a request that can only end in a failed refresh.
func (a *app) ensureLoggedIn() error {
	if a.creds.Current().LoggedOut() {
		a.display.NotLoggedIn()
		return errNotLoggedIn
	}
	return nil
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetRowLine(false)
	return table
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show your streak statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				if err := a.ensureLoggedIn(); err != nil {
					return err
				}
				stats, err := a.api.Stats(ctx)
				if err != nil {
					return err
				}
				writeStats(a.out, stats)
				return nil
			})
		},
	}
}

func writeStats(w io.Writer, s *api.Stats) {
	if !s.StreakStarted {
		fmt.Fprintln(w, "Current streak: not started")
	} else {
		fmt.Fprintf(w, "Current streak: %s\n", formatSeconds(s.CurrentStreak))
	}
	fmt.Fprintf(w, "Longest streak: %s\n", formatSeconds(s.LongestStreak))
	fmt.Fprintf(w, "Relapses:       %d", len(s.RelapseDates))
	if n := len(s.RelapseDates); n > 0 {
		fmt.Fprintf(w, " (last on %s)", s.RelapseDates[n-1])
	}
	fmt.Fprintln(w)
}

func (c *cli) rankingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rankings",
		Short: "Show the streak leaderboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				if err := a.ensureLoggedIn(); err != nil {
					return err
				}
				rankings, err := a.api.Rankings(ctx)
				if err != nil {
					return err
				}

				table := newTable(a.out, "#", "User", "Current", "Longest", "Relapses")
				for _, r := range rankings.Rankings {
					name := r.Nickname
					if r.IsCurrentUser {
						name += " (you)"
					}
					table.Append([]string{
						strconv.Itoa(r.Rank),
						name,
						formatSeconds(r.CurrentStreak),
						formatSeconds(r.LongestStreak),
						strconv.Itoa(r.TotalRelapses),
					})
				}
				table.Render()
				fmt.Fprintf(a.out, "%d users\n", rankings.TotalUsers)
				return nil
			})
		},
	}
}

func (c *cli) sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List your active login sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				if err := a.ensureLoggedIn(); err != nil {
					return err
				}
				sessions, err := a.api.Sessions(ctx)
				if err != nil {
					return err
				}

				table := newTable(a.out, "ID", "IP", "Agent", "Last active", "")
				for _, s := range sessions {
					current := ""
					if s.IsCurrent {
						current = "current"
					}
					table.Append([]string{
						s.ID,
						s.IPAddress,
						s.UserAgent,
						s.LastActiveTime.Local().Format(time.DateTime),
						current,
					})
				}
				table.Render()
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <id>",
		Short: "End one of your sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				if err := a.ensureLoggedIn(); err != nil {
					return err
				}
				if err := a.api.RevokeSession(ctx, args[0]); err != nil {
					return err
				}
				a.display.APICallOK("Session " + args[0] + " revoked")
				return nil
			})
		},
	})
	return cmd
}

func (c *cli) relapsesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relapses",
		Short: "List your recorded relapses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				if err := a.ensureLoggedIn(); err != nil {
					return err
				}
				relapses, err := a.api.Relapses(ctx)
				if err != nil {
					return err
				}

				table := newTable(a.out, "ID", "Time", "Note")
				for _, r := range relapses {
					note := ""
					if r.RelapseNote != nil {
						note = *r.RelapseNote
					}
					table.Append([]string{r.ID, r.RelapseTime.Local().Format(time.DateTime), note})
				}
				table.Render()
				return nil
			})
		},
	}

	var at, note string
	add := &cobra.Command{
		Use:   "add",
		Short: "Record a relapse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			when, err := parseWhen(at, time.Now())
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, a *app) error {
				if err := a.ensureLoggedIn(); err != nil {
					return err
				}
				r, err := a.api.AddRelapse(ctx, api.NewRelapse{RelapseTime: when, RelapseNote: note})
				if err != nil {
					return err
				}
				a.display.APICallOK("Relapse " + r.ID + " recorded")
				return nil
			})
		},
	}
	add.Flags().StringVar(&at, "at", "", "When it happened, RFC 3339 or \"2006-01-02 15:04\" (default: now)")
	add.Flags().StringVar(&note, "note", "", "Optional note")

	cmd.AddCommand(add, &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a recorded relapse",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				if err := a.ensureLoggedIn(); err != nil {
					return err
				}
				if err := a.api.DeleteRelapse(ctx, args[0]); err != nil {
					return err
				}
				a.display.APICallOK("Relapse " + args[0] + " deleted")
				return nil
			})
		},
	})
	return cmd
}

func (c *cli) languageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "language [code]",
		Short: "Show or change your language preference",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && !slices.Contains(supportedLanguages, args[0]) {
				return fmt.Errorf("unsupported language %q: must be one of %s",
					args[0], strings.Join(supportedLanguages, ", "))
			}
			return c.run(cmd, func(ctx context.Context, a *app) error {
				if len(args) == 0 {
					fmt.Fprintln(a.out, a.session.Language())
					return nil
				}
				if err := a.ensureLoggedIn(); err != nil {
					return err
				}
				user, err := a.api.UpdateLanguage(ctx, args[0])
				if err != nil {
					return err
				}
				lang := user.LanguagePref
				if lang == "" {
					lang = args[0]
				}
				a.store.Set(tokenstore.KeyLanguage, lang)
				a.display.APICallOK("Language set to " + lang)
				return nil
			})
		},
	}
}

func (c *cli) streakCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streak",
		Short: "Manage your streak",
	}

	var at string
	start := &cobra.Command{
		Use:   "start",
		Short: "Start your streak",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			when, err := parseWhen(at, time.Now())
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, a *app) error {
				if err := a.ensureLoggedIn(); err != nil {
					return err
				}
				if err := a.api.StartStreak(ctx, when); err != nil {
					return err
				}
				a.display.APICallOK("Streak started")
				return nil
			})
		},
	}
	start.Flags().StringVar(&at, "at", "", "Start time, RFC 3339 or \"2006-01-02 15:04\" (default: now)")
	cmd.AddCommand(start)
	return cmd
}

// parseWhen parses a user-supplied point in time. Empty means now.
func parseWhen(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return now, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t, err = time.ParseInLocation("2006-01-02 15:04", raw, time.Local)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use RFC 3339 or \"2006-01-02 15:04\"", raw)
	}
	if t.After(now) {
		return time.Time{}, fmt.Errorf("time %q is in the future", raw)
	}
	return t, nil
}

// formatSeconds renders a streak length as "3d 1h 0m", dropping leading
// zero units.
func formatSeconds(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	d := secs / 86400
	h := (secs % 86400) / 3600
	m := (secs % 3600) / 60
	switch {
	case d > 0:
		return fmt.Sprintf("%dd %dh %dm", d, h, m)
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	default:
		return fmt.Sprintf("%dm %ds", m, secs%60)
	}
}
