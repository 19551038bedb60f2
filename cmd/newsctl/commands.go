package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cryptonews_bot/internal/app"
	"cryptonews_bot/internal/fingerprint"
	"cryptonews_bot/internal/model"
	"cryptonews_bot/internal/storage"
)

const stampLayout = "2006-01-02 15:04"

func newStatsCmd(o *options) *cobra.Command {
	var recent int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show fingerprint and subscriber statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := o.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			out := cmd.OutOrStdout()
			st := e.seen.Stats(cmd.Context(), recent)
			subs := e.registry.Snapshot()
			instant, daily := 0, 0
			for _, s := range subs {
				if s.Preferences.InstantNotifications {
					instant++
				}
				if s.Preferences.DailySummary {
					daily++
				}
			}

			fmt.Fprintf(out, "Storage: %s\n", e.cfg.StorageBackend)
			fmt.Fprintf(out, "Subscribers: %d (instant: %d, daily: %d)\n", len(subs), instant, daily)
			fmt.Fprintf(out, "Seen (retained): %d\n", st.TotalSeen)
			fmt.Fprintf(out, "Seen (persisted): %d\n", st.FileEntryCount)
			if len(st.MostRecent) > 0 {
				fmt.Fprintln(out, "Most recent:")
				for _, r := range st.MostRecent {
					fmt.Fprintf(out, "  %s  [%s] %s\n", r.Timestamp().In(e.cfg.Location).Format(stampLayout), r.Source, r.TitleExcerpt)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&recent, "recent", 5, "number of most recent records to list")
	return cmd
}

func newCleanupCmd(o *options) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove fingerprints older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := o.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			window := e.cfg.RetentionWindow
			if olderThan > 0 {
				window = olderThan
			}
			removed, err := e.seen.Cleanup(cmd.Context(), window)
			if err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}
			if removed == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to clean up.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d record(s) older than %s.\n", removed, window)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "override the retention window (e.g. 12h)")
	return cmd
}

func newResetSeenCmd(o *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset-seen",
		Short: "Back up and clear every fingerprint, so recent news is delivered again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset without --yes")
			}
			e, err := o.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			backup, err := e.seen.Reset(cmd.Context())
			if err != nil {
				return fmt.Errorf("reset: %w", err)
			}
			if backup == "" {
				backup = "none"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fingerprints cleared. Backup: %s\n", backup)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func newSubscribersCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribers",
		Short: "List subscribers and their preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := o.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			out := cmd.OutOrStdout()
			subs := e.registry.Snapshot()
			if len(subs) == 0 {
				fmt.Fprintln(out, "No subscribers.")
				return nil
			}
			fmt.Fprintf(out, "%-16s %-8s %-8s %s\n", "ID", "INSTANT", "DAILY", "JOINED")
			for _, s := range subs {
				joined := "-"
				if !s.Preferences.JoinedAt.IsZero() {
					joined = s.Preferences.JoinedAt.In(e.cfg.Location).Format(stampLayout)
				}
				fmt.Fprintf(out, "%-16d %-8s %-8s %s\n", s.ID, onOff(s.Preferences.InstantNotifications), onOff(s.Preferences.DailySummary), joined)
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <id>...",
		Short: "Remove subscribers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, a := range args {
				id, err := strconv.ParseInt(a, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid subscriber id %q", a)
				}
				ids = append(ids, id)
			}

			e, err := o.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			removed, err := e.registry.Remove(cmd.Context(), ids...)
			if err != nil {
				return fmt.Errorf("remove subscribers: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d subscriber(s).\n", removed)
			return nil
		},
	})
	return cmd
}

func newFetchCmd(o *options) *cobra.Command {
	var analyze bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch all sources and print the items the bot would deliver",
		Long: `fetch runs one retrieval pass against a copy of the fingerprint journal.
Nothing is marked as seen, so the bot still delivers the listed items.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := o.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			recs, err := e.store.LoadSeen(ctx)
			if err != nil {
				return fmt.Errorf("read journal: %w", err)
			}
			scratch := storage.NewMemory()
			if err := scratch.ReplaceSeen(ctx, recs); err != nil {
				return err
			}
			seen := fingerprint.New(scratch, e.cfg.RetentionWindow, e.log)
			if err := seen.Load(ctx); err != nil {
				return err
			}

			items := app.NewAggregator(e.cfg, httpClient, seen, e.log).FetchAll(ctx)
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No new items.")
				return nil
			}

			var analyzeItem func(model.NewsItem) string
			if analyze {
				ann, closeAI, err := app.NewAnnotator(ctx, e.cfg, e.log)
				if err != nil {
					return err
				}
				defer func() { _ = closeAI() }()
				analyzeItem = func(it model.NewsItem) string { return ann.Analyze(ctx, it) }
			}

			for _, it := range items {
				fmt.Fprintf(out, "%s  [%s] %s\n  %s\n", it.PublishedAt.In(e.cfg.Location).Format(stampLayout), it.Source, it.Title, it.URL)
				if analyzeItem != nil {
					fmt.Fprintf(out, "%s\n", indent(analyzeItem(it)))
				}
			}
			fmt.Fprintf(out, "%d new item(s); %d would be sent per poll.\n", len(items), min(len(items), e.cfg.MaxNewsPerPoll))
			return nil
		},
	}
	cmd.Flags().BoolVar(&analyze, "analyze", false, "also print the analysis of each item")
	return cmd
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
