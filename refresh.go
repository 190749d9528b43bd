package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/learnsync/internal/progress"
	"github.com/tonimelisma/learnsync/internal/remote"
)

func newRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the profile and progress from the remote service",
		Long: `Fetch the profile and progress from the remote service.

Without --force, cached progress for the account is trusted and only the
profile is fetched. With --daemon, the running serve process is asked to
refresh instead.`,
		Args: cobra.NoArgs,
		RunE: runRefresh,
	}

	cmd.Flags().Bool("force", false, "refetch progress even when a cached copy exists")
	cmd.Flags().Bool("daemon", false, "signal the running serve process to refresh")

	return cmd
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	daemon, err := cmd.Flags().GetBool("daemon")
	if err != nil {
		return err
	}

	if daemon {
		if err := sendSIGHUP(cc.Cfg.PIDPath()); err != nil {
			return err
		}

		cc.Statusf("Refresh requested from serve.\n")

		return nil
	}

	a, err := openApp(ctx, cc)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.restore(ctx); err != nil {
		return err
	}

	out, err := a.reconciler.RefreshLoggedInInfo(ctx, force)
	if err != nil {
		return fmt.Errorf("refreshing: %w", err)
	}

	if !out.SignedIn {
		return fmt.Errorf("not signed in, run 'learnsync login' first")
	}

	if err := remote.SaveAccount(cc.Cfg.TokenPath(), out.Profile); err != nil {
		cc.Logger.Warn("could not record account next to token", slog.String("error", err.Error()))
	}

	if cc.Flags.JSON {
		return printJSON(refreshJSON(out))
	}

	printRefreshText(cc, out)

	return nil
}

// refreshOutput is the JSON schema for `refresh --json`.
type refreshOutput struct {
	Nickname      string `json:"nickname"`
	Points        int    `json:"points"`
	UsedCache     bool   `json:"used_cache"`
	Started       int    `json:"started"`
	Completed     int    `json:"completed"`
	WatchRecords  int    `json:"watch_records"`
	ExerciseStats int    `json:"exercise_stats"`
}

func refreshJSON(out *progress.RefreshOutcome) refreshOutput {
	return refreshOutput{
		Nickname:      out.Profile.Namespace(),
		Points:        out.Profile.Points,
		UsedCache:     out.UsedCache,
		Started:       out.Started,
		Completed:     out.Completed,
		WatchRecords:  out.WatchRecords,
		ExerciseStats: out.ExerciseStats,
	}
}

func printRefreshText(cc *CLIContext, out *progress.RefreshOutcome) {
	if out.UsedCache {
		cc.Statusf("Refreshed profile for %s (%d points); cached progress kept.\n",
			out.Profile.Namespace(), out.Profile.Points)

		return
	}

	cc.Statusf("Refreshed %s (%d points): %d completed, %d started, %d watch records, %d exercises.\n",
		out.Profile.Namespace(), out.Profile.Points, out.Completed, out.Started,
		out.WatchRecords, out.ExerciseStats)
}
