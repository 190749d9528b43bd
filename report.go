package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/learnsync/internal/contentid"
	"github.com/tonimelisma/learnsync/internal/progress"
	"github.com/tonimelisma/learnsync/internal/session"
)

func newReportVideoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report-video <item-id>",
		Short: "Report watch time for a video",
		Long: `Report watch time for a video.

--seconds is the new watch time since the last report; --position is the last
second reached in the video. The item must be in the configured catalog.`,
		Args: cobra.ExactArgs(1),
		RunE: runReportVideo,
	}

	cmd.Flags().Float64("seconds", 0, "seconds watched since the last report")
	cmd.Flags().Int("position", 0, "last second reached in the video")

	return cmd
}

func newReportArticleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report-article <item-id>",
		Short: "Mark an article as read",
		Args:  cobra.ExactArgs(1),
		RunE:  runReportArticle,
	}
}

// videoReportOutput is the JSON schema for `report-video --json`.
type videoReportOutput struct {
	ItemID            string    `json:"item_id"`
	PointsEarned      int       `json:"points_earned"`
	ItemPoints        int       `json:"item_points"`
	Completed         bool      `json:"completed"`
	LastSecondWatched int       `json:"last_second_watched"`
	ReportedAt        time.Time `json:"reported_at"`
}

func runReportVideo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	seconds, err := cmd.Flags().GetFloat64("seconds")
	if err != nil {
		return err
	}

	position, err := cmd.Flags().GetInt("position")
	if err != nil {
		return err
	}

	a, err := openApp(ctx, cc)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.restore(ctx); err != nil {
		return err
	}

	out, err := a.reconciler.ReportVideoProgress(ctx, contentid.New(args[0]), seconds, position)
	if err != nil {
		return reportError(err)
	}

	if !out.SignedIn {
		return fmt.Errorf("not signed in, run 'learnsync login' first")
	}

	if cc.Flags.JSON {
		return printJSON(videoReportOutput{
			ItemID:            out.ItemID.String(),
			PointsEarned:      out.PointsEarned,
			ItemPoints:        out.ItemPoints,
			Completed:         out.Completed,
			LastSecondWatched: out.LastSecondWatched,
			ReportedAt:        out.ReportedAt,
		})
	}

	cc.Statusf("Reported %s: +%d points (%d/%d), at %s",
		out.ItemID, out.PointsEarned, out.ItemPoints, session.MaxVideoPoints, formatSeconds(out.LastSecondWatched))

	if out.Completed {
		cc.Statusf(", completed")
	}

	cc.Statusf(".\n")

	return nil
}

func runReportArticle(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	a, err := openApp(ctx, cc)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.restore(ctx); err != nil {
		return err
	}

	out, err := a.reconciler.ReportArticleRead(ctx, contentid.New(args[0]))
	if err != nil {
		return reportError(err)
	}

	if !out.SignedIn {
		return fmt.Errorf("not signed in, run 'learnsync login' first")
	}

	if cc.Flags.JSON {
		return printJSON(map[string]any{"item_id": out.ItemID.String(), "completed": true})
	}

	cc.Statusf("Marked %s as read.\n", out.ItemID)

	return nil
}

// reportError adds a hint for failures the user can fix.
func reportError(err error) error {
	switch {
	case errors.Is(err, progress.ErrUnknownItem):
		return fmt.Errorf("%w (is storage.catalog_file configured?)", err)
	case errors.Is(err, progress.ErrNoProfile):
		return fmt.Errorf("%w (run 'learnsync refresh' first)", err)
	default:
		return fmt.Errorf("reporting progress: %w", err)
	}
}
