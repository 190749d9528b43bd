package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/learnsync/internal/session"
)

// Item status labels.
const (
	itemStateCompleted  = "completed"
	itemStateStarted    = "started"
	itemStateNotStarted = "not started"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cached progress for the signed-in account",
		Long: `Show cached progress for the signed-in account.

Reads only the local mirror; run 'learnsync refresh' to update it.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	SignedIn     bool         `json:"signed_in"`
	Nickname     string       `json:"nickname,omitempty"`
	Points       int          `json:"points"`
	Started      int          `json:"started"`
	Completed    int          `json:"completed"`
	WatchRecords int          `json:"watch_records"`
	Exercises    int          `json:"exercises"`
	ServePID     int          `json:"serve_pid,omitempty"`
	Items        []statusItem `json:"items,omitempty"`
}

type statusItem struct {
	ID                string `json:"id"`
	Kind              string `json:"kind"`
	Title             string `json:"title"`
	State             string `json:"state"`
	Points            int    `json:"points,omitempty"`
	LastSecondWatched int    `json:"last_second_watched,omitempty"`
	Duration          int    `json:"duration,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
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

	out := buildStatus(a.reconciler.IsSignedIn(), a.session.Snapshot().Hydrated())

	if pid, running := serveRunning(cc.Cfg.PIDPath()); running {
		out.ServePID = pid
	}

	if cc.Flags.JSON {
		return printJSON(out)
	}

	printStatusText(out)

	return nil
}

func buildStatus(signedIn bool, snap session.Snapshot) statusOutput {
	u := snap.User

	out := statusOutput{
		SignedIn:     signedIn,
		Points:       u.Points(),
		Started:      len(u.Started),
		Completed:    len(u.Completed),
		WatchRecords: len(u.WatchRecords),
		Exercises:    len(u.ExerciseStats),
	}

	if u.HasProfile() {
		out.Nickname = u.Profile.Namespace()
	}

	for _, it := range snap.Items() {
		out.Items = append(out.Items, statusItem{
			ID:                it.ID.String(),
			Kind:              it.Kind.String(),
			Title:             it.Title,
			State:             itemState(it),
			Points:            it.Points,
			LastSecondWatched: it.LastSecondWatched,
			Duration:          it.Duration,
		})
	}

	return out
}

func itemState(it session.Item) string {
	switch {
	case it.Completed:
		return itemStateCompleted
	case it.Started:
		return itemStateStarted
	default:
		return itemStateNotStarted
	}
}

func printStatusText(out statusOutput) {
	if !out.SignedIn {
		fmt.Println("Not signed in. Run 'learnsync login' to get started.")
	} else if out.Nickname == "" {
		fmt.Println("Signed in, no cached profile. Run 'learnsync refresh'.")
	} else {
		fmt.Printf("Account:   %s (%d points)\n", out.Nickname, out.Points)
		fmt.Printf("Progress:  %d completed, %d started\n", out.Completed, out.Started)
		fmt.Printf("Records:   %d videos, %d exercises\n", out.WatchRecords, out.Exercises)
	}

	if out.ServePID != 0 {
		fmt.Printf("Serve:     running (PID %d)\n", out.ServePID)
	}

	if len(out.Items) == 0 {
		return
	}

	fmt.Println()

	rows := make([][]string, 0, len(out.Items))

	for _, it := range out.Items {
		position := ""
		if it.Kind == "video" {
			position = formatSeconds(it.LastSecondWatched) + " / " + formatSeconds(it.Duration)
		}

		rows = append(rows, []string{it.ID, it.Kind, it.Title, it.State, strconv.Itoa(it.Points), position})
	}

	printTable(os.Stdout, []string{"ID", "KIND", "TITLE", "STATE", "POINTS", "POSITION"}, rows)
}
