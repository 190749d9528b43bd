package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/learnsync/internal/export"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write cached progress to an Excel workbook",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}

	cmd.Flags().StringP("out", "o", "progress.xlsx", "output file")

	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	outPath, err := cmd.Flags().GetString("out")
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

	snap := a.session.Snapshot().Hydrated()
	if !snap.User.HasProfile() {
		return fmt.Errorf("no cached profile, run 'learnsync refresh' first")
	}

	// Write next to the target and rename so a failed export never leaves a
	// truncated workbook behind.
	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".export-*.xlsx")
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}

	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := export.Write(tmp, snap.User, snap.Items(), time.Now()); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing export file: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("saving export file: %w", err)
	}

	cc.Statusf("Exported progress to %s.\n", outPath)

	return nil
}
