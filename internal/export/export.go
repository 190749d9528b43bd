// Package export writes the reconciled progress of the signed-in user as an
// xlsx workbook with Summary, Videos and Exercises sheets.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/tonimelisma/learnsync/internal/session"
)

// Sheet names.
const (
	SheetSummary   = "Summary"
	SheetVideos    = "Videos"
	SheetExercises = "Exercises"
)

var (
	videoHeader    = []any{"Video ID", "Title", "Duration (s)", "Last second watched", "Points", "Status"}
	exerciseHeader = []any{"Exercise ID", "Streak", "Total correct", "Total done"}
)

// Write renders u and the catalog items as a workbook to w. generated is
// stamped on the Summary sheet.
func Write(w io.Writer, u session.User, items []session.Item, generated time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("export: naming summary sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("export: creating header style: %w", err)
	}

	if err := writeSummary(f, u, generated, bold); err != nil {
		return err
	}

	if err := writeVideos(f, u, items, bold); err != nil {
		return err
	}

	if err := writeExercises(f, u, bold); err != nil {
		return err
	}

	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: writing workbook: %w", err)
	}

	return nil
}

func writeSummary(f *excelize.File, u session.User, generated time.Time, bold int) error {
	var p session.Profile
	if u.Profile != nil {
		p = *u.Profile
	}

	rows := [][]any{
		{"Nickname", p.Nickname},
		{"Username", p.Username},
		{"Joined", p.Joined},
		{"Points", p.Points},
		{"Started", len(u.Started)},
		{"Completed", len(u.Completed)},
		{"Videos with progress", len(u.WatchRecords)},
		{"Exercises", len(u.ExerciseStats)},
		{"Generated", generated.UTC().Format(time.RFC3339)},
	}

	if err := writeRows(f, SheetSummary, rows); err != nil {
		return err
	}

	if err := f.SetColStyle(SheetSummary, "A", bold); err != nil {
		return fmt.Errorf("export: styling summary: %w", err)
	}

	return f.SetColWidth(SheetSummary, "A", "A", 22)
}

func writeVideos(f *excelize.File, u session.User, items []session.Item, bold int) error {
	if _, err := f.NewSheet(SheetVideos); err != nil {
		return fmt.Errorf("export: creating %s sheet: %w", SheetVideos, err)
	}

	titles := make(map[string]string, len(items))
	for _, it := range items {
		titles[it.ID.String()] = it.Title
	}

	rows := [][]any{videoHeader}

	for _, rec := range u.WatchRecords {
		rows = append(rows, []any{
			rec.VideoID.String(),
			titles[rec.VideoID.String()],
			rec.Duration,
			rec.LastSecondWatched,
			session.ClampPoints(rec.Points),
			status(u, rec),
		})
	}

	if err := writeRows(f, SheetVideos, rows); err != nil {
		return err
	}

	return styleHeader(f, SheetVideos, bold)
}

func writeExercises(f *excelize.File, u session.User, bold int) error {
	if _, err := f.NewSheet(SheetExercises); err != nil {
		return fmt.Errorf("export: creating %s sheet: %w", SheetExercises, err)
	}

	rows := [][]any{exerciseHeader}

	for _, st := range u.ExerciseStats {
		rows = append(rows, []any{st.ContentID.String(), st.Streak, st.TotalCorrect, st.TotalDone})
	}

	if err := writeRows(f, SheetExercises, rows); err != nil {
		return err
	}

	return styleHeader(f, SheetExercises, bold)
}

func status(u session.User, rec session.WatchRecord) string {
	switch {
	case u.IsCompleted(rec.VideoID):
		return "completed"
	case u.IsStarted(rec.VideoID):
		return "started"
	default:
		return ""
	}
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("export: %s row %d: %w", sheet, i+1, err)
		}

		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("export: %s row %d: %w", sheet, i+1, err)
		}
	}

	return nil
}

func styleHeader(f *excelize.File, sheet string, bold int) error {
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return fmt.Errorf("export: styling %s header: %w", sheet, err)
	}

	return nil
}
