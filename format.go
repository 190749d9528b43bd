package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Statusf writes progress chatter to stderr; --quiet silences it. Results
// go to stdout.
func (cc *CLIContext) Statusf(format string, args ...any) {
	if cc.Flags.Quiet {
		return
	}

	fmt.Fprintf(os.Stderr, format, args...)
}

// formatSeconds renders a video position as h:mm:ss or m:ss.
func formatSeconds(secs int) string {
	secs = max(secs, 0)

	d := time.Duration(secs) * time.Second
	h, m, s := int(d.Hours()), int(d.Minutes())%60, secs%60

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}

	return fmt.Sprintf("%d:%02d", m, s)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	_, err = fmt.Fprintf(os.Stdout, "%s\n", data)

	return err
}

// formatTime shows the time of day for timestamps from today and the date
// otherwise.
func formatTime(t, now time.Time) string {
	t, now = t.Local(), now.Local()

	y, m, d := t.Date()
	ny, nm, nd := now.Date()

	switch {
	case y == ny && m == nm && d == nd:
		return "today " + t.Format("15:04")
	case y == ny:
		return t.Format("Jan _2 15:04")
	default:
		return t.Format("Jan _2 2006")
	}
}

// printTable writes headers and rows as space-aligned columns.
func printTable(w io.Writer, headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}
