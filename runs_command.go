package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/HugeFrog24/gpt-video-translator/internal/history"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List past runs from the run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No runs recorded yet")
				return nil
			}
			fmt.Fprintln(out, renderRuns(records))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")
	return cmd
}

func renderRuns(records []*history.Record) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		outputs := make([]string, 0, len(rec.Outputs))
		for _, o := range rec.Outputs {
			outputs = append(outputs, o.Language)
		}
		status := rec.State.String()
		if rec.ErrorMessage != "" {
			status += ": " + truncate(rec.ErrorMessage, 48)
		}
		rows = append(rows, []string{
			shortID(rec.ID),
			rec.MediaName,
			humanize.IBytes(uint64(rec.MediaSize)),
			status,
			strconv.Itoa(rec.Progress) + "%",
			fallback(rec.DetectedLanguage, "-"),
			fallback(strings.Join(outputs, ", "), "-"),
			humanize.Time(rec.CreatedAt),
		})
	}
	return renderTable([]column{
		{title: "ID"},
		{title: "Media"},
		{title: "Size", numeric: true},
		{title: "State"},
		{title: "Progress", numeric: true},
		{title: "Source"},
		{title: "Outputs"},
		{title: "Started"},
	}, rows)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-1]) + "…"
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
