package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HugeFrog24/gpt-video-translator/internal/config"
	"github.com/HugeFrog24/gpt-video-translator/internal/deps"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check external tools and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			configPath := ctx.configPath
			if !ctx.configExists {
				configPath += " (not found, defaults in use)"
			}
			fmt.Fprintf(out, "Config: %s\n", configPath)

			results := deps.Locate(mediaTools(cfg))
			rows := make([][]string, 0, len(results)+1)
			for _, r := range results {
				detail := r.Purpose
				if r.Err != nil {
					detail = r.Err.Error()
				} else if r.Path != r.Binary {
					detail = r.Path
				}
				rows = append(rows, []string{r.Name, r.Binary, yesNo(r.Available()), yesNo(r.Optional), detail})
			}
			keySet := strings.TrimSpace(cfg.OpenAI.APIKey) != ""
			keyDetail := "set"
			if !keySet {
				keyDetail = "set openai.api_key or export OPENAI_API_KEY"
			}
			rows = append(rows, []string{"OpenAI API key", cfg.OpenAI.BaseURL, yesNo(keySet), "no", keyDetail})
			fmt.Fprintln(out, renderTable([]column{{title: "Dependency"}, {title: "Command"}, {title: "Available"}, {title: "Optional"}, {title: "Detail"}}, rows))

			if missing := deps.Missing(results); len(missing) > 0 {
				return missingDependenciesError(missing)
			}
			if !keySet {
				return fmt.Errorf("OpenAI API key is not configured")
			}
			return nil
		},
	}
}

func mediaTools(cfg *config.Config) []deps.Tool {
	chunking := cfg.Transcription.ChunkMinutes > 0 && cfg.Transcription.ChunkThresholdMiB > 0
	return deps.MediaTools(cfg.Media.FFmpeg, cfg.Media.FFprobe, chunking)
}

func missingDependenciesError(missing []deps.Result) error {
	parts := make([]string, 0, len(missing))
	for _, r := range missing {
		parts = append(parts, fmt.Sprintf("%s (%v)", r.Name, r.Err))
	}
	return fmt.Errorf("missing required dependencies: %s", strings.Join(parts, ", "))
}
