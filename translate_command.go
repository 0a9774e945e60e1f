package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/HugeFrog24/gpt-video-translator/internal/history"
	"github.com/HugeFrog24/gpt-video-translator/internal/langdetect"
	"github.com/HugeFrog24/gpt-video-translator/internal/media"
	"github.com/HugeFrog24/gpt-video-translator/internal/pipeline"
	"github.com/HugeFrog24/gpt-video-translator/internal/srt"
)

func newTranslateCommand(ctx *commandContext) *cobra.Command {
	var languages []string
	var transcriptPath string

	cmd := &cobra.Command{
		Use:   "translate FILE",
		Short: "Transcribe a media file and translate it into one or more languages",
		Example: `  vidtranslate translate clip.mp4 --lang French --lang German
  vidtranslate translate talk.mov --lang Spanish --transcript edited.srt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(pipeline.NormalizeLanguages(languages)) == 0 {
				return fmt.Errorf("select at least one target language with --lang")
			}
			var edited string
			if path := strings.TrimSpace(transcriptPath); path != "" {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read transcript: %w", err)
				}
				edited = string(data)
			}

			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open media: %w", err)
			}
			defer file.Close()
			info, err := file.Stat()
			if err != nil {
				return fmt.Errorf("stat media: %w", err)
			}

			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			printer := newProgressPrinter(out)
			runner, err := ctx.buildPipeline(pipeline.Observers{history.NewRecorder(store, logger), printer})
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			upload := media.Upload{Filename: filepath.Base(info.Name()), Size: info.Size(), Body: file}
			run, runErr := runner.Process(runCtx, upload, languages, func(transcript string, detected langdetect.Result) string {
				printer.finishLine()
				fmt.Fprintf(out, "Detected source language: %s\n", detected)
				if edited != "" {
					fmt.Fprintf(out, "Using edited transcript from %s (%d cues)\n", transcriptPath, srt.CountCues(edited))
				}
				return edited
			})
			printer.finishLine()

			if run != nil {
				if translations := run.Translations(); len(translations) > 0 {
					fmt.Fprintln(out, renderTranslations(translations))
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringArrayVarP(&languages, "lang", "l", nil, "Target language (repeatable, in translation order)")
	cmd.Flags().StringVar(&transcriptPath, "transcript", "", "Edited SRT transcript to translate instead of the generated one")
	return cmd
}

func renderTranslations(translations []pipeline.Translation) string {
	rows := make([][]string, 0, len(translations))
	for _, t := range translations {
		rows = append(rows, []string{
			t.Language,
			strconv.Itoa(srt.CountCues(t.Text)),
			humanize.Bytes(uint64(len(t.Text))),
			t.Path,
		})
	}
	return renderTable([]column{{title: "Language"}, {title: "Cues", numeric: true}, {title: "Size", numeric: true}, {title: "File"}}, rows)
}

// progressPrinter renders run updates: a redrawn bar on terminals, one line
// per change otherwise.
type progressPrinter struct {
	mu       sync.Mutex
	out      io.Writer
	terminal bool
	last     string
	open     bool
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, terminal: isTerminal(out)}
}

func (p *progressPrinter) RunUpdated(snap pipeline.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	line := fmt.Sprintf("%s %3d%% %s", progressBar(snap.Progress, 30), snap.Progress, stageLabel(snap))
	if line == p.last {
		return
	}
	p.last = line
	if p.terminal {
		fmt.Fprintf(p.out, "\r\033[K%s", line)
		p.open = true
		if snap.State.IsTerminal() {
			fmt.Fprintln(p.out)
			p.open = false
		}
		return
	}
	fmt.Fprintln(p.out, line)
}

func (p *progressPrinter) finishLine() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		fmt.Fprintln(p.out)
		p.open = false
	}
}

func stageLabel(snap pipeline.Snapshot) string {
	switch snap.State {
	case pipeline.StateValidated:
		return "converting video to audio"
	case pipeline.StateAudioExtracted:
		return "transcribing audio"
	case pipeline.StateTranscribed, pipeline.StateLanguageDetected, pipeline.StateAwaitingEdit:
		return "audio transcribed"
	case pipeline.StateTranslating:
		done := len(snap.Translations)
		if done < len(snap.Languages) {
			return fmt.Sprintf("translating to %s (%d/%d)", snap.Languages[done], done+1, len(snap.Languages))
		}
		return "translation finished"
	case pipeline.StateComplete:
		return "translation completed"
	case pipeline.StateAborted:
		return "aborted"
	default:
		return snap.State.String()
	}
}

func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
