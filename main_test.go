package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/HugeFrog24/gpt-video-translator/internal/config"
	"github.com/HugeFrog24/gpt-video-translator/internal/history"
	"github.com/HugeFrog24/gpt-video-translator/internal/langdetect"
	"github.com/HugeFrog24/gpt-video-translator/internal/logging"
	"github.com/HugeFrog24/gpt-video-translator/internal/pipeline"
)

func writeTestConfig(t *testing.T) (string, config.Config) {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", base)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("VIDTRANSLATE_OUTPUT_DIR", "")

	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.HistoryDB = filepath.Join(base, "history.db")

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, cfg
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, err := execute(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(out, "Wrote sample configuration") {
		t.Fatalf("unexpected output %q", out)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("sample not written: %v", err)
	}
	if !strings.Contains(string(data), "[paths]") {
		t.Fatal("sample config missing [paths] section")
	}

	if _, err := execute(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
	if _, err := execute(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
}

func TestConfigValidateReportsPath(t *testing.T) {
	path, _ := writeTestConfig(t)
	out, err := execute(t, "--config", path, "config", "validate")
	if err != nil {
		t.Fatalf("config validate failed: %v", err)
	}
	if !strings.Contains(out, path) || !strings.Contains(out, "Configuration valid") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRunsCommandListsHistory(t *testing.T) {
	path, cfg := writeTestConfig(t)

	out, err := execute(t, "--config", path, "runs")
	if err != nil {
		t.Fatalf("runs failed: %v", err)
	}
	if !strings.Contains(out, "No runs recorded yet") {
		t.Fatalf("expected empty history message, got %q", out)
	}

	store, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	now := time.Now()
	err = store.Record(context.Background(), pipeline.Snapshot{
		ID:               "0123456789abcdef",
		MediaName:        "clip.mp4",
		MediaSize:        10 * 1024 * 1024,
		State:            pipeline.StateComplete,
		Progress:         100,
		DetectedLanguage: langdetect.Detected("en"),
		Languages:        []string{"French", "German"},
		Translations: []pipeline.Translation{
			{Language: "French", Path: "/tmp/French_translation.srt"},
			{Language: "German", Path: "/tmp/German_translation.srt"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	})
	_ = store.Close()
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	out, err = execute(t, "--config", path, "runs")
	if err != nil {
		t.Fatalf("runs failed: %v", err)
	}
	for _, want := range []string{"01234567", "clip.mp4", "10 MiB", "complete", "100%", "French, German"} {
		if !strings.Contains(out, want) {
			t.Fatalf("runs output missing %q:\n%s", want, out)
		}
	}
}

func TestCleanupWorkDirKeepsLock(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "stale-run"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stale-run", "audio.wav"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, serveLockName), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	removed := cleanupWorkDir(dir, logging.NewNop(), serveLockName)
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, serveLockName)); err != nil {
		t.Fatalf("lock file removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "stale-run")); !os.IsNotExist(err) {
		t.Fatalf("stale run not removed: %v", err)
	}
	if cleanupWorkDir(filepath.Join(dir, "missing"), logging.NewNop()) != 0 {
		t.Fatal("missing directory should be a no-op")
	}
}

func TestProgressPrinterWritesLinePerChange(t *testing.T) {
	var out bytes.Buffer
	printer := newProgressPrinter(&out)

	printer.RunUpdated(pipeline.Snapshot{State: pipeline.StateValidated, Progress: 0})
	printer.RunUpdated(pipeline.Snapshot{State: pipeline.StateAudioExtracted, Progress: 25})
	printer.RunUpdated(pipeline.Snapshot{State: pipeline.StateAudioExtracted, Progress: 25})
	printer.RunUpdated(pipeline.Snapshot{
		State:        pipeline.StateTranslating,
		Progress:     75,
		Languages:    []string{"French", "German"},
		Translations: []pipeline.Translation{{Language: "French"}},
	})
	printer.RunUpdated(pipeline.Snapshot{State: pipeline.StateComplete, Progress: 100})
	printer.finishLine()

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[1], " 25% transcribing audio") {
		t.Fatalf("unexpected line %q", lines[1])
	}
	if !strings.Contains(lines[2], "translating to German (2/2)") {
		t.Fatalf("unexpected line %q", lines[2])
	}
	if !strings.HasPrefix(lines[3], "["+strings.Repeat("#", 30)+"]") {
		t.Fatalf("expected full bar, got %q", lines[3])
	}
}

func TestProgressBarClamps(t *testing.T) {
	if got := progressBar(50, 10); got != "[#####-----]" {
		t.Fatalf("unexpected bar %q", got)
	}
	if got := progressBar(150, 4); got != "[####]" {
		t.Fatalf("unexpected bar %q", got)
	}
	if got := progressBar(-5, 4); got != "[----]" {
		t.Fatalf("unexpected bar %q", got)
	}
}

func TestRenderTranslationsListsFiles(t *testing.T) {
	table := renderTranslations([]pipeline.Translation{{
		Language: "French",
		Text:     "1\n00:00:00,000 --> 00:00:01,000\nBonjour\n",
		Path:     "/out/run/French_translation.srt",
	}})
	for _, want := range []string{"Language", "French", "/out/run/French_translation.srt"} {
		if !strings.Contains(table, want) {
			t.Fatalf("table missing %q:\n%s", want, table)
		}
	}
}

func TestRenderTableKeepsHeaderCase(t *testing.T) {
	out := renderTable([]column{{title: "Language"}, {title: "Cues", numeric: true}}, [][]string{{"pt-BR"}})
	if strings.Contains(out, "LANGUAGE") || !strings.Contains(out, "Language") {
		t.Fatalf("header casing changed:\n%s", out)
	}
	if !strings.Contains(out, "pt-BR") {
		t.Fatalf("row missing:\n%s", out)
	}
	if renderTable(nil, [][]string{{"x"}}) != "" {
		t.Fatal("expected empty output without columns")
	}
}
