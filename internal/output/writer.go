package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
)

// Suffix is appended to the language label to form the subtitle file name.
const Suffix = "_translation.srt"

var folder = cases.Fold()

// Writer persists translated subtitles under Dir/<run id>/.
type Writer struct {
	Dir string
}

// NewWriter returns a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir}
}

// Label turns a free-form language selection into the label used for prompts
// and file names. The user's spelling is kept; only surrounding whitespace,
// repeated inner whitespace and path separators are changed.
func Label(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return ""
	}
	label := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, strings.Join(fields, " "))
	return strings.Trim(label, ".")
}

// Key returns the case-folded form of a label, used to spot selections that
// differ only in case ("french", "FRENCH").
func Key(label string) string {
	return folder.String(label)
}

// FileName returns "<label>_translation.srt".
func FileName(label string) string {
	return label + Suffix
}

// RunDir returns the directory holding outputs of one run.
func (w *Writer) RunDir(runID string) string {
	return filepath.Join(w.Dir, runID)
}

// Path returns where the translation for label in runID is stored.
func (w *Writer) Path(runID, label string) string {
	return filepath.Join(w.RunDir(runID), FileName(label))
}

// Write stores text as UTF-8 at Path(runID, label), overwriting any earlier file.
func (w *Writer) Write(runID, label, text string) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", fmt.Errorf("write translation: empty run id")
	}
	if label == "" {
		return "", fmt.Errorf("write translation: empty language label")
	}
	dir := w.RunDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path := w.Path(runID, label)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", FileName(label), err)
	}
	return path, nil
}

// Read returns the stored translation for label in runID.
func (w *Writer) Read(runID, label string) (string, error) {
	data, err := os.ReadFile(w.Path(runID, label))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
