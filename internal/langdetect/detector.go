package langdetect

import (
	"strings"
	"unicode/utf8"

	"github.com/pemistahl/lingua-go"

	"github.com/HugeFrog24/gpt-video-translator/internal/srt"
)

// SampleSize is the number of leading transcript characters inspected.
const SampleSize = 1000

// UnknownLabel is shown when no language could be identified.
const UnknownLabel = "Unknown"

// Result is the outcome of a detection: a known ISO 639-1 code or unknown.
type Result struct {
	code string
}

// Detected returns a Result for a known language code.
func Detected(code string) Result {
	return Result{code: strings.ToLower(strings.TrimSpace(code))}
}

// Unknown returns the Result used when detection fails.
func Unknown() Result {
	return Result{}
}

// Known reports whether a language was identified.
func (r Result) Known() bool {
	return r.code != ""
}

// Code returns the ISO 639-1 code, or "" when unknown.
func (r Result) Code() string {
	return r.code
}

// String returns the code, or "Unknown".
func (r Result) String() string {
	if r.code == "" {
		return UnknownLabel
	}
	return r.code
}

// Detector identifies the language of a transcript sample with lingua.
type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector over all languages lingua supports. Models load
// lazily on first use, so construct once and share.
func New() *Detector {
	return &Detector{
		detector: lingua.NewLanguageDetectorBuilder().FromAllLanguages().Build(),
	}
}

// NewFromLanguages restricts detection to the given languages.
func NewFromLanguages(languages ...lingua.Language) *Detector {
	return &Detector{
		detector: lingua.NewLanguageDetectorBuilder().FromLanguages(languages...).Build(),
	}
}

// Detect classifies the first SampleSize characters of transcript. Subtitle
// indices and timestamps are stripped before classification. Any failure
// yields Unknown.
func (d *Detector) Detect(transcript string) (result Result) {
	defer func() {
		if recover() != nil {
			result = Unknown()
		}
	}()

	text := srt.PlainText(Sample(transcript, SampleSize))
	if strings.TrimSpace(text) == "" {
		return Unknown()
	}
	language, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return Unknown()
	}
	return Detected(language.IsoCode639_1().String())
}

// Sample returns at most n leading characters of text without splitting a
// multi-byte character.
func Sample(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}
