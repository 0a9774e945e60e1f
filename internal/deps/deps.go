// Package deps resolves the external programs the media stage shells out to.
package deps

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrNotConfigured is reported for a tool whose binary setting is empty.
var ErrNotConfigured = errors.New("binary not configured")

// Tool is an external program named in the media configuration.
type Tool struct {
	Name     string
	Binary   string
	Purpose  string
	Optional bool
}

// Result is the outcome of resolving a Tool on PATH.
type Result struct {
	Tool
	Path string
	Err  error
}

// Available reports whether the tool resolved to an executable.
func (r Result) Available() bool { return r.Err == nil && r.Path != "" }

// MediaTools returns ffmpeg and ffprobe. ffprobe only measures audio length
// for chunked transcription, so it is optional unless chunking is on.
func MediaTools(ffmpeg, ffprobe string, chunking bool) []Tool {
	return []Tool{
		{Name: "FFmpeg", Binary: strings.TrimSpace(ffmpeg), Purpose: "Extracts audio from uploaded media"},
		{Name: "FFprobe", Binary: strings.TrimSpace(ffprobe), Purpose: "Measures audio length for chunked transcription", Optional: !chunking},
	}
}

// Locate looks each tool up on PATH, in order.
func Locate(tools []Tool) []Result {
	results := make([]Result, len(tools))
	for i, tool := range tools {
		results[i].Tool = tool
		binary := strings.TrimSpace(tool.Binary)
		if binary == "" {
			results[i].Err = ErrNotConfigured
			continue
		}
		path, err := exec.LookPath(binary)
		if err != nil {
			results[i].Err = fmt.Errorf("%s: %w", binary, err)
			continue
		}
		results[i].Path = path
	}
	return results
}

// Missing filters results down to required tools that did not resolve.
func Missing(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Optional && !r.Available() {
			out = append(out, r)
		}
	}
	return out
}
