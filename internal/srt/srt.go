// Package srt reads and writes SubRip subtitle text: numbered cues, each with
// a start/end timestamp line and one or more caption lines.
package srt

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cue is a single subtitle block.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Parse reads cues from SRT text. Blocks without a valid timestamp line are
// skipped; Parse never fails on malformed input.
func Parse(content string) []Cue {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimPrefix(content, "\ufeff")

	var cues []Cue
	for _, block := range splitBlocks(content) {
		lines := strings.Split(block, "\n")
		timing := -1
		for i, line := range lines {
			if strings.Contains(line, "-->") {
				timing = i
				break
			}
		}
		if timing < 0 {
			continue
		}
		start, end, err := parseTiming(lines[timing])
		if err != nil {
			continue
		}
		cue := Cue{Start: start, End: end}
		if timing > 0 {
			if idx, err := strconv.Atoi(strings.TrimSpace(lines[timing-1])); err == nil {
				cue.Index = idx
			}
		}
		cue.Text = strings.TrimSpace(strings.Join(lines[timing+1:], "\n"))
		cues = append(cues, cue)
	}
	return cues
}

// Format renders cues as SRT text, numbering them from 1.
func Format(cues []Cue) string {
	var b strings.Builder
	for i, cue := range cues {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", i+1, FormatTimestamp(cue.Start), FormatTimestamp(cue.End), cue.Text)
	}
	return b.String()
}

// CountCues returns the number of well-formed cues in content.
func CountCues(content string) int {
	return len(Parse(content))
}

// PlainText returns the caption text of content with indices and timestamps
// removed. Text that contains no cues is returned trimmed but otherwise as is.
func PlainText(content string) string {
	cues := Parse(content)
	if len(cues) == 0 {
		return strings.TrimSpace(content)
	}
	parts := make([]string, 0, len(cues))
	for _, cue := range cues {
		if cue.Text != "" {
			parts = append(parts, cue.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Piece is one independently produced SRT document and the time at which it
// starts within the combined media.
type Piece struct {
	Content string
	Offset  time.Duration
}

// Merge concatenates pieces into a single document, shifting each piece's
// timestamps by its offset and renumbering cues sequentially.
func Merge(pieces []Piece) string {
	var merged []Cue
	for _, piece := range pieces {
		for _, cue := range Parse(piece.Content) {
			cue.Start += piece.Offset
			cue.End += piece.Offset
			merged = append(merged, cue)
		}
	}
	return Format(merged)
}

// FormatTimestamp renders d as HH:MM:SS,mmm.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	hours := ms / 3_600_000
	ms -= hours * 3_600_000
	minutes := ms / 60_000
	ms -= minutes * 60_000
	seconds := ms / 1000
	ms -= seconds * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, ms)
}

// ParseTimestamp parses HH:MM:SS,mmm. A period is accepted in place of the comma.
func ParseTimestamp(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	total := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(millis)*time.Millisecond
	return total, nil
}

func parseTiming(line string) (time.Duration, time.Duration, error) {
	parts := strings.Split(line, "-->")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid timing line %q", line)
	}
	start, err := ParseTimestamp(parts[0])
	if err != nil {
		return 0, 0, err
	}
	// Position hints may follow the end timestamp.
	endField := strings.Fields(parts[1])
	if len(endField) == 0 {
		return 0, 0, fmt.Errorf("invalid timing line %q", line)
	}
	end, err := ParseTimestamp(endField[0])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func splitBlocks(content string) []string {
	var blocks []string
	var current []string
	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
		}
	}
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, strings.TrimRight(line, " \t"))
	}
	flush()
	return blocks
}
