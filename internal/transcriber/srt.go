package transcriber

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var timestampRe = regexp.MustCompile(
	`^(\d{2}):(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*\d{2}:\d{2}:\d{2}[,.]\d{3}`)

type srtSegment struct {
	startMs int
	text    string
}

// ParseSRT flattens an SRT document into plain text. Segments are ordered
// by start time before joining, so the output is strictly sequential with
// no cross-segment ambiguity.
func ParseSRT(srt string) (string, error) {
	blocks := strings.Split(strings.ReplaceAll(srt, "\r\n", "\n"), "\n\n")

	var segments []srtSegment
	for _, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 2 {
			continue
		}

		// Optional numeric index line.
		i := 0
		if _, err := strconv.Atoi(strings.TrimSpace(lines[0])); err == nil {
			i = 1
		}
		if i >= len(lines) {
			continue
		}

		m := timestampRe.FindStringSubmatch(strings.TrimSpace(lines[i]))
		if m == nil {
			continue
		}
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		sec, _ := strconv.Atoi(m[3])
		ms, _ := strconv.Atoi(m[4])

		text := strings.TrimSpace(strings.Join(lines[i+1:], " "))
		if text == "" {
			continue
		}
		segments = append(segments, srtSegment{
			startMs: ((h*60+min)*60+sec)*1000 + ms,
			text:    text,
		})
	}

	if len(segments) == 0 {
		return "", fmt.Errorf("no subtitle segments found")
	}

	sort.SliceStable(segments, func(a, b int) bool {
		return segments[a].startMs < segments[b].startMs
	})

	parts := make([]string, len(segments))
	for i, s := range segments {
		parts[i] = s.text
	}
	return strings.Join(parts, " "), nil
}
