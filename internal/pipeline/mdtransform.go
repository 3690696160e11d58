package pipeline

import (
	"regexp"
	"strings"
)

// Mark placeholders use Unicode Private Use Area characters so they pass
// through Goldmark unchanged without enabling raw HTML.
const (
	markStart = "\uE000"
	markEnd   = "\uE001"
)

var (
	crlfOrCR     = regexp.MustCompile(`\r\n?`)
	markPattern  = regexp.MustCompile(`==([^=\n]+?)==`)
	fencePattern = regexp.MustCompile("^\\s*(```|~~~)")
)

// preprocessMarkdown normalizes line endings and turns ==text== outside code
// fences into placeholders.
func preprocessMarkdown(content string) string {
	content = crlfOrCR.ReplaceAllString(content, "\n")
	if !strings.Contains(content, "==") {
		return content
	}

	lines := strings.Split(content, "\n")
	inFence := false
	for i, line := range lines {
		if fencePattern.MatchString(line) {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		lines[i] = markPattern.ReplaceAllString(line, markStart+"$1"+markEnd)
	}
	return strings.Join(lines, "\n")
}

// finishMarks converts placeholders left by preprocessMarkdown into <mark>
// elements.
func finishMarks(html string) string {
	if !strings.Contains(html, markStart) {
		return html
	}
	return strings.ReplaceAll(
		strings.ReplaceAll(html, markStart, "<mark>"),
		markEnd, "</mark>",
	)
}
