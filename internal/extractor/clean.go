package extractor

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Clean normalizes extracted text: Unix line endings, no NUL bytes, no
// trailing spaces, at most one blank line between paragraphs, Unicode NFC.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\x00", "")

	lines := strings.Split(text, "\n")

	cleanedLines := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\f\v")
		if strings.TrimSpace(line) == "" {
			if !blank && len(cleanedLines) > 0 {
				cleanedLines = append(cleanedLines, "")
			}
			blank = true
			continue
		}
		blank = false
		cleanedLines = append(cleanedLines, line)
	}

	result := strings.TrimSpace(strings.Join(cleanedLines, "\n"))

	return norm.NFC.String(result)
}
