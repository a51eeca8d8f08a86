package scanning

import (
	"strings"
)

// cleanReply strips surrounding whitespace and markdown code fences from a vision transcription.
// Models occasionally wrap transcribed text in ``` blocks even when told not to.
func cleanReply(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	// A leading language tag such as ```text is only a tag when a body follows it
	if len(lines) > 1 && !strings.ContainsAny(lines[0], " \t") {
		lines = lines[1:]
	}

	return strings.Join(lines, "\n")
}
