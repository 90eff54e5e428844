package conversation

import (
	"fmt"
	"strings"
)

// DefaultHistoryWindow is how many recent turns are injected into prompts.
const DefaultHistoryWindow = 5

// NoHistorySentinel is injected when the session has no prior turns, so
// prompts always carry a history section.
const NoHistorySentinel = "No previous conversation."

// FormatHistory renders the most recent turns for prompt injection.
// Only the last maxTurns turns are included to bound prompt growth.
func FormatHistory(turns []Turn, maxTurns int) string {
	if len(turns) == 0 {
		return NoHistorySentinel
	}
	if maxTurns <= 0 {
		maxTurns = DefaultHistoryWindow
	}

	recent := turns
	if len(recent) > maxTurns {
		recent = recent[len(recent)-maxTurns:]
	}

	var b strings.Builder
	for i, t := range recent {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Turn %d:\nQ: %s\nA: %s\n", t.Number, t.Question, t.Answer)
	}
	return b.String()
}
