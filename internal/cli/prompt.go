package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// PromptResult contains the result of a user prompt interaction.
type PromptResult struct {
	// Accepted is true if the user accepted the prompt (typed "y" or "yes").
	Accepted bool
	// Cancelled is true if reading input failed.
	Cancelled bool
}

// Confirm asks question on writer and reads the answer from reader. When
// interactive is false it returns immediately with Accepted=true, so
// scripted runs are never blocked.
//
// The prompt defaults to "No" when the user presses Enter without input.
func Confirm(writer io.Writer, reader io.Reader, interactive bool, question string) PromptResult {
	if !interactive {
		return PromptResult{Accepted: true}
	}

	_, _ = fmt.Fprintf(writer, "? %s [y/N] ", question)

	scanner := bufio.NewScanner(reader)
	if !scanner.Scan() {
		if scanner.Err() != nil {
			return PromptResult{Cancelled: true}
		}
		// EOF without error (Ctrl+D) declines.
		return PromptResult{}
	}

	switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
	case "y", "yes":
		return PromptResult{Accepted: true}
	default:
		return PromptResult{}
	}
}
