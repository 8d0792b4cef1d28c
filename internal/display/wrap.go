package display

import (
	"fmt"
	"strings"

	"github.com/muesli/reflow/wordwrap"
)

const DefaultWidth = 78

// Wrap word-wraps text for plain terminal clients.
func Wrap(text string) string {
	return wordwrap.String(text, DefaultWidth)
}

// Columns renders label/value rows with aligned labels.
func Columns(rows [][2]string) string {
	width := 0
	for _, row := range rows {
		if len(row[0]) > width {
			width = len(row[0])
		}
	}

	var sb strings.Builder
	for _, row := range rows {
		fmt.Fprintf(&sb, "  %-*s  %s\n", width, row[0], row[1])
	}
	return strings.TrimRight(sb.String(), "\n")
}
