package output

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// TextWriter outputs a human-readable status summary.
type TextWriter struct{}

var statusOrder = []string{"success", "failed", "skipped", "cancelled", "running", "pending"}

func (t *TextWriter) Write(w io.Writer, report *StatusReport) error {
	ew := &errWriter{w: w}

	ew.printf("Output: %s\n", report.OutputDir)
	if m := report.Metadata; m != nil {
		ew.printf("Run %s  %s  (%.1fs)\n", m.RunID, m.StartTime.Local().Format(time.DateTime), m.DurationSec)
		ew.printf("Model: %s  Mode: %s  Concurrency: %d\n", m.Config.Model, m.Config.LongDocMode, m.Config.Concurrency)
		ew.printf("Total: %d  Success: %d  Failed: %d  Skipped: %d  Cancelled: %d\n",
			m.Total, m.Success, m.Failed, m.Skipped, m.Cancelled)
		if m.Usage.TotalTokens > 0 {
			ew.printf("Tokens: %d (prompt %d, completion %d, reasoning %d)\n",
				m.Usage.TotalTokens, m.Usage.PromptTokens, m.Usage.CompletionTokens, m.Usage.ReasoningTokens)
		}
	} else {
		counts := report.Counts()
		var parts []string
		for _, s := range statusOrder {
			if n := counts[s]; n > 0 {
				parts = append(parts, fmt.Sprintf("%s: %d", s, n))
			}
		}
		ew.printf("Run in progress or interrupted. Rows so far: %d", len(report.Rows))
		if len(parts) > 0 {
			ew.printf(" (%s)", strings.Join(parts, ", "))
		}
		ew.println("")
	}

	var problems []SummaryRow
	for _, row := range report.Rows {
		if row.Status == "failed" || row.Status == "cancelled" {
			problems = append(problems, row)
		}
	}
	if len(problems) > 0 {
		ew.printf("\n%s\n", strings.Repeat("─", 60))
		for _, row := range problems {
			ew.printf("[%s] %s\n", row.Status, row.Filepath)
			for _, line := range wrapText(row.ErrorMessage, 70) {
				ew.printf("    %s\n", line)
			}
		}
	}
	return ew.err
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func wrapText(text string, width int) []string {
	if len(text) <= width {
		return []string{text}
	}
	var lines []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		if current.Len()+len(word)+1 > width && current.Len() > 0 {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
