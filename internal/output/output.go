package output

import (
	"fmt"
	"io"
)

// StatusReport is what `wordbatch status` shows for an output directory.
// Metadata is nil when the run has not finished writing run.json.
type StatusReport struct {
	OutputDir string       `json:"output_dir"`
	Metadata  *RunMetadata `json:"metadata,omitempty"`
	Rows      []SummaryRow `json:"rows"`
}

// Counts tallies rows by status.
func (r *StatusReport) Counts() map[string]int {
	counts := make(map[string]int)
	for _, row := range r.Rows {
		counts[row.Status]++
	}
	return counts
}

// Writer renders a status report in a specific format.
type Writer interface {
	Write(w io.Writer, report *StatusReport) error
}

// GetWriter returns a writer for the specified format.
func GetWriter(format string) (Writer, error) {
	switch format {
	case "text", "":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
