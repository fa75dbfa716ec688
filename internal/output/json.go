package output

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONWriter outputs the full status report as JSON.
type JSONWriter struct{}

func (j *JSONWriter) Write(w io.Writer, report *StatusReport) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("writing JSON: %w", err)
	}
	return nil
}
