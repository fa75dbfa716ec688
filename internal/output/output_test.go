package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dshills/wordbatch/internal/config"
)

func sampleReport(withMeta bool) *StatusReport {
	r := &StatusReport{
		OutputDir: "/out",
		Rows: []SummaryRow{
			{Filename: "a.docx", Filepath: "/in/a.docx", Status: "success"},
			{Filename: "b.docx", Filepath: "/in/b.docx", Status: "failed", ErrorMessage: "LLM request failed: 401 unauthorized"},
			{Filename: "c.doc", Filepath: "/in/c.doc", Status: "skipped", ErrorMessage: "only .docx supported; re-save as docx"},
		},
	}
	if withMeta {
		r.Metadata = &RunMetadata{RunID: "abc", Total: 3, Success: 1, Failed: 1, Skipped: 1, Config: config.Default()}
	}
	return r
}

func TestGetWriter(t *testing.T) {
	for _, f := range []string{"text", "json", ""} {
		if _, err := GetWriter(f); err != nil {
			t.Errorf("GetWriter(%q) error: %v", f, err)
		}
	}
	if _, err := GetWriter("sarif"); err == nil {
		t.Error("GetWriter(sarif) error = nil, want error")
	}
}

func TestTextWriter_WithMetadata(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TextWriter{}).Write(&buf, sampleReport(true)); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Run abc", "Total: 3  Success: 1  Failed: 1  Skipped: 1", "[failed] /in/b.docx", "401 unauthorized"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "/in/c.doc") {
		t.Error("skipped rows should not be listed as problems")
	}
}

func TestTextWriter_InProgress(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TextWriter{}).Write(&buf, sampleReport(false)); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if !strings.Contains(buf.String(), "Rows so far: 3 (success: 1, failed: 1, skipped: 1)") {
		t.Errorf("output = %s", buf.String())
	}
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONWriter{}).Write(&buf, sampleReport(true)); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	var parsed StatusReport
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(parsed.Rows) != 3 || parsed.Metadata == nil || parsed.Metadata.RunID != "abc" {
		t.Errorf("parsed = %+v", parsed)
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText(strings.Repeat("word ", 40), 20)
	for _, l := range lines {
		if len(l) > 20 {
			t.Errorf("line %q longer than 20", l)
		}
	}
	if len(lines) < 2 {
		t.Errorf("lines = %d, want wrapping", len(lines))
	}
}
