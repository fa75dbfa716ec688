package batch

import (
	"errors"
	"time"

	"github.com/dshills/wordbatch/internal/document"
	"github.com/dshills/wordbatch/internal/llm"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusSkipped, StatusCancelled:
		return true
	}
	return false
}

// inheritable reports whether a status recorded by an earlier run carries
// over into a new scan. Anything else starts again as pending.
func (s Status) inheritable() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusSkipped
}

// Messages recorded for tasks that never reach the generation step.
const (
	LegacyFormatMessage = "only .docx is supported; re-save the file as .docx in Word"
	CancelledMessage    = "Cancelled"
)

// ErrCancelled is returned by the per-task checkpoints once the run has
// been cancelled.
var ErrCancelled = errors.New("run cancelled")

// Task is one document to process. Its identity is Path, the absolute path
// of the source file.
type Task struct {
	Path       string        `json:"path"`
	Name       string        `json:"name"`
	OutputPath string        `json:"output_path,omitempty"`
	Status     Status        `json:"status"`
	Error      string        `json:"error,omitempty"`
	Meta       document.Meta `json:"meta"`
}

// Result is the outcome of one execution attempt of a task.
type Result struct {
	Path           string
	Status         Status
	Elapsed        time.Duration
	OutputPath     string
	InputChars     int
	InputTokensEst int
	Mode           string
	Error          string
	Usage          llm.Totals
}

// Summary aggregates the results of a run.
type Summary struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time
	Total     int
	Success   int
	Failed    int
	Skipped   int
	Cancelled int
	Usage     llm.Totals
}

// Duration is the wall time of the run. It is zero until the run finishes.
func (s Summary) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

func (s *Summary) record(r Result) {
	switch r.Status {
	case StatusSuccess:
		s.Success++
	case StatusFailed:
		s.Failed++
	case StatusSkipped:
		s.Skipped++
	case StatusCancelled:
		s.Cancelled++
	}
	s.Usage.Merge(r.Usage)
}
