package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/dshills/wordbatch/internal/batch"
	"github.com/dshills/wordbatch/internal/llm"
	"github.com/dshills/wordbatch/internal/state"
)

// consoleObserver prints one line per finished task and a final tally.
type consoleObserver struct {
	w     io.Writer
	done  int
	total int
}

func (c *consoleObserver) TaskUpdated(t batch.Task) {
	if !t.Status.Terminal() {
		return
	}
	line := fmt.Sprintf("%-9s %s", t.Status, t.Name)
	if t.Error != "" {
		line += "  (" + t.Error + ")"
	}
	fmt.Fprintln(c.w, line)
}

func (c *consoleObserver) Progress(done, total int) {
	c.done, c.total = done, total
}

func (c *consoleObserver) Log(string) {}

func (c *consoleObserver) Finished(s batch.Summary) {
	fmt.Fprintf(c.w, "Finished %d/%d: success %d, failed %d, skipped %d, cancelled %d (%.1fs)\n",
		c.done, s.Total, s.Success, s.Failed, s.Skipped, s.Cancelled, s.Duration().Seconds())
}

// stateObserver persists terminal task statuses for resumption.
type stateObserver struct {
	store  *state.Store
	runID  string
	logger *slog.Logger
}

func (o *stateObserver) TaskUpdated(t batch.Task) {
	if !t.Status.Terminal() {
		return
	}
	err := o.store.RecordTask(context.Background(), state.TaskRecord{
		Path:       t.Path,
		RunID:      o.runID,
		Name:       t.Name,
		Status:     string(t.Status),
		Error:      t.Error,
		OutputPath: t.OutputPath,
	})
	if err != nil {
		o.logger.Warn("recording task state failed", "file", t.Name, "error", err)
	}
}

func (o *stateObserver) Progress(int, int) {}

func (o *stateObserver) Log(string) {}

func (o *stateObserver) Finished(s batch.Summary) {
	err := o.store.FinishRun(context.Background(), o.runID, state.Counts{
		Total:     s.Total,
		Success:   s.Success,
		Failed:    s.Failed,
		Skipped:   s.Skipped,
		Cancelled: s.Cancelled,
	})
	if err != nil {
		o.logger.Warn("recording run state failed", "error", err)
	}
}

// authWatch remembers whether any generation failed on credentials.
type authWatch struct {
	next llm.Generator
	seen atomic.Bool
}

func (a *authWatch) Generate(ctx context.Context, prompt string) (llm.Response, error) {
	resp, err := a.next.Generate(ctx, prompt)
	if err != nil && llm.IsAuthError(err) {
		a.seen.Store(true)
	}
	return resp, err
}

// previousStatuses converts stored statuses into the map batch.Runner.Scan
// inherits from.
func previousStatuses(ctx context.Context, st *state.Store) (map[string]batch.Status, error) {
	raw, err := st.Statuses(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]batch.Status, len(raw))
	for path, s := range raw {
		out[path] = batch.Status(s)
	}
	return out, nil
}
