package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/wordbatch/internal/config"
	"github.com/dshills/wordbatch/internal/document"
	"github.com/dshills/wordbatch/internal/llm"
	"github.com/dshills/wordbatch/internal/output"
)

// Recognized document extensions, compared case-insensitively.
const (
	docxExt   = ".docx"
	legacyExt = ".doc"
)

// Options wires a Runner to its collaborators.
type Options struct {
	// InputDir is the root scanned for documents.
	InputDir string
	// OnlyFiles, when non-empty, restricts discovery to these files.
	OnlyFiles []string
	// Store receives reports, summary rows and run metadata.
	Store *output.Store
	// Template is the prompt template rendered for every generation call.
	Template string
	// Generator issues generation calls. Required.
	Generator llm.Generator
	// Extractor reads documents. Defaults to document.DOCX.
	Extractor document.Extractor
	// Observer receives live notifications. Defaults to NopObserver.
	Observer Observer
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// RunOptions tunes a single call to Run.
type RunOptions struct {
	// RetryFailedOnly restricts the run to tasks currently marked failed.
	// They are reset to pending before execution.
	RetryFailedOnly bool
}

// Runner executes one batch run. Create it with New, call Scan, then Run.
type Runner struct {
	cfg       config.Config
	runID     string
	inputDir  string
	only      map[string]bool
	store     *output.Store
	template  string
	gen       llm.Generator
	extractor document.Extractor
	logger    *slog.Logger

	cancelled atomic.Bool

	mu      sync.Mutex
	tasks   []Task
	scanned bool

	notifyMu sync.Mutex
	observer Observer
}

// New validates opts and prepares the output directory.
func New(cfg config.Config, opts Options) (*Runner, error) {
	if opts.InputDir == "" {
		return nil, errors.New("input directory is required")
	}
	if opts.Store == nil {
		return nil, errors.New("output store is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("generator is required")
	}
	cfg.Normalize()

	inputDir, err := filepath.Abs(opts.InputDir)
	if err != nil {
		return nil, fmt.Errorf("resolving input directory: %w", err)
	}
	only := make(map[string]bool, len(opts.OnlyFiles))
	for _, f := range opts.OnlyFiles {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", f, err)
		}
		only[abs] = true
	}
	if err := opts.Store.Prepare(); err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:       cfg,
		runID:     uuid.NewString(),
		inputDir:  inputDir,
		only:      only,
		store:     opts.Store,
		template:  opts.Template,
		gen:       opts.Generator,
		extractor: opts.Extractor,
		logger:    opts.Logger,
		observer:  opts.Observer,
	}
	if r.extractor == nil {
		r.extractor = document.DOCX{}
	}
	if r.observer == nil {
		r.observer = NopObserver{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("runId", r.runID)
	return r, nil
}

// RunID returns the identifier of this run.
func (r *Runner) RunID() string { return r.runID }

// Cancel asks the run to stop. It is safe to call at any time and from any
// goroutine; tasks observe it at their next checkpoint.
func (r *Runner) Cancel() {
	if r.cancelled.CompareAndSwap(false, true) {
		r.log("cancellation requested; in-flight requests will finish")
	}
}

// Cancelled reports whether Cancel has been called.
func (r *Runner) Cancelled() bool { return r.cancelled.Load() }

// Tasks returns a copy of the current task list in discovery order.
func (r *Runner) Tasks() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Task, len(r.tasks))
	copy(out, r.tasks)
	return out
}

// Scan discovers documents under the input directory, sorted by path.
// previous maps absolute paths to statuses from an earlier run; success,
// failed and skipped statuses are inherited, anything else starts pending.
func (r *Runner) Scan(previous map[string]Status) ([]Task, error) {
	var files []string
	err := filepath.WalkDir(r.inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", r.inputDir, err)
	}
	sort.Strings(files)

	var (
		tasks  []Task
		legacy int
	)
	for _, path := range files {
		if len(r.only) > 0 && !r.only[path] {
			continue
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case docxExt:
			t := Task{Path: path, Name: filepath.Base(path), Status: StatusPending, Meta: document.NewMeta()}
			if prev, ok := previous[path]; ok && prev.inheritable() {
				t.Status = prev
				if prev == StatusSuccess {
					t.OutputPath = r.reportPath(t.Name)
				}
			}
			tasks = append(tasks, t)
		case legacyExt:
			legacy++
			tasks = append(tasks, Task{
				Path:   path,
				Name:   filepath.Base(path),
				Status: StatusSkipped,
				Error:  LegacyFormatMessage,
				Meta:   document.NewMeta(),
			})
		}
	}

	r.mu.Lock()
	r.tasks = tasks
	r.scanned = true
	r.mu.Unlock()

	if len(r.only) > 0 && len(tasks) == 0 {
		r.log("none of the selected files were found; make sure they end in .docx")
	}
	r.log(fmt.Sprintf("found %d tasks, %d .doc will be skipped", len(tasks), legacy))
	return r.Tasks(), nil
}

func (r *Runner) reportPath(name string) string {
	path := filepath.Join(r.store.ResultsDir(), output.ReportName(name))
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// Run executes the scanned tasks and returns the run summary. Per-task
// failures are recorded, never returned; the error is non-nil only when
// discovery or writing run.json fails.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (Summary, error) {
	r.mu.Lock()
	scanned := r.scanned
	r.mu.Unlock()
	if !scanned {
		if _, err := r.Scan(nil); err != nil {
			return Summary{}, err
		}
	}

	selected := r.selectTasks(opts.RetryFailedOnly)
	total := len(selected)
	summary := Summary{RunID: r.runID, StartTime: time.Now(), Total: total}
	r.logger.Info("run started", "total", total, "concurrency", r.cfg.Concurrency, "mode", r.cfg.LongDocMode)

	if total == 0 {
		r.log("no .docx files to process")
		return r.finish(summary)
	}
	r.progress(0, total)

	done := 0
	var pending []int
	for _, i := range selected {
		t := r.task(i)
		if t.Status == StatusPending {
			pending = append(pending, i)
			continue
		}
		res := Result{
			Path:       t.Path,
			Status:     t.Status,
			OutputPath: t.OutputPath,
			Mode:       r.cfg.LongDocMode,
			Error:      t.Error,
		}
		r.appendSummary(t, res)
		summary.record(res)
		done++
		r.notify(t)
		if t.Status == StatusSkipped && t.Error != "" {
			r.log(fmt.Sprintf("skipped: %s -> %s", t.Name, t.Error))
		}
		r.progress(done, total)
	}

	if len(pending) > 0 {
		results := make(chan Result)
		go func() {
			var g errgroup.Group
			g.SetLimit(r.cfg.Concurrency)
			for _, i := range pending {
				i := i
				g.Go(func() error {
					results <- r.process(ctx, i)
					return nil
				})
			}
			_ = g.Wait()
			close(results)
		}()

		for res := range results {
			summary.record(res)
			done++
			r.progress(done, total)
		}
	}

	return r.finish(summary)
}

// selectTasks returns the indexes taking part in this run. With
// retryFailed only failed tasks are kept and reset to pending.
func (r *Runner) selectTasks(retryFailed bool) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var idx []int
	for i := range r.tasks {
		t := &r.tasks[i]
		if retryFailed {
			if t.Status != StatusFailed {
				continue
			}
			t.Status = StatusPending
			t.Error = ""
			t.OutputPath = ""
		}
		idx = append(idx, i)
	}
	return idx
}

func (r *Runner) finish(summary Summary) (Summary, error) {
	summary.EndTime = time.Now()
	meta := output.RunMetadata{
		RunID:       summary.RunID,
		StartTime:   summary.StartTime,
		EndTime:     summary.EndTime,
		DurationSec: summary.Duration().Seconds(),
		Total:       summary.Total,
		Success:     summary.Success,
		Failed:      summary.Failed,
		Skipped:     summary.Skipped,
		Cancelled:   summary.Cancelled,
		Usage:       summary.Usage,
		Config:      r.cfg,
	}
	err := r.store.WriteRunMetadata(meta)
	if err != nil {
		r.logger.Error("writing run metadata failed", "error", err)
	}
	r.logger.Info("run finished",
		"total", summary.Total,
		"success", summary.Success,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"cancelled", summary.Cancelled,
		"durationSec", meta.DurationSec,
	)

	r.notifyMu.Lock()
	r.observer.Finished(summary)
	r.notifyMu.Unlock()
	return summary, err
}

func (r *Runner) task(i int) Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[i]
}

// update mutates task i under the lock and returns a snapshot.
func (r *Runner) update(i int, fn func(t *Task)) Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.tasks[i])
	return r.tasks[i]
}

func (r *Runner) notify(t Task) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	r.observer.TaskUpdated(t)
}

func (r *Runner) progress(done, total int) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	r.observer.Progress(done, total)
}

// log sends msg to the observer and the structured log.
func (r *Runner) log(msg string) {
	r.logger.Info(msg)
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	r.observer.Log(msg)
}

func (r *Runner) appendSummary(t Task, res Result) {
	msg := t.Error
	if msg == "" {
		msg = res.Error
	}
	row := output.SummaryRow{
		Filename:       t.Name,
		Filepath:       t.Path,
		Status:         string(res.Status),
		ElapsedSec:     res.Elapsed.Seconds(),
		InputChars:     res.InputChars,
		InputTokensEst: res.InputTokensEst,
		Mode:           res.Mode,
		OutputPath:     res.OutputPath,
		ErrorMessage:   msg,
	}
	if err := r.store.AppendSummary(row); err != nil {
		r.logger.Error("appending summary row failed", "file", t.Name, "error", err)
	}
}
