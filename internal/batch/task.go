package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dshills/wordbatch/internal/chunking"
	"github.com/dshills/wordbatch/internal/config"
	"github.com/dshills/wordbatch/internal/document"
	"github.com/dshills/wordbatch/internal/llm"
	"github.com/dshills/wordbatch/internal/prompt"
	"github.com/dshills/wordbatch/internal/redact"
)

// Extra metadata keys added to chunk and aggregation prompts.
const (
	metaChunkIndex      = "chunk_index"
	metaChunkTotal      = "chunk_total"
	metaChunkAggregated = "chunk_aggregated"
)

// shaped is what a task sends to the generation endpoint and gets back.
type shaped struct {
	input string
	text  string
	meta  document.Meta
	usage llm.Totals
}

// process runs task i to a terminal status. It never fails; errors become
// the recorded status.
func (r *Runner) process(ctx context.Context, i int) Result {
	start := time.Now()
	t := r.update(i, func(t *Task) {
		t.Status = StatusRunning
		t.Error = ""
	})
	r.notify(t)
	logCtx := r.logger.With("file", t.Name)

	res := Result{Path: t.Path, Mode: r.cfg.LongDocMode}
	out, err := r.execute(ctx, i, t, logCtx)
	if err == nil {
		res.OutputPath, err = r.store.WriteResult(t.Name, out.text)
	}
	res.Elapsed = time.Since(start)

	switch {
	case err == nil:
		res.Status = StatusSuccess
		res.InputChars = utf8.RuneCountInString(out.input)
		res.InputTokensEst = out.meta.TokenEst
		res.Usage = out.usage
	case isCancellation(err):
		res.Status = StatusCancelled
		res.Error = CancelledMessage
	case errors.Is(err, document.ErrUnsupported):
		res.Status = StatusSkipped
		res.Error = err.Error()
	default:
		res.Status = StatusFailed
		res.Error = err.Error()
	}

	t = r.update(i, func(t *Task) {
		t.Status = res.Status
		t.Error = res.Error
		t.OutputPath = res.OutputPath
	})
	r.appendSummary(t, res)
	r.notify(t)

	switch res.Status {
	case StatusSuccess:
		logCtx.Info("task finished", "elapsedSec", res.Elapsed.Seconds(), "output", res.OutputPath)
		r.log("done: " + t.Name)
	case StatusSkipped:
		logCtx.Warn("task skipped", "reason", res.Error)
		r.log(fmt.Sprintf("skipped: %s -> %s", t.Name, res.Error))
	case StatusFailed:
		logCtx.Error("task failed", "error", err)
		r.log(fmt.Sprintf("failed: %s -> %s", t.Name, res.Error))
	case StatusCancelled:
		logCtx.Info("task cancelled")
	}
	return res
}

func isCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// checkpoint is consulted before every blocking step.
func (r *Runner) checkpoint(ctx context.Context) error {
	if r.cancelled.Load() {
		return ErrCancelled
	}
	if ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, i int, t Task, logCtx *slog.Logger) (shaped, error) {
	if err := r.checkpoint(ctx); err != nil {
		return shaped{}, err
	}
	r.log("processing: " + t.Name)

	text, meta, err := r.extractor.Extract(t.Path, r.cfg.IncludeTables)
	if err != nil {
		return shaped{}, err
	}
	if r.cfg.RedactSecrets {
		text = redact.Secrets(text)
	}
	if meta.TokenEst == 0 {
		meta.TokenEst = chunking.EstimateTokens(text)
	}
	r.setMeta(i, meta)
	logCtx.Debug("document extracted",
		"paragraphs", meta.ParagraphCount,
		"tables", meta.TableCount,
		"tokenEst", meta.TokenEst,
	)
	if err := r.checkpoint(ctx); err != nil {
		return shaped{}, err
	}

	var out shaped
	if r.cfg.LongDocMode == config.ModeChunk {
		out, err = r.runChunks(ctx, t, text, meta, logCtx)
	} else {
		out, err = r.runTruncated(ctx, t, text, meta)
	}
	if err != nil {
		return shaped{}, err
	}
	r.setMeta(i, out.meta)
	return out, nil
}

func (r *Runner) runTruncated(ctx context.Context, t Task, text string, meta document.Meta) (shaped, error) {
	text, meta = chunking.Truncate(text, meta, r.cfg.MaxInputTokens)
	out := shaped{input: text, meta: meta}

	resp, err := r.generate(ctx, t, text, meta.Fields())
	if err != nil {
		return shaped{}, err
	}
	out.text = resp.Text
	out.usage.Add(resp.Usage)
	return out, nil
}

// runChunks generates once per chunk, then once more over the joined chunk
// outputs. A single chunk is generated directly.
func (r *Runner) runChunks(ctx context.Context, t Task, text string, meta document.Meta, logCtx *slog.Logger) (shaped, error) {
	chunks := chunking.Chunk(text, r.cfg.ChunkTargetTokens)
	meta.ChunkCount = len(chunks)
	meta.WasTruncated = false
	out := shaped{input: text, meta: meta}

	if len(chunks) == 1 {
		resp, err := r.generate(ctx, t, chunks[0], meta.Fields())
		if err != nil {
			return shaped{}, err
		}
		out.text = resp.Text
		out.usage.Add(resp.Usage)
		return out, nil
	}

	logCtx.Info("document split into chunks", "chunks", len(chunks))
	partials := make([]string, 0, len(chunks))
	for idx, chunk := range chunks {
		fields := meta.Fields()
		fields[metaChunkIndex] = idx + 1
		fields[metaChunkTotal] = len(chunks)
		resp, err := r.generate(ctx, t, chunk, fields)
		if err != nil {
			return shaped{}, fmt.Errorf("chunk %d/%d: %w", idx+1, len(chunks), err)
		}
		partials = append(partials, resp.Text)
		out.usage.Add(resp.Usage)
	}

	fields := meta.Fields()
	fields[metaChunkTotal] = len(chunks)
	fields[metaChunkAggregated] = true
	resp, err := r.generate(ctx, t, strings.Join(partials, "\n\n"), fields)
	if err != nil {
		return shaped{}, fmt.Errorf("aggregating chunks: %w", err)
	}
	out.text = resp.Text
	out.usage.Add(resp.Usage)
	return out, nil
}

// generate renders one prompt and sends it once the checkpoint passes.
func (r *Runner) generate(ctx context.Context, t Task, content string, meta map[string]any) (llm.Response, error) {
	p, err := prompt.Render(r.template, map[string]any{
		prompt.VarFilename: t.Name,
		prompt.VarFilepath: t.Path,
		prompt.VarContent:  content,
		prompt.VarMeta:     meta,
	})
	if err != nil {
		return llm.Response{}, err
	}
	if err := r.checkpoint(ctx); err != nil {
		return llm.Response{}, err
	}
	return r.gen.Generate(ctx, p)
}

func (r *Runner) setMeta(i int, meta document.Meta) {
	r.update(i, func(t *Task) { t.Meta = meta })
}
