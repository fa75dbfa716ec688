// Package output persists everything a run produces and renders run status
// for display.
//
// A run's output directory has a fixed layout:
//
//	<out>/results/<document>.md   one report per processed document
//	<out>/logs/run.log            structured log of the run
//	<out>/summary.csv             one row per task, in completion order
//	<out>/run.json                aggregate counts, timing and settings
//
// [Store] owns the layout. Reports and run.json are replaced atomically.
// Summary rows are appended under a single lock and flushed per row, so the
// file stays parseable even if the run is interrupted.
//
// Use [GetWriter] to render a [StatusReport] as text or JSON.
package output
