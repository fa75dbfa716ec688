// Package batch schedules one run over a folder of documents.
//
// A [Runner] discovers tasks with [Runner.Scan], then [Runner.Run] executes
// every pending task on a bounded worker pool. Each task is owned by a single
// worker from start to finish: it is extracted, shaped to the token budget
// (truncated, or split into chunks and summarized map-reduce style), sent to
// the generation endpoint, and its report and summary row are written.
//
// Tasks that are already resolved when the run starts (legacy .doc files,
// statuses inherited from an earlier run) are replayed into the summary
// without being executed again.
//
// Progress is reported through an [Observer], which receives snapshot copies
// of tasks and is never called concurrently.
//
// Cancellation is cooperative. [Runner.Cancel] sets a sticky flag that is
// checked before extraction and before every generation call; requests that
// are already in flight run to completion. Cancelling the context passed to
// Run additionally aborts in-flight requests and backoff sleeps.
package batch
