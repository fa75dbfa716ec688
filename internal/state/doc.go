// Package state persists task outcomes across runs in a SQLite database so
// an interrupted or partially failed run can be resumed.
//
// Each run is recorded in the runs table. Task outcomes live in task_states,
// keyed by the absolute path of the source document; the latest outcome for
// a path wins. [Store.Statuses] returns the map a resumed scan inherits from.
package state
