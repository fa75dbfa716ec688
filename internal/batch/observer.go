package batch

// Observer receives live notifications from a run. The runner serializes
// all calls, so implementations need no locking of their own, but they
// should return quickly since workers wait on them.
type Observer interface {
	// TaskUpdated is called with a snapshot of a task after every status
	// change.
	TaskUpdated(task Task)
	// Progress reports how many of the run's tasks have finished.
	Progress(done, total int)
	// Log carries a human-readable event line.
	Log(msg string)
	// Finished is called once with the final summary.
	Finished(summary Summary)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) TaskUpdated(Task) {}
func (NopObserver) Progress(int, int) {}
func (NopObserver) Log(string) {}
func (NopObserver) Finished(Summary) {}

// Observers fans notifications out to several observers in order.
type Observers []Observer

func (obs Observers) TaskUpdated(t Task) {
	for _, o := range obs {
		o.TaskUpdated(t)
	}
}

func (obs Observers) Progress(done, total int) {
	for _, o := range obs {
		o.Progress(done, total)
	}
}

func (obs Observers) Log(msg string) {
	for _, o := range obs {
		o.Log(msg)
	}
}

func (obs Observers) Finished(s Summary) {
	for _, o := range obs {
		o.Finished(s)
	}
}
