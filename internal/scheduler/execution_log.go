package scheduler

import (
	"sync"

	"github.com/fatih/color"
)

// executionLog is an in-memory decision log, drained and cleared on read
// exactly once per GET /execution_log call: readers get every entry
// recorded since the previous drain, never the same entry twice.
type executionLog struct {
	mu      sync.Mutex
	entries []string
}

func newExecutionLog() *executionLog {
	return &executionLog{}
}

// dispatchLine colorizes the dispatch-decision entry green, mirroring the
// source's termcolor-wrapped "Sent function ... to endpoint ..." message;
// recordExceptionf colorizes failure entries red.
var dispatchLine = color.New(color.FgGreen).SprintfFunc()

func (l *executionLog) recordDispatch(function, endpointID, clientTaskID string) {
	line := dispatchLine("sent function %s to endpoint %s with task_id %s", function, endpointID, clientTaskID)

	l.mu.Lock()
	l.entries = append(l.entries, line)
	l.mu.Unlock()
}

func (l *executionLog) recordExceptionf(format string, args ...any) {
	line := color.New(color.FgRed).Sprintf(format, args...)

	l.mu.Lock()
	l.entries = append(l.entries, line)
	l.mu.Unlock()
}

// drain returns every entry recorded since the last drain and clears the
// log, matching the source's `log, SCHEDULER.execution_log = SCHEDULER.execution_log, []`.
func (l *executionLog) drain() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.entries
	l.entries = nil

	return out
}
