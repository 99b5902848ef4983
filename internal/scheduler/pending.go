package scheduler

import "sync"

// pendingIndex maintains the paired endpoint->backend-task-id and
// backend-task-id->Task indices. The two must always agree: every id in
// byEndpoint[ep] has exactly one entry in byBackendID, and vice versa.
type pendingIndex struct {
	mu          sync.Mutex
	byEndpoint  map[string]map[string]struct{}
	byBackendID map[string]*Task
}

func newPendingIndex() *pendingIndex {
	return &pendingIndex{
		byEndpoint:  make(map[string]map[string]struct{}),
		byBackendID: make(map[string]*Task),
	}
}

// add records a new pending backend task id against its endpoint and task.
func (p *pendingIndex) add(endpointID, backendTaskID string, task *Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.byEndpoint[endpointID] == nil {
		p.byEndpoint[endpointID] = make(map[string]struct{})
	}

	p.byEndpoint[endpointID][backendTaskID] = struct{}{}
	p.byBackendID[backendTaskID] = task
}

// get returns the task for a backend task id, if still pending.
func (p *pendingIndex) get(backendTaskID string) (*Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	task, ok := p.byBackendID[backendTaskID]

	return task, ok
}

// remove drops backendTaskID from both indices and reports whether it was
// the last pending task on its endpoint (before removal).
func (p *pendingIndex) remove(backendTaskID string) (task *Task, endpointID string, wasLastOnEndpoint bool, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	task, ok = p.byBackendID[backendTaskID]
	if !ok {
		return nil, "", false, false
	}

	endpointID = task.EndpointID

	delete(p.byBackendID, backendTaskID)

	ids := p.byEndpoint[endpointID]
	wasLastOnEndpoint = len(ids) == 1

	delete(ids, backendTaskID)
	if len(ids) == 0 {
		delete(p.byEndpoint, endpointID)
	}

	return task, endpointID, wasLastOnEndpoint, true
}

// countForEndpoint returns how many backend task ids are pending on ep.
func (p *pendingIndex) countForEndpoint(ep string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.byEndpoint[ep])
}
