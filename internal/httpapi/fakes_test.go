package httpapi_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/deltasched/scheduler/internal/backend"
)

// fakeBackendClient is an in-memory backend.Client for exercising the HTTP
// front end without a real backend service behind it.
type fakeBackendClient struct {
	mu sync.Mutex

	nextID      int
	statusByID  map[string]backend.StatusRecord
	registerErr error
}

func newFakeBackendClient() *fakeBackendClient {
	return &fakeBackendClient{statusByID: make(map[string]backend.StatusRecord)}
}

func (f *fakeBackendClient) Submit(_ context.Context, tasks []backend.SubmitTask) (backend.SubmitResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]string, len(tasks))
	for i := range tasks {
		f.nextID++
		ids[i] = fmt.Sprintf("backend-task-%d", f.nextID)
		f.statusByID[ids[i]] = backend.StatusRecord{Status: backend.TaskPending}
	}

	return backend.SubmitResponse{Status: backend.SubmitStatusSuccess, TaskUUIDs: ids}, nil
}

func (f *fakeBackendClient) BatchStatus(_ context.Context, taskIDs []string) (map[string]backend.StatusRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]backend.StatusRecord, len(taskIDs))
	for _, id := range taskIDs {
		if rec, ok := f.statusByID[id]; ok {
			out[id] = rec
		}
	}

	return out, nil
}

func (f *fakeBackendClient) EndpointStatus(_ context.Context, _ string) ([]backend.EndpointStatusRecord, error) {
	return []backend.EndpointStatusRecord{{Timestamp: time.Now(), ActiveManagers: 1}}, nil
}

func (f *fakeBackendClient) RegisterFunction(_ context.Context, body []byte) ([]byte, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}

	return body, nil
}

func (f *fakeBackendClient) setStatus(backendTaskID string, rec backend.StatusRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statusByID[backendTaskID] = rec
}
