package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/deltasched/scheduler/internal/backend"
	"github.com/deltasched/scheduler/internal/transfer"
)

// fakeBackendClient is an in-memory backend.Client stand-in: Submit records
// every batch and assigns a sequential backend task id per task, unless
// submitErr is set (then it returns that error); submitStatus sets the
// reported submit status; EndpointStatus returns whatever statuses tests
// have queued per endpoint.
type fakeBackendClient struct {
	mu sync.Mutex

	submitErr    error
	submitStatus string // defaults to backend.SubmitStatusSuccess
	nextID       int

	endpointStatuses map[string][]backend.EndpointStatusRecord

	submittedBatches [][]backend.SubmitTask
}

func newFakeBackendClient() *fakeBackendClient {
	return &fakeBackendClient{
		submitStatus:     backend.SubmitStatusSuccess,
		endpointStatuses: make(map[string][]backend.EndpointStatusRecord),
	}
}

func (f *fakeBackendClient) Submit(_ context.Context, tasks []backend.SubmitTask) (backend.SubmitResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.submittedBatches = append(f.submittedBatches, tasks)

	if f.submitErr != nil {
		return backend.SubmitResponse{}, f.submitErr
	}

	ids := make([]string, len(tasks))
	for i := range tasks {
		f.nextID++
		ids[i] = fmt.Sprintf("backend-task-%d", f.nextID)
	}

	return backend.SubmitResponse{Status: f.submitStatus, TaskUUIDs: ids}, nil
}

func (f *fakeBackendClient) BatchStatus(_ context.Context, _ []string) (map[string]backend.StatusRecord, error) {
	return nil, nil
}

func (f *fakeBackendClient) EndpointStatus(_ context.Context, endpointID string) ([]backend.EndpointStatusRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.endpointStatuses[endpointID], nil
}

func (f *fakeBackendClient) RegisterFunction(_ context.Context, body []byte) ([]byte, error) {
	return body, nil
}

func (f *fakeBackendClient) setEndpointStatus(endpointID string, ts time.Time, activeManagers int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.endpointStatuses[endpointID] = []backend.EndpointStatusRecord{{Timestamp: ts, ActiveManagers: activeManagers}}
}

func (f *fakeBackendClient) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.submittedBatches)
}

// fakeTransferClient is an in-memory transfer.Client stand-in whose task
// statuses are controlled directly by tests via setStatus.
type fakeTransferClient struct {
	mu      sync.Mutex
	nextID  int
	status  map[string]transfer.Status
	cancels map[string]bool
}

func newFakeTransferClient() *fakeTransferClient {
	return &fakeTransferClient{
		status:  make(map[string]transfer.Status),
		cancels: make(map[string]bool),
	}
}

func (f *fakeTransferClient) SubmitTransfer(_ context.Context, _, _ string, _ []transfer.Item, _ transfer.SyncLevel, _ string) (transfer.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := fmt.Sprintf("ext-transfer-%d", f.nextID)
	f.status[id] = transfer.StatusActive

	return transfer.SubmitResult{Code: "ok", TaskID: id}, nil
}

func (f *fakeTransferClient) GetTask(_ context.Context, taskID string) (transfer.StatusReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return transfer.StatusReport{Status: f.status[taskID]}, nil
}

func (f *fakeTransferClient) CancelTask(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancels[taskID] = true
	delete(f.status, taskID)

	return nil
}

func (f *fakeTransferClient) setStatus(taskID string, status transfer.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.status[taskID] = status
}

// onlyTaskID returns the single outstanding external transfer id, for tests
// that submit exactly one transfer. Panics if there isn't exactly one.
func (f *fakeTransferClient) onlyTaskID() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var id string

	n := 0
	for k := range f.status {
		id = k
		n++
	}

	if n != 1 {
		panic(fmt.Sprintf("onlyTaskID: expected exactly 1 active transfer, got %d", n))
	}

	return id
}

// mutableClock is a test-controlled logical clock, independent of wall time,
// matching strategy.NowFn's contract.
type mutableClock struct {
	mu  sync.Mutex
	now float64
}

func (c *mutableClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *mutableClock) Set(t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = t
}
