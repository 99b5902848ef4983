package scheduler

import (
	"context"
	"time"

	"github.com/deltasched/scheduler/internal/backend"
	"github.com/deltasched/scheduler/pkg/strategy"
)

// RunDispatchLoop drains the dispatch queue every tick, separates items
// whose file staging is complete ("ready") from those still waiting,
// batches ready items into one backend submit call per tick, and feeds the
// results back into the pending indices and ETA bookkeeping. It returns
// when ctx is cancelled; in-flight backend submissions are allowed to
// finish first.
func (s *CentralScheduler) RunDispatchLoop(ctx context.Context) {
	ticker := time.NewTicker(s.dispatchTick)
	defer ticker.Stop()

	var waiting []dispatchItem

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			waiting = s.dispatchTickOnce(ctx, waiting)
		}
	}
}

// dispatchTickOnce drains newly queued items, partitions ready vs waiting,
// submits the ready batch, and returns the updated waiting slice for the
// next tick.
func (s *CentralScheduler) dispatchTickOnce(ctx context.Context, waiting []dispatchItem) []dispatchItem {
	waiting = s.drainQueue(waiting)

	ready := make([]dispatchItem, 0, len(waiting))
	stillWaiting := waiting[:0]

	for _, item := range waiting {
		failed, _ := s.transferMgr.Failed(item.transferHandle)

		switch {
		case failed:
			s.failTransferGatedTask(ctx, item)
		case s.transferMgr.IsComplete(item.transferHandle):
			ready = append(ready, item)
		default:
			stillWaiting = append(stillWaiting, item)
		}
	}

	if len(ready) == 0 {
		return stillWaiting
	}

	return append(stillWaiting, s.submitReadyBatch(ctx, ready)...)
}

func (s *CentralScheduler) drainQueue(waiting []dispatchItem) []dispatchItem {
	for {
		select {
		case item := <-s.dispatchQueue:
			waiting = append(waiting, item)
		default:
			return waiting
		}
	}
}

func (s *CentralScheduler) failTransferGatedTask(ctx context.Context, item dispatchItem) {
	s.mu.RLock()
	task := s.clientTasks[item.clientTaskID]
	s.mu.RUnlock()

	if task == nil {
		return
	}

	s.execLog.recordExceptionf("transfer failed for task_id %s on endpoint %s", item.clientTaskID, item.endpointID)
	s.setClientStatus(task, backend.TaskException, nil, "file transfer failed")
}

// submitReadyBatch POSTs one backend submit containing every ready item and
// folds the response back into the pending indices and ETA bookkeeping. On
// failure (transport error or a non-Success status), every item is returned
// unchanged for retry on the next tick.
func (s *CentralScheduler) submitReadyBatch(ctx context.Context, ready []dispatchItem) []dispatchItem {
	tasks := make([]backend.SubmitTask, len(ready))

	for i, item := range ready {
		s.mu.RLock()
		ep := s.endpoints[item.endpointID]
		s.mu.RUnlock()

		tasks[i] = backend.SubmitTask{FunctionID: item.functionID, EndpointID: ep.ID, Payload: item.payload}
	}

	resp, err := s.backendClient.Submit(ctx, tasks)
	if err != nil {
		s.logger.WarnContext(ctx, "backend submit failed, retrying next tick", "error", err, "count", len(ready))

		return ready
	}

	if resp.Status != backend.SubmitStatusSuccess {
		s.logger.WarnContext(ctx, "backend submit returned non-success status, retrying next tick",
			"status", resp.Status, "count", len(ready))

		return ready
	}

	if len(resp.TaskUUIDs) != len(ready) {
		s.logger.WarnContext(ctx, "backend submit returned mismatched id count, retrying next tick",
			"want", len(ready), "got", len(resp.TaskUUIDs))

		return ready
	}

	for i, item := range ready {
		s.onDispatched(ctx, item, resp.TaskUUIDs[i])
	}

	return nil
}

func (s *CentralScheduler) onDispatched(ctx context.Context, item dispatchItem, backendTaskID string) {
	s.mu.RLock()
	task := s.clientTasks[item.clientTaskID]
	ep := s.endpoints[item.endpointID]
	s.mu.RUnlock()

	if task == nil {
		return
	}

	epMeta := strategy.EndpointMeta{ID: ep.ID, Name: ep.Name, Group: ep.Group, TransferGroup: ep.TransferGroup}
	eta := s.strategy.PredictETA(epMeta, item.functionID, item.payload, item.fileGroups)

	s.mu.Lock()
	task.BackendTaskIDs[backendTaskID] = struct{}{}
	task.TimeSent = s.now()
	task.ETA = eta
	s.mu.Unlock()

	s.pending.add(item.endpointID, backendTaskID, task)

	s.queueErrorMu.Lock()
	s.lastTaskETA[item.endpointID] = eta
	s.queueErrorMu.Unlock()

	s.setClientStatus(task, backend.TaskPending, nil, "")
}
