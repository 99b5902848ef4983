package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deltasched/scheduler/internal/backend"
	"github.com/deltasched/scheduler/pkg/predictor"
)

// TestSmallestETA_QueueDelayCompoundsAcrossPendingTasks drives the real
// dispatch loop against a single endpoint and checks the ETA formula end to
// end: the first task sees an empty queue and finishes at runtime +
// latency; the second, submitted before the first completes, must wait
// behind the first task's predicted completion time.
func TestSmallestETA_QueueDelayCompoundsAcrossPendingTasks(t *testing.T) {
	clock := &mutableClock{}

	rp := predictor.NewRollingAverage(predictor.DefaultLastN)
	rp.Update("f", "g-a", 0, 5.0) // predicted runtime: 5s, already exploited

	backendClient := newFakeBackendClient()

	s := newTestScheduler(t, testSchedulerOpts{
		strategyName: "smallest-eta",
		endpoints: []EndpointConfig{
			{ID: "A", Name: "A", Group: "g-a", TransferGroup: "t-a"},
		},
		runtimePredictor: rp,
		backendClient:    backendClient,
		clock:            clock,
		latencyConst:     0.5,
	})
	s.dispatchTick = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go s.RunDispatchLoop(ctx)

	clock.Set(0)

	clientIDs1, _, err := s.BatchSubmit(ctx, []SubmitRequest{{FunctionID: "f"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.clientTasks[clientIDs1[0]].LatestStatus == backend.TaskPending && s.clientTasks[clientIDs1[0]].ETA != 0
	}, time.Second, time.Millisecond, "first task never reached the backend")

	require.InDelta(t, 5.5, s.clientTasks[clientIDs1[0]].ETA, 1e-9, "launch(0) + max(queue=0, now+transfer=0) + runtime(5) + latency(0.5)")

	clientIDs2, _, err := s.BatchSubmit(ctx, []SubmitRequest{{FunctionID: "f"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.clientTasks[clientIDs2[0]].LatestStatus == backend.TaskPending && s.clientTasks[clientIDs2[0]].ETA != 0
	}, time.Second, time.Millisecond, "second task never reached the backend")

	require.InDelta(t, 11.0, s.clientTasks[clientIDs2[0]].ETA, 1e-9,
		"must queue behind task 1's predicted completion: launch(0) + max(queue=5.5, now+transfer=0) + runtime(5) + latency(0.5)")

	// Task 1 actually finishes 0.5s later than predicted (t=6.0 instead of
	// 5.5); since task 2 is still pending on A, the endpoint's queue-error
	// correction absorbs that overrun rather than resetting to zero.
	clock.Set(6.0)

	backendIDs1, err := s.TranslateTaskID(clientIDs1[0])
	require.NoError(t, err)
	require.Len(t, backendIDs1, 1)

	s.LogStatus(ctx, backendIDs1[0], backend.StatusRecord{
		Status: backend.TaskResult,
		Result: json.RawMessage(`{"runtime":6.0}`),
	})

	s.queueErrorMu.Lock()
	qerr := s.queueError["A"]
	s.queueErrorMu.Unlock()
	require.InDelta(t, 0.5, qerr, 1e-9, "queue error must carry forward while a sibling task is still pending")

	status, task, err := s.GetStatus(clientIDs1[0])
	require.NoError(t, err)
	require.Equal(t, backend.TaskResult, status)
	require.JSONEq(t, `{"runtime":6.0}`, string(task.Result))
}

// TestSmallestETA_QueueErrorResetsWhenLastPendingTaskCompletes confirms the
// other half of the correction: once an endpoint has no other pending work,
// a late or early completion does not leak into the next task's estimate.
func TestSmallestETA_QueueErrorResetsWhenLastPendingTaskCompletes(t *testing.T) {
	clock := &mutableClock{}

	rp := predictor.NewRollingAverage(predictor.DefaultLastN)
	rp.Update("f", "g-a", 0, 5.0)

	s := newTestScheduler(t, testSchedulerOpts{
		strategyName: "smallest-eta",
		endpoints: []EndpointConfig{
			{ID: "A", Name: "A", Group: "g-a", TransferGroup: "t-a"},
		},
		runtimePredictor: rp,
		clock:            clock,
		latencyConst:     0.5,
	})
	s.dispatchTick = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go s.RunDispatchLoop(ctx)

	clock.Set(0)

	clientIDs, _, err := s.BatchSubmit(ctx, []SubmitRequest{{FunctionID: "f"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.clientTasks[clientIDs[0]].LatestStatus == backend.TaskPending
	}, time.Second, time.Millisecond)

	clock.Set(9.0) // finishes 3.5s later than the 5.5s prediction

	backendIDs, err := s.TranslateTaskID(clientIDs[0])
	require.NoError(t, err)

	s.LogStatus(ctx, backendIDs[0], backend.StatusRecord{Status: backend.TaskResult, Result: json.RawMessage(`{"runtime":9.0}`)})

	s.queueErrorMu.Lock()
	qerr := s.queueError["A"]
	s.queueErrorMu.Unlock()
	require.Zero(t, qerr, "the completed task had no sibling pending; the correction resets to zero")

	require.Equal(t, 0, s.pending.countForEndpoint("A"))
}
