package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deltasched/scheduler/pkg/predictor"
)

func threeEndpoints() []EndpointConfig {
	return []EndpointConfig{
		{ID: "A", Name: "A", Group: "g-a", TransferGroup: "t-a"},
		{ID: "B", Name: "B", Group: "g-b", TransferGroup: "t-b"},
		{ID: "C", Name: "C", Group: "g-c", TransferGroup: "t-c"},
	}
}

func TestRoundRobin_VisitsEveryEndpointInOrderAndWraps(t *testing.T) {
	s := newTestScheduler(t, testSchedulerOpts{
		strategyName: "round-robin",
		endpoints:    threeEndpoints(),
	})

	reqs := make([]SubmitRequest, 6)
	for i := range reqs {
		reqs[i] = SubmitRequest{FunctionID: "f"}
	}

	_, endpointIDs, err := s.BatchSubmit(context.Background(), reqs)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", "C", "A", "B", "C"}, endpointIDs)
}

func TestRoundRobin_SkipsBlacklistedEndpoint(t *testing.T) {
	s := newTestScheduler(t, testSchedulerOpts{
		strategyName: "round-robin",
		endpoints:    threeEndpoints(),
	})

	s.Blacklist("f", "B")

	_, endpointIDs, err := s.BatchSubmit(context.Background(), []SubmitRequest{
		{FunctionID: "f"}, {FunctionID: "f"}, {FunctionID: "f"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "C", "A"}, endpointIDs)
}

// TestFastestEndpoint_ExploresUnsampledGroupThenExploitsFasterOne mirrors an
// endpoint fleet with two groups: one the runtime predictor has never seen
// (forced exploration) and one it already has a (fast) sample for. Once the
// exploring endpoint reports back a slower observed runtime than the
// already-sampled group, every subsequent call exploits the faster group.
func TestFastestEndpoint_ExploresUnsampledGroupThenExploitsFasterOne(t *testing.T) {
	rp := predictor.NewRollingAverage(predictor.DefaultLastN)
	rp.Update("f", "g-b", 0, 2.0) // g-b: already sampled, fast

	s := newTestScheduler(t, testSchedulerOpts{
		strategyName: "fastest-endpoint",
		endpoints: []EndpointConfig{
			{ID: "A", Name: "A", Group: "g-a", TransferGroup: "t-a"}, // unsampled: explored first
			{ID: "B", Name: "B", Group: "g-b", TransferGroup: "t-b"},
		},
		runtimePredictor: rp,
	})

	_, firstEndpoint, err := s.BatchSubmit(context.Background(), []SubmitRequest{{FunctionID: "f"}})
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, firstEndpoint, "the unsampled group must be explored before any exploitation")

	// A's exploration task comes back slow.
	rp.Update("f", "g-a", 0, 10.0)

	_, restEndpoints, err := s.BatchSubmit(context.Background(), []SubmitRequest{
		{FunctionID: "f"}, {FunctionID: "f"}, {FunctionID: "f"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"B", "B", "B"}, restEndpoints, "every group now has a sample; the faster one must be exploited")
}

func TestBatchSubmit_UnknownFunctionStillDispatchesWithNoPredictorData(t *testing.T) {
	s := newTestScheduler(t, testSchedulerOpts{
		strategyName: "round-robin",
		endpoints:    threeEndpoints(),
	})

	clientIDs, endpointIDs, err := s.BatchSubmit(context.Background(), []SubmitRequest{{FunctionID: "never.seen"}})
	require.NoError(t, err)
	require.Len(t, clientIDs, 1)
	require.Equal(t, "A", endpointIDs[0])
}

func TestGetStatus_UnknownClientTaskIDReturnsError(t *testing.T) {
	s := newTestScheduler(t, testSchedulerOpts{strategyName: "round-robin", endpoints: threeEndpoints()})

	_, _, err := s.GetStatus("no-such-task")
	require.ErrorIs(t, err, ErrUnknownTask)
}

func TestEndpoint_UnknownIDReturnsError(t *testing.T) {
	s := newTestScheduler(t, testSchedulerOpts{strategyName: "round-robin", endpoints: threeEndpoints()})

	_, err := s.Endpoint("Z")
	require.ErrorIs(t, err, ErrUnknownEndpoint)
}

func TestBatchStatus_DropsPendingEntriesUnlessRequested(t *testing.T) {
	s := newTestScheduler(t, testSchedulerOpts{strategyName: "round-robin", endpoints: threeEndpoints()})

	clientIDs, _, err := s.BatchSubmit(context.Background(), []SubmitRequest{{FunctionID: "f"}})
	require.NoError(t, err)

	withoutPending := s.BatchStatus(clientIDs, false)
	require.Empty(t, withoutPending)

	withPending := s.BatchStatus(clientIDs, true)
	require.Len(t, withPending, 1)
}
