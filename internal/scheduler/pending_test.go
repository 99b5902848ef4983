package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPendingIndex_AddGetRemove(t *testing.T) {
	idx := newPendingIndex()
	task := &Task{ClientTaskID: "client-1", EndpointID: "A"}

	idx.add("A", "backend-1", task)

	got, ok := idx.get("backend-1")
	require.True(t, ok)
	require.Same(t, task, got)
	require.Equal(t, 1, idx.countForEndpoint("A"))

	removed, endpointID, wasLast, ok := idx.remove("backend-1")
	require.True(t, ok)
	require.Same(t, task, removed)
	require.Equal(t, "A", endpointID)
	require.True(t, wasLast)
	require.Equal(t, 0, idx.countForEndpoint("A"))

	_, ok = idx.get("backend-1")
	require.False(t, ok)
}

func TestPendingIndex_WasLastOnEndpointOnlyWhenNoSiblingsRemain(t *testing.T) {
	idx := newPendingIndex()
	task1 := &Task{ClientTaskID: "client-1", EndpointID: "A"}
	task2 := &Task{ClientTaskID: "client-2", EndpointID: "A"}

	idx.add("A", "backend-1", task1)
	idx.add("A", "backend-2", task2)
	require.Equal(t, 2, idx.countForEndpoint("A"))

	_, _, wasLast, ok := idx.remove("backend-1")
	require.True(t, ok)
	require.False(t, wasLast, "a sibling is still pending on A")
	require.Equal(t, 1, idx.countForEndpoint("A"))

	_, _, wasLast, ok = idx.remove("backend-2")
	require.True(t, ok)
	require.True(t, wasLast, "no sibling remains on A")
	require.Equal(t, 0, idx.countForEndpoint("A"))
}

func TestPendingIndex_RemoveUnknownIDReportsNotOK(t *testing.T) {
	idx := newPendingIndex()

	_, _, _, ok := idx.remove("never-submitted")
	require.False(t, ok)
}

func TestPendingIndex_EndpointsTrackedIndependently(t *testing.T) {
	idx := newPendingIndex()
	idx.add("A", "backend-a1", &Task{EndpointID: "A"})
	idx.add("B", "backend-b1", &Task{EndpointID: "B"})

	require.Equal(t, 1, idx.countForEndpoint("A"))
	require.Equal(t, 1, idx.countForEndpoint("B"))
	require.Equal(t, 0, idx.countForEndpoint("C"))

	_, _, wasLast, ok := idx.remove("backend-a1")
	require.True(t, ok)
	require.True(t, wasLast)
	require.Equal(t, 1, idx.countForEndpoint("B"), "removing A's task must not disturb B's count")
}
