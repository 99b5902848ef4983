// Package scheduler is the core of the scheduling proxy: task bookkeeping,
// the queue-delay estimator, the dispatch loop, status ingestion, predictor
// update wiring, and the endpoint health/warmth watchdog. Everything this
// package touches is reached through the narrow interfaces in
// internal/backend, internal/transfer, internal/codec, pkg/predictor, and
// pkg/strategy; it never opens an HTTP listener or reads YAML itself.
package scheduler

import (
	"encoding/json"

	"github.com/deltasched/scheduler/internal/backend"
	"github.com/deltasched/scheduler/internal/transfer"
)

// Temperature is an endpoint's allocation warmth, driven by its active
// worker count. Cold-start overhead applies only while COLD.
type Temperature string

// Recognized temperatures.
const (
	Warm    Temperature = "WARM"
	Warming Temperature = "WARMING"
	Cold    Temperature = "COLD"
)

// EndpointConfig is a configured endpoint's immutable identity and static
// attributes, loaded once at startup and never destroyed.
type EndpointConfig struct {
	ID            string
	Name          string
	Group         string
	TransferGroup string
	Globus        string
	LaunchTime    float64
}

// endpointState is the mutable health/warmth state driven by the watchdog
// loop, the WARMING transition BatchSubmit makes on cold pick, and status
// ingestion, which refreshes lastResultTime.
type endpointState struct {
	alive          bool
	temperature    Temperature
	lastResultTime float64
}

// Task mirrors the lifecycle record from submit through terminal status.
// A Task occupies exactly one of three phases at any instant:
// awaiting-transfer, pending-at-backend (has at least one backend task id),
// or terminal (LatestStatus is TaskResult or TaskException).
type Task struct {
	ClientTaskID   string
	FunctionID     string
	Payload        []byte
	EndpointID     string
	TransferHandle transfer.Handle
	TimeSent       float64
	ETA            float64
	BackendTaskIDs map[string]struct{}
	LatestStatus   backend.TaskStatus
	Result         json.RawMessage
	Exception      string
}

// isTerminal reports whether the task has reached a result or exception.
func (t *Task) isTerminal() bool {
	return t.LatestStatus == backend.TaskResult || t.LatestStatus == backend.TaskException
}

// SubmitRequest is one (function, payload) pair passed to BatchSubmit.
type SubmitRequest struct {
	FunctionID string
	Payload    []byte
}
