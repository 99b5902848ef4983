// Package backend talks to the remote function-execution service: submit
// batches of (function, endpoint, payload) tuples, poll their status, and
// query endpoint health. The core never interprets payload bytes; it only
// ever takes len(payload) (see internal/codec).
package backend

import (
	"context"
	"encoding/json"
	"time"
)

// TaskStatus is the backend's reported state for one submitted task.
type TaskStatus string

// Recognized task statuses.
const (
	TaskPending   TaskStatus = "PENDING"
	TaskResult    TaskStatus = "result"
	TaskException TaskStatus = "exception"
)

// SubmitTask is one (function, endpoint, payload) tuple sent to /submit.
type SubmitTask struct {
	FunctionID string
	EndpointID string
	Payload    []byte
}

// SubmitStatusSuccess is the SubmitResponse.Status value meaning the batch
// was accepted.
const SubmitStatusSuccess = "Success"

// SubmitResponse is the backend's reply to a submit batch. TaskUUIDs zips
// 1-to-1 with the SubmitTask slice that was sent.
type SubmitResponse struct {
	Status    string
	TaskUUIDs []string
}

// StatusRecord is one entry of a /batch_status response.
type StatusRecord struct {
	Status TaskStatus
	// Result holds the raw result payload when Status == TaskResult; the
	// scheduler extracts a "runtime" field from it for predictor updates.
	Result json.RawMessage
	// Exception holds the backend's verbatim exception text when
	// Status == TaskException.
	Exception string
}

// EndpointStatusRecord is one entry of an endpoint status query; the most
// recent record is always index 0.
type EndpointStatusRecord struct {
	Timestamp      time.Time
	ActiveManagers int
}

// Client is the narrow interface to the backend function-execution
// service.
type Client interface {
	// Submit posts a batch; the returned TaskUUIDs slice matches tasks'
	// order 1-to-1 on success.
	Submit(ctx context.Context, tasks []SubmitTask) (SubmitResponse, error)

	// BatchStatus polls the latest status of each given backend task id.
	// Unknown ids are simply absent from the returned map.
	BatchStatus(ctx context.Context, taskIDs []string) (map[string]StatusRecord, error)

	// EndpointStatus returns an endpoint's recent status history, most
	// recent first.
	EndpointStatus(ctx context.Context, endpointID string) ([]EndpointStatusRecord, error)

	// RegisterFunction is an opaque passthrough to the backend.
	RegisterFunction(ctx context.Context, body []byte) ([]byte, error)
}
