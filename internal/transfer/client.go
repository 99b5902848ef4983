// Package transfer submits and tracks cross-site bulk file transfers
// through an external transfer service (Globus-shaped), and feeds observed
// durations into the transfer-time predictor.
package transfer

import "context"

// SyncLevel mirrors the external transfer service's sync_level parameter.
type SyncLevel string

// SyncExists skips destination files that already exist, the only sync
// level the scheduler core ever requests.
const SyncExists SyncLevel = "exists"

// Status is the lifecycle state of a single external transfer task.
type Status string

// Recognized transfer task statuses.
const (
	StatusActive    Status = "ACTIVE"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Item is one file to stage, with its size so the transfer predictor can
// learn from the aggregate bytes moved.
type Item struct {
	SourcePath string
	DestPath   string
	Bytes      int64
}

// SubmitResult is the external service's acknowledgement of a submitted
// transfer.
type SubmitResult struct {
	Code   string
	TaskID string
}

// StatusReport is the external service's answer to a GetTask poll.
type StatusReport struct {
	Status Status
}

// Client is the narrow interface to the external bulk-transfer service.
// The scheduler core depends only on this; a real implementation talks to
// Globus (or any compatible service) over HTTP.
type Client interface {
	SubmitTransfer(ctx context.Context, srcGroup, dstGroup string, items []Item, sync SyncLevel, label string) (SubmitResult, error)
	GetTask(ctx context.Context, taskID string) (StatusReport, error)
	CancelTask(ctx context.Context, taskID string) error
}
