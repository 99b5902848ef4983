package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Handle identifies a logical, possibly multi-source transfer requested by
// a single call to Transfer. Composed of >= 0 external transfer ids.
type Handle string

// noTransferHandle is returned when every source was trivially skipped
// (src == dst for all of them): the transfer is immediately complete.
const noTransferHandle Handle = "none"

// ErrUnknownHandle is returned by IsComplete/Failed for a handle the
// manager never issued.
var ErrUnknownHandle = errors.New("transfer: unknown handle")

// OnComplete is invoked once per successfully completed external transfer,
// feeding (srcGroup, dstGroup, bytes, elapsedSeconds) into the transfer
// predictor's Update method.
type OnComplete func(srcGroup, dstGroup string, bytes int64, elapsedSeconds float64)

type activeTransfer struct {
	externalTaskID string
	srcGroup       string
	dstGroup       string
	bytes          int64
	submittedAt    time.Time
}

type handleRecord struct {
	active    map[string]*activeTransfer // externalTaskID -> transfer
	succeeded int
	failed    bool
}

func (r *handleRecord) isComplete() bool {
	return !r.failed && len(r.active) == 0
}

// DefaultMaxConcurrent is the conservative default for MAX_CONCURRENT_TRANSFERS
// (the original exposes both 3 and 15 across variants; 3 is documented here).
const DefaultMaxConcurrent = 3

// Manager submits bulk transfers via Client, one per distinct source group,
// and tracks them to completion through a polling loop.
type Manager struct {
	mu            sync.Mutex
	client        Client
	handles       map[Handle]*handleRecord
	onComplete    OnComplete
	logger        *slog.Logger
	maxConcurrent int
	warnedOver    bool // avoid re-logging every poll tick while still over the soft limit
}

// NewManager creates a Manager. onComplete is typically
// (*predictor.TransferPredictor).Update; logger defaults to slog.Default().
// maxConcurrent <= 0 falls back to DefaultMaxConcurrent; it is a soft limit
// only — Transfer never blocks or rejects on it, matching the external
// transfer service's own rate limiting. Manager instead warns once active
// transfers exceed it, until the count drops back under.
func NewManager(client Client, onComplete OnComplete, logger *slog.Logger, maxConcurrent int) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	return &Manager{
		client:        client,
		handles:       make(map[Handle]*handleRecord),
		onComplete:    onComplete,
		logger:        logger,
		maxConcurrent: maxConcurrent,
	}
}

// ActiveCount returns the total number of in-flight external transfers
// across every handle currently tracked.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.activeCountLocked()
}

func (m *Manager) activeCountLocked() int {
	total := 0
	for _, rec := range m.handles {
		total += len(rec.active)
	}

	return total
}

// checkConcurrencyLocked warns (once, until the count drops back under the
// limit) when the global active-transfer count exceeds maxConcurrent. Must
// be called with m.mu held.
func (m *Manager) checkConcurrencyLocked() {
	active := m.activeCountLocked()

	if active > m.maxConcurrent {
		if !m.warnedOver {
			m.logger.Warn("active transfers exceed configured soft limit",
				"active", active, "max_concurrent", m.maxConcurrent)
			m.warnedOver = true
		}
	} else {
		m.warnedOver = false
	}
}

// Transfer submits one bulk transfer per distinct source group in
// filesBySrc to dstGroup, skipping any group equal to dstGroup (the data is
// already local). Returns a handle aggregating the external transfer ids;
// if every source was skipped, the returned handle is immediately complete.
func (m *Manager) Transfer(ctx context.Context, filesBySrc map[string][]Item, dstGroup, label string) (Handle, error) {
	rec := &handleRecord{active: make(map[string]*activeTransfer)}

	for srcGroup, items := range filesBySrc {
		if srcGroup == dstGroup {
			continue
		}

		var totalBytes int64
		for _, item := range items {
			totalBytes += item.Bytes
		}

		result, err := m.client.SubmitTransfer(ctx, srcGroup, dstGroup, items, SyncExists, label)
		if err != nil {
			return "", fmt.Errorf("transfer: submit %s -> %s: %w", srcGroup, dstGroup, err)
		}

		rec.active[result.TaskID] = &activeTransfer{
			externalTaskID: result.TaskID,
			srcGroup:       srcGroup,
			dstGroup:       dstGroup,
			bytes:          totalBytes,
			submittedAt:    time.Now(),
		}

		m.logger.Debug("submitted transfer",
			"src_group", srcGroup, "dst_group", dstGroup,
			"bytes", humanize.Bytes(uint64(totalBytes)), "external_task_id", result.TaskID)
	}

	if len(rec.active) == 0 {
		return noTransferHandle, nil
	}

	handle := Handle(uuid.New().String())

	m.mu.Lock()
	m.handles[handle] = rec
	m.checkConcurrencyLocked()
	m.mu.Unlock()

	return handle, nil
}

// IsComplete reports whether every underlying transfer for handle has
// terminated successfully.
func (m *Manager) IsComplete(handle Handle) bool {
	if handle == noTransferHandle {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.handles[handle]
	if !ok {
		return true // unknown handle: nothing left to wait for
	}

	return rec.isComplete()
}

// Failed reports whether handle was marked failed by the tracker loop.
func (m *Manager) Failed(handle Handle) (bool, error) {
	if handle == noTransferHandle {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.handles[handle]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}

	return rec.failed, nil
}

// Track runs the completion-polling loop until ctx is cancelled: every
// pollInterval it polls each active external transfer, records durations of
// ones that succeeded, and cancels the remainder of a handle the moment any
// of its transfers fails.
func (m *Manager) Track(ctx context.Context, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollOnce(ctx)
		}
	}
}

func (m *Manager) pollOnce(ctx context.Context) {
	m.mu.Lock()
	snapshot := make(map[Handle][]*activeTransfer, len(m.handles))
	for h, rec := range m.handles {
		for _, t := range rec.active {
			snapshot[h] = append(snapshot[h], t)
		}
	}
	m.mu.Unlock()

	for handle, transfers := range snapshot {
		for _, t := range transfers {
			m.pollTransfer(ctx, handle, t)
		}
	}
}

func (m *Manager) pollTransfer(ctx context.Context, handle Handle, t *activeTransfer) {
	report, err := m.client.GetTask(ctx, t.externalTaskID)
	if err != nil {
		m.logger.Warn("transfer status poll failed", "external_task_id", t.externalTaskID, "error", err)
		return
	}

	switch report.Status {
	case StatusSucceeded:
		elapsed := time.Since(t.submittedAt).Seconds()

		m.mu.Lock()
		if rec, ok := m.handles[handle]; ok {
			delete(rec.active, t.externalTaskID)
			rec.succeeded++
		}
		m.checkConcurrencyLocked()
		m.mu.Unlock()

		if m.onComplete != nil {
			m.onComplete(t.srcGroup, t.dstGroup, t.bytes, elapsed)
		}

		m.logger.Debug("transfer completed",
			"src_group", t.srcGroup, "dst_group", t.dstGroup,
			"elapsed", humanize.FormatFloat("#,###.##", elapsed)+"s")
	case StatusFailed:
		m.failHandle(ctx, handle, t.externalTaskID)
	case StatusActive:
		// continue polling next tick
	}
}

// failHandle marks handle failed and cancels its remaining active
// transfers; dependent tasks will surface a terminal exception.
func (m *Manager) failHandle(ctx context.Context, handle Handle, failedTaskID string) {
	m.mu.Lock()
	rec, ok := m.handles[handle]
	if !ok {
		m.mu.Unlock()
		return
	}

	rec.failed = true
	remaining := make([]string, 0, len(rec.active))
	for taskID := range rec.active {
		if taskID != failedTaskID {
			remaining = append(remaining, taskID)
		}
	}
	delete(rec.active, failedTaskID)
	m.checkConcurrencyLocked()
	m.mu.Unlock()

	m.logger.Warn("transfer failed", "external_task_id", failedTaskID, "handle", handle)

	for _, taskID := range remaining {
		if err := m.client.CancelTask(ctx, taskID); err != nil {
			m.logger.Warn("failed to cancel sibling transfer", "external_task_id", taskID, "error", err)
		}

		m.mu.Lock()
		delete(rec.active, taskID)
		m.checkConcurrencyLocked()
		m.mu.Unlock()
	}
}
