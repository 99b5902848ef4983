package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deltasched/scheduler/internal/backend"
	"github.com/deltasched/scheduler/internal/codec"
	"github.com/deltasched/scheduler/internal/observability"
	"github.com/deltasched/scheduler/internal/transfer"
	"github.com/deltasched/scheduler/pkg/predictor"
	"github.com/deltasched/scheduler/pkg/mathutil"
	"github.com/deltasched/scheduler/pkg/strategy"
)

// ErrUnknownEndpoint is returned by Endpoint when the endpoint id isn't
// configured.
var ErrUnknownEndpoint = errors.New("scheduler: unknown endpoint")

// ErrUnknownTask is returned by GetStatus/TranslateTaskID for a client task
// id the scheduler never issued.
var ErrUnknownTask = errors.New("scheduler: unknown client task id")

// Options configures a CentralScheduler at construction.
type Options struct {
	Strategy          strategy.Strategy
	RuntimePredictor  predictor.RuntimePredictor
	TransferPredictor *predictor.TransferPredictor
	TransferManager   *transfer.Manager
	Backend           backend.Client
	Codec             codec.PayloadCodec
	Endpoints         []EndpointConfig
	MaxBackups        int
	DispatchTick      time.Duration
	Logger            *slog.Logger
	Metrics           *observability.SchedulerMetrics

	// nowFn overrides the wall clock; nil uses real time. Exposed only to
	// tests via WithNowFn, not part of the stable constructor surface.
	nowFn func() float64
}

// WithNowFn overrides an Options' clock function; for tests that need
// deterministic ETA/queue-delay arithmetic.
func (o Options) WithNowFn(fn func() float64) Options {
	o.nowFn = fn

	return o
}

// CentralScheduler is the scheduling core: it owns endpoint health/warmth
// state, the pending-task indices, queue-delay/ETA bookkeeping, and wires
// predictor updates from observed backend completions.
type CentralScheduler struct {
	mu        sync.RWMutex
	endpoints map[string]EndpointConfig
	states    map[string]*endpointState

	strategy          strategy.Strategy
	runtimePredictor  predictor.RuntimePredictor
	transferPredictor *predictor.TransferPredictor
	transferMgr       *transfer.Manager
	backendClient     backend.Client
	codec             codec.PayloadCodec

	pending     *pendingIndex
	clientTasks map[string]*Task

	blacklistMu sync.RWMutex
	blacklist   map[string]map[string]struct{}

	queueErrorMu sync.Mutex
	queueError   map[string]float64
	lastTaskETA  map[string]float64

	maxBackups   int
	dispatchTick time.Duration

	dispatchQueue chan dispatchItem
	execLog       *executionLog

	logger  *slog.Logger
	metrics *observability.SchedulerMetrics

	nowFn func() float64
}

// dispatchItem is one scheduled-but-not-yet-backend-submitted task, queued
// by BatchSubmit and drained by the dispatch loop.
type dispatchItem struct {
	clientTaskID   string
	functionID     string
	payload        []byte
	endpointID     string
	transferHandle transfer.Handle
	fileGroups     []predictor.FileGroup
}

// dispatchQueueCapacity bounds the channel BatchSubmit enqueues onto; the
// dispatch loop drains it every tick, so backpressure only matters if the
// loop falls far behind.
const dispatchQueueCapacity = 4096

// NewCentralScheduler constructs a scheduler from the given options.
func NewCentralScheduler(opts Options) *CentralScheduler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := opts.nowFn
	if now == nil {
		now = wallClockSeconds
	}

	endpoints := make(map[string]EndpointConfig, len(opts.Endpoints))
	states := make(map[string]*endpointState, len(opts.Endpoints))

	for _, ep := range opts.Endpoints {
		endpoints[ep.ID] = ep
		states[ep.ID] = &endpointState{alive: true, temperature: Warm, lastResultTime: now()}
	}

	dispatchTick := opts.DispatchTick
	if dispatchTick <= 0 {
		dispatchTick = 150 * time.Millisecond
	}

	s := &CentralScheduler{
		endpoints:         endpoints,
		states:            states,
		strategy:          opts.Strategy,
		runtimePredictor:  opts.RuntimePredictor,
		transferPredictor: opts.TransferPredictor,
		transferMgr:       opts.TransferManager,
		backendClient:     opts.Backend,
		codec:             opts.Codec,
		pending:           newPendingIndex(),
		clientTasks:       make(map[string]*Task),
		blacklist:         make(map[string]map[string]struct{}),
		queueError:        make(map[string]float64),
		lastTaskETA:       make(map[string]float64),
		maxBackups:        opts.MaxBackups,
		dispatchTick:      dispatchTick,
		dispatchQueue:     make(chan dispatchItem, dispatchQueueCapacity),
		execLog:           newExecutionLog(),
		logger:            logger,
		metrics:           opts.Metrics,
		nowFn:             now,
	}

	return s
}

func wallClockSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func (s *CentralScheduler) now() float64 { return s.nowFn() }

// Predictors builds the strategy.Predictors callback record bound to this
// scheduler, for strategies constructed outside NewCentralScheduler (e.g.
// by the daemon's wiring code, which builds the scheduler first, then the
// strategy from these callbacks, and hands it in via SetStrategy).
func (s *CentralScheduler) Predictors() strategy.Predictors {
	return strategy.Predictors{
		Runtime:  s.runtimePredictor.Predict,
		Transfer: s.transferPredictor.Predict,
		Queue:    s.QueueDelay,
		Launch:   s.launchOverhead,
		Now:      s.now,
	}
}

// SetStrategy assigns the endpoint-choice strategy after construction.
// Strategies need a Predictors callback bound to this scheduler (see
// Predictors), so wiring code that can't supply Options.Strategy up front
// must build the scheduler first, call Predictors(), build the strategy,
// and then call SetStrategy before starting the dispatch loop. Not safe to
// call once BatchSubmit or the dispatch loop may already be running.
func (s *CentralScheduler) SetStrategy(strat strategy.Strategy) {
	s.strategy = strat
}

// QueueDelay returns the wall-clock time at which ep becomes free to run a
// new task: now() if nothing is pending on it, otherwise the later of now()
// and its last predicted ETA plus the carried queue-error correction. Never
// reports a time before now().
func (s *CentralScheduler) QueueDelay(ep string) float64 {
	now := s.now()

	if s.pending.countForEndpoint(ep) == 0 {
		return now
	}

	s.queueErrorMu.Lock()
	lastETA := s.lastTaskETA[ep]
	qerr := s.queueError[ep]
	s.queueErrorMu.Unlock()

	return math.Max(now, lastETA+qerr)
}

func (s *CentralScheduler) launchOverhead(epID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[epID]
	if !ok || st.temperature != Cold {
		return 0
	}

	return s.endpoints[epID].LaunchTime
}

func (s *CentralScheduler) blacklistFor(functionID string) map[string]struct{} {
	s.blacklistMu.RLock()
	defer s.blacklistMu.RUnlock()

	excluded := s.blacklist[functionID]
	if excluded == nil {
		return nil
	}

	out := make(map[string]struct{}, len(excluded))
	for id := range excluded {
		out[id] = struct{}{}
	}

	return out
}

// Blacklist adds endpointID to functionID's exclusion set, consulted by
// every subsequent ChooseEndpoint call for that function.
func (s *CentralScheduler) Blacklist(functionID, endpointID string) {
	s.blacklistMu.Lock()
	defer s.blacklistMu.Unlock()

	if s.blacklist[functionID] == nil {
		s.blacklist[functionID] = make(map[string]struct{})
	}

	s.blacklist[functionID][endpointID] = struct{}{}
}

// fileGroupsFromKwargs aggregates declared input files by source transfer
// group, the shape strategies compare across every candidate destination.
func fileGroupsFromKwargs(kw codec.Kwargs) []predictor.FileGroup {
	totals := make(map[string]int64)
	order := make([]string, 0, len(kw.InputFiles))

	for _, f := range kw.InputFiles {
		if _, seen := totals[f.SourceGroup]; !seen {
			order = append(order, f.SourceGroup)
		}

		totals[f.SourceGroup] += f.Bytes
	}

	out := make([]predictor.FileGroup, len(order))
	for i, group := range order {
		out[i] = predictor.FileGroup{Group: group, Bytes: totals[group]}
	}

	return out
}

func filesBySourceGroup(kw codec.Kwargs) map[string][]transfer.Item {
	out := make(map[string][]transfer.Item)

	for _, f := range kw.InputFiles {
		out[f.SourceGroup] = append(out[f.SourceGroup], transfer.Item{
			SourcePath: f.SourcePath,
			DestPath:   f.DestPath,
			Bytes:      f.Bytes,
		})
	}

	return out
}

// BatchSubmit assigns a fresh client task id to each request, chooses an
// endpoint via the configured strategy, begins any required file staging,
// and enqueues the task onto the dispatch loop. Returned slices zip 1-to-1
// with reqs, per the ordering guarantee in spec.md's concurrency model.
func (s *CentralScheduler) BatchSubmit(ctx context.Context, reqs []SubmitRequest) ([]string, []string, error) {
	clientIDs := make([]string, len(reqs))
	endpointIDs := make([]string, len(reqs))

	for i, req := range reqs {
		clientID, endpointID, err := s.submitOne(ctx, req)
		if err != nil {
			return nil, nil, fmt.Errorf("scheduler: batch_submit[%d]: %w", i, err)
		}

		clientIDs[i] = clientID
		endpointIDs[i] = endpointID
	}

	return clientIDs, endpointIDs, nil
}

func (s *CentralScheduler) submitOne(ctx context.Context, req SubmitRequest) (string, string, error) {
	kwargs, err := s.codec.DecodeKwargs(ctx, req.Payload)
	if err != nil {
		return "", "", fmt.Errorf("decode payload: %w", err)
	}

	fileGroups := fileGroupsFromKwargs(kwargs)
	exclude := s.blacklistFor(req.FunctionID)

	clientTaskID := uuid.New().String()
	backups := mathutil.Max(s.maxBackups, 1)

	chosen := make([]strategy.Choice, 0, backups)
	tried := cloneExclude(exclude)

	for len(chosen) < backups {
		choice, err := s.strategy.ChooseEndpoint(req.FunctionID, req.Payload, fileGroups, tried)
		if err != nil {
			if len(chosen) > 0 {
				break // fewer backups than requested is fine; zero is not
			}

			return "", "", err
		}

		chosen = append(chosen, choice)
		tried[choice.Endpoint.ID] = struct{}{}
	}

	task := &Task{
		ClientTaskID:   clientTaskID,
		FunctionID:     req.FunctionID,
		Payload:        req.Payload,
		EndpointID:     chosen[0].Endpoint.ID,
		BackendTaskIDs: make(map[string]struct{}),
		LatestStatus:   backend.TaskPending,
	}

	s.mu.Lock()
	s.clientTasks[clientTaskID] = task
	s.mu.Unlock()

	for _, choice := range chosen {
		s.markWarmingIfCold(choice.Endpoint.ID)

		handle, err := s.transferMgr.Transfer(ctx, filesBySourceGroup(kwargs), choice.Endpoint.TransferGroup, clientTaskID)
		if err != nil {
			return "", "", fmt.Errorf("stage files for endpoint %s: %w", choice.Endpoint.ID, err)
		}

		s.execLog.recordDispatch(req.FunctionID, choice.Endpoint.ID, clientTaskID)

		if s.metrics != nil {
			s.metrics.TaskEnqueued(ctx, choice.Endpoint.ID)
		}

		item := dispatchItem{
			clientTaskID:   clientTaskID,
			functionID:     req.FunctionID,
			payload:        req.Payload,
			endpointID:     choice.Endpoint.ID,
			transferHandle: handle,
			fileGroups:     fileGroups,
		}

		select {
		case s.dispatchQueue <- item:
		case <-ctx.Done():
			return "", "", ctx.Err()
		}
	}

	return clientTaskID, chosen[0].Endpoint.ID, nil
}

func cloneExclude(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}

	return out
}

func (s *CentralScheduler) markWarmingIfCold(epID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[epID]
	if ok && st.temperature == Cold {
		st.temperature = Warming
	}
}

// recordCompleted removes backendTaskID from the pending indices and
// updates the endpoint's queue-error correction: reset to 0 if this was
// the endpoint's last pending task, otherwise carried forward as the
// signed ETA error.
func (s *CentralScheduler) recordCompleted(backendTaskID string) {
	task, endpointID, wasLast, ok := s.pending.remove(backendTaskID)
	if !ok {
		return
	}

	s.queueErrorMu.Lock()
	if wasLast {
		s.queueError[endpointID] = 0
	} else {
		s.queueError[endpointID] = s.now() - task.ETA
	}
	s.queueErrorMu.Unlock()

	if s.metrics != nil {
		s.metrics.TaskCompleted(context.Background(), endpointID)
		s.metrics.RecordQueueError(context.Background(), endpointID, s.queueError[endpointID])
	}
}

// runtimeResult is the shape the backend's result payload exposes for the
// single field predictors need.
type runtimeResult struct {
	Runtime float64 `json:"runtime"`
}

// LogStatus ingests one backend status record, folding completions into the
// runtime predictor and the endpoint's last-result timestamp, and writing
// the client-visible cache monotonically (never overwriting a terminal
// status with a non-terminal one). Unknown backend task ids are ignored
// with a warning; they may be stale polls for a task some other path
// already completed.
func (s *CentralScheduler) LogStatus(ctx context.Context, backendTaskID string, rec backend.StatusRecord) {
	task, ok := s.pending.get(backendTaskID)
	if !ok {
		s.logger.WarnContext(ctx, "status for unknown backend task id", "backend_task_id", backendTaskID)

		return
	}

	switch rec.Status {
	case backend.TaskResult:
		var parsed runtimeResult
		if err := json.Unmarshal(rec.Result, &parsed); err != nil {
			s.logger.WarnContext(ctx, "unparsable result payload", "backend_task_id", backendTaskID, "error", err)
		} else {
			s.mu.RLock()
			ep, epOK := s.endpoints[task.EndpointID]
			s.mu.RUnlock()

			if epOK {
				s.runtimePredictor.Update(task.FunctionID, ep.Group, len(task.Payload), parsed.Runtime)

				if s.metrics != nil {
					s.metrics.RecordPredictorUpdate(ctx, "runtime")
				}
			}
		}

		s.setClientStatus(task, backend.TaskResult, rec.Result, "")
		s.touchLastResultTime(task.EndpointID)
		s.recordCompleted(backendTaskID)
	case backend.TaskException:
		s.logger.WarnContext(ctx, "remote function exception", "backend_task_id", backendTaskID, "exception", rec.Exception)
		s.setClientStatus(task, backend.TaskException, nil, rec.Exception)
		s.touchLastResultTime(task.EndpointID)
		s.recordCompleted(backendTaskID)
	default:
		s.setClientStatus(task, backend.TaskPending, nil, "")
	}
}

func (s *CentralScheduler) touchLastResultTime(epID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.states[epID]; ok {
		st.lastResultTime = s.now()
	}
}

// setClientStatus writes task's cached client-visible status. Writes are
// monotonic: a terminal status (result or exception) is never overwritten.
func (s *CentralScheduler) setClientStatus(task *Task, status backend.TaskStatus, result json.RawMessage, exception string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.isTerminal() {
		return
	}

	task.LatestStatus = status
	task.Result = result
	task.Exception = exception
}

// GetStatus returns the client-visible status for clientTaskID: PENDING if
// it hasn't yet been submitted to (or observed from) the backend, otherwise
// the latest cached status.
func (s *CentralScheduler) GetStatus(clientTaskID string) (backend.TaskStatus, *Task, error) {
	s.mu.RLock()
	task, ok := s.clientTasks[clientTaskID]
	s.mu.RUnlock()

	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownTask, clientTaskID)
	}

	return task.LatestStatus, task, nil
}

// TranslateTaskID returns the backend task ids currently associated with a
// client task id, for the HTTP front end to poll the backend per id and
// feed results back through LogStatus.
func (s *CentralScheduler) TranslateTaskID(clientTaskID string) ([]string, error) {
	s.mu.RLock()
	task, ok := s.clientTasks[clientTaskID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, clientTaskID)
	}

	ids := make([]string, 0, len(task.BackendTaskIDs))
	for id := range task.BackendTaskIDs {
		ids = append(ids, id)
	}

	return ids, nil
}

// BatchStatus returns the cached client-visible status for each requested
// client task id. Unknown ids are simply absent from the result. When
// includePending is false, PENDING entries are dropped from the response,
// matching the front end's /batch_status filtering.
func (s *CentralScheduler) BatchStatus(clientTaskIDs []string, includePending bool) map[string]backend.TaskStatus {
	out := make(map[string]backend.TaskStatus, len(clientTaskIDs))

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range clientTaskIDs {
		task, ok := s.clientTasks[id]
		if !ok {
			continue
		}

		if task.LatestStatus == backend.TaskPending && !includePending {
			continue
		}

		out[id] = task.LatestStatus
	}

	return out
}

// Endpoint returns a configured endpoint's static attributes.
func (s *CentralScheduler) Endpoint(id string) (EndpointConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ep, ok := s.endpoints[id]
	if !ok {
		return EndpointConfig{}, fmt.Errorf("%w: %s", ErrUnknownEndpoint, id)
	}

	return ep, nil
}

// AddEndpoint registers a new endpoint at runtime, in both the scheduler's
// own tables and the strategy's.
func (s *CentralScheduler) AddEndpoint(ep EndpointConfig) {
	s.mu.Lock()
	s.endpoints[ep.ID] = ep
	s.states[ep.ID] = &endpointState{alive: true, temperature: Warm, lastResultTime: s.now()}
	s.mu.Unlock()

	s.strategy.AddEndpoint(strategy.EndpointMeta{
		ID: ep.ID, Name: ep.Name, Group: ep.Group, TransferGroup: ep.TransferGroup,
	})
}

// RemoveEndpoint drops an endpoint at runtime. No-op if unknown.
func (s *CentralScheduler) RemoveEndpoint(id string) {
	s.mu.Lock()
	delete(s.endpoints, id)
	delete(s.states, id)
	s.mu.Unlock()

	s.strategy.RemoveEndpoint(id)
}

// ExecutionLog drains and returns every decision-log line recorded since
// the previous call.
func (s *CentralScheduler) ExecutionLog() []string {
	return s.execLog.drain()
}

// DispatchQueueLen reports how many scheduled items are waiting to be
// drained by the dispatch loop; exposed for tests and /healthz-adjacent
// diagnostics.
func (s *CentralScheduler) DispatchQueueLen() int {
	return len(s.dispatchQueue)
}
