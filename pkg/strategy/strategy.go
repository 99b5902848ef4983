// Package strategy implements the endpoint-selection policies the
// scheduler chooses from: round-robin, fastest-group, and smallest-ETA.
// Strategies never own the predictors or the pending-task tables
// themselves; those live in the scheduler and are injected as a
// Predictors record at construction, breaking what would otherwise be a
// strategy-scheduler import cycle.
package strategy

import (
	"errors"
	"math"

	"github.com/deltasched/scheduler/pkg/predictor"
)

// DefaultLatencyConst is the constant per-task backend overhead folded into
// every ETA prediction.
const DefaultLatencyConst = 0.3

// ErrNoEndpointsAvailable is returned when every candidate endpoint for a
// choice has been excluded (blacklisted or already tried).
var ErrNoEndpointsAvailable = errors.New("strategy: no endpoints available")

// EndpointMeta is the strategy's view of a configured endpoint: immutable
// identity plus the tags predictors are keyed on.
type EndpointMeta struct {
	ID            string
	Name          string
	Group         string
	TransferGroup string
}

// RuntimeFn predicts the runtime in seconds of function on group, given the
// payload that will be sent. <= 0 means "no data yet".
type RuntimeFn func(function, group string, payload []byte) float64

// TransferFn predicts the time in seconds to stage files to dstGroup.
type TransferFn func(files []predictor.FileGroup, dstGroup string) float64

// QueueFn returns the predicted wall-clock time (absolute, same clock as
// Now) at which endpointID becomes free to run a new task.
type QueueFn func(endpointID string) float64

// LaunchFn returns the cold-start overhead in seconds for endpointID; 0 for
// endpoints that are already warm.
type LaunchFn func(endpointID string) float64

// NowFn returns the current wall-clock time on the same clock as QueueFn.
type NowFn func() float64

// Predictors is the explicit record of scheduler-owned callbacks a strategy
// needs, injected at construction instead of a back-reference to the
// scheduler. This is the one construction-time seam that lets strategies be
// tested with fakes instead of a live scheduler.
type Predictors struct {
	Runtime  RuntimeFn
	Transfer TransferFn
	Queue    QueueFn
	Launch   LaunchFn
	Now      NowFn
}

// Choice is the result of a ChooseEndpoint call: the selected endpoint and
// its ETA from computeETA. The scheduler does not read ETA from a Choice; it
// records a dispatched task's ETA from PredictETA.
type Choice struct {
	Endpoint EndpointMeta
	ETA      float64
}

// Strategy selects an endpoint for a function call and predicts its ETA.
type Strategy interface {
	// ChooseEndpoint picks an endpoint for function, excluding any id present
	// in exclude (blacklist plus already-tried ids for this call).
	ChooseEndpoint(function string, payload []byte, files []predictor.FileGroup, exclude map[string]struct{}) (Choice, error)

	// PredictETA computes the ETA formula for a specific, already-chosen
	// endpoint; called by the dispatcher once the actual submission target
	// is known.
	PredictETA(ep EndpointMeta, function string, payload []byte, files []predictor.FileGroup) float64

	// AddEndpoint registers a new endpoint at runtime.
	AddEndpoint(ep EndpointMeta)

	// RemoveEndpoint drops an endpoint at runtime. No-op if unknown.
	RemoveEndpoint(id string)

	// Name identifies the strategy variant.
	Name() string
}

// computeETA implements the ETA formula shared by FastestEndpoint and
// SmallestETA (and used by PredictETA for every strategy, including
// round-robin, since the dispatcher calls it uniformly regardless of which
// strategy made the original choice):
//
//	ETA = launch + max(queue_delay, now + transfer) + runtime + latencyConst
//
// Queue wait and data staging proceed in parallel; the task becomes
// runnable when the later of the two finishes.
func computeETA(p Predictors, ep EndpointMeta, function string, payload []byte, files []predictor.FileGroup, latencyConst float64) float64 {
	queueDelay := p.Queue(ep.ID)
	now := p.Now()
	transferTime := p.Transfer(files, ep.TransferGroup)
	runtime := p.Runtime(function, ep.Group, payload)
	launch := p.Launch(ep.ID)

	return launch + math.Max(queueDelay, now+transferTime) + runtime + latencyConst
}
