package strategy

import (
	"sync"

	"github.com/deltasched/scheduler/pkg/predictor"
)

// RoundRobin cycles through the configured endpoint list, ignoring payload
// and predictor state entirely. It still predicts an ETA when queried,
// since the dispatcher calls PredictETA uniformly regardless of which
// strategy made the original choice.
type RoundRobin struct {
	mu           sync.Mutex
	table        *endpointTable
	counter      int
	predictors   Predictors
	latencyConst float64
}

// NewRoundRobin creates a RoundRobin strategy over the given endpoints.
func NewRoundRobin(endpoints []EndpointMeta, predictors Predictors, latencyConst float64) *RoundRobin {
	if latencyConst <= 0 {
		latencyConst = DefaultLatencyConst
	}

	return &RoundRobin{
		table:        newEndpointTable(endpoints),
		predictors:   predictors,
		latencyConst: latencyConst,
	}
}

// Name returns the strategy's variant identifier.
func (*RoundRobin) Name() string { return "round-robin" }

// ChooseEndpoint returns the next non-excluded endpoint modulo the current
// candidate list, advancing the counter on every call.
func (r *RoundRobin) ChooseEndpoint(function string, payload []byte, files []predictor.FileGroup, exclude map[string]struct{}) (Choice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := r.table.allExcept(exclude)
	if len(candidates) == 0 {
		return Choice{}, ErrNoEndpointsAvailable
	}

	ep := candidates[r.counter%len(candidates)]
	r.counter++

	eta := computeETA(r.predictors, ep, function, payload, files, r.latencyConst)

	return Choice{Endpoint: ep, ETA: eta}, nil
}

// PredictETA implements Strategy.
func (r *RoundRobin) PredictETA(ep EndpointMeta, function string, payload []byte, files []predictor.FileGroup) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return computeETA(r.predictors, ep, function, payload, files, r.latencyConst)
}

// AddEndpoint implements Strategy.
func (r *RoundRobin) AddEndpoint(ep EndpointMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.table.add(ep)
}

// RemoveEndpoint implements Strategy.
func (r *RoundRobin) RemoveEndpoint(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.table.remove(id)
}
