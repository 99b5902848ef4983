package strategy

import (
	"sync"

	"github.com/deltasched/scheduler/pkg/predictor"
)

// FastestEndpoint explores until every group has a runtime sample for the
// function (a persistent per-function counter round-robins through the
// group list, one group per call, so a burst of calls with no intervening
// predictor updates still visits every group), then exploits by routing to
// the group with the smallest predicted runtime. Within the chosen group it round-robins across
// endpoints, also via a persistent per-function, per-group counter.
type FastestEndpoint struct {
	mu           sync.Mutex
	table        *endpointTable
	nextGroup    map[string]int            // function -> next group index to explore
	nextEndpoint map[string]map[string]int // function -> group -> next endpoint index
	predictors   Predictors
	latencyConst float64
}

// NewFastestEndpoint creates a FastestEndpoint strategy.
func NewFastestEndpoint(endpoints []EndpointMeta, predictors Predictors, latencyConst float64) *FastestEndpoint {
	if latencyConst <= 0 {
		latencyConst = DefaultLatencyConst
	}

	return &FastestEndpoint{
		table:        newEndpointTable(endpoints),
		nextGroup:    make(map[string]int),
		nextEndpoint: make(map[string]map[string]int),
		predictors:   predictors,
		latencyConst: latencyConst,
	}
}

// Name returns the strategy's variant identifier.
func (*FastestEndpoint) Name() string { return "fastest-endpoint" }

// ChooseEndpoint implements Strategy.
func (f *FastestEndpoint) ChooseEndpoint(function string, payload []byte, files []predictor.FileGroup, exclude map[string]struct{}) (Choice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	groups := f.table.groupsWithEndpoints(exclude)
	if len(groups) == 0 {
		return Choice{}, ErrNoEndpointsAvailable
	}

	predictions := make(map[string]float64, len(groups))
	allSampled := true

	for _, g := range groups {
		predictions[g] = f.predictors.Runtime(function, g, payload)
		if predictions[g] <= 0 {
			allSampled = false
		}
	}

	var chosenGroup string
	if !allSampled {
		chosenGroup = groups[f.nextGroup[function]%len(groups)]
		f.nextGroup[function]++
	} else {
		chosenGroup = argminGroup(groups, predictions)
	}

	ep := f.roundRobinEndpoint(function, chosenGroup, exclude)
	eta := computeETA(f.predictors, ep, function, payload, files, f.latencyConst)

	return Choice{Endpoint: ep, ETA: eta}, nil
}

// roundRobinEndpoint picks the next endpoint in group for function, cycling
// through a persistent per-function, per-group index.
func (f *FastestEndpoint) roundRobinEndpoint(function, group string, exclude map[string]struct{}) EndpointMeta {
	candidates := f.table.endpointsIn(group, exclude)

	if f.nextEndpoint[function] == nil {
		f.nextEndpoint[function] = make(map[string]int)
	}

	idx := f.nextEndpoint[function][group] % len(candidates)
	f.nextEndpoint[function][group] = (idx + 1) % len(candidates)

	return candidates[idx]
}

// PredictETA implements Strategy.
func (f *FastestEndpoint) PredictETA(ep EndpointMeta, function string, payload []byte, files []predictor.FileGroup) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return computeETA(f.predictors, ep, function, payload, files, f.latencyConst)
}

// AddEndpoint implements Strategy.
func (f *FastestEndpoint) AddEndpoint(ep EndpointMeta) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.table.add(ep)
}

// RemoveEndpoint implements Strategy.
func (f *FastestEndpoint) RemoveEndpoint(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ep, ok := f.table.byID[id]
	if !ok {
		return
	}

	f.table.remove(id)

	if _, stillExists := f.table.byGroup[ep.Group]; !stillExists {
		for _, groups := range f.nextEndpoint {
			delete(groups, ep.Group)
		}
	}
}

// argminGroup returns the group with the smallest predicted value, breaking
// ties by earliest stable order.
func argminGroup(groups []string, predictions map[string]float64) string {
	best := groups[0]

	for _, g := range groups[1:] {
		if predictions[g] < predictions[best] {
			best = g
		}
	}

	return best
}
