package strategy

import (
	"sync"

	"github.com/deltasched/scheduler/pkg/predictor"
)

// SmallestETA shares FastestEndpoint's per-function group-level exploration
// phase (round-robining one group per call via a persistent counter until
// every group has a runtime sample, with a per-function, per-group endpoint
// round-robin while still exploring), then exploits by choosing the single endpoint (across all
// explored groups) with the smallest predicted ETA.
type SmallestETA struct {
	mu           sync.Mutex
	table        *endpointTable
	nextGroup    map[string]int            // function -> next group index to explore
	nextEndpoint map[string]map[string]int // function -> group -> next endpoint index (explore phase only)
	predictors   Predictors
	latencyConst float64
}

// NewSmallestETA creates a SmallestETA strategy.
func NewSmallestETA(endpoints []EndpointMeta, predictors Predictors, latencyConst float64) *SmallestETA {
	if latencyConst <= 0 {
		latencyConst = DefaultLatencyConst
	}

	return &SmallestETA{
		table:        newEndpointTable(endpoints),
		nextGroup:    make(map[string]int),
		nextEndpoint: make(map[string]map[string]int),
		predictors:   predictors,
		latencyConst: latencyConst,
	}
}

// Name returns the strategy's variant identifier.
func (*SmallestETA) Name() string { return "smallest-eta" }

// ChooseEndpoint implements Strategy.
func (s *SmallestETA) ChooseEndpoint(function string, payload []byte, files []predictor.FileGroup, exclude map[string]struct{}) (Choice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups := s.table.groupsWithEndpoints(exclude)
	if len(groups) == 0 {
		return Choice{}, ErrNoEndpointsAvailable
	}

	allSampled := true
	for _, g := range groups {
		if s.predictors.Runtime(function, g, payload) <= 0 {
			allSampled = false

			break
		}
	}

	if !allSampled {
		g := groups[s.nextGroup[function]%len(groups)]
		s.nextGroup[function]++

		ep := s.roundRobinEndpoint(function, g, exclude)
		eta := computeETA(s.predictors, ep, function, payload, files, s.latencyConst)

		return Choice{Endpoint: ep, ETA: eta}, nil
	}

	var (
		best    EndpointMeta
		bestETA float64
		found   bool
	)

	for _, g := range groups {
		for _, ep := range s.table.endpointsIn(g, exclude) {
			eta := computeETA(s.predictors, ep, function, payload, files, s.latencyConst)
			if !found || eta < bestETA {
				best, bestETA, found = ep, eta, true
			}
		}
	}

	return Choice{Endpoint: best, ETA: bestETA}, nil
}

// roundRobinEndpoint picks the next endpoint in group for function, cycling
// through a persistent per-function, per-group index. Used only during the
// exploration phase; the exploit phase selects the globally best endpoint
// directly.
func (s *SmallestETA) roundRobinEndpoint(function, group string, exclude map[string]struct{}) EndpointMeta {
	candidates := s.table.endpointsIn(group, exclude)

	if s.nextEndpoint[function] == nil {
		s.nextEndpoint[function] = make(map[string]int)
	}

	idx := s.nextEndpoint[function][group] % len(candidates)
	s.nextEndpoint[function][group] = (idx + 1) % len(candidates)

	return candidates[idx]
}

// PredictETA implements Strategy.
func (s *SmallestETA) PredictETA(ep EndpointMeta, function string, payload []byte, files []predictor.FileGroup) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return computeETA(s.predictors, ep, function, payload, files, s.latencyConst)
}

// AddEndpoint implements Strategy.
func (s *SmallestETA) AddEndpoint(ep EndpointMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.table.add(ep)
}

// RemoveEndpoint implements Strategy.
func (s *SmallestETA) RemoveEndpoint(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.table.byID[id]
	if !ok {
		return
	}

	s.table.remove(id)

	if _, stillExists := s.table.byGroup[ep.Group]; !stillExists {
		for _, groups := range s.nextEndpoint {
			delete(groups, ep.Group)
		}
	}
}
