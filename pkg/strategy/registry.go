package strategy

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStrategy is returned when a strategy name matches no variant.
var ErrUnknownStrategy = errors.New("strategy: unknown strategy")

// New constructs the named strategy variant over the given endpoints.
// Recognized names: "round-robin"/"rr", "fastest-endpoint"/"fastest",
// "smallest-eta"/"eta".
func New(name string, endpoints []EndpointMeta, predictors Predictors, latencyConst float64) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "round-robin", "rr":
		return NewRoundRobin(endpoints, predictors, latencyConst), nil
	case "fastest-endpoint", "fastest":
		return NewFastestEndpoint(endpoints, predictors, latencyConst), nil
	case "smallest-eta", "eta":
		return NewSmallestETA(endpoints, predictors, latencyConst), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}
