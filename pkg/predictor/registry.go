package predictor

import (
	"fmt"
	"strings"
)

// NewRuntimePredictor constructs the named runtime predictor variant.
// Names ending in "average"/"avg" select RollingAverage; names ending in
// "length"/"size" select InputLength.
func NewRuntimePredictor(name string, lastN, trainEvery int) (RuntimePredictor, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))

	switch {
	case strings.HasSuffix(normalized, "average") || strings.HasSuffix(normalized, "avg"):
		return NewRollingAverage(lastN), nil
	case strings.HasSuffix(normalized, "length") || strings.HasSuffix(normalized, "size"):
		return NewInputLength(trainEvery), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPredictor, name)
	}
}
