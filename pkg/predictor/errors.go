package predictor

import "errors"

// ErrUnknownPredictor is returned when a runtime predictor name matches no variant.
var ErrUnknownPredictor = errors.New("predictor: unknown runtime predictor")
