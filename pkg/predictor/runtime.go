// Package predictor implements the online-learned estimators the scheduler
// uses to pick an endpoint: task runtime (keyed by function and endpoint
// group) and cross-site transfer time (keyed by transfer-group pair).
package predictor

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// RuntimePredictor estimates how long a function will take to run on an
// endpoint group, and learns from observed completions.
//
// predict must return 0 to mean "no data yet"; callers (strategies) treat a
// non-positive prediction as a signal to explore that group rather than
// exploit it.
type RuntimePredictor interface {
	// Predict returns the predicted runtime in seconds for function on group,
	// given the payload that will be sent. A result <= 0 means "no data yet".
	Predict(function, group string, payload []byte) float64

	// Update folds a newly observed runtime (seconds) for function/group
	// into the predictor's state.
	Update(function, group string, payloadLen int, observedRuntime float64)

	// Name identifies the predictor variant ("rolling-average", "input-length").
	Name() string
}

// RuntimePredictorKind selects which RuntimePredictor implementation to build.
type RuntimePredictorKind string

// Supported runtime predictor kinds.
const (
	KindRollingAverage RuntimePredictorKind = "rolling-average"
	KindInputLength    RuntimePredictorKind = "input-length"
)

// DefaultLastN is the default rolling-average window size.
const DefaultLastN = 3

// DefaultTrainEvery is the default number of updates between InputLength refits.
const DefaultTrainEvery = 1

// runtimeKey identifies a (function, group) pair in the nested predictor maps.
type runtimeKey struct {
	function string
	group    string
}

// RollingAverage predicts the arithmetic mean of the last N observed
// runtimes for a (function, group) pair. Returns 0 when no samples exist,
// the sentinel strategies interpret as "exploration still needed".
type RollingAverage struct {
	mu       sync.RWMutex
	lastN    int
	windows  map[runtimeKey][]float64
	numExecs map[runtimeKey]int
}

// NewRollingAverage creates a RollingAverage predictor keeping at most lastN
// samples per key. lastN <= 0 is replaced by DefaultLastN.
func NewRollingAverage(lastN int) *RollingAverage {
	if lastN <= 0 {
		lastN = DefaultLastN
	}

	return &RollingAverage{
		lastN:    lastN,
		windows:  make(map[runtimeKey][]float64),
		numExecs: make(map[runtimeKey]int),
	}
}

// Name returns the predictor's variant identifier.
func (*RollingAverage) Name() string { return string(KindRollingAverage) }

// Predict returns the mean of the current window, or 0 if empty.
func (ra *RollingAverage) Predict(function, group string, _ []byte) float64 {
	ra.mu.RLock()
	defer ra.mu.RUnlock()

	window := ra.windows[runtimeKey{function, group}]
	if len(window) == 0 {
		return 0.0
	}

	return mean(window)
}

// Update appends the observed runtime, evicting the oldest sample beyond lastN.
func (ra *RollingAverage) Update(function, group string, _ int, observedRuntime float64) {
	ra.mu.Lock()
	defer ra.mu.Unlock()

	key := runtimeKey{function, group}

	window := append(ra.windows[key], observedRuntime)
	if len(window) > ra.lastN {
		window = window[len(window)-ra.lastN:]
	}

	ra.windows[key] = window
	ra.numExecs[key]++
}

// NumExecutions returns how many updates a (function, group) key has seen.
func (ra *RollingAverage) NumExecutions(function, group string) int {
	ra.mu.RLock()
	defer ra.mu.RUnlock()

	return ra.numExecs[runtimeKey{function, group}]
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}

	return sum / float64(len(xs))
}

// runtimeFeatureDim is the width of the engineered feature vector used by
// InputLength: [1, x, x^2, log(1+x)].
//
// The source this predictor is distilled from disagrees across revisions
// about the third/fourth terms: one variant computes x**2 via the XOR
// operator by mistake, another trains on 2**x (exponential blowup for large
// payloads). Neither is defensible. We use the documented, principled
// substitute instead: [1, x, x^2, log(1+x)] -- a bias term, a linear term,
// a quadratic term, and a concave term that tames very large payloads.
const runtimeFeatureDim = 4

// InputLength predicts runtime as a linear regression over an engineered
// feature map of the payload length, refit every trainEvery updates via the
// Moore-Penrose pseudoinverse (equivalent to ordinary least squares).
type InputLength struct {
	mu              sync.RWMutex
	trainEvery      int
	lengths         map[runtimeKey][]float64
	runtimes        map[runtimeKey][]float64
	weights         map[runtimeKey]*mat.VecDense
	updatesSinceFit map[runtimeKey]int
}

// NewInputLength creates an InputLength predictor that refits weights every
// trainEvery updates per key. trainEvery <= 0 is replaced by DefaultTrainEvery.
func NewInputLength(trainEvery int) *InputLength {
	if trainEvery <= 0 {
		trainEvery = DefaultTrainEvery
	}

	return &InputLength{
		trainEvery:      trainEvery,
		lengths:         make(map[runtimeKey][]float64),
		runtimes:        make(map[runtimeKey][]float64),
		weights:         make(map[runtimeKey]*mat.VecDense),
		updatesSinceFit: make(map[runtimeKey]int),
	}
}

// Name returns the predictor's variant identifier.
func (*InputLength) Name() string { return string(KindInputLength) }

// Predict evaluates the current weight vector against the featurized
// payload length. Returns 0 (treated as "no data yet") for untrained keys or
// non-positive predictions.
func (il *InputLength) Predict(function, group string, payload []byte) float64 {
	il.mu.RLock()
	defer il.mu.RUnlock()

	weights, ok := il.weights[runtimeKey{function, group}]
	if !ok {
		return 0.0
	}

	pred := mat.Dot(weights, featurize(float64(len(payload))))
	if pred <= 0 {
		return 0.0
	}

	return pred
}

// Update records a (payloadLen, observedRuntime) sample and refits the
// weight vector every trainEvery updates.
func (il *InputLength) Update(function, group string, payloadLen int, observedRuntime float64) {
	il.mu.Lock()
	defer il.mu.Unlock()

	key := runtimeKey{function, group}

	il.lengths[key] = append(il.lengths[key], float64(payloadLen))
	il.runtimes[key] = append(il.runtimes[key], observedRuntime)

	il.updatesSinceFit[key]++
	if il.updatesSinceFit[key] >= il.trainEvery {
		il.fit(key)
		il.updatesSinceFit[key] = 0
	}
}

// fit refits the weight vector for key via least-squares pseudoinverse.
// Caller must hold il.mu for writing.
func (il *InputLength) fit(key runtimeKey) {
	lengths := il.lengths[key]
	runtimes := il.runtimes[key]

	design := mat.NewDense(len(lengths), runtimeFeatureDim, nil)
	for i, x := range lengths {
		design.SetRow(i, featurize(x).RawVector().Data)
	}

	target := mat.NewVecDense(len(runtimes), runtimes)

	weights := mat.NewVecDense(runtimeFeatureDim, nil)

	err := weights.SolveVec(design, target)
	if err != nil {
		// Degenerate design matrix (e.g. <4 samples, all-identical lengths);
		// leave the previous weights in place rather than poisoning
		// predictions with a singular solve.
		return
	}

	il.weights[key] = weights
}

// featurize builds the engineered feature vector for a payload length.
func featurize(x float64) *mat.VecDense {
	return mat.NewVecDense(runtimeFeatureDim, []float64{1, x, x * x, math.Log1p(x)})
}
