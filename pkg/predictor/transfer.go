package predictor

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// transferFeatureDim is the width of the transfer feature vector: [1, size, log(size)].
const transferFeatureDim = 3

// transferKey identifies a (srcTransferGroup, dstTransferGroup) pair.
type transferKey struct {
	src string
	dst string
}

// FileGroup bundles the files staged from one source transfer-group,
// together with their total size, for a single TransferPredictor.Predict call.
type FileGroup struct {
	Group string
	Bytes int64
}

// TransferPredictor estimates the wall-clock time of a cross-site bulk file
// transfer, keyed by the (source, destination) transfer-group pair, and
// learns from observed transfer completions.
type TransferPredictor struct {
	mu              sync.RWMutex
	trainEvery      int
	sizes           map[transferKey][]float64
	times           map[transferKey][]float64
	weights         map[transferKey]*mat.VecDense
	updatesSinceFit map[transferKey]int
}

// NewTransferPredictor creates a TransferPredictor that refits every
// trainEvery updates per (src, dst) key.
func NewTransferPredictor(trainEvery int) *TransferPredictor {
	if trainEvery <= 0 {
		trainEvery = DefaultTrainEvery
	}

	return &TransferPredictor{
		trainEvery:      trainEvery,
		sizes:           make(map[transferKey][]float64),
		times:           make(map[transferKey][]float64),
		weights:         make(map[transferKey]*mat.VecDense),
		updatesSinceFit: make(map[transferKey]int),
	}
}

// PredictOne predicts the transfer time in seconds for totalSize bytes from
// srcGroup to dstGroup. Same-group transfers are assumed free (0 seconds):
// the data is already local.
func (tp *TransferPredictor) PredictOne(srcGroup, dstGroup string, totalSize int64) float64 {
	if srcGroup == dstGroup {
		return 0.0
	}

	tp.mu.RLock()
	defer tp.mu.RUnlock()

	weights, ok := tp.weights[transferKey{srcGroup, dstGroup}]
	if !ok {
		return 0.0
	}

	return mat.Dot(weights, transferFeaturize(float64(totalSize)))
}

// Predict estimates the time to stage files from multiple source groups to
// dstGroup concurrently, returning the maximum of the per-source estimates
// (transfers run in parallel, so the slowest source gates readiness).
// Returns 0 if files is empty.
func (tp *TransferPredictor) Predict(files []FileGroup, dstGroup string) float64 {
	if len(files) == 0 {
		return 0.0
	}

	var maxTime float64

	for _, fg := range files {
		t := tp.PredictOne(fg.Group, dstGroup, fg.Bytes)
		if t > maxTime {
			maxTime = t
		}
	}

	return maxTime
}

// Update records an observed (size, elapsed) transfer sample for the
// (srcGroup, dstGroup) key and refits every trainEvery updates.
func (tp *TransferPredictor) Update(srcGroup, dstGroup string, size int64, elapsedSeconds float64) {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	key := transferKey{srcGroup, dstGroup}

	tp.sizes[key] = append(tp.sizes[key], float64(size))
	tp.times[key] = append(tp.times[key], elapsedSeconds)

	tp.updatesSinceFit[key]++
	if tp.updatesSinceFit[key] >= tp.trainEvery {
		tp.fit(key)
		tp.updatesSinceFit[key] = 0
	}
}

// fit refits the weight vector for key. Caller must hold tp.mu for writing.
func (tp *TransferPredictor) fit(key transferKey) {
	sizes := tp.sizes[key]
	times := tp.times[key]

	design := mat.NewDense(len(sizes), transferFeatureDim, nil)
	for i, x := range sizes {
		design.SetRow(i, transferFeaturize(x).RawVector().Data)
	}

	target := mat.NewVecDense(len(times), times)

	weights := mat.NewVecDense(transferFeatureDim, nil)

	err := weights.SolveVec(design, target)
	if err != nil {
		return
	}

	tp.weights[key] = weights
}

// transferFeaturize builds the feature vector [1, size, log(size)].
// log(0) is -Inf; size 0 is clamped to 1 byte to keep the feature finite.
func transferFeaturize(size float64) *mat.VecDense {
	if size < 1 {
		size = 1
	}

	return mat.NewVecDense(transferFeatureDim, []float64{1, size, math.Log(size)})
}

// Snapshot is the JSON-serializable state of a TransferPredictor, used by
// ToSnapshot/LoadSnapshot for the optional persisted-state sidecar.
type Snapshot struct {
	Sizes   map[string]map[string][]float64 `json:"sizes"`
	Times   map[string]map[string][]float64 `json:"times"`
	Weights map[string]map[string][]float64 `json:"weights"`
}

// ToSnapshot exports the predictor's learned state.
func (tp *TransferPredictor) ToSnapshot() Snapshot {
	tp.mu.RLock()
	defer tp.mu.RUnlock()

	snap := Snapshot{
		Sizes:   make(map[string]map[string][]float64),
		Times:   make(map[string]map[string][]float64),
		Weights: make(map[string]map[string][]float64),
	}

	for key, vals := range tp.sizes {
		ensureNested(snap.Sizes, key.src)[key.dst] = append([]float64(nil), vals...)
	}

	for key, vals := range tp.times {
		ensureNested(snap.Times, key.src)[key.dst] = append([]float64(nil), vals...)
	}

	for key, w := range tp.weights {
		ensureNested(snap.Weights, key.src)[key.dst] = append([]float64(nil), w.RawVector().Data...)
	}

	return snap
}

// LoadSnapshot restores predictor state from a previously exported Snapshot,
// merging into (not replacing) any existing state.
func (tp *TransferPredictor) LoadSnapshot(snap Snapshot) {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	for src, dsts := range snap.Sizes {
		for dst, vals := range dsts {
			tp.sizes[transferKey{src, dst}] = append([]float64(nil), vals...)
		}
	}

	for src, dsts := range snap.Times {
		for dst, vals := range dsts {
			tp.times[transferKey{src, dst}] = append([]float64(nil), vals...)
		}
	}

	for src, dsts := range snap.Weights {
		for dst, vals := range dsts {
			if len(vals) != transferFeatureDim {
				continue
			}

			tp.weights[transferKey{src, dst}] = mat.NewVecDense(transferFeatureDim, append([]float64(nil), vals...))
		}
	}
}

func ensureNested(m map[string]map[string][]float64, key string) map[string][]float64 {
	if _, ok := m[key]; !ok {
		m[key] = make(map[string][]float64)
	}

	return m[key]
}
