package predictor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransferPredictor_SameGroupIsFree(t *testing.T) {
	t.Parallel()

	tp := NewTransferPredictor(1)
	assert.Equal(t, 0.0, tp.PredictOne("site-a", "site-a", 10<<20))
}

func TestTransferPredictor_PredictsZeroBeforeTraining(t *testing.T) {
	t.Parallel()

	tp := NewTransferPredictor(1)
	assert.Equal(t, 0.0, tp.PredictOne("site-a", "site-b", 10<<20))
}

func TestTransferPredictor_PredictIsMaxOverSources(t *testing.T) {
	t.Parallel()

	tp := NewTransferPredictor(1)

	// Train site-a -> site-c to predict ~slow, site-b -> site-c to predict ~fast.
	for i := 0; i < 5; i++ {
		tp.Update("site-a", "site-c", int64(1<<20*(i+1)), float64(10*(i+1)))
		tp.Update("site-b", "site-c", int64(1<<10*(i+1)), float64(1*(i+1)))
	}

	slow := tp.PredictOne("site-a", "site-c", 3<<20)
	fast := tp.PredictOne("site-b", "site-c", 3<<10)

	got := tp.Predict([]FileGroup{
		{Group: "site-a", Bytes: 3 << 20},
		{Group: "site-b", Bytes: 3 << 10},
	}, "site-c")

	want := slow
	if fast > want {
		want = fast
	}
	assert.InDelta(t, want, got, 1e-9)
}

func TestTransferPredictor_PredictOfEmptyFilesIsZero(t *testing.T) {
	t.Parallel()

	tp := NewTransferPredictor(1)
	assert.Equal(t, 0.0, tp.Predict(nil, "site-c"))
}

func TestTransferPredictor_KeysAreDirectional(t *testing.T) {
	t.Parallel()

	tp := NewTransferPredictor(1)
	for i := 0; i < 5; i++ {
		tp.Update("site-a", "site-b", int64(1<<20*(i+1)), float64(5*(i+1)))
	}

	// No samples trained in the reverse direction: must still report 0.
	assert.Equal(t, 0.0, tp.PredictOne("site-b", "site-a", 1<<20))
}

func TestTransferPredictor_SnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	tp := NewTransferPredictor(1)
	for i := 0; i < 5; i++ {
		tp.Update("site-a", "site-b", int64(1<<20*(i+1)), float64(5*(i+1)))
	}

	want := tp.PredictOne("site-a", "site-b", 3<<20)

	restored := NewTransferPredictor(1)
	restored.LoadSnapshot(tp.ToSnapshot())

	assert.InDelta(t, want, restored.PredictOne("site-a", "site-b", 3<<20), 1e-9)
}
