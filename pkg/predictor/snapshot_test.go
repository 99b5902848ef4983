package predictor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainedPredictor() *TransferPredictor {
	tp := NewTransferPredictor(1)
	for i := 0; i < 5; i++ {
		tp.Update("site-a", "site-b", int64(1<<20*(i+1)), float64(5*(i+1)))
	}

	return tp
}

func TestSaveLoadSnapshot_PlainJSON(t *testing.T) {
	t.Parallel()

	tp := trainedPredictor()
	path := filepath.Join(t.TempDir(), "transfer.json")

	require.NoError(t, SaveSnapshot(tp, path, false))

	restored := NewTransferPredictor(1)
	require.NoError(t, LoadSnapshotFile(restored, path))

	want := tp.PredictOne("site-a", "site-b", 3<<20)
	assert.InDelta(t, want, restored.PredictOne("site-a", "site-b", 3<<20), 1e-9)
}

func TestSaveLoadSnapshot_LZ4Compressed(t *testing.T) {
	t.Parallel()

	tp := trainedPredictor()
	path := filepath.Join(t.TempDir(), "transfer.snap")

	require.NoError(t, SaveSnapshot(tp, path, true))

	restored := NewTransferPredictor(1)
	require.NoError(t, LoadSnapshotFile(restored, path))

	want := tp.PredictOne("site-a", "site-b", 3<<20)
	assert.InDelta(t, want, restored.PredictOne("site-a", "site-b", 3<<20), 1e-9)
}

func TestLoadSnapshot_RejectsCorruptedChecksum(t *testing.T) {
	t.Parallel()

	tp := trainedPredictor()
	path := filepath.Join(t.TempDir(), "transfer.json")
	require.NoError(t, SaveSnapshot(tp, path, false))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	// Replace the first '5' in the file (usually inside the stored checksum,
	// otherwise in the snapshot body) so checksum and body no longer match.
	corrupted := append([]byte(nil), raw...)
	for i := range corrupted {
		if corrupted[i] == '5' {
			corrupted[i] = '9'
			break
		}
	}

	require.NoError(t, os.WriteFile(path, corrupted, 0o644))

	restored := NewTransferPredictor(1)
	err = LoadSnapshotFile(restored, path)
	assert.Error(t, err)
}
