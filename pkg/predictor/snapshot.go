package predictor

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"
)

// snapshotMagic identifies the lz4-compressed on-disk snapshot format; a
// file not starting with this magic is treated as plain, uncompressed JSON.
var snapshotMagic = []byte("DSNAP1\x00")

// FileEnvelope wraps a Snapshot with a checksum so a partially written or
// corrupted sidecar is rejected at load time rather than silently trusted.
type FileEnvelope struct {
	Checksum string   `json:"checksum"`
	Snapshot Snapshot `json:"snapshot"`
}

// SaveSnapshot writes the predictor's current state to path as a checksummed
// JSON document. When compress is true the document is lz4-framed.
func SaveSnapshot(tp *TransferPredictor, path string, compress bool) error {
	envelope := FileEnvelope{Snapshot: tp.ToSnapshot()}

	body, err := json.Marshal(envelope.Snapshot)
	if err != nil {
		return fmt.Errorf("predictor: marshal snapshot: %w", err)
	}

	envelope.Checksum = checksum(body)

	out, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("predictor: marshal envelope: %w", err)
	}

	if compress {
		out, err = compressLZ4(out)
		if err != nil {
			return fmt.Errorf("predictor: compress snapshot: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("predictor: create snapshot dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("predictor: write snapshot: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("predictor: finalize snapshot: %w", err)
	}

	return nil
}

// LoadSnapshotFile reads a previously saved snapshot file and merges it into tp.
// Transparently handles both lz4-compressed and plain JSON sidecars.
func LoadSnapshotFile(tp *TransferPredictor, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("predictor: read snapshot: %w", err)
	}

	if bytes.HasPrefix(raw, snapshotMagic) {
		raw, err = decompressLZ4(raw)
		if err != nil {
			return fmt.Errorf("predictor: decompress snapshot: %w", err)
		}
	}

	var envelope FileEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("predictor: unmarshal snapshot: %w", err)
	}

	body, err := json.Marshal(envelope.Snapshot)
	if err != nil {
		return fmt.Errorf("predictor: re-marshal snapshot body: %w", err)
	}

	if checksum(body) != envelope.Checksum {
		return fmt.Errorf("predictor: snapshot checksum mismatch in %s", path)
	}

	tp.LoadSnapshot(envelope.Snapshot)

	return nil
}

func checksum(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func compressLZ4(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(snapshotMagic)

	writer := lz4.NewWriter(&buf)
	if _, err := writer.Write(body); err != nil {
		return nil, err
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompressLZ4(framed []byte) ([]byte, error) {
	reader := lz4.NewReader(bytes.NewReader(framed[len(snapshotMagic):]))

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	return out, nil
}
