package codec

import (
	"context"
	"encoding/json"
	"fmt"
)

// JSONCodec decodes payloads shaped like:
//
//	{
//	  "args": [...],
//	  "kwargs": {...},
//	  "input_files": [
//	    {"source_group": "site-a", "source_path": "...", "dest_path": "...", "bytes": 1024}
//	  ]
//	}
//
// Only input_files is inspected; args/kwargs pass through to the backend
// untouched as part of the original payload bytes.
type JSONCodec struct{}

// NewJSONCodec creates a JSONCodec.
func NewJSONCodec() JSONCodec { return JSONCodec{} }

type wireInputFile struct {
	SourceGroup string `json:"source_group"`
	SourcePath  string `json:"source_path"`
	DestPath    string `json:"dest_path"`
	Bytes       int64  `json:"bytes"`
}

type wirePayload struct {
	InputFiles []wireInputFile `json:"input_files"`
}

// DecodeKwargs implements PayloadCodec.
func (JSONCodec) DecodeKwargs(_ context.Context, payload []byte) (Kwargs, error) {
	if len(payload) == 0 {
		return Kwargs{}, nil
	}

	var wire wirePayload
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Kwargs{}, fmt.Errorf("codec: decode payload: %w", err)
	}

	files := make([]InputFile, len(wire.InputFiles))
	for i, f := range wire.InputFiles {
		files[i] = InputFile{
			SourceGroup: f.SourceGroup,
			SourcePath:  f.SourcePath,
			DestPath:    f.DestPath,
			Bytes:       f.Bytes,
		}
	}

	return Kwargs{InputFiles: files}, nil
}
