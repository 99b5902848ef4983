// Package codec is the single consumer of payload serialization detail.
// Everywhere else in the scheduler, a payload is opaque bytes whose only
// legitimate operation is len(payload); only a PayloadCodec is allowed to
// look inside one, and only to extract the declared input-file list for
// staging.
package codec

import "context"

// InputFile is one file a task declares it needs staged before execution.
type InputFile struct {
	SourceGroup string // transfer-group the file currently lives in
	SourcePath  string
	DestPath    string
	Bytes       int64
}

// Kwargs is everything the scheduler core needs out of a decoded payload.
type Kwargs struct {
	InputFiles []InputFile
}

// PayloadCodec extracts the declared input-file list from an opaque task
// payload. Implementations may use any wire format; the scheduler core
// never depends on which.
type PayloadCodec interface {
	DecodeKwargs(ctx context.Context, payload []byte) (Kwargs, error)
}
