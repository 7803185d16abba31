package db

import "errors"

var (
	// ErrDeleteUnsupported is returned by Store.Delete. Chunk deletion is
	// intentionally not implemented; callers must never see a silent no-op.
	ErrDeleteUnsupported = errors.New("chunk deletion not supported")

	// ErrDimensionMismatch means the stored vector column width does not
	// match the configured embedding dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch between store and configuration")
)
