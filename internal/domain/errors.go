package domain

import "errors"

var (
	// ErrInvalidInput indicates malformed or out-of-range input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates a path whose kind cannot be ingested.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrDecode indicates bytes that are not valid in the requested encoding.
	ErrDecode = errors.New("decode failed")

	// ErrEmbeddingUnavailable indicates no embedding model is bound.
	// Ingestion aborts with zero chunks indexed.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrIndexEmpty indicates an index build or save with no chunks.
	ErrIndexEmpty = errors.New("vector index is empty")

	// ErrDimensionMismatch indicates vectors of different dimensions were
	// combined in one index.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrNoIndex indicates an operation that needs a loaded vector index.
	ErrNoIndex = errors.New("no vector index loaded")

	// ErrLLMUnavailable indicates the LLM client could not be constructed.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrSink indicates the analytics sink rejected or never received a record.
	ErrSink = errors.New("analytics sink failed")
)
