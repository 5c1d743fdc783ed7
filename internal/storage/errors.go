package storage

import "errors"

var (
	// ErrStoreUnavailable 表示底层存储暂时不可达，调用方应在总预算内重试
	ErrStoreUnavailable = errors.New("stream store unavailable")
	ErrInvalidCursor    = errors.New("invalid stream cursor")
)
