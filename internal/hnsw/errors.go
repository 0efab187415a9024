package hnsw

import "errors"

// ErrInvalidArgument is the single error kind used across the package: a
// duplicate insert id, a dimension mismatch between two vectors, or an
// out-of-range parameter (M < 2, ML <= 0, TopK <= 0, MaxSearchDepth < 0)
// all wrap this sentinel so callers can test with errors.Is without needing
// per-site error types. A MaxSearchDepth of 0 is not rejected:
// NewSearchRequest maps it to the unbounded default.
var ErrInvalidArgument = errors.New("invalid argument")
