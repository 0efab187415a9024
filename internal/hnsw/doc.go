// Package hnsw implements a Hierarchical Navigable Small World graph for
// approximate nearest-neighbour search over fixed-dimensional float32
// vectors.
//
// The package is intentionally self-contained: it owns every Node it
// creates, exposes no persistence, concurrency, or wire format, and leaves
// those concerns to callers (see internal/store for a concurrency wrapper
// and internal/corpus/internal/textvec for the pieces that turn documents
// into vectors in the first place).
//
// Parameters:
//
//	M      = 16        target neighbours per node per layer (2*M at layer 0)
//	m_L    = 1/ln(2)    level-generation multiplier
package hnsw
