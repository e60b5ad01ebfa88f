// Package vectorstore implements the Vector Store component: an in-memory
// store of chunk vectors searchable by cosine similarity.
package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/Aman-CERP/agentcore/internal/coreerr"
	"github.com/Aman-CERP/agentcore/internal/store"
)

// Entry is a stored (chunk_key, vector, preview) tuple. Vectors are
// normalized to unit length on insert.
type Entry struct {
	Key     string
	Vector  []float32
	Preview string
}

// Result is one hit from Search.
type Result struct {
	Key     string
	Score   float32 // cosine similarity, in [-1, 1]
	Preview string
}

// ExactSearchThreshold is the entry count below which Search computes exact
// brute-force cosine top-K instead of delegating to the HNSW approximate
// index. Spec.md §4.3/§8 requires exact top-K and insertion-order
// tie-breaking, which an ANN index cannot guarantee; below this size the
// brute-force pass costs nothing material, so exactness is free. Above it,
// the teacher's HNSWStore (internal/store, coder/hnsw-backed, f16
// quantization config) takes over, trading exactness for scale.
const ExactSearchThreshold = 4096

// Store is the Vector Store (spec.md §4.3).
type Store struct {
	mu         sync.RWMutex
	dimensions int

	order   []string // insertion order, for tie-breaking
	entries map[string]*Entry

	ann      *store.HNSWStore
	annCount int // entries added to the ANN graph so far
}

// New constructs an empty Store for vectors of the given dimensionality.
func New(dimensions int) *Store {
	// NewHNSWStore only errors on construction-time config validation, which
	// DefaultVectorStoreConfig always satisfies.
	ann, _ := store.NewHNSWStore(store.DefaultVectorStoreConfig(dimensions))
	return &Store{
		dimensions: dimensions,
		entries:    make(map[string]*Entry),
		ann:        ann,
	}
}

// Add inserts or replaces a vector. The store normalizes it in place.
// Per spec.md §5, Add is only called during initialization/reindex windows
// and is not admitted concurrently with Search by contract; the mutex here
// guards against accidental concurrent misuse rather than relying on caller
// discipline alone.
func (s *Store) Add(key string, vector []float32, preview string) error {
	if len(vector) != s.dimensions {
		return coreerr.New(coreerr.Retrieval, coreerr.KindIoError, "vector dimension mismatch", nil)
	}
	normalized := make([]float32, len(vector))
	copy(normalized, vector)
	normalize(normalized)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists {
		s.order = append(s.order, key)
	}
	s.entries[key] = &Entry{Key: key, Vector: normalized, Preview: preview}
	if err := s.ann.Add(context.Background(), []string{key}, [][]float32{normalized}); err != nil {
		return coreerr.New(coreerr.Retrieval, coreerr.KindIoError, "ann insert failed", err)
	}
	s.annCount++
	return nil
}

// Len returns the number of stored vectors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// IsEmpty reports whether the store holds no vectors.
func (s *Store) IsEmpty() bool {
	return s.Len() == 0
}

// Search returns up to topK results ordered by descending cosine score,
// ties broken by insertion order (spec.md §4.3).
func (s *Store) Search(query []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(query) != s.dimensions {
		return nil, coreerr.New(coreerr.Retrieval, coreerr.KindIoError, "query dimension mismatch", nil)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalize(q)

	if len(s.entries) > ExactSearchThreshold {
		return s.searchApprox(q, topK), nil
	}
	return s.searchExact(q, topK), nil
}

func (s *Store) searchExact(q []float32, topK int) []Result {
	type scored struct {
		Result
		pos int
	}
	all := make([]scored, 0, len(s.order))
	for pos, key := range s.order {
		e, ok := s.entries[key]
		if !ok {
			continue
		}
		all = append(all, scored{Result{Key: e.Key, Score: cosine(q, e.Vector), Preview: e.Preview}, pos})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].pos < all[j].pos
	})
	if len(all) > topK {
		all = all[:topK]
	}
	out := make([]Result, len(all))
	for i, a := range all {
		out[i] = a.Result
	}
	return out
}

func (s *Store) searchApprox(q []float32, topK int) []Result {
	hits, err := s.ann.Search(context.Background(), q, topK)
	if err != nil {
		return nil
	}
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		e, ok := s.entries[h.ID]
		if !ok {
			continue
		}
		out = append(out, Result{Key: e.Key, Score: cosine(q, e.Vector), Preview: e.Preview})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func normalize(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// cosine computes the cosine similarity of two vectors already normalized
// to unit length (a plain dot product in that case), clamped to [-1, 1] to
// absorb floating-point drift.
func cosine(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	if dot > 1 {
		dot = 1
	}
	if dot < -1 {
		dot = -1
	}
	return dot
}
