package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/agentcore/internal/retrieval/bm25"
	"github.com/Aman-CERP/agentcore/internal/retrieval/vectorstore"
)

func sampleInfo() map[string]ChunkInfo {
	return map[string]ChunkInfo{
		"a.go:1-10": {Path: "internal/search/a.go", Preview: "func Search(q string) {}"},
		"b.go:1-10": {Path: "internal/search/b_test.go", Preview: "func TestSearch(t *testing.T) {}"},
		"c.md:1-10": {Path: "docs/readme.md", Preview: "# readme"},
	}
}

func TestFusionOrderIndependence(t *testing.T) {
	f := New()
	info := sampleInfo()

	bm25Hits := []bm25.Result{{Key: "a.go:1-10", Score: 2.0}, {Key: "b.go:1-10", Score: 1.0}}
	vecHits := []vectorstore.Result{{Key: "a.go:1-10", Score: 0.9}, {Key: "c.md:1-10", Score: 0.5}}

	r1 := f.Fuse("implement search", bm25Hits, vecHits, info, 10)

	bm25Rev := []bm25.Result{bm25Hits[1], bm25Hits[0]}
	vecRev := []vectorstore.Result{vecHits[1], vecHits[0]}
	r2 := f.Fuse("implement search", bm25Rev, vecRev, info, 10)

	require.Equal(t, len(r1), len(r2))
	for i := range r1 {
		assert.Equal(t, r1[i].Key, r2[i].Key)
	}
}

func TestFusionSortedDescendingAndTruncated(t *testing.T) {
	f := New()
	info := sampleInfo()
	bm25Hits := []bm25.Result{{Key: "a.go:1-10", Score: 2.0}, {Key: "b.go:1-10", Score: 1.0}, {Key: "c.md:1-10", Score: 0.9}}
	vecHits := []vectorstore.Result{{Key: "a.go:1-10", Score: 0.8}}

	results := f.Fuse("fix bug", bm25Hits, vecHits, info, 1)
	require.Len(t, results, 1)
	assert.Equal(t, "a.go:1-10", results[0].Key)
}

func TestFusionDropsBelowFloor(t *testing.T) {
	f := &Fuser{MinSimilarityScore: 0.99}
	info := sampleInfo()
	bm25Hits := []bm25.Result{{Key: "a.go:1-10", Score: 2.0}, {Key: "b.go:1-10", Score: 0.1}}

	results := f.Fuse("where is it", bm25Hits, nil, info, 10)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.99)
	}
}

func TestClassifyWeightsSpecialTokens(t *testing.T) {
	w := ClassifyWeights("std::vec::Vec")
	assert.Equal(t, Weights{0.7, 0.3}, w)

	w = ClassifyWeights("how does this work")
	assert.Equal(t, Weights{0.3, 0.7}, w)

	w = ClassifyWeights("implement a cache")
	assert.Equal(t, Weights{0.5, 0.5}, w)

	w = ClassifyWeights("fix the bug")
	assert.Equal(t, Weights{0.6, 0.4}, w)

	w = ClassifyWeights("generic query")
	assert.Equal(t, Weights{0.4, 0.6}, w)
}

func TestTopKZeroReturnsNil(t *testing.T) {
	f := New()
	results := f.Fuse("q", nil, nil, nil, 0)
	assert.Nil(t, results)
}
