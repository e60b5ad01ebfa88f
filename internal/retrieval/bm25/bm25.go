// Package bm25 implements the BM25 Index component: a classical lexical
// ranking inverted index with explicit finalize-before-query semantics
// (spec.md §4.4).
package bm25

import (
	"math"
	"sort"
	"sync"

	storetok "github.com/Aman-CERP/agentcore/internal/store"

	"github.com/Aman-CERP/agentcore/internal/coreerr"
)

// Config holds the BM25 scoring parameters.
type Config struct {
	K1        float64
	B         float64
	StopWords []string
}

// DefaultConfig returns k1=1.2, b=0.75 with the teacher's code-aware
// stopword set (spec.md §4.4, grounded on internal/store.DefaultBM25Config).
func DefaultConfig() Config {
	return Config{
		K1:        1.2,
		B:         0.75,
		StopWords: defaultStopWords,
	}
}

var defaultStopWords = append([]string{
	"the", "a", "an", "is", "are", "was", "were", "be", "been", "being",
	"to", "of", "in", "on", "at", "by", "for", "with", "and", "or", "but",
	"not", "this", "that", "it", "as", "from",
}, storetok.DefaultCodeStopWords...)

// Result is one (key, score) hit from Search.
type Result struct {
	Key   string
	Score float64
}

type document struct {
	key       string
	termFreqs map[string]int
	length    int
}

// Index is the BM25 Index. Documents are tokenized with the teacher's
// code-aware tokenizer (lowercase, camelCase/snake_case split, drop tokens
// under two characters and stopwords). Scores are raw, un-normalized BM25
// values; Finalize() must be called after the last AddDocument and before
// any Search, or Search returns coreerr.NotFinalized.
type Index struct {
	mu     sync.RWMutex
	cfg    Config
	stop   map[string]struct{}
	docs   map[string]*document
	order  []string // insertion order, for deterministic iteration
	dfreq  map[string]int
	avgLen float64

	finalized bool
}

// New constructs an empty, un-finalized index.
func New(cfg Config) *Index {
	return &Index{
		cfg:   cfg,
		stop:  storetok.BuildStopWordMap(cfg.StopWords),
		docs:  make(map[string]*document),
		dfreq: make(map[string]int),
	}
}

// Tokenize applies the BM25 tokenization rule: lowercase, split on
// non-alphanumeric (with camelCase/snake_case awareness), drop tokens
// shorter than two characters, drop stopwords.
func (ix *Index) Tokenize(text string) []string {
	tokens := storetok.TokenizeCode(text)
	return storetok.FilterStopWords(tokens, ix.stop)
}

// AddDocument indexes text under key, replacing any prior document with the
// same key. Invalidates the finalized state.
func (ix *Index) AddDocument(key, text string) {
	tokens := ix.Tokenize(text)

	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if old, exists := ix.docs[key]; exists {
		for term := range old.termFreqs {
			ix.dfreq[term]--
			if ix.dfreq[term] <= 0 {
				delete(ix.dfreq, term)
			}
		}
	} else {
		ix.order = append(ix.order, key)
	}

	for term := range tf {
		ix.dfreq[term]++
	}

	ix.docs[key] = &document{key: key, termFreqs: tf, length: len(tokens)}
	ix.finalized = false
}

// Finalize computes avgdl and marks the index queryable. It is a barrier:
// spec.md §5 forbids AddDocument concurrently with Search, and Finalize is
// the transition point between the two phases.
func (ix *Index) Finalize() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(ix.docs) == 0 {
		ix.avgLen = 0
	} else {
		var total int
		for _, d := range ix.docs {
			total += d.length
		}
		ix.avgLen = float64(total) / float64(len(ix.docs))
	}
	ix.finalized = true
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Search returns the topK highest-scoring documents for query. Scores are
// raw BM25 sums (un-normalized) and non-negative; a document sharing no
// term with the query scores 0 (spec.md §8) and is left out of the results.
func (ix *Index) Search(query string, topK int) ([]Result, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if !ix.finalized {
		return nil, coreerr.NotFinalized()
	}
	if topK <= 0 {
		return nil, nil
	}

	terms := ix.Tokenize(query)
	if len(terms) == 0 || len(ix.docs) == 0 {
		return nil, nil
	}

	n := float64(len(ix.docs))
	idf := make(map[string]float64, len(terms))
	for _, term := range terms {
		if _, ok := idf[term]; ok {
			continue
		}
		df := float64(ix.dfreq[term])
		idf[term] = math.Log(1 + (n-df+0.5)/(df+0.5))
	}

	type scored struct {
		Result
		pos int
	}
	all := make([]scored, 0, len(ix.docs))
	for pos, key := range ix.order {
		doc, ok := ix.docs[key]
		if !ok {
			continue
		}
		var score float64
		for _, term := range terms {
			tf := float64(doc.termFreqs[term])
			if tf == 0 {
				continue
			}
			numerator := tf * (ix.cfg.K1 + 1)
			denom := tf + ix.cfg.K1*(1-ix.cfg.B+ix.cfg.B*float64(doc.length)/nonZero(ix.avgLen))
			score += idf[term] * numerator / denom
		}
		if score == 0 {
			continue
		}
		all = append(all, scored{Result{Key: key, Score: score}, pos})
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
	return out, nil
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
