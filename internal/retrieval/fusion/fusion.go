// Package fusion implements Retrieval Fusion: adaptive weighting of BM25 and
// vector search results with multiplicative boosts (spec.md §4.5). Its
// structural idiom — map-then-sorted-slice, a comparator function, and a
// normalize-to-max pass — is grounded on the teacher's RRFFusion
// (internal/search/fusion.go), but the scoring algorithm itself is
// different: the teacher fuses by Reciprocal Rank Fusion, whereas this
// fuses by adaptive-weight, multiplicative-boost scoring.
package fusion

import (
	"math"
	"path"
	"sort"
	"strings"

	"github.com/Aman-CERP/agentcore/internal/retrieval/bm25"
	"github.com/Aman-CERP/agentcore/internal/retrieval/vectorstore"
)

// MinSimilarityScore is the final cutoff: entries scoring below this after
// renormalization are dropped (spec.md §4.5 step 6).
const MinSimilarityScore = 0.05

// bm25RawFloor is the raw BM25 score below which a hit's BM25 contribution
// is treated as zero (spec.md §4.5 step 3).
const bm25RawFloor = 0.75

// ChunkInfo supplies the path/preview metadata the fusion boosts need,
// keyed by the same chunk key used in the BM25 and vector hit lists.
type ChunkInfo struct {
	Path    string
	Preview string
}

// Result is the spec.md §3 SearchResult record.
type Result struct {
	Key         string
	FilePath    string
	Score       float64
	Preview     string
	BM25Score   *float64
	VectorScore *float64
}

// Weights are the (w_bm25, w_vec) pair chosen per query (spec.md §4.5 step 2).
type Weights struct {
	BM25   float64
	Vector float64
}

// ClassifyWeights derives (w_bm25, w_vec) from the query text.
func ClassifyWeights(query string) Weights {
	lower := strings.ToLower(query)

	for _, tok := range []string{"::", "--", "#["} {
		if strings.Contains(query, tok) {
			return Weights{0.7, 0.3}
		}
	}

	switch {
	case strings.Contains(lower, "how") && strings.Contains(lower, "work"):
		return Weights{0.3, 0.7}
	case strings.Contains(lower, "implement") || strings.Contains(lower, "add"):
		return Weights{0.5, 0.5}
	case strings.Contains(lower, "fix") || strings.Contains(lower, "debug") || strings.Contains(lower, "where"):
		return Weights{0.6, 0.4}
	default:
		return Weights{0.4, 0.6}
	}
}

// Fuser combines BM25 and vector result sets for a single query.
type Fuser struct {
	MinSimilarityScore float64
}

// New constructs a Fuser with the default similarity floor.
func New() *Fuser {
	return &Fuser{MinSimilarityScore: MinSimilarityScore}
}

type candidate struct {
	key         string
	bm25Raw     float64
	bm25Present bool
	vecScore    float64
	vecPresent  bool
}

// Fuse runs the full pipeline of spec.md §4.5 steps 2-6 over already-
// retrieved bm25Hits/vecHits (each expected to already be the top 2·topK
// per side, per step 1, which the caller — the Context Fetcher — is
// responsible for requesting from the BM25 Index and Vector Store).
func (f *Fuser) Fuse(query string, bm25Hits []bm25.Result, vecHits []vectorstore.Result, info map[string]ChunkInfo, topK int) []Result {
	if topK <= 0 {
		return nil
	}

	weights := ClassifyWeights(query)
	queryTokens := queryTokenSet(query)
	specialTokenHit := containsSpecialToken(query)

	candidates := make(map[string]*candidate)
	order := make([]string, 0, len(bm25Hits)+len(vecHits))
	get := func(key string) *candidate {
		if c, ok := candidates[key]; ok {
			return c
		}
		c := &candidate{key: key}
		candidates[key] = c
		order = append(order, key)
		return c
	}

	var bm25Max float64
	for _, h := range bm25Hits {
		c := get(h.Key)
		c.bm25Raw = h.Score
		c.bm25Present = true
		if h.Score > bm25Max {
			bm25Max = h.Score
		}
	}

	var vecMax float64
	for _, h := range vecHits {
		c := get(h.Key)
		c.vecScore = float64(h.Score)
		c.vecPresent = true
		if float64(h.Score) > vecMax {
			vecMax = float64(h.Score)
		}
	}

	results := make([]Result, 0, len(order))
	for _, key := range order {
		c := candidates[key]
		meta := info[key]

		bm25n := 0.0
		if c.bm25Present && c.bm25Raw >= bm25RawFloor && bm25Max > 0 {
			bm25n = c.bm25Raw / bm25Max
			if specialTokenHit && literalContainsSpecialToken(meta.Preview) {
				bm25n *= 1.5
			}
		}

		vecn := 0.0
		if c.vecPresent && vecMax > 0 {
			vecn = c.vecScore / vecMax
		}

		fileBoost := fileBoostFor(meta.Path)
		alignment := queryAlignment(meta.Path, meta.Preview, queryTokens)
		pattern := patternBoost(meta.Preview)
		quality := chunkQuality(meta.Preview)

		score := (weights.BM25*bm25n + weights.Vector*vecn) * fileBoost * alignment * pattern * quality

		var bm25ScorePtr, vecScorePtr *float64
		if c.bm25Present {
			v := c.bm25Raw
			bm25ScorePtr = &v
		}
		if c.vecPresent {
			v := c.vecScore
			vecScorePtr = &v
		}

		results = append(results, Result{
			Key:         key,
			FilePath:    meta.Path,
			Score:       score,
			Preview:     meta.Preview,
			BM25Score:   bm25ScorePtr,
			VectorScore: vecScorePtr,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		av, bv := scoreOrMin(a.VectorScore), scoreOrMin(b.VectorScore)
		if av != bv {
			return av > bv
		}
		return a.Key < b.Key
	})

	normalizeToMax(results)

	if len(results) > topK {
		results = results[:topK]
	}

	floor := f.MinSimilarityScore
	if floor == 0 {
		floor = MinSimilarityScore
	}
	out := results[:0]
	for _, r := range results {
		if r.Score >= floor {
			out = append(out, r)
		}
	}
	return out
}

func scoreOrMin(p *float64) float64 {
	if p == nil {
		return math.Inf(-1)
	}
	return *p
}

func normalizeToMax(results []Result) {
	if len(results) == 0 {
		return
	}
	max := results[0].Score
	if max <= 0 {
		return
	}
	for i := range results {
		results[i].Score = clamp01(results[i].Score / max)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var specialTokens = []string{"::", "--", "#["}

func containsSpecialToken(s string) bool {
	for _, t := range specialTokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func literalContainsSpecialToken(s string) bool {
	return containsSpecialToken(s)
}

// fileBoostFor implements spec.md §4.5's file_boost table.
func fileBoostFor(p string) float64 {
	lower := strings.ToLower(p)
	base := baseFileBoost(lower)

	switch {
	case strings.Contains(lower, "lib."):
		base *= 1.3
	case strings.HasSuffix(lower, "mod.go"), strings.HasSuffix(lower, "go.mod"), strings.Contains(lower, "mod."):
		base *= 1.2
	}
	if strings.Contains(lower, "src/") {
		base *= 1.3
	}
	if strings.Contains(lower, "docs/") || strings.Contains(lower, "examples/") {
		base *= 0.5
	}
	return base
}

func baseFileBoost(lower string) float64 {
	switch {
	case strings.Contains(lower, "_test."), strings.Contains(lower, "test_"), strings.Contains(lower, "_bench."), strings.Contains(lower, "bench_"):
		return 0.1
	case strings.HasSuffix(lower, ".md"), strings.HasSuffix(lower, ".txt"):
		return 0.1
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"), strings.HasSuffix(lower, ".json"), strings.HasSuffix(lower, ".toml"):
		return 0.5
	case isSourceExtension(lower):
		return 1.7
	default:
		return 1.0
	}
}

func isSourceExtension(lower string) bool {
	for _, ext := range []string{".go", ".ts", ".tsx", ".js", ".jsx", ".py", ".rs", ".java", ".c", ".cc", ".cpp", ".h"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func queryTokenSet(query string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if len(tok) >= 2 {
			set[tok] = struct{}{}
		}
	}
	return set
}

// queryAlignment implements spec.md §4.5's query_alignment: filename token
// match, parent dir match, and keyword density in the preview.
func queryAlignment(filePath, preview string, queryTokens map[string]struct{}) float64 {
	if len(queryTokens) == 0 {
		return 1.0
	}
	alignment := 1.0

	base := strings.ToLower(path.Base(filePath))
	for tok := range queryTokens {
		if strings.Contains(base, tok) {
			alignment *= 1.4
			break
		}
	}

	dir := strings.ToLower(path.Dir(filePath))
	for tok := range queryTokens {
		if strings.Contains(dir, tok) {
			alignment *= 1.2
			break
		}
	}

	lowerPreview := strings.ToLower(preview)
	k := 0
	for tok := range queryTokens {
		if strings.Contains(lowerPreview, tok) {
			k++
		}
	}
	density := 1 + 0.1*float64(k)
	if density > 1.5 {
		density = 1.5
	}
	alignment *= density

	return alignment
}

// patternBoost implements spec.md §4.5's pattern_boost heuristics, adapted
// to Go-shaped source (type+methods in place of impl+struct, interface in
// place of trait, func main/Run in place of an entry fn, exported API
// surface, module-doc header).
func patternBoost(preview string) float64 {
	boost := 1.0
	if strings.Contains(preview, "type ") && strings.Contains(preview, "struct") {
		boost *= 1.3
	}
	if strings.Contains(preview, "interface") {
		boost *= 1.2
	}
	if strings.Contains(preview, "func main(") || strings.Contains(preview, "func Run(") {
		boost *= 1.25
	}
	if countExportedFuncs(preview) >= 3 {
		boost *= 1.2
	}
	if strings.HasPrefix(strings.TrimSpace(preview), "// Package") {
		boost *= 1.15
	}
	return boost
}

func countExportedFuncs(preview string) int {
	count := 0
	for _, line := range strings.Split(preview, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "func ") {
			rest := strings.TrimPrefix(trimmed, "func ")
			if idx := strings.Index(rest, "("); idx > 0 {
				rest = strings.TrimSpace(rest[:idx])
			}
			if len(rest) > 0 && rest[0] >= 'A' && rest[0] <= 'Z' {
				count++
			}
		}
	}
	return count
}

// chunkQuality implements spec.md §4.5's chunk_quality heuristics.
func chunkQuality(preview string) float64 {
	trimmed := strings.TrimSpace(preview)
	if trimmed == "" {
		return 1.0
	}

	quality := 1.0
	if isPublicDefinition(trimmed) {
		quality *= 1.4
	}
	if strings.HasPrefix(trimmed, "func ") && isExportedFirstWord(trimmed, "func ") {
		quality *= 1.3
	}
	if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") {
		quality *= 1.2
	}
	if nonTrivialLineCount(preview) <= 3 {
		quality *= 0.5
	}
	return quality
}

func isPublicDefinition(trimmed string) bool {
	for _, kw := range []string{"type ", "func ", "const ", "var "} {
		if strings.HasPrefix(trimmed, kw) && isExportedFirstWord(trimmed, kw) {
			return true
		}
	}
	return false
}

func isExportedFirstWord(trimmed, prefix string) bool {
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
	return len(rest) > 0 && rest[0] >= 'A' && rest[0] <= 'Z'
}

func nonTrivialLineCount(preview string) int {
	count := 0
	for _, line := range strings.Split(preview, "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}
