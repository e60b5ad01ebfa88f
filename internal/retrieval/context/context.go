// Package context implements the Context Fetcher & Builder: it classifies
// query intent, runs hybrid retrieval, merges overlapping chunk ranges,
// extracts them from disk with contextual header markers, and assembles a
// token-budgeted Context for the model (spec.md §4.10).
//
// Grounded on the teacher's hybrid-search result assembly
// (internal/search/fusion.go callers) for the overall shape, and on
// original_source's context_fetcher.rs/builder.rs for the intent
// classification, ±50-line merge window, and conversation-aware assembly
// this package supplements (SPEC_FULL.md §6 items 2 and 5).
package context

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/agentcore/internal/retrieval/fusion"
)

// Intent is the three-way query classification of spec.md §4.10.
type Intent int

const (
	Conversational Intent = iota
	CodeQuery
	CodeModification
)

// modificationVerbs mark a query as intending to change code rather than
// merely ask about it.
var modificationVerbs = []string{
	"add", "implement", "fix", "refactor", "remove", "delete", "rename",
	"update", "change", "create", "write", "modify", "replace",
}

// conversationalPhrases are greetings, thanks, and memory-recall phrasing
// that never warrant a retrieval pass (original executor.rs
// classify_query_intent, SPEC_FULL.md §6 item 2).
var conversationalPhrases = []string{
	"hi", "hello", "hey", "thanks", "thank you", "ok", "okay", "cool",
	"great", "got it", "sounds good", "what did i", "remember when",
	"remember that", "recall",
}

// ClassifyIntent determines the query's intent. Short (<=3 word)
// non-imperative queries and conversational phrases classify as
// Conversational without touching retrieval at all.
func ClassifyIntent(query string) Intent {
	trimmed := strings.TrimSpace(query)
	lower := strings.ToLower(trimmed)

	for _, p := range conversationalPhrases {
		if lower == p || strings.HasPrefix(lower, p+" ") || strings.HasPrefix(lower, p+",") {
			return Conversational
		}
	}

	words := strings.Fields(lower)
	for _, v := range modificationVerbs {
		for _, w := range words {
			if strings.Trim(w, ".,!?") == v {
				return CodeModification
			}
		}
	}

	if len(words) <= 3 {
		return Conversational
	}

	return CodeQuery
}

// FileContext is the spec.md §3 record: a single extracted, possibly
// range-limited and header-annotated slice of a source file.
type FileContext struct {
	Path    string
	Content string
}

// Context is the spec.md §3 build_context result.
type Context struct {
	SystemPrompt  string
	Files         []FileContext
	TokenEstimate int
}

// contextLines is the ±50-line expansion window used both to merge
// overlapping chunk ranges and to extract each merged range from disk
// (original builder.rs CONTEXT_LINES).
const contextLines = 50

// DefaultTokenBudget bounds how many estimated tokens of file content a
// built Context may carry, mirroring the teacher's MAX_CONTEXT_TOKENS
// budget enforcement pattern (internal/search ranking + truncation).
const DefaultTokenBudget = 8000

// EstimateTokens approximates token count at four characters per token,
// the same rough heuristic the teacher's context manager budget checks use.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// Retriever performs a hybrid search over the indexed corpus, returning
// fused results. Implemented by the wiring between bm25/vectorstore/fusion
// in the running process; kept as an interface here so context assembly
// stays independent of index lifecycle.
type Retriever interface {
	Search(query string, topK int) ([]fusion.Result, error)
}

// FileReader reads whole-file content. An interface so tests can substitute
// an in-memory filesystem.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

type osReader struct{ root string }

func (r osReader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(r.root, path))
}

// Builder assembles Context values for a project root.
type Builder struct {
	root         string
	retriever    Retriever
	reader       FileReader
	systemPrompt string
	tokenBudget  int
	maxFiles     int
	cache        *lru.Cache[string, []string] // path -> lines, LRU'd across builds
}

// New constructs a Builder rooted at root, reading files from disk and
// caching up to cacheSize files' worth of line slices via an LRU, matching
// the teacher's CachedEmbedder wiring of hashicorp/golang-lru.
func New(root string, retriever Retriever, systemPrompt string, cacheSize int) *Builder {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	c, _ := lru.New[string, []string](cacheSize)
	return &Builder{
		root:         root,
		retriever:    retriever,
		reader:       osReader{root: root},
		systemPrompt: systemPrompt,
		tokenBudget:  DefaultTokenBudget,
		maxFiles:     64,
		cache:        c,
	}
}

// WithTokenBudget overrides the default token budget.
func (b *Builder) WithTokenBudget(n int) *Builder {
	b.tokenBudget = n
	return b
}

// WithFileReader overrides the default os.ReadFile-backed reader, for tests.
func (b *Builder) WithFileReader(r FileReader) *Builder {
	b.reader = r
	return b
}

// BuildContext implements spec.md §4.10's build_context(query). Steps:
// classify intent; for Conversational, return the bare system prompt with
// no files; otherwise run hybrid search, merge overlapping chunk ranges per
// file, extract each merged range with a contextual header, rank by score,
// and add chunks in score order until the token budget is exhausted.
func (b *Builder) BuildContext(query string) (Context, error) {
	intent := ClassifyIntent(query)
	if intent == Conversational {
		return Context{SystemPrompt: b.systemPrompt}, nil
	}

	hits, err := b.retriever.Search(query, b.maxFiles*4)
	if err != nil {
		return Context{}, err
	}

	ctx := b.assemble(hits, b.systemPrompt)
	logBreakdown(ctx, 0)
	return ctx, nil
}

// chunkRange is a single fused hit's file-relative line span and score.
type chunkRange struct {
	path  string
	start int
	end   int
	score float64
}

func (b *Builder) assemble(hits []fusion.Result, systemPrompt string) Context {
	byFile := make(map[string][]chunkRange)
	order := make([]string, 0)
	for _, h := range hits {
		path, start, end, ok := parseKey(h.Key)
		if !ok {
			continue
		}
		if _, seen := byFile[path]; !seen {
			order = append(order, path)
		}
		byFile[path] = append(byFile[path], chunkRange{path: path, start: start, end: end, score: h.Score})
	}

	type merged struct {
		path  string
		start int
		end   int
		score float64
	}
	var all []merged
	for _, path := range order {
		ranges := byFile[path]
		sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })
		for _, m := range mergeOverlapping(ranges) {
			all = append(all, merged{path: path, start: m.start, end: m.end, score: m.score})
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].score > all[j].score })

	ctx := Context{SystemPrompt: systemPrompt}
	budget := b.tokenBudget
	for _, m := range all {
		fc, ok := b.extract(m.path, m.start, m.end)
		if !ok {
			continue
		}
		tokens := EstimateTokens(fc.Content)
		if tokens > budget {
			continue
		}
		ctx.Files = append(ctx.Files, fc)
		ctx.TokenEstimate += tokens
		budget -= tokens
		if budget <= 0 {
			break
		}
	}
	return ctx
}

// mergeOverlapping merges ranges whose ±contextLines expansion windows
// touch, matching builder.rs's merge_overlapping_chunks exactly: two
// adjacent ranges merge when expanded_start <= expanded_current_end.
func mergeOverlapping(ranges []chunkRange) []chunkRange {
	if len(ranges) == 0 {
		return nil
	}
	out := []chunkRange{ranges[0]}
	for _, r := range ranges[1:] {
		last := &out[len(out)-1]
		expandedCurrentEnd := last.end + contextLines
		expandedStart := r.start - contextLines
		if expandedStart < 0 {
			expandedStart = 0
		}
		if expandedStart <= expandedCurrentEnd {
			if r.end > last.end {
				last.end = r.end
			}
			if r.score > last.score {
				last.score = r.score
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// extract reads path, expands [start,end] by ±contextLines, and prefixes a
// contextual header marker, matching builder.rs's extract_chunk_with_context.
func (b *Builder) extract(path string, start, end int) (FileContext, bool) {
	lines, ok := b.linesOf(path)
	if !ok || len(lines) == 0 {
		return FileContext{}, false
	}

	contextStart := start - contextLines
	if contextStart < 1 {
		contextStart = 1
	}
	contextEnd := end + contextLines
	if contextEnd > len(lines) {
		contextEnd = len(lines)
	}
	if contextStart > contextEnd {
		return FileContext{}, false
	}

	header := fmt.Sprintf("--- Context: lines %d-%d ---\n", contextStart, contextEnd)
	body := strings.Join(lines[contextStart-1:contextEnd], "\n")
	return FileContext{Path: path, Content: header + body}, true
}

func (b *Builder) linesOf(path string) ([]string, bool) {
	if lines, ok := b.cache.Get(path); ok {
		return lines, true
	}
	data, err := b.reader.ReadFile(path)
	if err != nil {
		return nil, false
	}
	lines := splitLines(string(data))
	b.cache.Add(path, lines)
	return lines, true
}

func splitLines(s string) []string {
	sc := bufio.NewScanner(strings.NewReader(s))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

func parseKey(key string) (path string, start, end int, ok bool) {
	idx := strings.LastIndex(key, ":")
	if idx < 0 {
		return "", 0, 0, false
	}
	path = key[:idx]
	rangePart := key[idx+1:]
	dash := strings.Index(rangePart, "-")
	if dash < 0 {
		return "", 0, 0, false
	}
	var s, e int
	if _, err := fmt.Sscanf(rangePart[:dash], "%d", &s); err != nil {
		return "", 0, 0, false
	}
	if _, err := fmt.Sscanf(rangePart[dash+1:], "%d", &e); err != nil {
		return "", 0, 0, false
	}
	return path, s, e, true
}

// fileReferenceRegex matches explicit relative file paths with an
// extension, grounded on original context_fetcher.rs's Pattern 1.
var fileReferenceRegex = regexp.MustCompile(`[a-zA-Z0-9_\-./]+\.[a-zA-Z0-9]{1,4}`)

// ExtractFileReferences scans text for explicit file-path mentions,
// resolving each against root and keeping only ones that exist on disk.
func ExtractFileReferences(root, text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range fileReferenceRegex.FindAllString(text, -1) {
		if _, dup := seen[m]; dup {
			continue
		}
		full := m
		if !filepath.IsAbs(full) {
			full = filepath.Join(root, m)
		}
		if fi, err := os.Stat(full); err == nil && !fi.IsDir() {
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

// Message is a single (role, content) turn, matching the teacher's
// conversation pair shape used when logging routing decisions.
type Message struct {
	Role    string
	Content string
}

// BuildFromConversation implements spec.md §4.10's incremental conversation
// context: union file references extracted from all prior messages with
// fresh retrieval hits, and append a "Previous Conversation" block to the
// system prompt, oldest-first (SPEC_FULL.md §6 item 5).
func (b *Builder) BuildFromConversation(messages []Message, currentQuery string) (Context, error) {
	refs := make(map[string]struct{})
	for _, m := range messages {
		for _, f := range ExtractFileReferences(b.root, m.Content) {
			refs[f] = struct{}{}
		}
	}
	for _, f := range ExtractFileReferences(b.root, currentQuery) {
		refs[f] = struct{}{}
	}

	ctx, err := b.BuildContext(currentQuery)
	if err != nil {
		return Context{}, err
	}

	present := make(map[string]struct{}, len(ctx.Files))
	for _, fc := range ctx.Files {
		present[fc.Path] = struct{}{}
	}
	for path := range refs {
		if _, ok := present[path]; ok {
			continue
		}
		if data, err := b.reader.ReadFile(path); err == nil {
			ctx.Files = append(ctx.Files, FileContext{Path: path, Content: string(data)})
			ctx.TokenEstimate += EstimateTokens(string(data))
		}
	}

	if len(messages) > 0 {
		var sb strings.Builder
		sb.WriteString("\n\n=== Previous Conversation (oldest first) ===\n")
		for _, m := range messages {
			sb.WriteString(m.Role)
			sb.WriteString(": ")
			sb.WriteString(m.Content)
			sb.WriteString("\n\n")
		}
		sb.WriteString("=== End Previous Conversation ===\n\n")
		ctx.SystemPrompt += sb.String()
	}

	conversationTokens := 0
	for _, m := range messages {
		conversationTokens += EstimateTokens(m.Content)
	}
	logBreakdown(ctx, conversationTokens)

	return ctx, nil
}

// breakdown is the debug-only token-share summary of SPEC_FULL.md §6 item 3,
// logged rather than returned, reproducing original executor.rs's
// log_context_breakdown as structured fields instead of ASCII bars.
type breakdown struct {
	ConversationTokens int
	FilesTokens        int
	SystemPromptTokens int
}

func tokenBreakdown(ctx Context, conversationTokens int) breakdown {
	filesTokens := 0
	for _, f := range ctx.Files {
		filesTokens += EstimateTokens(f.Content)
	}
	return breakdown{
		ConversationTokens: conversationTokens,
		FilesTokens:        filesTokens,
		SystemPromptTokens: EstimateTokens(ctx.SystemPrompt),
	}
}

func logBreakdown(ctx Context, conversationTokens int) {
	b := tokenBreakdown(ctx, conversationTokens)
	slog.Debug("context token breakdown",
		slog.Int("conversation_tokens", b.ConversationTokens),
		slog.Int("files_tokens", b.FilesTokens),
		slog.Int("system_prompt_tokens", b.SystemPromptTokens),
	)
}
