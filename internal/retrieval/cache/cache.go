// Package cache implements the Retrieval Cache & Incremental Reindex
// component: a versioned binary blob of CachedEmbeddings plus the
// classify-on-startup reconciliation logic (spec.md §4.6, binary layout
// spec.md §6).
package cache

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/agentcore/internal/coreerr"
)

// Version is the current cache format version. Bumping it invalidates all
// entries on next load (spec.md §3 CachedEmbedding: "a version tag
// invalidates all entries on change").
const Version uint32 = 1

// CachedEmbedding is the spec.md §3 record persisted to disk.
type CachedEmbedding struct {
	Path     string // relative to root; absolute paths are forbidden
	Start    int
	End      int
	Vector   []float32
	Preview  string
	Modified time.Time
}

// ErrAbsolutePath is returned by Save when an entry carries an absolute
// path; Load reports a cache holding such an entry as ok=false. See the Open
// Question decision recorded in SPEC_FULL.md §8.
var ErrAbsolutePath = coreerr.New(coreerr.Retrieval, coreerr.KindIoError, "absolute paths are forbidden in the cache", nil)

// Save atomically writes entries to path using the binary layout of
// spec.md §6 (little-endian: version, count, then per-record path/range/
// vector/preview/modified). Uses a temp-file-then-rename pattern, matching
// the teacher's atomic save convention (internal/store's gob persistence).
func Save(path string, entries []CachedEmbedding) error {
	for _, e := range entries {
		if filepath.IsAbs(e.Path) {
			return ErrAbsolutePath
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return coreerr.RetrievalIoError("create cache dir", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return coreerr.RetrievalIoError("create temp cache file", err)
	}

	w := bufio.NewWriter(f)
	if err := writeAll(w, entries); err != nil {
		f.Close()
		os.Remove(tmp)
		return coreerr.RetrievalIoError("write cache", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return coreerr.RetrievalIoError("flush cache", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return coreerr.RetrievalIoError("close cache", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return coreerr.RetrievalIoError("rename cache", err)
	}
	return nil
}

func writeAll(w io.Writer, entries []CachedEmbedding) error {
	if err := binary.Write(w, binary.LittleEndian, Version); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeEntry(w, e); err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(w io.Writer, e CachedEmbedding) error {
	pathBytes := []byte(e.Path)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(pathBytes))); err != nil {
		return err
	}
	if _, err := w.Write(pathBytes); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(e.Start)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(e.End)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(e.Vector))); err != nil {
		return err
	}
	for _, v := range e.Vector {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	previewBytes := []byte(e.Preview)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(previewBytes))); err != nil {
		return err
	}
	if _, err := w.Write(previewBytes); err != nil {
		return err
	}
	millis := uint64(e.Modified.UnixMilli())
	return binary.Write(w, binary.LittleEndian, millis)
}

// Load reads entries from path. Any corruption, short read, version
// mismatch, or missing file is surfaced via ok=false rather than an error,
// since spec.md §4.6 treats all such conditions identically: "treat as
// absent" / triggers a full rebuild.
func Load(path string) (entries []CachedEmbedding, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	r := bufio.NewReader(f)
	entries, err = readAll(r)
	if err != nil {
		return nil, false
	}
	return entries, true
}

func readAll(r io.Reader) ([]CachedEmbedding, error) {
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != Version {
		return nil, io.ErrUnexpectedEOF
	}
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	entries := make([]CachedEmbedding, 0, count)
	for i := uint64(0); i < count; i++ {
		e, err := readEntry(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func readEntry(r io.Reader) (CachedEmbedding, error) {
	var e CachedEmbedding

	var pathLen uint32
	if err := binary.Read(r, binary.LittleEndian, &pathLen); err != nil {
		return e, err
	}
	pathBytes := make([]byte, pathLen)
	if _, err := io.ReadFull(r, pathBytes); err != nil {
		return e, err
	}
	e.Path = string(pathBytes)
	if filepath.IsAbs(e.Path) || strings.HasPrefix(e.Path, "/") {
		return e, ErrAbsolutePath
	}

	var start, end uint64
	if err := binary.Read(r, binary.LittleEndian, &start); err != nil {
		return e, err
	}
	if err := binary.Read(r, binary.LittleEndian, &end); err != nil {
		return e, err
	}
	e.Start, e.End = int(start), int(end)

	var dim uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return e, err
	}
	e.Vector = make([]float32, dim)
	for i := range e.Vector {
		if err := binary.Read(r, binary.LittleEndian, &e.Vector[i]); err != nil {
			return e, err
		}
	}

	var previewLen uint32
	if err := binary.Read(r, binary.LittleEndian, &previewLen); err != nil {
		return e, err
	}
	previewBytes := make([]byte, previewLen)
	if _, err := io.ReadFull(r, previewBytes); err != nil {
		return e, err
	}
	e.Preview = string(previewBytes)

	var millis uint64
	if err := binary.Read(r, binary.LittleEndian, &millis); err != nil {
		return e, err
	}
	e.Modified = time.UnixMilli(int64(millis))

	return e, nil
}

// Classification is the per-entry startup verdict (spec.md §4.6).
type Classification int

const (
	Valid Classification = iota
	Invalid
	Dropped
)

// Classify stats root/entry.Path and returns the verdict: Dropped if the
// file is missing, Valid if its mtime is at or before the cached modified
// time, Invalid otherwise (needs re-embedding).
func Classify(root string, entry CachedEmbedding, statFn func(string) (os.FileInfo, error)) Classification {
	fi, err := statFn(filepath.Join(root, entry.Path))
	if err != nil {
		return Dropped
	}
	if !fi.ModTime().After(entry.Modified) {
		return Valid
	}
	return Invalid
}

// Reconciled is the result of reconciling a loaded cache against the
// current file set.
type Reconciled struct {
	Valid   []CachedEmbedding
	Invalid []CachedEmbedding // needs re-embedding; path/range known, vector stale
	New     []string          // source files with no cache representation
}

// Reconcile implements the startup classification pass of spec.md §4.6:
// valid entries are kept, invalid ones are marked for re-embedding, and any
// source file in currentFiles with no cache entry at all is marked new.
func Reconcile(root string, cached []CachedEmbedding, currentFiles []string, statFn func(string) (os.FileInfo, error)) Reconciled {
	var out Reconciled
	seen := make(map[string]struct{}, len(cached))

	for _, e := range cached {
		seen[e.Path] = struct{}{}
		switch Classify(root, e, statFn) {
		case Valid:
			out.Valid = append(out.Valid, e)
		case Invalid:
			out.Invalid = append(out.Invalid, e)
		case Dropped:
			// omitted entirely
		}
	}

	for _, f := range currentFiles {
		if _, ok := seen[f]; !ok {
			out.New = append(out.New, f)
		}
	}
	return out
}

// Watcher tracks files marked invalid by filesystem change notifications
// between reindex windows, feeding the incremental reindex path. Guarded by
// a mutex since fsnotify delivers events on its own goroutine.
type Watcher struct {
	mu      sync.Mutex
	invalid map[string]struct{}
}

// NewWatcher constructs an empty invalidation set.
func NewWatcher() *Watcher {
	return &Watcher{invalid: make(map[string]struct{})}
}

// MarkInvalid records relPath as needing re-embedding on the next
// incremental reindex pass.
func (w *Watcher) MarkInvalid(relPath string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.invalid[relPath] = struct{}{}
}

// DrainInvalid returns and clears the set of paths marked invalid since the
// last drain.
func (w *Watcher) DrainInvalid() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.invalid))
	for p := range w.invalid {
		out = append(out, p)
	}
	w.invalid = make(map[string]struct{})
	return out
}
