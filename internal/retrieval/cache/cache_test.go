package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "embeddings.cache")

	entries := []CachedEmbedding{
		{Path: "internal/search/fusion.go", Start: 1, End: 40, Vector: []float32{0.1, 0.2, 0.3}, Preview: "func Fuse", Modified: time.UnixMilli(1700000000000)},
		{Path: "README.md", Start: 0, End: 5, Vector: []float32{}, Preview: "# readme", Modified: time.UnixMilli(1700000001000)},
	}

	require.NoError(t, Save(path, entries))

	got, ok := Load(path)
	require.True(t, ok)
	require.Len(t, got, len(entries))
	for i := range entries {
		assert.Equal(t, entries[i].Path, got[i].Path)
		assert.Equal(t, entries[i].Start, got[i].Start)
		assert.Equal(t, entries[i].End, got[i].End)
		assert.Equal(t, entries[i].Vector, got[i].Vector)
		assert.Equal(t, entries[i].Preview, got[i].Preview)
		assert.Equal(t, entries[i].Modified.UnixMilli(), got[i].Modified.UnixMilli())
	}
}

// An empty cache save must still round-trip to zero entries, not be
// silently skipped — the Open Question resolution in SPEC_FULL.md §8
// treats "never write an empty cache" as a bug, not a feature.
func TestSaveLoadEmptyRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.cache")

	require.NoError(t, Save(path, nil))

	got, ok := Load(path)
	require.True(t, ok)
	assert.Empty(t, got)
}

func TestSaveRejectsAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.cache")

	err := Save(path, []CachedEmbedding{{Path: "/etc/passwd", Start: 0, End: 1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAbsolutePath)

	_, err2 := os.Stat(path)
	assert.True(t, os.IsNotExist(err2), "save must not leave a partial file behind")
}

func TestLoadMissingFileIsNotOk(t *testing.T) {
	_, ok := Load(filepath.Join(t.TempDir(), "missing.cache"))
	assert.False(t, ok)
}

func TestLoadVersionMismatchIsNotOk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stale.cache")
	require.NoError(t, Save(path, []CachedEmbedding{{Path: "a.go", Start: 0, End: 1}}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[0] = 0xFF // corrupt the version field
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, ok := Load(path)
	assert.False(t, ok)
}

func TestClassifyValidInvalidDropped(t *testing.T) {
	root := t.TempDir()
	older := time.Now().Add(-time.Hour)
	newer := time.Now().Add(time.Hour)

	require.NoError(t, os.WriteFile(filepath.Join(root, "valid.go"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "invalid.go"), []byte("x"), 0o644))

	stat := func(p string) (os.FileInfo, error) { return os.Stat(p) }

	valid := CachedEmbedding{Path: "valid.go", Modified: newer}
	assert.Equal(t, Valid, Classify(root, valid, stat))

	invalid := CachedEmbedding{Path: "invalid.go", Modified: older}
	assert.Equal(t, Invalid, Classify(root, invalid, stat))

	dropped := CachedEmbedding{Path: "gone.go", Modified: newer}
	assert.Equal(t, Dropped, Classify(root, dropped, stat))
}

func TestReconcileClassifiesAndFindsNewFiles(t *testing.T) {
	root := t.TempDir()
	older := time.Now().Add(-time.Hour)
	newer := time.Now().Add(time.Hour)

	require.NoError(t, os.WriteFile(filepath.Join(root, "kept.go"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stale.go"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "fresh.go"), []byte("x"), 0o644))

	stat := func(p string) (os.FileInfo, error) { return os.Stat(p) }

	cached := []CachedEmbedding{
		{Path: "kept.go", Modified: newer},
		{Path: "stale.go", Modified: older},
		{Path: "removed.go", Modified: newer},
	}
	current := []string{"kept.go", "stale.go", "fresh.go"}

	r := Reconcile(root, cached, current, stat)
	require.Len(t, r.Valid, 1)
	assert.Equal(t, "kept.go", r.Valid[0].Path)
	require.Len(t, r.Invalid, 1)
	assert.Equal(t, "stale.go", r.Invalid[0].Path)
	require.Len(t, r.New, 1)
	assert.Equal(t, "fresh.go", r.New[0])
}

func TestWatcherMarkAndDrain(t *testing.T) {
	w := NewWatcher()
	w.MarkInvalid("a.go")
	w.MarkInvalid("b.go")
	w.MarkInvalid("a.go")

	drained := w.DrainInvalid()
	assert.ElementsMatch(t, []string{"a.go", "b.go"}, drained)

	assert.Empty(t, w.DrainInvalid())
}
