package index

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(path string) Record {
	return Record{
		URL:         "https://example.com/" + filepath.Base(path),
		Path:        path,
		Size:        1234,
		BLAKE3:      "deadbeef",
		CompletedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer db.Close()

	rec := testRecord("/data/court_a/ruling.pdf")
	require.NoError(t, db.Put(rec))

	got, err := db.Get(rec.Path)
	require.NoError(t, err)
	assert.Equal(t, rec.URL, got.URL)
	assert.Equal(t, rec.Size, got.Size)
	assert.Equal(t, rec.BLAKE3, got.BLAKE3)
}

func TestGetMissingKey(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Get("/nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutRejectsEmptyPath(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer db.Close()

	assert.Error(t, db.Put(Record{URL: "https://example.com/x"}))
}

func TestFoldVisitsEveryRecord(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer db.Close()

	paths := []string{"/a/one.pdf", "/a/two.docx", "/b/three.doc"}
	for _, p := range paths {
		require.NoError(t, db.Put(testRecord(p)))
	}

	seen := make(map[string]bool)
	require.NoError(t, db.Fold(func(rec Record) error {
		seen[rec.Path] = true
		return nil
	}))
	assert.Len(t, seen, 3)
	assert.Equal(t, 3, db.Len())
}

func TestMissing(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	defer db.Close()

	present := filepath.Join(dir, "present.pdf")
	require.NoError(t, os.WriteFile(present, []byte("x"), 0o644))
	gone := filepath.Join(dir, "gone.pdf")

	require.NoError(t, db.Put(testRecord(present)))
	require.NoError(t, db.Put(testRecord(gone)))

	missing, err := db.Missing()
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, gone, missing[0].Path)
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	db, err := Open(path)
	require.NoError(t, err)
	rec := testRecord("/data/persist.pdf")
	require.NoError(t, db.Put(rec))
	require.NoError(t, db.Close())

	db2, err := Open(path)
	require.NoError(t, err)
	defer db2.Close()
	got, err := db2.Get(rec.Path)
	require.NoError(t, err)
	assert.Equal(t, rec.URL, got.URL)
}
