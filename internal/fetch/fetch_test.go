package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-docfetch/internal/lock"
	"go-docfetch/internal/models"
)

func newTestServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.pdf":
			http.NotFound(w, r)
		case "/error.pdf":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			_, _ = w.Write([]byte(body))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher(locks *lock.Registry, opts Options) *Fetcher {
	if opts.LockTimeout == 0 {
		opts.LockTimeout = time.Second
	}
	return New(nil, locks, opts)
}

func TestFetchFileSuccess(t *testing.T) {
	srv := newTestServer(t, "fake pdf payload")
	dir := t.TempDir()

	f := newTestFetcher(lock.NewRegistry(), Options{})
	task := models.DownloadTask{
		URL:      srv.URL + "/ok.pdf",
		Folder:   filepath.Join(dir, "court_a"),
		Filename: "ruling",
		Format:   models.FormatPDF,
	}

	res, err := f.FetchFile(context.Background(), task)
	require.NoError(t, err)
	assert.False(t, res.AlreadyExists)
	assert.Equal(t, int64(len("fake pdf payload")), res.Size)
	assert.NotEmpty(t, res.BLAKE3)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "fake pdf payload", string(data))

	// No temp or lock files left behind.
	entries, err := os.ReadDir(filepath.Dir(res.Path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFetchFileNotFound(t *testing.T) {
	srv := newTestServer(t, "")
	dir := t.TempDir()

	f := newTestFetcher(lock.NewRegistry(), Options{})
	task := models.DownloadTask{
		URL:      srv.URL + "/missing.pdf",
		Folder:   dir,
		Filename: "missing",
		Format:   models.FormatPDF,
	}

	_, err := f.FetchFile(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHTTPStatus)
	assert.Equal(t, "HTTP 404", Reason(err))
}

func TestFetchFileServerError(t *testing.T) {
	srv := newTestServer(t, "")
	dir := t.TempDir()

	f := newTestFetcher(lock.NewRegistry(), Options{})
	task := models.DownloadTask{
		URL:      srv.URL + "/error.pdf",
		Folder:   dir,
		Filename: "error",
		Format:   models.FormatPDF,
	}

	_, err := f.FetchFile(context.Background(), task)
	require.Error(t, err)
	assert.Equal(t, "HTTP 500", Reason(err))
}

func TestFetchFileLockedDestination(t *testing.T) {
	srv := newTestServer(t, "payload")
	dir := t.TempDir()

	task := models.DownloadTask{
		URL:      srv.URL + "/ok.pdf",
		Folder:   dir,
		Filename: "contested",
		Format:   models.FormatPDF,
	}
	dest := filepath.Join(dir, "contested.pdf")

	holder := lock.NewRegistry()
	token, err := holder.Acquire(context.Background(), dest, time.Second)
	require.NoError(t, err)
	defer token.Release()

	f := newTestFetcher(lock.NewRegistry(), Options{LockTimeout: 300 * time.Millisecond})
	_, err = f.FetchFile(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, lock.ErrLockTimeout)
	assert.Equal(t, "File locked by another process", Reason(err))

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "no partial file may appear")
}

func TestFetchFileRetryModeBypassesLock(t *testing.T) {
	srv := newTestServer(t, "payload")
	dir := t.TempDir()

	task := models.DownloadTask{
		URL:      srv.URL + "/ok.pdf",
		Folder:   dir,
		Filename: "contested",
		Format:   models.FormatPDF,
	}
	dest := filepath.Join(dir, "contested.pdf")

	holder := lock.NewRegistry()
	token, err := holder.Acquire(context.Background(), dest, time.Second)
	require.NoError(t, err)
	defer token.Release()

	f := newTestFetcher(lock.NewRegistry(), Options{RetryMode: true, LockTimeout: 100 * time.Millisecond})
	res, err := f.FetchFile(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, dest, res.Path)
}

// Many workers racing one destination: exactly one performs the write, the
// rest short-circuit to success after the winner's rename lands.
func TestConcurrentFetchesSameDestination(t *testing.T) {
	srv := newTestServer(t, "contested payload")
	dir := t.TempDir()

	task := models.DownloadTask{
		URL:      srv.URL + "/hot.pdf",
		Folder:   dir,
		Filename: "hot",
		Format:   models.FormatPDF,
	}

	const racers = 8
	var wg sync.WaitGroup
	results := make([]Result, racers)
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Separate registries, so contention goes through the file
			// lock rather than in-process state.
			f := newTestFetcher(lock.NewRegistry(), Options{LockTimeout: 5 * time.Second})
			results[i], errs[i] = f.FetchFile(context.Background(), task)
		}(i)
	}
	wg.Wait()

	writes, skips := 0, 0
	for i := 0; i < racers; i++ {
		require.NoError(t, errs[i])
		if results[i].AlreadyExists {
			skips++
		} else {
			writes++
		}
	}
	assert.Equal(t, 1, writes, "exactly one racer may write the file")
	assert.Equal(t, racers-1, skips)

	data, err := os.ReadFile(filepath.Join(dir, "hot.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "contested payload", string(data))

	// Winner and losers alike must leave no temp or lock files.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFetchFileExistingDestinationShortCircuits(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "done.pdf")
	require.NoError(t, os.WriteFile(dest, []byte("already here"), 0o644))

	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	f := newTestFetcher(lock.NewRegistry(), Options{})
	task := models.DownloadTask{
		URL:      srv.URL + "/done.pdf",
		Folder:   dir,
		Filename: "done",
		Format:   models.FormatPDF,
	}

	res, err := f.FetchFile(context.Background(), task)
	require.NoError(t, err)
	assert.True(t, res.AlreadyExists)
	assert.Equal(t, dest, res.Path)
	assert.Zero(t, requests, "existing destination must not hit the network")

	// Content untouched.
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "already here", string(data))
}

func TestReason(t *testing.T) {
	assert.Equal(t, "", Reason(nil))
	assert.Equal(t, "HTTP 404", Reason(&StatusError{Code: 404, URL: "u"}))
	assert.Equal(t, "File locked by another process", Reason(lock.ErrLockTimeout))
	assert.Equal(t, "boom", Reason(errors.New("boom")))
}
