package fetch

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go-docfetch/internal/lock"
	"go-docfetch/internal/models"
	"go-docfetch/internal/paths"

	log "github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

// Custom fetcher errors.
var (
	ErrHTTPStatus  = errors.New("unexpected HTTP status code")
	ErrHTTPRequest = errors.New("HTTP request creation/execution error")
	ErrFileSystem  = errors.New("filesystem error") // Covers mkdir, create, rename
)

// LockedReason is the recorded failure reason when another process held the
// destination lock past the timeout.
const LockedReason = "File locked by another process"

// StatusError carries the non-2xx status of a failed fetch so callers can
// record "HTTP <code>" as the failure reason.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("received status %d from %s", e.Code, e.URL)
}

func (e *StatusError) Unwrap() error { return ErrHTTPStatus }

// Reason converts a fetch error into the string recorded in the ledger.
// Lock timeouts and HTTP statuses get their canonical reasons; everything
// else records its message verbatim.
func Reason(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &statusErr):
		return fmt.Sprintf("HTTP %d", statusErr.Code)
	case errors.Is(err, lock.ErrLockTimeout):
		return LockedReason
	default:
		return err.Error()
	}
}

// Options configures a Fetcher.
type Options struct {
	UserAgent   string
	BufferSize  int           // copy chunk size in bytes
	LockTimeout time.Duration // per-destination lock acquisition timeout
	RetryMode   bool          // bypass locking; only safe for race-free re-runs
}

// Fetcher downloads task payloads to their destinations under per-path
// cross-process locks.
type Fetcher struct {
	client      *http.Client
	locks       *lock.Registry
	userAgent   string
	bufSize     int
	lockTimeout time.Duration
	retryMode   bool
}

// New creates a Fetcher. A nil client gets a default with a generous
// timeout; the lock registry must be shared by every fetcher in a process
// so shutdown can release all held locks.
func New(client *http.Client, locks *lock.Registry, opts Options) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Minute}
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 16 * 1024
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 60 * time.Second
	}
	return &Fetcher{
		client:      client,
		locks:       locks,
		userAgent:   opts.UserAgent,
		bufSize:     opts.BufferSize,
		lockTimeout: opts.LockTimeout,
		retryMode:   opts.RetryMode,
	}
}

// Result describes a completed (or short-circuited) transfer.
type Result struct {
	Path          string
	Size          int64
	BLAKE3        string
	AlreadyExists bool
}

// FetchFile downloads one task to its destination. The network read runs
// outside the lock; only the final write and rename are serialized across
// processes. After acquiring the lock the destination is re-checked so a
// racing winner short-circuits the loser to success.
func (f *Fetcher) FetchFile(ctx context.Context, task models.DownloadTask) (Result, error) {
	dest := paths.Destination(task)

	if fileExists(dest) {
		log.Debugf("Destination %s already exists, skipping download of %s", dest, task.URL)
		return Result{Path: dest, AlreadyExists: true}, nil
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Result{}, fmt.Errorf("%w: creating directory %s: %v", ErrFileSystem, dir, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: creating request for %s: %v", ErrHTTPRequest, task.URL, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		log.WithError(err).Errorf("Error performing download request from %s", task.URL)
		return Result{}, fmt.Errorf("%w: performing request for %s: %v", ErrHTTPRequest, task.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Errorf("Download failed with status %d for %s", resp.StatusCode, task.URL)
		return Result{}, &StatusError{Code: resp.StatusCode, URL: task.URL}
	}

	if !f.retryMode {
		token, lockErr := f.locks.Acquire(ctx, dest, f.lockTimeout)
		if lockErr != nil {
			return Result{}, lockErr
		}
		defer token.Release()
	}

	// Re-check under the lock: another process may have finished the same
	// destination while this one waited.
	if fileExists(dest) {
		log.Debugf("Destination %s appeared while waiting for its lock, treating as complete", dest)
		return Result{Path: dest, AlreadyExists: true}, nil
	}

	return f.writeBody(resp.Body, dest)
}

// writeBody streams the response to a temp file in fixed-size chunks,
// syncs, and atomically renames onto the destination.
func (f *Fetcher) writeBody(body io.Reader, dest string) (Result, error) {
	dir := filepath.Dir(dest)
	base := filepath.Base(dest)

	tmp, err := os.CreateTemp(dir, base+".*.tmp")
	if err != nil {
		return Result{}, fmt.Errorf("%w: creating temporary file for %s: %v", ErrFileSystem, dest, err)
	}
	tmpName := tmp.Name()
	cleanupTemp := true
	defer func() {
		if cleanupTemp {
			if removeErr := os.Remove(tmpName); removeErr != nil && !os.IsNotExist(removeErr) {
				log.WithError(removeErr).Warnf("Failed to remove temporary file %s", tmpName)
			}
		}
	}()

	hasher := blake3.New()
	written, err := io.CopyBuffer(io.MultiWriter(tmp, hasher), body, make([]byte, f.bufSize))
	if err != nil {
		_ = tmp.Close()
		return Result{}, fmt.Errorf("writing to temporary file %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return Result{}, fmt.Errorf("%w: syncing temporary file %s: %v", ErrFileSystem, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return Result{}, fmt.Errorf("%w: closing temporary file %s: %v", ErrFileSystem, tmpName, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return Result{}, fmt.Errorf("%w: renaming %s to %s: %v", ErrFileSystem, tmpName, dest, err)
	}
	cleanupTemp = false

	sum := hex.EncodeToString(hasher.Sum(nil))
	log.Infof("Downloaded %s (%d bytes)", dest, written)
	return Result{Path: dest, Size: written, BLAKE3: sum}, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
