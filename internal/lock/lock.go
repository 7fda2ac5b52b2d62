package lock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
)

// Suffix is appended to a destination path to form its lock file.
const Suffix = ".lock"

// retryInterval is how often a blocked acquisition re-attempts the lock.
const retryInterval = 100 * time.Millisecond

// ErrLockTimeout is returned when a lock could not be acquired within the
// caller's timeout. It is distinguishable from network and filesystem
// failures so the caller can record it with its own failure reason.
var ErrLockTimeout = errors.New("lock held by another process")

// Registry tracks the lock files currently held by this process so a
// shutdown hook can release them all. It is plain local state handed to
// whoever needs it; there is no package-level instance.
type Registry struct {
	mu     sync.Mutex
	active map[string]*flock.Flock
}

// NewRegistry returns an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*flock.Flock)}
}

// Token is a held lock on one destination path. Exactly one token per
// destination may exist system-wide at any instant; it lives only between
// Acquire and Release and is never persisted.
type Token struct {
	reg  *Registry
	fl   *flock.Flock
	once sync.Once
}

// Acquire takes a cross-process advisory lock on dest's lock file, blocking
// up to timeout. On timeout it returns ErrLockTimeout.
func (r *Registry) Acquire(ctx context.Context, dest string, timeout time.Duration) (*Token, error) {
	lockPath := dest + Suffix
	fl := flock.New(lockPath)

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	locked, err := fl.TryLockContext(lockCtx, retryInterval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Debugf("Timed out after %v waiting for lock %s", timeout, lockPath)
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, lockPath)
		}
		return nil, fmt.Errorf("acquiring lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, lockPath)
	}

	r.mu.Lock()
	r.active[lockPath] = fl
	r.mu.Unlock()
	log.Debugf("Acquired lock %s", lockPath)

	return &Token{reg: r, fl: fl}, nil
}

// Release unlocks the token and removes its lock file. Safe to call more
// than once and from a defer on every exit path.
func (t *Token) Release() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		t.reg.release(t.fl)
	})
}

// Unlinking the lock file means a waiter polling the old inode and a
// newcomer on the recreated file can hold "the lock" at the same instant.
// Writes stay safe regardless: every acquirer re-checks the destination
// under its lock, and the file lands via atomic rename.
func (r *Registry) release(fl *flock.Flock) {
	path := fl.Path()
	if err := fl.Unlock(); err != nil {
		log.WithError(err).Warnf("Failed to unlock %s", path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warnf("Failed to remove lock file %s", path)
	}
	r.mu.Lock()
	delete(r.active, path)
	r.mu.Unlock()
	log.Debugf("Released lock %s", path)
}

// ReleaseAll releases every lock still held. Called from the shutdown path
// so an interrupted run does not leave lock files behind.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	held := make([]*flock.Flock, 0, len(r.active))
	for _, fl := range r.active {
		held = append(held, fl)
	}
	r.mu.Unlock()

	for _, fl := range held {
		r.release(fl)
	}
}

// Held reports how many locks the registry currently tracks.
func (r *Registry) Held() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// RemoveStaleLocks deletes every *.lock file under root. Lock files must not
// outlive a run; this sweeps up after crashed or killed processes.
func RemoveStaleLocks(root string) (int, error) {
	removed := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), Suffix) {
			return nil
		}
		if rmErr := os.Remove(path); rmErr != nil {
			log.WithError(rmErr).Warnf("Failed to remove stale lock file %s", path)
			return nil
		}
		log.Infof("Removed stale lock file: %s", path)
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("sweeping lock files under %s: %w", root, err)
	}
	return removed, nil
}
