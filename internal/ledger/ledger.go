package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-docfetch/internal/models"

	log "github.com/sirupsen/logrus"
)

// FileSuffix is appended to a batch source's stem to derive its ledger path.
const FileSuffix = "_progress.json"

// Ledger is the durable record of per-URL outcomes for one batch source.
// One URL carries exactly one current status: a success evicts any earlier
// failure and a failure replaces the earlier one. A ledger must be mutated
// from a single context per batch; it does no locking of its own.
type Ledger struct {
	path      string
	processed map[string]models.ProgressEntry
	failed    map[string]models.ProgressEntry
}

// fileFormat is the on-disk shape: one JSON document holding every entry.
type fileFormat struct {
	Entries []models.ProgressEntry `json:"entries"`
}

// PathFor derives the ledger path for a batch source file.
func PathFor(batchFile string) string {
	stem := strings.TrimSuffix(batchFile, filepath.Ext(batchFile))
	return stem + FileSuffix
}

// Load reads the ledger at path, creating an empty one if the file does not
// exist. An unreadable ledger is moved aside to a timestamped backup and
// replaced with an empty state rather than failing the run.
func Load(path string) (*Ledger, error) {
	l := &Ledger{
		path:      path,
		processed: make(map[string]models.ProgressEntry),
		failed:    make(map[string]models.ProgressEntry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("reading ledger %s: %w", path, err)
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		backup := fmt.Sprintf("%s.corrupt-%s", path, time.Now().Format("20060102-150405"))
		log.WithError(err).Errorf("Ledger %s is unreadable, backing up to %s and starting empty", path, backup)
		if renameErr := os.Rename(path, backup); renameErr != nil {
			log.WithError(renameErr).Warnf("Failed to back up corrupt ledger %s", path)
		}
		return l, nil
	}

	for _, e := range ff.Entries {
		switch e.Status {
		case models.StatusSuccess:
			l.processed[e.URL] = e
			delete(l.failed, e.URL)
		case models.StatusFailed:
			if _, done := l.processed[e.URL]; !done {
				l.failed[e.URL] = e
			}
		default:
			log.Warnf("Ignoring ledger entry with unknown status %q for %s", e.Status, e.URL)
		}
	}
	log.Debugf("Loaded ledger %s: %d processed, %d failed", path, len(l.processed), len(l.failed))
	return l, nil
}

// Path returns the ledger's file path.
func (l *Ledger) Path() string {
	return l.path
}

// MarkSuccess records a successful URL, evicting any earlier failure, and
// saves immediately. Idempotent.
func (l *Ledger) MarkSuccess(url string) error {
	l.processed[url] = models.ProgressEntry{
		URL:       url,
		Status:    models.StatusSuccess,
		Timestamp: time.Now(),
	}
	delete(l.failed, url)
	return l.save()
}

// MarkFailure records a failed URL, replacing any earlier failure entry with
// the newest reason, and saves immediately. A URL that already succeeded
// keeps its success.
func (l *Ledger) MarkFailure(url, reason string) error {
	if _, done := l.processed[url]; done {
		log.Debugf("Ignoring failure for already-successful URL %s: %s", url, reason)
		return nil
	}
	l.failed[url] = models.ProgressEntry{
		URL:       url,
		Status:    models.StatusFailed,
		Error:     reason,
		Timestamp: time.Now(),
	}
	return l.save()
}

// save writes the full ledger to a temp file and atomically replaces the
// real one. A crash mid-save leaves the previously committed file intact.
func (l *Ledger) save() error {
	ff := fileFormat{Entries: make([]models.ProgressEntry, 0, len(l.processed)+len(l.failed))}
	for _, e := range l.processed {
		ff.Entries = append(ff.Entries, e)
	}
	for _, e := range l.failed {
		ff.Entries = append(ff.Entries, e)
	}

	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling ledger: %w", err)
	}

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp ledger file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing temp ledger file %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("syncing temp ledger file %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp ledger file %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing ledger %s: %w", l.path, err)
	}
	return nil
}

// IsProcessed reports whether url has already succeeded.
func (l *Ledger) IsProcessed(url string) bool {
	_, ok := l.processed[url]
	return ok
}

// Processed returns the set of successfully processed URLs.
func (l *Ledger) Processed() map[string]struct{} {
	out := make(map[string]struct{}, len(l.processed))
	for url := range l.processed {
		out[url] = struct{}{}
	}
	return out
}

// Failed returns the current failure reason per URL.
func (l *Ledger) Failed() map[string]string {
	out := make(map[string]string, len(l.failed))
	for url, e := range l.failed {
		out[url] = e.Error
	}
	return out
}

// FailedEntries returns the full failure entries, newest reasons only.
func (l *Ledger) FailedEntries() []models.ProgressEntry {
	out := make([]models.ProgressEntry, 0, len(l.failed))
	for _, e := range l.failed {
		out = append(out, e)
	}
	return out
}

// Pending returns the URLs that failed and have not since succeeded.
func (l *Ledger) Pending() []string {
	out := make([]string, 0, len(l.failed))
	for url := range l.failed {
		out = append(out, url)
	}
	return out
}

// Counts returns the number of processed and currently failed URLs.
func (l *Ledger) Counts() (processed, failed int) {
	return len(l.processed), len(l.failed)
}

// Clear resets the ledger to empty state and saves.
func (l *Ledger) Clear() error {
	l.processed = make(map[string]models.ProgressEntry)
	l.failed = make(map[string]models.ProgressEntry)
	return l.save()
}
