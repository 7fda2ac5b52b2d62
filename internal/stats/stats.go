package stats

import (
	"path/filepath"
	"strings"
)

// Download is one successful transfer.
type Download struct {
	URL  string
	Path string
}

// Failure is one failed transfer with its recorded reason.
type Failure struct {
	URL   string
	Error string
}

// Aggregator accumulates per-chunk download outcomes. Chunks complete in
// arbitrary order under concurrent execution, so Merge is additive and
// commutative.
type Aggregator struct {
	byFormat   map[string]int
	successful []Download
	failed     []Failure
}

// Summary is a point-in-time snapshot of an aggregator. Total covers every
// attempted task, success or failure.
type Summary struct {
	Doc        int
	PDF        int
	Total      int
	Successful int
	Failed     int
	Downloads  []Download
	Failures   []Failure
}

// New returns an empty aggregator.
func New() *Aggregator {
	return &Aggregator{byFormat: make(map[string]int)}
}

// NormalizeExt collapses a path's extension to a counting key: .doc and
// .docx both count as "doc", .pdf as "pdf", anything else as its bare
// lowercased extension.
func NormalizeExt(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "docx" {
		return "doc"
	}
	return ext
}

// AddSuccess records a successful download of path.
func (a *Aggregator) AddSuccess(url, path string) {
	a.byFormat[NormalizeExt(path)]++
	a.successful = append(a.successful, Download{URL: url, Path: path})
}

// AddFailure records a failed download with its reason.
func (a *Aggregator) AddFailure(url, reason string) {
	a.failed = append(a.failed, Failure{URL: url, Error: reason})
}

// Merge folds other into a. Counter addition commutes, so chunk completion
// order does not affect the final counts.
func (a *Aggregator) Merge(other *Aggregator) {
	for format, n := range other.byFormat {
		a.byFormat[format] += n
	}
	a.successful = append(a.successful, other.successful...)
	a.failed = append(a.failed, other.failed...)
}

// Count returns the successful-download count for a normalized format key.
func (a *Aggregator) Count(format string) int {
	return a.byFormat[format]
}

// Summary snapshots the aggregator.
func (a *Aggregator) Summary() Summary {
	return Summary{
		Doc:        a.byFormat["doc"],
		PDF:        a.byFormat["pdf"],
		Total:      len(a.successful) + len(a.failed),
		Successful: len(a.successful),
		Failed:     len(a.failed),
		Downloads:  append([]Download(nil), a.successful...),
		Failures:   append([]Failure(nil), a.failed...),
	}
}
