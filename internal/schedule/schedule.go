package schedule

import (
	"go-docfetch/internal/models"

	log "github.com/sirupsen/logrus"
)

// Chunk size bounds. A chunk is the contiguous slice of the task list handed
// to one worker process.
const (
	MinChunkSize = 10
	MaxChunkSize = 500
)

// ClampChunkSize bounds n to the allowed chunk-size range.
func ClampChunkSize(n int) int {
	if n < MinChunkSize {
		return MinChunkSize
	}
	if n > MaxChunkSize {
		return MaxChunkSize
	}
	return n
}

// BuildChunks filters out tasks whose URL already succeeded (resume) and
// partitions the remainder into contiguous chunks of the clamped chunk size,
// preserving the original task order throughout.
func BuildChunks(tasks []models.DownloadTask, processed map[string]struct{}, chunkSize int) [][]models.DownloadTask {
	chunkSize = ClampChunkSize(chunkSize)

	remaining := make([]models.DownloadTask, 0, len(tasks))
	for _, t := range tasks {
		if _, done := processed[t.URL]; done {
			continue
		}
		remaining = append(remaining, t)
	}
	if skipped := len(tasks) - len(remaining); skipped > 0 {
		log.Infof("Resume: skipping %d already-processed URLs", skipped)
	}

	var chunks [][]models.DownloadTask
	for start := 0; start < len(remaining); start += chunkSize {
		end := start + chunkSize
		if end > len(remaining) {
			end = len(remaining)
		}
		chunks = append(chunks, remaining[start:end])
	}
	return chunks
}

// HostGroup is the tasks of one chunk that share a target host, in their
// original order.
type HostGroup struct {
	Host  string
	Tasks []models.DownloadTask
}

// GroupByHost splits a chunk into per-host groups, preserving first-seen
// host order and task order within each group. Same-host tasks are then run
// in paced sub-batches while distinct hosts proceed unconstrained.
func GroupByHost(tasks []models.DownloadTask) []HostGroup {
	index := make(map[string]int)
	var groups []HostGroup
	for _, t := range tasks {
		host := t.Host()
		i, seen := index[host]
		if !seen {
			index[host] = len(groups)
			groups = append(groups, HostGroup{Host: host})
			i = len(groups) - 1
		}
		groups[i].Tasks = append(groups[i].Tasks, t)
	}
	return groups
}
