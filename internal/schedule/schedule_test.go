package schedule

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"go-docfetch/internal/models"
)

func TestClampChunkSize(t *testing.T) {
	assert.Equal(t, 10, ClampChunkSize(1))
	assert.Equal(t, 10, ClampChunkSize(10))
	assert.Equal(t, 50, ClampChunkSize(50))
	assert.Equal(t, 500, ClampChunkSize(500))
	assert.Equal(t, 500, ClampChunkSize(10000))
	assert.Equal(t, 10, ClampChunkSize(0))
	assert.Equal(t, 10, ClampChunkSize(-5))
}

func makeTasks(n int) []models.DownloadTask {
	tasks := make([]models.DownloadTask, n)
	for i := range tasks {
		tasks[i] = models.DownloadTask{
			URL:      fmt.Sprintf("https://example.com/doc/%d", i),
			Folder:   "court_a",
			Filename: fmt.Sprintf("doc_%d", i),
			Format:   models.FormatPDF,
		}
	}
	return tasks
}

func TestBuildChunksSplitsEvenly(t *testing.T) {
	chunks := BuildChunks(makeTasks(25), nil, 10)
	assert.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 10)
	assert.Len(t, chunks[1], 10)
	assert.Len(t, chunks[2], 5)
}

func TestBuildChunksSkipsProcessed(t *testing.T) {
	tasks := makeTasks(30)
	processed := map[string]struct{}{
		tasks[0].URL:  {},
		tasks[5].URL:  {},
		tasks[29].URL: {},
	}

	chunks := BuildChunks(tasks, processed, 100)
	assert.Len(t, chunks, 1)
	assert.Len(t, chunks[0], 27)
	for _, task := range chunks[0] {
		_, skipped := processed[task.URL]
		assert.False(t, skipped, "processed URL %s must not be rescheduled", task.URL)
	}
}

func TestBuildChunksPreservesOrder(t *testing.T) {
	tasks := makeTasks(15)
	chunks := BuildChunks(tasks, nil, 10)

	var flat []string
	for _, chunk := range chunks {
		for _, task := range chunk {
			flat = append(flat, task.URL)
		}
	}
	for i, task := range tasks {
		assert.Equal(t, task.URL, flat[i])
	}
}

func TestBuildChunksAllProcessed(t *testing.T) {
	tasks := makeTasks(5)
	processed := make(map[string]struct{}, len(tasks))
	for _, task := range tasks {
		processed[task.URL] = struct{}{}
	}
	assert.Empty(t, BuildChunks(tasks, processed, 10))
}

func TestGroupByHost(t *testing.T) {
	tasks := []models.DownloadTask{
		{URL: "https://alpha.example.com/1"},
		{URL: "https://beta.example.com/2"},
		{URL: "https://ALPHA.example.com/3"},
		{URL: "https://beta.example.com/4"},
	}

	groups := GroupByHost(tasks)
	assert.Len(t, groups, 2)

	// First-seen host order is preserved.
	assert.Equal(t, "alpha.example.com", groups[0].Host)
	assert.Len(t, groups[0].Tasks, 2)
	assert.Equal(t, "beta.example.com", groups[1].Host)
	assert.Len(t, groups[1].Tasks, 2)
}

func TestGroupByHostSingleHost(t *testing.T) {
	groups := GroupByHost(makeTasks(8))
	assert.Len(t, groups, 1)
	assert.Len(t, groups[0].Tasks, 8)
}
