package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-docfetch/internal/fetch"
	"go-docfetch/internal/models"
	"go-docfetch/internal/schedule"

	log "github.com/sirupsen/logrus"
)

// GoroutineExecutor downloads a chunk with a bounded set of goroutines.
// Tasks are grouped by host; groups run concurrently while each group
// works through paced sub-batches so no single host is hammered.
type GoroutineExecutor struct {
	Fetcher      *fetch.Fetcher
	Workers      int
	SubBatchSize int
	HostDelay    time.Duration
}

// Run executes one chunk. The worker limit is shared across all host
// groups via a single semaphore. Panics in a task are recovered and
// reported as that task's failure so one bad URL cannot take down the
// whole chunk.
func (e *GoroutineExecutor) Run(ctx context.Context, chunk []models.DownloadTask, report ReportFunc) error {
	workers := e.Workers
	if workers < 1 {
		workers = 1
	}
	subBatch := e.SubBatchSize
	if subBatch < 1 {
		subBatch = 1
	}

	sem := make(chan struct{}, workers)
	groups := schedule.GroupByHost(chunk)

	var wg sync.WaitGroup
	for _, group := range groups {
		wg.Add(1)
		go func(group schedule.HostGroup) {
			defer wg.Done()
			e.runHostGroup(ctx, group, sem, subBatch, report)
		}(group)
	}
	wg.Wait()
	return nil
}

// runHostGroup works through one host's tasks in sub-batches, sleeping
// between batches to pace requests against that host.
func (e *GoroutineExecutor) runHostGroup(ctx context.Context, group schedule.HostGroup, sem chan struct{}, subBatch int, report ReportFunc) {
	tasks := group.Tasks
	for start := 0; start < len(tasks); start += subBatch {
		end := start + subBatch
		if end > len(tasks) {
			end = len(tasks)
		}

		var wg sync.WaitGroup
		for _, task := range tasks[start:end] {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				report(models.TaskResult{URL: task.URL, Error: ctx.Err().Error()})
				continue
			}
			wg.Add(1)
			go func(task models.DownloadTask) {
				defer wg.Done()
				defer func() { <-sem }()
				report(e.runTask(ctx, task))
			}(task)
		}
		wg.Wait()

		if end < len(tasks) && e.HostDelay > 0 {
			log.Debugf("Pacing host %s for %s", group.Host, e.HostDelay)
			select {
			case <-time.After(e.HostDelay):
			case <-ctx.Done():
			}
		}
	}
}

func (e *GoroutineExecutor) runTask(ctx context.Context, task models.DownloadTask) (result models.TaskResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Recovered panic downloading %s: %v", task.URL, r)
			result = models.TaskResult{URL: task.URL, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	result = models.TaskResult{URL: task.URL}
	res, err := e.Fetcher.FetchFile(ctx, task)
	if err != nil {
		result.Error = fetch.Reason(err)
		return result
	}
	result.Success = true
	result.Path = res.Path
	result.Size = res.Size
	result.BLAKE3 = res.BLAKE3
	result.Skipped = res.AlreadyExists
	return result
}
