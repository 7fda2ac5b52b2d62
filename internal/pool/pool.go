package pool

import (
	"context"
	"sync"

	"go-docfetch/internal/models"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ReportFunc receives one TaskResult per task. The Pool serializes calls,
// so implementations may write to the ledger and stats directly.
type ReportFunc func(models.TaskResult)

// Executor runs one chunk of tasks and reports a result for each.
// GoroutineExecutor runs them inside the current process; ProcessExecutor
// hands the chunk to a re-executed child.
type Executor interface {
	Run(ctx context.Context, chunk []models.DownloadTask, report ReportFunc) error
}

// Pool runs chunks through an Executor with a bounded number of chunks in
// flight.
type Pool struct {
	Exec        Executor
	MaxParallel int
}

// Run drives every chunk to completion. Results from concurrent chunks are
// funneled through a single mutex so the caller's report function never
// runs twice at once. A chunk-level failure stops scheduling new chunks
// but lets in-flight ones finish.
func (p *Pool) Run(ctx context.Context, chunks [][]models.DownloadTask, report ReportFunc) error {
	limit := p.MaxParallel
	if limit < 1 {
		limit = 1
	}

	var mu sync.Mutex
	serialized := func(r models.TaskResult) {
		mu.Lock()
		defer mu.Unlock()
		report(r)
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			log.Debugf("Starting chunk %d/%d (%d tasks)", i+1, len(chunks), len(chunk))
			return p.Exec.Run(ctx, chunk, serialized)
		})
	}
	return g.Wait()
}
