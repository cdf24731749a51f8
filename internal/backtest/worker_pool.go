package backtest

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// Job is one independent backtest, usually one symbol
type Job struct {
	ID      string
	Runner  *Runner
	Candles []types.OHLCV
}

// JobResult pairs a job with its outcome
type JobResult struct {
	ID       string
	Result   *Result
	Duration time.Duration
	Err      error
}

// RunBatch runs jobs concurrently with at most workers in flight and returns
// results in job order. A failing job does not stop the others.
func RunBatch(ctx context.Context, jobs []Job, workers int) ([]JobResult, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]JobResult, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			res, err := job.Runner.Run(job.Candles)
			results[i] = JobResult{ID: job.ID, Result: res, Duration: time.Since(start), Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
