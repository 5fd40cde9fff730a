package board

import (
	"context"
	"runtime"

	"github.com/lexiclash/server/internal/v1/types"
)

// Pool runs board validations on a bounded set of workers so DFS work
// never blocks the message path. Each check is independent.
type Pool struct {
	jobs chan job
	done chan struct{}
}

type job struct {
	word   string
	grid   types.Grid
	idx    PositionsIndex
	result chan bool
}

// NewPool starts a validation pool with the given parallelism.
// workers <= 0 defaults to GOMAXPROCS.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		jobs: make(chan job, workers*4),
		done: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for {
		select {
		case <-p.done:
			return
		case j := <-p.jobs:
			j.result <- IsOnBoard(j.word, j.grid, j.idx)
		}
	}
}

// Check submits a validation and waits for the verdict. It returns false
// with ctx.Err() when the context ends first; the worker's late result is
// discarded via the buffered channel.
func (p *Pool) Check(ctx context.Context, word string, grid types.Grid, idx PositionsIndex) (bool, error) {
	result := make(chan bool, 1)
	select {
	case p.jobs <- job{word: word, grid: grid, idx: idx, result: result}:
	case <-ctx.Done():
		return false, ctx.Err()
	case <-p.done:
		return false, context.Canceled
	}

	select {
	case ok := <-result:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Close drains the pool. In-flight checks complete; queued jobs are
// abandoned by their callers via context.
func (p *Pool) Close() {
	close(p.done)
}
