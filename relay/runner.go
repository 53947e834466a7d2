package relay

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/reelpost/reelpost/configs"
)

// ErrBusy is returned when a job is submitted while another one is running.
var ErrBusy = errors.New("another job is running")

// Runner admits one job at a time.
type Runner struct {
	running  atomic.Bool
	pipeline *Pipeline
}

func NewRunner(p *Pipeline) *Runner {
	return &Runner{pipeline: p}
}

// Run executes job now or returns ErrBusy without waiting.
func (r *Runner) Run(ctx context.Context, job *configs.Job) (*Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer r.running.Store(false)
	return r.pipeline.Run(ctx, job)
}

// Busy reports whether a job is currently running.
func (r *Runner) Busy() bool {
	return r.running.Load()
}
