package capture

import (
	"context"
	"sync/atomic"
	"time"

	appLog "eventboard/internal/log"
)

// Job runs BoardPNG from a cron schedule. A tick that arrives while the
// previous capture is still running is skipped.
type Job struct {
	ctx     context.Context
	opts    Options
	capture func(context.Context, Options) error
	running atomic.Bool
}

// NewJob binds opts to ctx; cancelling ctx aborts an in-flight capture.
func NewJob(ctx context.Context, opts Options) *Job {
	return &Job{ctx: ctx, opts: opts, capture: BoardPNG}
}

// Run implements cron.Job.
func (j *Job) Run() {
	if !j.running.CompareAndSwap(false, true) {
		appLog.Warn("board capture still running; skipping tick")
		return
	}
	defer j.running.Store(false)

	started := time.Now()
	if err := j.capture(j.ctx, j.opts); err != nil {
		appLog.Error("board capture failed", err, "url", j.opts.URL)
		return
	}
	appLog.Info("board captured", "output", j.opts.Output, "took", time.Since(started).Round(time.Millisecond))
}
