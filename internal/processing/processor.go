// Package processing runs pipeline jobs on an in-process worker pool when no
// Redis queue is configured. Goroutines + channels power the implementation.
package processing

import (
	"context"
	"errors"
	"sync"

	"github.com/dharsanguruparan/fieldmemo/internal/logger"
	"github.com/dharsanguruparan/fieldmemo/internal/pipeline"
)

// ErrQueueFull is returned by Dispatch when the buffer has no room.
var ErrQueueFull = errors.New("processing queue full")

// ErrShutdown is recorded on rows whose jobs were still queued at shutdown.
var ErrShutdown = errors.New("processing stopped before the job ran")

// Runner executes one job and records failures on the job's row.
type Runner interface {
	RunJob(ctx context.Context, job pipeline.Job) error
	FailJob(ctx context.Context, job pipeline.Job, reason string) error
}

// Processor consumes Jobs from a buffered channel.
type Processor struct {
	runner  Runner
	queue   chan pipeline.Job
	workers int
	log     *logger.Logger
	wg      sync.WaitGroup
}

// New builds a Processor with queue capacity tied to worker count.
func New(runner Runner, workers int, log *logger.Logger) *Processor {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Processor{
		runner: runner,
		// Buffered so uploads return without waiting for a free worker.
		queue:   make(chan pipeline.Job, workers*4),
		workers: workers,
		log:     log.WithComponent("processing"),
	}
}

// Start launches worker goroutines. They exit when ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Wait blocks until every worker has exited.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// Dispatch queues a job. When the buffer is full the job is dropped and its
// row is marked failed so the ledger reflects reality.
func (p *Processor) Dispatch(ctx context.Context, job pipeline.Job) error {
	select {
	case p.queue <- job:
		return nil
	default:
	}
	p.log.Warn("processor queue full, dropping job", map[string]interface{}{
		"kind":              job.Kind,
		"record_id":         job.RecordID,
		logger.FieldOwnerID: job.OwnerID,
	})
	if err := p.runner.FailJob(ctx, job, ErrQueueFull.Error()); err != nil {
		return errors.Join(ErrQueueFull, err)
	}
	return ErrQueueFull
}

func (p *Processor) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		if ctx.Err() != nil {
			p.drain(context.WithoutCancel(ctx))
			return
		}
		select {
		case <-ctx.Done():
			p.drain(context.WithoutCancel(ctx))
			return
		case job := <-p.queue:
			p.process(ctx, job)
		}
	}
}

// drain marks every job still buffered at shutdown as failed.
func (p *Processor) drain(ctx context.Context) {
	for {
		select {
		case job := <-p.queue:
			p.log.Warn("shutting down, dropping queued job", map[string]interface{}{
				"kind":              job.Kind,
				"record_id":         job.RecordID,
				logger.FieldOwnerID: job.OwnerID,
			})
			if err := p.runner.FailJob(ctx, job, ErrShutdown.Error()); err != nil {
				p.log.WithError(err).Error("record dropped job", map[string]interface{}{"record_id": job.RecordID})
			}
		default:
			return
		}
	}
}

func (p *Processor) process(ctx context.Context, job pipeline.Job) {
	// Stages already in flight run to completion even if shutdown starts.
	runCtx := context.WithoutCancel(ctx)
	if err := p.runner.RunJob(runCtx, job); err != nil {
		p.log.WithError(err).Warn("job finished with error", map[string]interface{}{
			"kind":      job.Kind,
			"record_id": job.RecordID,
		})
		return
	}
	p.log.Debug("job finished", map[string]interface{}{"kind": job.Kind, "record_id": job.RecordID})
}
