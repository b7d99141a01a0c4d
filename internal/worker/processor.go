// Package worker executes queued pipeline jobs inside an asynq server.
package worker

import (
	"context"
	"fmt"
	"os"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/fieldmemo/internal/logger"
	"github.com/dharsanguruparan/fieldmemo/internal/pipeline"
	"github.com/dharsanguruparan/fieldmemo/internal/queue"
)

// Runner executes a job against stored rows.
type Runner interface {
	RunJob(ctx context.Context, job pipeline.Job) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	runner Runner
	log    *logger.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(runner Runner, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.Nop()
	}
	return &Processor{runner: runner, log: log.WithComponent("worker")}
}

// Handler registers a handler for every job kind.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ProcessMemoTask, p.handle)
	mux.HandleFunc(queue.TranscribeFindingTask, p.handle)
	return mux
}

func (p *Processor) handle(ctx context.Context, task *asynq.Task) error {
	job, err := queue.ParseTask(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	log := p.log.WithFields(map[string]interface{}{
		"kind":              job.Kind,
		"record_id":         job.RecordID,
		logger.FieldOwnerID: job.OwnerID,
	})
	if err := p.runner.RunJob(ctx, job); err != nil {
		// The failure is already on the row; a retry is an explicit request.
		log.WithError(err).Warn("job failed")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	log.Info("job processed")
	return nil
}

// NewServer builds an asynq server that logs through log.
func NewServer(opt asynq.RedisClientOpt, concurrency int, log *logger.Logger) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Logger:      asynqLogger{log: log.WithComponent("asynq")},
	})
}

// asynqLogger adapts Logger to asynq's logging interface.
type asynqLogger struct {
	log *logger.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) {
	l.log.Error(fmt.Sprint(args...))
	os.Exit(1)
}
