// Package queue moves pipeline jobs through Redis with asynq.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/fieldmemo/internal/config"
	"github.com/dharsanguruparan/fieldmemo/internal/pipeline"
)

const (
	// ProcessMemoTask is scheduled after a voice memo is ingested.
	ProcessMemoTask = string(pipeline.JobProcessMemo)
	// TranscribeFindingTask is scheduled after a voice finding is ingested.
	TranscribeFindingTask = string(pipeline.JobTranscribeFinding)
)

// Payload is serialized into the task so the worker knows which row to resume.
type Payload struct {
	OwnerID  string `json:"owner_id"`
	RecordID string `json:"record_id"`
}

// RedisOpt converts configuration into asynq connection options.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
}

// NewTask encodes a job. Retries are disabled: a failed stage is recorded on
// its row and retried only on request.
func NewTask(job pipeline.Job) (*asynq.Task, error) {
	data, err := json.Marshal(Payload{OwnerID: job.OwnerID, RecordID: job.RecordID})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(string(job.Kind), data, asynq.MaxRetry(0)), nil
}

// ParseTask decodes a task produced by NewTask.
func ParseTask(task *asynq.Task) (pipeline.Job, error) {
	var payload Payload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return pipeline.Job{}, fmt.Errorf("decode payload: %w", err)
	}
	return pipeline.Job{Kind: pipeline.JobKind(task.Type()), OwnerID: payload.OwnerID, RecordID: payload.RecordID}, nil
}

// Client enqueues jobs on Redis.
type Client struct {
	client *asynq.Client
}

// NewClient connects an asynq client.
func NewClient(cfg config.RedisConfig) *Client {
	return &Client{client: asynq.NewClient(RedisOpt(cfg))}
}

// Dispatch enqueues a pipeline job.
func (c *Client) Dispatch(ctx context.Context, job pipeline.Job) error {
	task, err := NewTask(job)
	if err != nil {
		return err
	}
	if _, err := c.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue %s task: %w", job.Kind, err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
