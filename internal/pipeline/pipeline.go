// Package pipeline runs captured media through ingest, transcription, task
// extraction and report generation. Every stage records its outcome on the
// row it owns before returning, so the state survives a restart and the
// caller can decide whether a retry applies.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/dharsanguruparan/fieldmemo/internal/ai"
	"github.com/dharsanguruparan/fieldmemo/internal/apperr"
	"github.com/dharsanguruparan/fieldmemo/internal/logger"
	"github.com/dharsanguruparan/fieldmemo/internal/model"
	"github.com/dharsanguruparan/fieldmemo/internal/repository"
	"github.com/dharsanguruparan/fieldmemo/internal/storage"
)

// Store is the subset of the structured store the pipeline writes through.
type Store interface {
	CreateMemo(ctx context.Context, m *model.VoiceMemo) error
	GetMemo(ctx context.Context, ownerID, id string) (*model.VoiceMemo, error)
	SaveTranscript(ctx context.Context, ownerID, id, transcript string) error
	MarkTranscriptFailed(ctx context.Context, ownerID, id, msg string) error
	CompleteExtraction(ctx context.Context, ownerID, memoID string, tasks []*model.Task) error
	MarkExtractFailed(ctx context.Context, ownerID, id, msg string) error
	DeleteMemo(ctx context.Context, ownerID, id string) error

	CreateInspection(ctx context.Context, in *model.Inspection) error
	GetInspection(ctx context.Context, ownerID, id string) (*model.Inspection, error)
	CompleteReport(ctx context.Context, ownerID, id, summary string) error
	SaveCloseout(ctx context.Context, ownerID, id string, qna model.CloseoutQnA) error
	DeleteInspection(ctx context.Context, ownerID, id string) error

	CreateFinding(ctx context.Context, f *model.Finding) error
	GetFinding(ctx context.Context, ownerID, id string) (*model.Finding, error)
	ListFindings(ctx context.Context, ownerID, inspectionID string) ([]*model.Finding, error)
	SaveFindingTranscript(ctx context.Context, ownerID, id, transcript string) error
	MarkFindingTranscriptFailed(ctx context.Context, ownerID, id, msg string) error
	DeleteFinding(ctx context.Context, ownerID, id string) error
}

// Buckets names the blob store buckets for each capture destination.
type Buckets struct {
	VoiceMemos       string
	InspectionPhotos string
}

// DefaultBuckets matches the bucket names provisioned by the stack.
var DefaultBuckets = Buckets{VoiceMemos: "voice-memos", InspectionPhotos: "inspection-photos"}

// Pipeline wires the stages to their collaborators.
type Pipeline struct {
	store       Store
	blobs       storage.BlobStore
	transcriber ai.Transcriber
	completer   ai.Completer
	buckets     Buckets
	log         *logger.Logger
	now         func() time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used by every stage.
func WithLogger(l *logger.Logger) Option {
	return func(p *Pipeline) { p.log = l.WithComponent("pipeline") }
}

// WithBuckets overrides the bucket names.
func WithBuckets(b Buckets) Option {
	return func(p *Pipeline) { p.buckets = b }
}

// WithClock overrides the time source used for storage keys.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New constructs a Pipeline.
func New(store Store, blobs storage.BlobStore, transcriber ai.Transcriber, completer ai.Completer, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:       store,
		blobs:       blobs,
		transcriber: transcriber,
		completer:   completer,
		buckets:     DefaultBuckets,
		log:         logger.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Buckets returns the configured bucket names.
func (p *Pipeline) Buckets() Buckets {
	return p.buckets
}

// lookup converts a missing row into a NotFound error.
func lookup(err error, resource, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(resource, id)
	}
	return err
}

// lookupStorage is lookup for writes: anything other than a missing row is a
// store failure.
func lookupStorage(err error, resource, id, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(resource, id)
	}
	return apperr.Storage(msg, err)
}
