package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dharsanguruparan/fieldmemo/internal/model"
)

// JobKind names the background work that follows a synchronous ingest.
type JobKind string

const (
	// JobProcessMemo transcribes a memo and extracts its tasks.
	JobProcessMemo JobKind = "memo:process"
	// JobTranscribeFinding transcribes a voice finding.
	JobTranscribeFinding JobKind = "finding:transcribe"
)

// Job identifies a stored row whose remaining stages should run.
type Job struct {
	Kind     JobKind `json:"kind"`
	OwnerID  string  `json:"owner_id"`
	RecordID string  `json:"record_id"`
}

// RunJob resumes the row named by job. Failures are already recorded on the
// row when this returns.
func (p *Pipeline) RunJob(ctx context.Context, job Job) error {
	switch job.Kind {
	case JobProcessMemo:
		_, err := p.ResumeMemo(ctx, job.OwnerID, job.RecordID)
		return err
	case JobTranscribeFinding:
		_, err := p.ResumeFinding(ctx, job.OwnerID, job.RecordID)
		return err
	}
	return fmt.Errorf("unknown job kind %q", job.Kind)
}

func validDate(s string) bool {
	_, err := time.Parse(model.DateLayout, s)
	return err == nil
}

// FailJob records that a job could not be run at all, so the row does not
// stay pending forever.
func (p *Pipeline) FailJob(ctx context.Context, job Job, reason string) error {
	switch job.Kind {
	case JobProcessMemo:
		memo, err := p.store.GetMemo(ctx, job.OwnerID, job.RecordID)
		if err != nil {
			return lookup(err, "voice memo", job.RecordID)
		}
		if memo.TranscriptStatus != model.StageDone {
			return p.store.MarkTranscriptFailed(ctx, job.OwnerID, job.RecordID, reason)
		}
		return p.store.MarkExtractFailed(ctx, job.OwnerID, job.RecordID, reason)
	case JobTranscribeFinding:
		return p.store.MarkFindingTranscriptFailed(ctx, job.OwnerID, job.RecordID, reason)
	}
	return fmt.Errorf("unknown job kind %q", job.Kind)
}
