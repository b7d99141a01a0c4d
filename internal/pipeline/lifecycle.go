package pipeline

import (
	"context"
	"strings"

	"github.com/dharsanguruparan/fieldmemo/internal/apperr"
	"github.com/dharsanguruparan/fieldmemo/internal/logger"
	"github.com/dharsanguruparan/fieldmemo/internal/model"
)

// ProcessMemo runs a new recording through every stage in order. The memo is
// returned whenever ingest succeeded, together with the first stage error.
func (p *Pipeline) ProcessMemo(ctx context.Context, in MemoInput) (*model.VoiceMemo, error) {
	memo, err := p.IngestMemo(ctx, in)
	if err != nil {
		return nil, err
	}
	memo, err = p.TranscribeMemo(ctx, memo, in.Capture.Data)
	if err != nil {
		return memo, err
	}
	return p.ExtractTasks(ctx, memo)
}

// ResumeMemo re-runs the first stage of a stored memo that is not done,
// followed by the rest of the chain. It is the explicit retry for memos left
// pending or in error.
func (p *Pipeline) ResumeMemo(ctx context.Context, ownerID, memoID string) (*model.VoiceMemo, error) {
	memo, err := p.store.GetMemo(ctx, ownerID, memoID)
	if err != nil {
		return nil, lookup(err, "voice memo", memoID)
	}
	if memo.TranscriptStatus != model.StageDone {
		memo, err = p.TranscribeMemo(ctx, memo, nil)
		if err != nil {
			return memo, err
		}
	}
	if memo.ExtractStatus != model.StageDone {
		return p.ExtractTasks(ctx, memo)
	}
	return memo, nil
}

// AddFinding ingests a finding and, for voice findings, transcribes it. The
// finding is returned whenever ingest succeeded.
func (p *Pipeline) AddFinding(ctx context.Context, in FindingInput) (*model.Finding, error) {
	f, err := p.IngestFinding(ctx, in)
	if err != nil {
		return nil, err
	}
	if !f.HasVoice() {
		return f, nil
	}
	return p.TranscribeFinding(ctx, f, in.Capture.Data)
}

// ResumeFinding retries transcription of a voice finding. Other findings
// have no stages to run and are returned as they are.
func (p *Pipeline) ResumeFinding(ctx context.Context, ownerID, findingID string) (*model.Finding, error) {
	f, err := p.store.GetFinding(ctx, ownerID, findingID)
	if err != nil {
		return nil, lookup(err, "finding", findingID)
	}
	if !f.HasVoice() {
		return f, nil
	}
	return p.TranscribeFinding(ctx, f, nil)
}

// GetMemo returns one of the owner's memos.
func (p *Pipeline) GetMemo(ctx context.Context, ownerID, memoID string) (*model.VoiceMemo, error) {
	memo, err := p.store.GetMemo(ctx, ownerID, memoID)
	if err != nil {
		return nil, lookup(err, "voice memo", memoID)
	}
	return memo, nil
}

// GetInspection returns one of the owner's inspections.
func (p *Pipeline) GetInspection(ctx context.Context, ownerID, inspectionID string) (*model.Inspection, error) {
	in, err := p.store.GetInspection(ctx, ownerID, inspectionID)
	if err != nil {
		return nil, lookup(err, "inspection", inspectionID)
	}
	return in, nil
}

// CreateInspection starts a draft inspection for the given date.
func (p *Pipeline) CreateInspection(ctx context.Context, ownerID, title, date string) (*model.Inspection, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	if !validDate(date) {
		return nil, apperr.Validation("invalid date %q, expected YYYY-MM-DD", date)
	}
	in := &model.Inspection{OwnerID: ownerID, Title: title, InspectionDate: date}
	if err := p.store.CreateInspection(ctx, in); err != nil {
		return nil, apperr.Storage("Failed to create inspection", err)
	}
	p.log.Info("inspection created", map[string]interface{}{
		logger.FieldOwnerID:      ownerID,
		logger.FieldInspectionID: in.ID,
	})
	return in, nil
}

// DeleteMemo removes the memo's audio and then its row. Tasks extracted from
// the memo stay on the checklist.
func (p *Pipeline) DeleteMemo(ctx context.Context, ownerID, memoID string) error {
	memo, err := p.store.GetMemo(ctx, ownerID, memoID)
	if err != nil {
		return lookup(err, "voice memo", memoID)
	}
	p.removeBlobs(ctx, p.buckets.VoiceMemos, []string{memo.AudioPath})
	if err := p.store.DeleteMemo(ctx, ownerID, memoID); err != nil {
		return lookupStorage(err, "voice memo", memoID, "Failed to delete voice memo")
	}
	return nil
}

// DeleteInspection removes every blob referenced by the inspection's
// findings, then the findings and the inspection itself.
func (p *Pipeline) DeleteInspection(ctx context.Context, ownerID, inspectionID string) error {
	if _, err := p.store.GetInspection(ctx, ownerID, inspectionID); err != nil {
		return lookup(err, "inspection", inspectionID)
	}
	findings, err := p.store.ListFindings(ctx, ownerID, inspectionID)
	if err != nil {
		return apperr.Storage("Failed to load findings", err)
	}
	var photos, voices []string
	for _, f := range findings {
		if f.HasPhoto() {
			photos = append(photos, *f.PhotoPath)
		}
		if f.HasVoice() {
			voices = append(voices, *f.VoiceMemoPath)
		}
	}
	p.removeBlobs(ctx, p.buckets.InspectionPhotos, photos)
	p.removeBlobs(ctx, p.buckets.VoiceMemos, voices)
	if err := p.store.DeleteInspection(ctx, ownerID, inspectionID); err != nil {
		return lookupStorage(err, "inspection", inspectionID, "Failed to delete inspection")
	}
	p.log.Info("inspection deleted", map[string]interface{}{
		logger.FieldOwnerID:      ownerID,
		logger.FieldInspectionID: inspectionID,
		"findings":               len(findings),
	})
	return nil
}

// DeleteFinding removes the finding's capture and then its row.
func (p *Pipeline) DeleteFinding(ctx context.Context, ownerID, findingID string) error {
	f, err := p.store.GetFinding(ctx, ownerID, findingID)
	if err != nil {
		return lookup(err, "finding", findingID)
	}
	if f.HasPhoto() {
		p.removeBlobs(ctx, p.buckets.InspectionPhotos, []string{*f.PhotoPath})
	}
	if f.HasVoice() {
		p.removeBlobs(ctx, p.buckets.VoiceMemos, []string{*f.VoiceMemoPath})
	}
	if err := p.store.DeleteFinding(ctx, ownerID, findingID); err != nil {
		return lookupStorage(err, "finding", findingID, "Failed to delete finding")
	}
	return nil
}

// removeBlobs deletes keys from a bucket. A failed removal leaves an orphan
// blob and does not stop the row delete.
func (p *Pipeline) removeBlobs(ctx context.Context, bucket string, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := p.blobs.Remove(ctx, bucket, keys); err != nil {
		p.log.WithError(err).Warn("blob removal failed", map[string]interface{}{"bucket": bucket, "keys": keys})
	}
}
