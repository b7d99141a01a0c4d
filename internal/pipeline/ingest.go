package pipeline

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dharsanguruparan/fieldmemo/internal/apperr"
	"github.com/dharsanguruparan/fieldmemo/internal/logger"
	"github.com/dharsanguruparan/fieldmemo/internal/model"
)

// MemoInput is a recorded voice memo as received from a client.
type MemoInput struct {
	OwnerID     string
	Capture     model.Capture
	ContextDate string
	Category    model.TaskCategory
}

// FindingInput is evidence attached to an inspection. Capture may be nil for
// a notes-only finding.
type FindingInput struct {
	OwnerID      string
	InspectionID string
	Capture      *model.Capture
	Notes        string
}

// IngestMemo validates the recording, stores the audio and inserts a memo row
// with both stages pending.
func (p *Pipeline) IngestMemo(ctx context.Context, in MemoInput) (*model.VoiceMemo, error) {
	if in.OwnerID == "" {
		return nil, apperr.Unauthorized("missing owner")
	}
	if err := validateCapture(in.Capture); err != nil {
		return nil, err
	}
	if in.Capture.Kind != model.KindAudio {
		return nil, apperr.Validation("voice memos require audio, got %s", in.Capture.Kind)
	}
	if !validDate(in.ContextDate) {
		return nil, apperr.Validation("invalid date %q, expected YYYY-MM-DD", in.ContextDate)
	}
	category := in.Category
	if category == "" {
		category = model.CategoryPersonal
	}
	if !category.Valid() {
		return nil, apperr.Validation("invalid task category %q", category)
	}

	key := p.storageKey(in.OwnerID, "", in.Capture)
	stored, err := p.blobs.Put(ctx, p.buckets.VoiceMemos, key, in.Capture.Data, in.Capture.ContentType)
	if err != nil {
		p.log.WithError(err).Warn("voice memo upload failed", map[string]interface{}{logger.FieldOwnerID: in.OwnerID})
		return nil, apperr.Upload(err)
	}

	memo := &model.VoiceMemo{
		OwnerID:      in.OwnerID,
		AudioPath:    stored,
		ContextDate:  in.ContextDate,
		TaskCategory: category,
	}
	if err := p.store.CreateMemo(ctx, memo); err != nil {
		p.log.WithError(err).Error("voice memo row insert failed, audio left orphaned", map[string]interface{}{
			logger.FieldOwnerID: in.OwnerID,
			"bucket":            p.buckets.VoiceMemos,
			"key":               stored,
		})
		return nil, apperr.Storage("Failed to save voice memo", err)
	}
	p.log.Info("voice memo ingested", map[string]interface{}{
		logger.FieldOwnerID: in.OwnerID,
		logger.FieldMemoID:  memo.ID,
		"bytes":             len(in.Capture.Data),
	})
	return memo, nil
}

// IngestFinding stores the capture (if any) in the bucket its kind belongs to
// and inserts the finding row. Audio findings start with transcription
// pending; photo, video and notes-only findings are terminal.
func (p *Pipeline) IngestFinding(ctx context.Context, in FindingInput) (*model.Finding, error) {
	if in.OwnerID == "" {
		return nil, apperr.Unauthorized("missing owner")
	}
	notes := strings.TrimSpace(in.Notes)
	if in.Capture == nil && notes == "" {
		return nil, apperr.Validation("a finding needs a photo, a voice note or notes")
	}
	if in.Capture != nil {
		if err := validateCapture(*in.Capture); err != nil {
			return nil, err
		}
	}
	if _, err := p.store.GetInspection(ctx, in.OwnerID, in.InspectionID); err != nil {
		return nil, lookup(err, "inspection", in.InspectionID)
	}

	finding := &model.Finding{InspectionID: in.InspectionID, OwnerID: in.OwnerID}
	if notes != "" {
		finding.Notes = &notes
	}
	if c := in.Capture; c != nil {
		bucket := p.buckets.InspectionPhotos
		if c.Transcribable() {
			bucket = p.buckets.VoiceMemos
		}
		key := p.storageKey(in.OwnerID, in.InspectionID, *c)
		stored, err := p.blobs.Put(ctx, bucket, key, c.Data, c.ContentType)
		if err != nil {
			p.log.WithError(err).Warn("finding upload failed", map[string]interface{}{
				logger.FieldOwnerID:      in.OwnerID,
				logger.FieldInspectionID: in.InspectionID,
			})
			return nil, apperr.Upload(err)
		}
		if c.Transcribable() {
			finding.VoiceMemoPath = &stored
		} else {
			finding.PhotoPath = &stored
		}
	}

	if err := p.store.CreateFinding(ctx, finding); err != nil {
		fields := map[string]interface{}{logger.FieldOwnerID: in.OwnerID, logger.FieldInspectionID: in.InspectionID}
		if finding.PhotoPath != nil {
			fields["key"] = *finding.PhotoPath
		}
		if finding.VoiceMemoPath != nil {
			fields["key"] = *finding.VoiceMemoPath
		}
		p.log.WithError(err).Error("finding row insert failed, capture left orphaned", fields)
		return nil, apperr.Storage("Failed to save finding", err)
	}
	p.log.Info("finding ingested", map[string]interface{}{
		logger.FieldOwnerID:      in.OwnerID,
		logger.FieldInspectionID: in.InspectionID,
		logger.FieldFindingID:    finding.ID,
	})
	return finding, nil
}

func validateCapture(c model.Capture) error {
	if len(c.Data) == 0 {
		return apperr.Validation("capture is empty")
	}
	if c.Kind == model.KindUnknown {
		return apperr.Validation("unrecognized capture type %q", c.ContentType)
	}
	return nil
}

// storageKey builds {owner}/{parent?}/{unixMillis}-{suffix}. A fresh
// timestamp is taken on every call.
func (p *Pipeline) storageKey(ownerID, parentID string, c model.Capture) string {
	parts := []string{ownerID}
	if parentID != "" {
		parts = append(parts, parentID)
	}
	ts := strconv.FormatInt(p.now().UnixMilli(), 10)
	parts = append(parts, ts+"-"+keySuffix(c))
	return strings.Join(parts, "/")
}

func keySuffix(c model.Capture) string {
	if name := sanitizeName(c.FileName); name != "" {
		return name
	}
	return string(c.Kind) + c.Extension()
}

// sanitizeName keeps the base name and replaces anything outside
// [A-Za-z0-9._-] with an underscore.
func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "._")
}
