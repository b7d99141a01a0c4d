package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dharsanguruparan/fieldmemo/internal/apperr"
	"github.com/dharsanguruparan/fieldmemo/internal/logger"
	"github.com/dharsanguruparan/fieldmemo/internal/model"
)

var errEmptyTranscript = errors.New("transcription returned no text")

// TranscribeMemo runs the transcription stage for a memo. When audio is nil
// the stored recording is read back from the blob store. A memo whose
// transcript is already done is returned unchanged.
func (p *Pipeline) TranscribeMemo(ctx context.Context, memo *model.VoiceMemo, audio []byte) (*model.VoiceMemo, error) {
	if memo.TranscriptStatus == model.StageDone {
		return memo, nil
	}
	log := p.log.WithFields(map[string]interface{}{
		logger.FieldOwnerID: memo.OwnerID,
		logger.FieldMemoID:  memo.ID,
		logger.FieldStage:   "transcribe",
	})
	log.Debug("transcription started")

	text, err := p.transcribe(ctx, memo.AudioPath, audio)
	if err != nil {
		log.WithError(err).Warn("transcription failed")
		msg := err.Error()
		if markErr := p.store.MarkTranscriptFailed(ctx, memo.OwnerID, memo.ID, msg); markErr != nil {
			return memo, apperr.Storage("Failed to record transcription failure", errors.Join(err, markErr))
		}
		memo.TranscriptStatus = model.StageError
		memo.Error = &msg
		return memo, apperr.Transcription(err)
	}

	if err := p.store.SaveTranscript(ctx, memo.OwnerID, memo.ID, text); err != nil {
		return memo, apperr.Storage("Failed to save transcript", err)
	}
	memo.Transcript = &text
	memo.TranscriptStatus = model.StageDone
	log.Info("transcription finished", map[string]interface{}{"chars": len(text)})
	return memo, nil
}

// TranscribeFinding runs the transcription stage for a voice finding.
func (p *Pipeline) TranscribeFinding(ctx context.Context, f *model.Finding, audio []byte) (*model.Finding, error) {
	if !f.HasVoice() {
		return f, apperr.Validation("finding %s has no voice memo", f.ID)
	}
	if f.TranscriptStatus != nil && *f.TranscriptStatus == model.StageDone {
		return f, nil
	}
	log := p.log.WithFields(map[string]interface{}{
		logger.FieldOwnerID:      f.OwnerID,
		logger.FieldInspectionID: f.InspectionID,
		logger.FieldFindingID:    f.ID,
		logger.FieldStage:        "transcribe",
	})
	log.Debug("transcription started")

	text, err := p.transcribe(ctx, *f.VoiceMemoPath, audio)
	if err != nil {
		log.WithError(err).Warn("transcription failed")
		msg := err.Error()
		if markErr := p.store.MarkFindingTranscriptFailed(ctx, f.OwnerID, f.ID, msg); markErr != nil {
			return f, apperr.Storage("Failed to record transcription failure", errors.Join(err, markErr))
		}
		status := model.StageError
		f.TranscriptStatus = &status
		f.Error = &msg
		return f, apperr.Transcription(err)
	}

	if err := p.store.SaveFindingTranscript(ctx, f.OwnerID, f.ID, text); err != nil {
		return f, apperr.Storage("Failed to save transcript", err)
	}
	status := model.StageDone
	f.Transcript = &text
	f.TranscriptStatus = &status
	log.Info("transcription finished", map[string]interface{}{"chars": len(text)})
	return f, nil
}

func (p *Pipeline) transcribe(ctx context.Context, key string, audio []byte) (string, error) {
	if audio == nil {
		data, err := p.blobs.Get(ctx, p.buckets.VoiceMemos, key)
		if err != nil {
			return "", fmt.Errorf("fetch audio: %w", err)
		}
		audio = data
	}
	text, err := p.transcriber.Transcribe(ctx, audio, path.Base(key))
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errEmptyTranscript
	}
	return text, nil
}
