package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dharsanguruparan/fieldmemo/internal/model"
)

const findingColumns = `id, inspection_id, user_id, photo_path, voice_memo_path, transcript, transcript_status,
	notes, error, created_at`

// CreateFinding inserts a finding. A finding with a voice memo starts with
// transcription pending; other findings have no transcription status.
func (s *Store) CreateFinding(ctx context.Context, f *model.Finding) error {
	if f.ID == "" {
		f.ID = newID()
	}
	f.CreatedAt = s.now()
	f.TranscriptStatus = nil
	if f.HasVoice() {
		pending := model.StagePending
		f.TranscriptStatus = &pending
	}
	var status sql.NullString
	if f.TranscriptStatus != nil {
		status = sql.NullString{String: string(*f.TranscriptStatus), Valid: true}
	}
	_, err := s.exec(ctx, `
		INSERT INTO inspection_findings (`+findingColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?)
	`, f.ID, f.InspectionID, f.OwnerID, nullString(f.PhotoPath), nullString(f.VoiceMemoPath), nullString(f.Transcript),
		status, nullString(f.Notes), nullString(f.Error), toNanos(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert finding: %w", err)
	}
	return nil
}

// GetFinding returns one finding owned by ownerID.
func (s *Store) GetFinding(ctx context.Context, ownerID, id string) (*model.Finding, error) {
	row := s.queryRow(ctx, `SELECT `+findingColumns+` FROM inspection_findings WHERE id=? AND user_id=?`, id, ownerID)
	f, err := scanFinding(row)
	if err != nil {
		return nil, notFound(err, "finding")
	}
	return f, nil
}

// ListFindings returns an inspection's findings in creation order.
func (s *Store) ListFindings(ctx context.Context, ownerID, inspectionID string) ([]*model.Finding, error) {
	rows, err := s.query(ctx, `
		SELECT `+findingColumns+` FROM inspection_findings
		WHERE inspection_id=? AND user_id=? ORDER BY created_at ASC
	`, inspectionID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()
	var out []*model.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SaveFindingTranscript writes the transcript and marks transcription done.
func (s *Store) SaveFindingTranscript(ctx context.Context, ownerID, id, transcript string) error {
	res, err := s.exec(ctx, `
		UPDATE inspection_findings SET transcript=?, transcript_status=?
		WHERE id=? AND user_id=?
	`, transcript, model.StageDone, id, ownerID)
	if err != nil {
		return fmt.Errorf("update finding transcript: %w", err)
	}
	return expectRow(res)
}

// MarkFindingTranscriptFailed records a transcription failure on a finding.
func (s *Store) MarkFindingTranscriptFailed(ctx context.Context, ownerID, id, msg string) error {
	res, err := s.exec(ctx, `
		UPDATE inspection_findings SET transcript_status=?, error=?
		WHERE id=? AND user_id=?
	`, model.StageError, msg, id, ownerID)
	if err != nil {
		return fmt.Errorf("update finding transcript status: %w", err)
	}
	return expectRow(res)
}

// DeleteFinding removes one finding row.
func (s *Store) DeleteFinding(ctx context.Context, ownerID, id string) error {
	res, err := s.exec(ctx, `DELETE FROM inspection_findings WHERE id=? AND user_id=?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete finding: %w", err)
	}
	return expectRow(res)
}

func scanFinding(row scanner) (*model.Finding, error) {
	var (
		f                                          model.Finding
		photo, voice, transcript, status, notes, e sql.NullString
		created                                    int64
	)
	if err := row.Scan(&f.ID, &f.InspectionID, &f.OwnerID, &photo, &voice, &transcript, &status, &notes, &e, &created); err != nil {
		return nil, err
	}
	f.PhotoPath = stringPtr(photo)
	f.VoiceMemoPath = stringPtr(voice)
	f.Transcript = stringPtr(transcript)
	if status.Valid {
		st := model.StageStatus(status.String)
		f.TranscriptStatus = &st
	}
	f.Notes = stringPtr(notes)
	f.Error = stringPtr(e)
	f.CreatedAt = fromNanos(created)
	return &f, nil
}
