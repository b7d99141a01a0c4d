package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dharsanguruparan/fieldmemo/internal/model"
)

const memoColumns = `id, user_id, audio_path, context_date, transcript, transcript_status, extract_status,
	extracted_task_count, task_category, error, created_at, updated_at`

// CreateMemo inserts a memo with both stages pending.
func (s *Store) CreateMemo(ctx context.Context, m *model.VoiceMemo) error {
	now := s.now()
	if m.ID == "" {
		m.ID = newID()
	}
	m.TranscriptStatus = model.StagePending
	m.ExtractStatus = model.StagePending
	m.ExtractedTaskCount = 0
	m.CreatedAt = now
	m.UpdatedAt = now
	_, err := s.exec(ctx, `
		INSERT INTO voice_memos (`+memoColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`, m.ID, m.OwnerID, m.AudioPath, m.ContextDate, nullString(m.Transcript), m.TranscriptStatus, m.ExtractStatus,
		m.ExtractedTaskCount, m.TaskCategory, nullString(m.Error), toNanos(m.CreatedAt), toNanos(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert voice memo: %w", err)
	}
	return nil
}

// GetMemo returns one memo owned by ownerID.
func (s *Store) GetMemo(ctx context.Context, ownerID, id string) (*model.VoiceMemo, error) {
	row := s.queryRow(ctx, `SELECT `+memoColumns+` FROM voice_memos WHERE id=? AND user_id=?`, id, ownerID)
	m, err := scanMemo(row)
	if err != nil {
		return nil, notFound(err, "voice memo")
	}
	return m, nil
}

// ListMemos returns the owner's memos, newest first.
func (s *Store) ListMemos(ctx context.Context, ownerID string, limit int) ([]*model.VoiceMemo, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.query(ctx, `
		SELECT `+memoColumns+` FROM voice_memos
		WHERE user_id=? ORDER BY created_at DESC LIMIT ?
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list voice memos: %w", err)
	}
	defer rows.Close()
	var out []*model.VoiceMemo
	for rows.Next() {
		m, err := scanMemo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan voice memo: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveTranscript writes the transcript and marks transcription done in a
// single statement.
func (s *Store) SaveTranscript(ctx context.Context, ownerID, id, transcript string) error {
	res, err := s.exec(ctx, `
		UPDATE voice_memos SET transcript=?, transcript_status=?, updated_at=?
		WHERE id=? AND user_id=?
	`, transcript, model.StageDone, toNanos(s.now()), id, ownerID)
	if err != nil {
		return fmt.Errorf("update voice memo transcript: %w", err)
	}
	return expectRow(res)
}

// MarkTranscriptFailed records a transcription failure.
func (s *Store) MarkTranscriptFailed(ctx context.Context, ownerID, id, msg string) error {
	res, err := s.exec(ctx, `
		UPDATE voice_memos SET transcript_status=?, error=?, updated_at=?
		WHERE id=? AND user_id=?
	`, model.StageError, msg, toNanos(s.now()), id, ownerID)
	if err != nil {
		return fmt.Errorf("update voice memo transcript status: %w", err)
	}
	return expectRow(res)
}

// CompleteExtraction marks extraction done with the matching count and
// inserts the extracted tasks. Either everything is written or nothing is.
// A memo whose extraction is already done is left alone and
// ErrAlreadyExtracted is returned, so a task set is only ever written once.
func (s *Store) CompleteExtraction(ctx context.Context, ownerID, memoID string, tasks []*model.Task) error {
	now := s.now()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		// The guarded update takes the row lock before any task is inserted.
		res, err := tx.ExecContext(ctx, s.db.Rebind(`
			UPDATE voice_memos SET extract_status=?, extracted_task_count=?, updated_at=?
			WHERE id=? AND user_id=? AND extract_status<>?
		`), model.StageDone, len(tasks), toNanos(now), memoID, ownerID, model.StageDone)
		if err != nil {
			return fmt.Errorf("update voice memo extract status: %w", err)
		}
		if err := expectRow(res); err != nil {
			var status model.StageStatus
			row := tx.QueryRowContext(ctx, s.db.Rebind(`SELECT extract_status FROM voice_memos WHERE id=? AND user_id=?`), memoID, ownerID)
			if serr := row.Scan(&status); serr != nil {
				return notFound(serr, "voice memo")
			}
			if status == model.StageDone {
				return ErrAlreadyExtracted
			}
			return err
		}
		for _, t := range tasks {
			t.OwnerID = ownerID
			memo := memoID
			t.VoiceMemoID = &memo
			if err := s.insertTask(ctx, tx, t, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkExtractFailed records an extraction failure.
func (s *Store) MarkExtractFailed(ctx context.Context, ownerID, id, msg string) error {
	res, err := s.exec(ctx, `
		UPDATE voice_memos SET extract_status=?, error=?, updated_at=?
		WHERE id=? AND user_id=?
	`, model.StageError, msg, toNanos(s.now()), id, ownerID)
	if err != nil {
		return fmt.Errorf("update voice memo extract status: %w", err)
	}
	return expectRow(res)
}

// DeleteMemo removes the memo row. Tasks extracted from it are kept.
func (s *Store) DeleteMemo(ctx context.Context, ownerID, id string) error {
	res, err := s.exec(ctx, `DELETE FROM voice_memos WHERE id=? AND user_id=?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete voice memo: %w", err)
	}
	return expectRow(res)
}

func scanMemo(row scanner) (*model.VoiceMemo, error) {
	var (
		m                    model.VoiceMemo
		transcript, errorMsg sql.NullString
		created, updated     int64
	)
	if err := row.Scan(&m.ID, &m.OwnerID, &m.AudioPath, &m.ContextDate, &transcript, &m.TranscriptStatus,
		&m.ExtractStatus, &m.ExtractedTaskCount, &m.TaskCategory, &errorMsg, &created, &updated); err != nil {
		return nil, err
	}
	m.Transcript = stringPtr(transcript)
	m.Error = stringPtr(errorMsg)
	m.CreatedAt = fromNanos(created)
	m.UpdatedAt = fromNanos(updated)
	return &m, nil
}
