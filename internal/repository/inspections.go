package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dharsanguruparan/fieldmemo/internal/model"
)

const inspectionColumns = `id, user_id, title, inspection_date, status, report_summary, closeout_qna,
	closeout_generated_at, created_at, updated_at`

// CreateInspection inserts a draft inspection.
func (s *Store) CreateInspection(ctx context.Context, in *model.Inspection) error {
	now := s.now()
	if in.ID == "" {
		in.ID = newID()
	}
	in.Status = model.InspectionDraft
	in.CreatedAt = now
	in.UpdatedAt = now
	_, err := s.exec(ctx, `
		INSERT INTO inspections (id, user_id, title, inspection_date, status, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?)
	`, in.ID, in.OwnerID, in.Title, in.InspectionDate, in.Status, toNanos(now), toNanos(now))
	if err != nil {
		return fmt.Errorf("insert inspection: %w", err)
	}
	return nil
}

// GetInspection returns one inspection owned by ownerID.
func (s *Store) GetInspection(ctx context.Context, ownerID, id string) (*model.Inspection, error) {
	row := s.queryRow(ctx, `SELECT `+inspectionColumns+` FROM inspections WHERE id=? AND user_id=?`, id, ownerID)
	in, err := scanInspection(row)
	if err != nil {
		return nil, notFound(err, "inspection")
	}
	return in, nil
}

// ListInspections returns the owner's inspections, most recent date first.
func (s *Store) ListInspections(ctx context.Context, ownerID string) ([]*model.Inspection, error) {
	rows, err := s.query(ctx, `
		SELECT `+inspectionColumns+` FROM inspections
		WHERE user_id=? ORDER BY inspection_date DESC, created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list inspections: %w", err)
	}
	defer rows.Close()
	var out []*model.Inspection
	for rows.Next() {
		in, err := scanInspection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inspection: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// CompleteReport stores the summary and flips the inspection to completed.
func (s *Store) CompleteReport(ctx context.Context, ownerID, id, summary string) error {
	res, err := s.exec(ctx, `
		UPDATE inspections SET report_summary=?, status=?, updated_at=?
		WHERE id=? AND user_id=?
	`, summary, model.InspectionCompleted, toNanos(s.now()), id, ownerID)
	if err != nil {
		return fmt.Errorf("update inspection report: %w", err)
	}
	return expectRow(res)
}

// SaveCloseout stores the closeout answers and their generation time.
func (s *Store) SaveCloseout(ctx context.Context, ownerID, id string, qna model.CloseoutQnA) error {
	raw, err := json.Marshal(qna)
	if err != nil {
		return fmt.Errorf("marshal closeout: %w", err)
	}
	now := toNanos(s.now())
	res, err := s.exec(ctx, `
		UPDATE inspections SET closeout_qna=?, closeout_generated_at=?, updated_at=?
		WHERE id=? AND user_id=?
	`, string(raw), now, now, id, ownerID)
	if err != nil {
		return fmt.Errorf("update inspection closeout: %w", err)
	}
	return expectRow(res)
}

// DeleteInspection removes the inspection and its findings together.
func (s *Store) DeleteInspection(ctx context.Context, ownerID, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM inspection_findings WHERE inspection_id=? AND user_id=?`), id, ownerID); err != nil {
			return fmt.Errorf("delete findings: %w", err)
		}
		res, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM inspections WHERE id=? AND user_id=?`), id, ownerID)
		if err != nil {
			return fmt.Errorf("delete inspection: %w", err)
		}
		return expectRow(res)
	})
}

func scanInspection(row scanner) (*model.Inspection, error) {
	var (
		in               model.Inspection
		summary, qna     sql.NullString
		generated        sql.NullInt64
		created, updated int64
	)
	if err := row.Scan(&in.ID, &in.OwnerID, &in.Title, &in.InspectionDate, &in.Status, &summary, &qna,
		&generated, &created, &updated); err != nil {
		return nil, err
	}
	in.ReportSummary = stringPtr(summary)
	if qna.Valid && qna.String != "" {
		var decoded model.CloseoutQnA
		if err := json.Unmarshal([]byte(qna.String), &decoded); err != nil {
			return nil, fmt.Errorf("decode closeout: %w", err)
		}
		in.CloseoutQnA = &decoded
	}
	if generated.Valid {
		t := fromNanos(generated.Int64)
		in.CloseoutGeneratedAt = &t
	}
	in.CreatedAt = fromNanos(created)
	in.UpdatedAt = fromNanos(updated)
	return &in, nil
}
