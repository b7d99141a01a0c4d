package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dharsanguruparan/fieldmemo/internal/model"
)

const taskColumns = `id, user_id, title, notes, due_date, completed, source, task_category, voice_memo_id, created_at, updated_at`

// TaskFilter narrows ListTasks. An empty DueDate lists every task.
type TaskFilter struct {
	DueDate        string
	IncludeUndated bool
	VoiceMemoID    string
}

// CreateTask inserts a single task.
func (s *Store) CreateTask(ctx context.Context, t *model.Task) error {
	return s.insertTask(ctx, s.db, t, s.now())
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insertTask(ctx context.Context, ex execer, t *model.Task, now time.Time) error {
	if t.ID == "" {
		t.ID = newID()
	}
	if t.Source == "" {
		t.Source = model.SourceManual
	}
	if t.TaskCategory == "" {
		t.TaskCategory = model.CategoryPersonal
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := ex.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
	`), t.ID, t.OwnerID, t.Title, nullString(t.Notes), nullString(t.DueDate), t.Completed, t.Source,
		t.TaskCategory, nullString(t.VoiceMemoID), toNanos(t.CreatedAt), toNanos(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask returns one task owned by ownerID.
func (s *Store) GetTask(ctx context.Context, ownerID, id string) (*model.Task, error) {
	row := s.queryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=? AND user_id=?`, id, ownerID)
	t, err := scanTask(row)
	if err != nil {
		return nil, notFound(err, "task")
	}
	return t, nil
}

// ListTasks returns the owner's tasks in creation order.
func (s *Store) ListTasks(ctx context.Context, ownerID string, f TaskFilter) ([]*model.Task, error) {
	where := []string{"user_id=?"}
	args := []any{ownerID}
	switch {
	case f.DueDate != "" && f.IncludeUndated:
		where = append(where, "(due_date=? OR due_date IS NULL)")
		args = append(args, f.DueDate)
	case f.DueDate != "":
		where = append(where, "due_date=?")
		args = append(args, f.DueDate)
	}
	if f.VoiceMemoID != "" {
		where = append(where, "voice_memo_id=?")
		args = append(args, f.VoiceMemoID)
	}
	rows, err := s.query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTask applies the non-nil patch fields and returns the updated row.
func (s *Store) UpdateTask(ctx context.Context, ownerID, id string, p model.TaskPatch) (*model.Task, error) {
	sets := []string{"updated_at=?"}
	args := []any{toNanos(s.now())}
	if p.Title != nil {
		sets = append(sets, "title=?")
		args = append(args, *p.Title)
	}
	if p.Notes != nil {
		sets = append(sets, "notes=?")
		args = append(args, nullIfEmpty(*p.Notes))
	}
	if p.DueDate != nil {
		sets = append(sets, "due_date=?")
		args = append(args, nullIfEmpty(*p.DueDate))
	}
	if p.Completed != nil {
		sets = append(sets, "completed=?")
		args = append(args, *p.Completed)
	}
	if p.TaskCategory != nil {
		sets = append(sets, "task_category=?")
		args = append(args, *p.TaskCategory)
	}
	args = append(args, id, ownerID)
	res, err := s.exec(ctx, `UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id=? AND user_id=?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if err := expectRow(res); err != nil {
		return nil, err
	}
	return s.GetTask(ctx, ownerID, id)
}

// DeleteTask removes a task. There is no soft delete.
func (s *Store) DeleteTask(ctx context.Context, ownerID, id string) error {
	res, err := s.exec(ctx, `DELETE FROM tasks WHERE id=? AND user_id=?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return expectRow(res)
}

// empty strings clear nullable columns
func nullIfEmpty(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func scanTask(row scanner) (*model.Task, error) {
	var (
		t                     model.Task
		notes, due, voiceMemo sql.NullString
		created, updated      int64
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &notes, &due, &t.Completed, &t.Source, &t.TaskCategory,
		&voiceMemo, &created, &updated); err != nil {
		return nil, err
	}
	t.Notes = stringPtr(notes)
	t.DueDate = stringPtr(due)
	t.VoiceMemoID = stringPtr(voiceMemo)
	t.CreatedAt = fromNanos(created)
	t.UpdatedAt = fromNanos(updated)
	return &t, nil
}
