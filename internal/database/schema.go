package database

import (
	"context"
	"fmt"
)

// Timestamps are stored as unix nanoseconds and dates as YYYY-MM-DD text so
// the same statements run unchanged on postgres and sqlite.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS voice_memos (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	audio_path TEXT NOT NULL,
	context_date TEXT NOT NULL,
	transcript TEXT,
	transcript_status TEXT NOT NULL DEFAULT 'pending' CHECK (transcript_status IN ('pending','done','error')),
	extract_status TEXT NOT NULL DEFAULT 'pending' CHECK (extract_status IN ('pending','done','error')),
	extracted_task_count INTEGER NOT NULL DEFAULT 0,
	task_category TEXT NOT NULL DEFAULT 'personal' CHECK (task_category IN ('personal','work')),
	error TEXT,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_voice_memos_user ON voice_memos(user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL CHECK (length(trim(title)) > 0),
	notes TEXT,
	due_date TEXT,
	completed BOOLEAN NOT NULL DEFAULT FALSE,
	source TEXT NOT NULL DEFAULT 'manual' CHECK (source IN ('manual','ai','voice')),
	task_category TEXT NOT NULL DEFAULT 'personal' CHECK (task_category IN ('personal','work')),
	voice_memo_id TEXT,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_user_due ON tasks(user_id, due_date)`,
	`CREATE TABLE IF NOT EXISTS inspections (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	inspection_date TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft','completed')),
	report_summary TEXT,
	closeout_qna TEXT,
	closeout_generated_at BIGINT,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL,
	CHECK (status <> 'completed' OR report_summary IS NOT NULL)
)`,
	`CREATE INDEX IF NOT EXISTS idx_inspections_user_date ON inspections(user_id, inspection_date)`,
	`CREATE TABLE IF NOT EXISTS inspection_findings (
	id TEXT PRIMARY KEY,
	inspection_id TEXT NOT NULL REFERENCES inspections(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL,
	photo_path TEXT,
	voice_memo_path TEXT,
	transcript TEXT,
	transcript_status TEXT CHECK (transcript_status IN ('pending','done','error')),
	notes TEXT,
	error TEXT,
	created_at BIGINT NOT NULL,
	CHECK (photo_path IS NULL OR voice_memo_path IS NULL)
)`,
	`CREATE INDEX IF NOT EXISTS idx_findings_inspection ON inspection_findings(inspection_id, created_at)`,
}

// EnsureSchema creates the tables if needed. Keeping the migration in code lets
// docker-compose and tests bootstrap everything without extra tooling.
func EnsureSchema(ctx context.Context, db *DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
