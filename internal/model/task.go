package model

import "time"

// TaskSource says how a task came to exist.
type TaskSource string

const (
	SourceManual TaskSource = "manual"
	SourceAI     TaskSource = "ai"
	SourceVoice  TaskSource = "voice"
)

// Valid reports whether s is a known source.
func (s TaskSource) Valid() bool {
	switch s {
	case SourceManual, SourceAI, SourceVoice:
		return true
	}
	return false
}

// Task is a checklist item. DueDate is nil for undated tasks. VoiceMemoID
// links tasks produced by the extraction stage back to their memo.
type Task struct {
	ID           string       `json:"id"`
	OwnerID      string       `json:"userId"`
	Title        string       `json:"title"`
	Notes        *string      `json:"notes"`
	DueDate      *string      `json:"dueDate"`
	Completed    bool         `json:"completed"`
	Source       TaskSource   `json:"source"`
	TaskCategory TaskCategory `json:"taskCategory"`
	VoiceMemoID  *string      `json:"voiceMemoId,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// TaskPatch carries the editable task fields; nil members are left untouched.
type TaskPatch struct {
	Title        *string
	Notes        *string
	DueDate      *string
	Completed    *bool
	TaskCategory *TaskCategory
}
