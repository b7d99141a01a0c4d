// Package model contains the domain rows shared across packages. Each row is
// owned by exactly one user; OwnerID is the value every store query filters on.
package model

import (
	"time"
)

// StageStatus records the progress of one pipeline stage on a row. A type
// declared via "type X string" keeps status values from mixing with plain text.
type StageStatus string

const (
	StagePending StageStatus = "pending"
	StageDone    StageStatus = "done"
	StageError   StageStatus = "error"
)

// Valid reports whether s is one of the known stage statuses.
func (s StageStatus) Valid() bool {
	switch s {
	case StagePending, StageDone, StageError:
		return true
	}
	return false
}

// TaskCategory is carried from a voice memo onto every task extracted from it.
type TaskCategory string

const (
	CategoryPersonal TaskCategory = "personal"
	CategoryWork     TaskCategory = "work"
)

// Valid reports whether c is a known category.
func (c TaskCategory) Valid() bool {
	return c == CategoryPersonal || c == CategoryWork
}

// DateLayout is the wire and storage format for calendar dates (due dates,
// memo context dates, inspection dates).
const DateLayout = "2006-01-02"

// VoiceMemo tracks one recorded memo through ingest, transcription and task
// extraction. AudioPath is set at ingest and never changes afterwards.
type VoiceMemo struct {
	ID                 string       `json:"id"`
	OwnerID            string       `json:"userId"`
	AudioPath          string       `json:"audioPath"`
	ContextDate        string       `json:"contextDate"`
	Transcript         *string      `json:"transcript"`
	TranscriptStatus   StageStatus  `json:"transcriptStatus"`
	ExtractStatus      StageStatus  `json:"extractStatus"`
	ExtractedTaskCount int          `json:"extractedTaskCount"`
	TaskCategory       TaskCategory `json:"taskCategory"`
	Error              *string      `json:"error"`
	CreatedAt          time.Time    `json:"createdAt"`
	UpdatedAt          time.Time    `json:"updatedAt"`
}

// Processing reports whether any stage of the memo is still pending.
func (m *VoiceMemo) Processing() bool {
	if m.TranscriptStatus == StagePending {
		return true
	}
	return m.TranscriptStatus == StageDone && m.ExtractStatus == StagePending
}

// Failed reports whether a stage recorded an error.
func (m *VoiceMemo) Failed() bool {
	return m.TranscriptStatus == StageError || m.ExtractStatus == StageError
}
