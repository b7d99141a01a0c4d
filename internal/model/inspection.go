package model

import "time"

// InspectionStatus is draft until a report has been generated.
type InspectionStatus string

const (
	InspectionDraft     InspectionStatus = "draft"
	InspectionCompleted InspectionStatus = "completed"
)

// CloseoutQnA holds the daily closeout answers. The keys are fixed.
type CloseoutQnA struct {
	HHRDone        string `json:"hhr_done"`
	JaimeDone      string `json:"jaime_done"`
	OtherTasksDone string `json:"other_tasks_done"`
	TimelineImpact string `json:"timeline_impact"`
	NewTasksOrInfo string `json:"new_tasks_or_info"`
	MediaSummary   string `json:"media_summary"`
}

// Inspection is a daily inspection that owns a set of findings. A completed
// inspection always carries a report summary.
type Inspection struct {
	ID                  string           `json:"id"`
	OwnerID             string           `json:"userId"`
	Title               string           `json:"title"`
	InspectionDate      string           `json:"inspectionDate"`
	Status              InspectionStatus `json:"status"`
	ReportSummary       *string          `json:"reportSummary"`
	CloseoutQnA         *CloseoutQnA     `json:"closeoutQnA"`
	CloseoutGeneratedAt *time.Time       `json:"closeoutGeneratedAt"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

// Finding is one piece of evidence attached to an inspection. At most one of
// PhotoPath and VoiceMemoPath is set. TranscriptStatus is nil for findings
// that have no audio to transcribe.
type Finding struct {
	ID               string       `json:"id"`
	InspectionID     string       `json:"inspectionId"`
	OwnerID          string       `json:"userId"`
	PhotoPath        *string      `json:"photoPath"`
	VoiceMemoPath    *string      `json:"voiceMemoPath"`
	Transcript       *string      `json:"transcript"`
	TranscriptStatus *StageStatus `json:"transcriptStatus"`
	Notes            *string      `json:"notes"`
	Error            *string      `json:"error"`
	CreatedAt        time.Time    `json:"createdAt"`
}

// HasVoice reports whether the finding carries an audio recording.
func (f *Finding) HasVoice() bool {
	return f.VoiceMemoPath != nil && *f.VoiceMemoPath != ""
}

// HasPhoto reports whether the finding carries a photo or video.
func (f *Finding) HasPhoto() bool {
	return f.PhotoPath != nil && *f.PhotoPath != ""
}

// HasTranscript reports whether a non-empty transcript is present.
func (f *Finding) HasTranscript() bool {
	return f.Transcript != nil && *f.Transcript != ""
}
