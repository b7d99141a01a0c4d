package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dharsanguruparan/fieldmemo/internal/ai"
	"github.com/dharsanguruparan/fieldmemo/internal/apperr"
	"github.com/dharsanguruparan/fieldmemo/internal/logger"
	"github.com/dharsanguruparan/fieldmemo/internal/model"
	"github.com/dharsanguruparan/fieldmemo/internal/repository"
)

// ExtractedTask is one task proposed by the model, already normalized.
type ExtractedTask struct {
	Title   string
	Notes   string
	DueDate string
}

// BuildExtractionPrompt returns the system instruction for a memo recorded
// against contextDate. The same date always yields the same text.
func BuildExtractionPrompt(contextDate string) string {
	return fmt.Sprintf(`You are a helpful assistant that extracts tasks from voice notes.
The user is managing a daily checklist for %[1]s.
Extract clear, actionable tasks.
Return a JSON object with a key "tasks" containing an array of objects.
Each object must have:
- "title": A concise task title (string)
- "notes": Any additional context or details (string, optional)
- "due_date": The due date in YYYY-MM-DD format (default to %[1]s unless the user explicitly mentions another date)
If no tasks are found, return an empty array for "tasks".
Do not include conversational filler.`, contextDate)
}

// ParseExtraction decodes model output into tasks. Output that is not a JSON
// object with a "tasks" array yields no tasks. Blank titles are dropped and
// missing or malformed due dates fall back to contextDate.
func ParseExtraction(text, contextDate string) []ExtractedTask {
	var payload struct {
		Tasks []struct {
			Title   *string `json:"title"`
			Notes   *string `json:"notes"`
			DueDate *string `json:"due_date"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(ai.ExtractJSON(text)), &payload); err != nil {
		return nil
	}
	out := make([]ExtractedTask, 0, len(payload.Tasks))
	for _, raw := range payload.Tasks {
		if raw.Title == nil {
			continue
		}
		title := strings.TrimSpace(*raw.Title)
		if title == "" {
			continue
		}
		task := ExtractedTask{Title: title, DueDate: contextDate}
		if raw.Notes != nil {
			task.Notes = strings.TrimSpace(*raw.Notes)
		}
		if raw.DueDate != nil {
			due := strings.TrimSpace(*raw.DueDate)
			if validDate(due) {
				task.DueDate = due
			}
		}
		out = append(out, task)
	}
	return out
}

// ExtractTasks runs the extraction stage for a transcribed memo. The produced
// tasks and the done status are written together; on any failure the memo is
// marked with an extraction error and no tasks are kept.
func (p *Pipeline) ExtractTasks(ctx context.Context, memo *model.VoiceMemo) (*model.VoiceMemo, error) {
	if memo.TranscriptStatus != model.StageDone || memo.Transcript == nil {
		return memo, apperr.Validation("voice memo %s has no transcript to extract from", memo.ID)
	}
	if memo.ExtractStatus == model.StageDone {
		return memo, nil
	}
	log := p.log.WithFields(map[string]interface{}{
		logger.FieldOwnerID: memo.OwnerID,
		logger.FieldMemoID:  memo.ID,
		logger.FieldStage:   "extract",
	})
	log.Debug("extraction started")

	text, err := p.completer.Complete(ctx, ai.CompletionRequest{
		System: BuildExtractionPrompt(memo.ContextDate),
		User:   *memo.Transcript,
		JSON:   true,
	})
	if err != nil {
		return p.failExtraction(ctx, log, memo, err)
	}

	drafts := ParseExtraction(text, memo.ContextDate)
	tasks := make([]*model.Task, 0, len(drafts))
	for _, d := range drafts {
		t := &model.Task{
			OwnerID:      memo.OwnerID,
			Title:        d.Title,
			Source:       model.SourceAI,
			TaskCategory: memo.TaskCategory,
		}
		due := d.DueDate
		t.DueDate = &due
		if d.Notes != "" {
			notes := d.Notes
			t.Notes = &notes
		}
		tasks = append(tasks, t)
	}
	if err := p.store.CompleteExtraction(ctx, memo.OwnerID, memo.ID, tasks); err != nil {
		if errors.Is(err, repository.ErrAlreadyExtracted) {
			log.Info("extraction finished elsewhere, discarding tasks")
			current, gerr := p.store.GetMemo(ctx, memo.OwnerID, memo.ID)
			if gerr != nil {
				return memo, lookup(gerr, "voice memo", memo.ID)
			}
			return current, nil
		}
		return p.failExtraction(ctx, log, memo, fmt.Errorf("save tasks: %w", err))
	}
	memo.ExtractStatus = model.StageDone
	memo.ExtractedTaskCount = len(tasks)
	log.Info("extraction finished", map[string]interface{}{"tasks": len(tasks)})
	return memo, nil
}

func (p *Pipeline) failExtraction(ctx context.Context, log *logger.Logger, memo *model.VoiceMemo, cause error) (*model.VoiceMemo, error) {
	log.WithError(cause).Warn("extraction failed")
	msg := cause.Error()
	if err := p.store.MarkExtractFailed(ctx, memo.OwnerID, memo.ID, msg); err != nil {
		return memo, apperr.Storage("Failed to record extraction failure", errors.Join(cause, err))
	}
	memo.ExtractStatus = model.StageError
	memo.Error = &msg
	return memo, apperr.Extraction(cause)
}
