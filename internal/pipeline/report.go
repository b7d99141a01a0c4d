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
)

const noFindingsMessage = "No findings to generate report from"

const reportSystemPrompt = `You are a professional daily inspection report writer. Generate a formal inspection report summary based on the findings provided.
The report should include:
1. Executive Summary (2-3 sentences overview)
2. Key Findings (bullet points of main issues/observations)
3. Recommendations (actionable items based on findings)
Keep the tone professional and concise. Focus on the facts from the transcripts and notes.`

const closeoutSystemPrompt = `You are a construction site coordinator writing the daily closeout for an inspection.
Answer each question from the findings provided, in plain sentences. If the findings say nothing about a question, answer "Not mentioned".
Return a JSON object with exactly these string keys:
- "hhr_done": Did HHR get done what we planned for?
- "jaime_done": Did Jaime get done what we planned for?
- "other_tasks_done": Did the other tasks/projects planned for today get accomplished?
- "timeline_impact": If not, how is our timeline altered?
- "new_tasks_or_info": What new tasks or information came up today that we need to plan for?
- "media_summary": Summarize the photos and videos showing the progress made on all fronts.`

// BuildFindingsPrompt renders an inspection and its findings as the user
// content for report and closeout generation. Every finding gets a numbered
// header; only the lines that have content follow it.
func BuildFindingsPrompt(in *model.Inspection, findings []*model.Finding) string {
	blocks := make([]string, 0, len(findings))
	for i, f := range findings {
		var b strings.Builder
		fmt.Fprintf(&b, "Finding %d:", i+1)
		if f.Notes != nil && strings.TrimSpace(*f.Notes) != "" {
			fmt.Fprintf(&b, "\n  Notes: %s", strings.TrimSpace(*f.Notes))
		}
		if f.HasTranscript() {
			fmt.Fprintf(&b, "\n  Voice memo transcript: \"%s\"", *f.Transcript)
		} else if f.HasPhoto() {
			b.WriteString("\n  [Photo attached]")
		}
		blocks = append(blocks, b.String())
	}
	return fmt.Sprintf("Inspection: %s\nDate: %s\n\nFindings:\n%s", in.Title, in.InspectionDate, strings.Join(blocks, "\n\n"))
}

// GenerateReport summarizes every finding of an inspection and marks it
// completed. Nothing is written unless the model returns a summary. Calling
// it again overwrites the previous summary.
func (p *Pipeline) GenerateReport(ctx context.Context, ownerID, inspectionID string) (*model.Inspection, error) {
	in, findings, err := p.loadFanIn(ctx, ownerID, inspectionID)
	if err != nil {
		return nil, err
	}
	log := p.log.WithFields(map[string]interface{}{
		logger.FieldOwnerID:      ownerID,
		logger.FieldInspectionID: inspectionID,
		logger.FieldStage:        "report",
	})
	log.Debug("report generation started", map[string]interface{}{"findings": len(findings)})

	text, err := p.completer.Complete(ctx, ai.CompletionRequest{
		System: reportSystemPrompt,
		User:   BuildFindingsPrompt(in, findings),
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("model returned an empty report")
	}
	if err != nil {
		log.WithError(err).Warn("report generation failed")
		return nil, apperr.ReportGeneration(err)
	}
	summary := strings.TrimSpace(text)
	if err := p.store.CompleteReport(ctx, ownerID, inspectionID, summary); err != nil {
		return nil, lookupStorage(err, "inspection", inspectionID, "Failed to save report")
	}
	log.Info("report generated", map[string]interface{}{"findings": len(findings)})
	return p.GetInspection(ctx, ownerID, inspectionID)
}

// GenerateCloseout answers the fixed daily closeout questions from the
// inspection's findings. Like the report, nothing is written on failure.
func (p *Pipeline) GenerateCloseout(ctx context.Context, ownerID, inspectionID string) (*model.Inspection, error) {
	in, findings, err := p.loadFanIn(ctx, ownerID, inspectionID)
	if err != nil {
		return nil, err
	}
	log := p.log.WithFields(map[string]interface{}{
		logger.FieldOwnerID:      ownerID,
		logger.FieldInspectionID: inspectionID,
		logger.FieldStage:        "closeout",
	})

	text, err := p.completer.Complete(ctx, ai.CompletionRequest{
		System: closeoutSystemPrompt,
		User:   BuildFindingsPrompt(in, findings),
		JSON:   true,
	})
	if err != nil {
		log.WithError(err).Warn("closeout generation failed")
		return nil, apperr.CloseoutGeneration(err)
	}
	var qna model.CloseoutQnA
	if err := json.Unmarshal([]byte(ai.ExtractJSON(text)), &qna); err != nil {
		log.WithError(err).Warn("closeout response was not valid JSON")
		return nil, apperr.CloseoutGeneration(fmt.Errorf("decode closeout: %w", err))
	}
	if err := p.store.SaveCloseout(ctx, ownerID, inspectionID, qna); err != nil {
		return nil, lookupStorage(err, "inspection", inspectionID, "Failed to save closeout")
	}
	log.Info("closeout generated")
	return p.GetInspection(ctx, ownerID, inspectionID)
}

func (p *Pipeline) loadFanIn(ctx context.Context, ownerID, inspectionID string) (*model.Inspection, []*model.Finding, error) {
	in, err := p.store.GetInspection(ctx, ownerID, inspectionID)
	if err != nil {
		return nil, nil, lookup(err, "inspection", inspectionID)
	}
	findings, err := p.store.ListFindings(ctx, ownerID, inspectionID)
	if err != nil {
		return nil, nil, apperr.Storage("Failed to load findings", err)
	}
	if len(findings) == 0 {
		return nil, nil, apperr.EmptyInput(noFindingsMessage)
	}
	return in, findings, nil
}
