// Package ai holds the speech-to-text and completion capabilities the pipeline
// depends on. Clients are built once at process start and shared by every
// stage.
package ai

import (
	"context"
	"strings"
)

// Transcriber turns recorded audio into plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// CompletionRequest is a single system + user prompt exchange. JSON asks the
// backend to constrain its answer to a JSON object.
type CompletionRequest struct {
	System string
	User   string
	JSON   bool
}

// Completer produces model text for a prompt.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ExtractJSON pulls a JSON object out of model output that may be wrapped in
// markdown fences or surrounded by prose.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s[3:], "\n"); idx >= 0 {
			s = s[3+idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
