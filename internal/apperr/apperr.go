// Package apperr defines the failure taxonomy of the media pipeline. Every
// error carries a Kind that callers branch on and an HTTP status the API
// layer can surface directly.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindUpload             Kind = "upload"
	KindTranscription      Kind = "transcription"
	KindExtraction         Kind = "extraction"
	KindEmptyInput         Kind = "empty_input"
	KindReportGeneration   Kind = "report_generation"
	KindCloseoutGeneration Kind = "closeout_generation"
	KindNotFound           Kind = "not_found"
	KindUnauthorized       Kind = "unauthorized"
	KindStorage            Kind = "storage"
)

var statusByKind = map[Kind]int{
	KindValidation:         http.StatusBadRequest,
	KindUpload:             http.StatusBadGateway,
	KindTranscription:      http.StatusBadGateway,
	KindExtraction:         http.StatusBadGateway,
	KindEmptyInput:         http.StatusUnprocessableEntity,
	KindReportGeneration:   http.StatusBadGateway,
	KindCloseoutGeneration: http.StatusBadGateway,
	KindNotFound:           http.StatusNotFound,
	KindUnauthorized:       http.StatusUnauthorized,
	KindStorage:            http.StatusInternalServerError,
}

// Error is the single error type returned by pipeline operations.
type Error struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus returns the status code the API should answer with.
func (e *Error) HTTPStatus() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WithDetail sets a single detail and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New builds an Error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Validation reports bad input. No state is mutated.
func Validation(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...), nil)
}

// Upload reports a blob store failure before any row was written.
func Upload(cause error) *Error {
	return New(KindUpload, "Upload failed", cause)
}

// Transcription reports a failed transcription stage.
func Transcription(cause error) *Error {
	return New(KindTranscription, "Transcription failed", cause)
}

// Extraction reports a failed extraction stage.
func Extraction(cause error) *Error {
	return New(KindExtraction, "Task extraction failed", cause)
}

// EmptyInput reports an unmet fan-in precondition.
func EmptyInput(message string) *Error {
	return New(KindEmptyInput, message, nil)
}

// ReportGeneration reports a failed summarization call.
func ReportGeneration(cause error) *Error {
	return New(KindReportGeneration, "Report generation failed", cause)
}

// CloseoutGeneration reports a failed closeout Q&A call.
func CloseoutGeneration(cause error) *Error {
	return New(KindCloseoutGeneration, "Closeout generation failed", cause)
}

// NotFound reports a missing (or foreign-owned) row.
func NotFound(resource, id string) *Error {
	return New(KindNotFound, fmt.Sprintf("%s not found", resource), nil).WithDetail("id", id)
}

// Unauthorized reports a missing or invalid identity.
func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message, nil)
}

// Storage reports a structured store failure.
func Storage(message string, cause error) *Error {
	return New(KindStorage, message, cause)
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
