package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	base := Transcription(errors.New("service down"))
	wrapped := fmt.Errorf("process memo: %w", base)
	if got := KindOf(wrapped); got != KindTranscription {
		t.Fatalf("expected transcription kind, got %q", got)
	}
	if !Is(wrapped, KindTranscription) {
		t.Fatalf("expected Is to match wrapped error")
	}
	if Is(errors.New("plain"), KindTranscription) {
		t.Fatalf("plain errors carry no kind")
	}
	if Is(nil, KindTranscription) {
		t.Fatalf("nil never matches")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[*Error]int{
		Validation("bad"):            http.StatusBadRequest,
		NotFound("inspection", "x"):  http.StatusNotFound,
		EmptyInput("nothing"):        http.StatusUnprocessableEntity,
		ReportGeneration(nil):        http.StatusBadGateway,
		&Error{Kind: Kind("custom")}: http.StatusInternalServerError,
	}
	for e, want := range cases {
		if got := e.HTTPStatus(); got != want {
			t.Fatalf("%s: expected %d, got %d", e.Kind, want, got)
		}
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	e := Upload(errors.New("bucket missing"))
	if e.Error() != "upload: Upload failed: bucket missing" {
		t.Fatalf("unexpected message %q", e.Error())
	}
	if !errors.Is(e, e.Cause) {
		t.Fatalf("expected cause to unwrap")
	}
}
