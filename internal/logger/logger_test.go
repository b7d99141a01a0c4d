package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(Config{Level: "debug", Format: "json"}, "fieldmemo", &buf)
	l.WithComponent("pipeline").WithError(errors.New("boom")).Info("stage failed", map[string]interface{}{
		FieldMemoID: "m1",
	})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	for key, want := range map[string]string{
		"service":      "fieldmemo",
		FieldComponent: "pipeline",
		FieldMemoID:    "m1",
		"error":        "boom",
		"message":      "stage failed",
		"level":        "info",
	} {
		if got := entry[key]; got != want {
			t.Fatalf("%s: expected %q, got %v", key, want, got)
		}
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(Config{Level: "warn"}, "fieldmemo", &buf)
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	l.Warn("shown")
	if buf.Len() == 0 {
		t.Fatalf("expected warn output")
	}
}
