package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dharsanguruparan/fieldmemo/internal/config"
)

func TestExtractJSON(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
	}{
		"plain":  {in: `{"tasks":[]}`, want: `{"tasks":[]}`},
		"fenced": {in: "```json\n{\"tasks\":[]}\n```", want: `{"tasks":[]}`},
		"prose":  {in: `Here you go: {"a":1} thanks`, want: `{"a":1}`},
		"none":   {in: "not json", want: "not json"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := ExtractJSON(tc.in); got != tc.want {
				t.Fatalf("ExtractJSON(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAI(config.OpenAIConfig{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewOpenAI(config.OpenAIConfig{
		APIKey:             "test-key",
		BaseURL:            srv.URL + "/v1",
		TranscriptionModel: "whisper-1",
		CompletionModel:    "gpt-4o",
		Timeout:            5 * time.Second,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestOpenAITranscribe(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			http.Error(w, "unexpected model "+got, http.StatusBadRequest)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(file)
		if string(body) != "audio-bytes" {
			http.Error(w, "unexpected audio", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "Call John tomorrow"})
	})
	text, err := client.Transcribe(context.Background(), []byte("audio-bytes"), "memo.webm")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "Call John tomorrow" {
		t.Fatalf("unexpected transcript %q", text)
	}
}

func TestOpenAICompleteRequestsJSONObject(t *testing.T) {
	var captured struct {
		Model          string `json:"model"`
		ResponseFormat *struct {
			Type string `json:"type"`
		} `json:"response_format"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"tasks\":[]}"},"finish_reason":"stop"}]}`)
	})
	out, err := client.Complete(context.Background(), CompletionRequest{System: "sys", User: "user", JSON: true})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != `{"tasks":[]}` {
		t.Fatalf("unexpected content %q", out)
	}
	if captured.Model != "gpt-4o" {
		t.Fatalf("unexpected model %q", captured.Model)
	}
	if captured.ResponseFormat == nil || captured.ResponseFormat.Type != "json_object" {
		t.Fatalf("expected json_object response format")
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" || captured.Messages[1].Content != "user" {
		t.Fatalf("unexpected messages %+v", captured.Messages)
	}
}

func TestOpenAICompleteSurfacesServiceError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	})
	if _, err := client.Complete(context.Background(), CompletionRequest{System: "s", User: "u"}); err == nil {
		t.Fatalf("expected error from failing service")
	}
}
