package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dharsanguruparan/fieldmemo/internal/ai/aitest"
	"github.com/dharsanguruparan/fieldmemo/internal/auth"
	"github.com/dharsanguruparan/fieldmemo/internal/config"
	"github.com/dharsanguruparan/fieldmemo/internal/database"
	"github.com/dharsanguruparan/fieldmemo/internal/model"
	"github.com/dharsanguruparan/fieldmemo/internal/pipeline"
	"github.com/dharsanguruparan/fieldmemo/internal/repository"
	"github.com/dharsanguruparan/fieldmemo/internal/signing"
	"github.com/dharsanguruparan/fieldmemo/internal/storage"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []pipeline.Job
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job pipeline.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return d.err
}

type testServer struct {
	handler     http.Handler
	authn       *auth.Authenticator
	store       *repository.Store
	blobs       *storage.MemoryStore
	transcriber *aitest.Transcriber
}

type serverOptions struct {
	transcriber *aitest.Transcriber
	completer   *aitest.Completer
	maxFileSize int64
	dispatcher  Dispatcher
}

func newTestServer(t *testing.T, o serverOptions) *testServer {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.EnsureSchema(ctx, db); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if o.transcriber == nil {
		o.transcriber = aitest.NewTranscriber()
	}
	if o.completer == nil {
		o.completer = aitest.NewCompleter()
	}
	if o.maxFileSize == 0 {
		o.maxFileSize = 1 << 20
	}
	cfg := &config.Config{
		Address:      ":0",
		MaxFileSize:  o.maxFileSize,
		AllowedTypes: []string{"audio/webm", "audio/mpeg", "image/jpeg", "image/png", "video/webm"},
		SignedURLTTL: time.Minute,
		Async:        o.dispatcher != nil,
	}
	signer := signing.NewSigner([]byte("media-secret"))
	blobs := storage.NewMemoryStore(signer, "http://localhost:8080", time.Minute)
	store := repository.NewStore(db)
	p := pipeline.New(store, blobs, o.transcriber, o.completer)
	authn, err := auth.New("jwt-secret", "")
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	opts := []Option{WithMedia(blobs, signer)}
	if o.dispatcher != nil {
		opts = append(opts, WithDispatcher(o.dispatcher))
	}
	srv := New(cfg, p, store, blobs, authn, opts...)
	return &testServer{handler: srv.Handler(), authn: authn, store: store, blobs: blobs, transcriber: o.transcriber}
}

func (ts *testServer) token(t *testing.T, owner string) string {
	t.Helper()
	token, err := ts.authn.Issue(owner, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (ts *testServer) do(t *testing.T, owner string, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if owner != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token(t, owner))
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) doJSON(t *testing.T, owner, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return ts.do(t, owner, req)
}

type filePart struct {
	field       string
	fileName    string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.fileName+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(f.data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func audioPart() filePart {
	return filePart{field: "audio", fileName: "memo.webm", contentType: "audio/webm", data: []byte("fake-audio")}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	e, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("no error object in %s", rec.Body.String())
	}
	kind, _ := e["kind"].(string)
	return kind
}

func TestHealthzIsPublic(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	rec := ts.do(t, "", httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	for _, path := range []string{"/memos", "/tasks", "/inspections"} {
		rec := ts.do(t, "", httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
		if kind := errorKind(t, rec); kind != "unauthorized" {
			t.Fatalf("%s: kind = %q", path, kind)
		}
	}
}

func TestCreateMemoRunsPipeline(t *testing.T) {
	ts := newTestServer(t, serverOptions{
		transcriber: aitest.NewTranscriber(aitest.Reply{Text: "Call John tomorrow"}),
		completer:   aitest.NewCompleter(aitest.Reply{Text: `{"tasks":[{"title":"Call John","due_date":"2024-03-02"}]}`}),
	})
	req := multipartRequest(t, "/memos", map[string]string{"date": "2024-03-01", "task_category": "work"}, audioPart())
	rec := ts.do(t, "user-1", req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	memo := decode(t, rec)
	if memo["transcriptStatus"] != "done" || memo["extractStatus"] != "done" {
		t.Fatalf("unexpected statuses %v / %v", memo["transcriptStatus"], memo["extractStatus"])
	}
	if memo["extractedTaskCount"] != float64(1) {
		t.Fatalf("extractedTaskCount = %v", memo["extractedTaskCount"])
	}
	if u, _ := memo["audioUrl"].(string); !strings.Contains(u, "/media/voice-memos/user-1/") {
		t.Fatalf("unexpected audio url %q", u)
	}

	rec = ts.do(t, "user-1", httptest.NewRequest(http.MethodGet, "/tasks?date=2024-03-02", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list tasks status = %d", rec.Code)
	}
	tasks := decodeList(t, rec)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0]["title"] != "Call John" || tasks[0]["source"] != "ai" || tasks[0]["taskCategory"] != "work" {
		t.Fatalf("unexpected task %v", tasks[0])
	}
}

func TestCreateMemoTranscriptionFailureReturnsMemo(t *testing.T) {
	ts := newTestServer(t, serverOptions{
		transcriber: aitest.NewTranscriber(aitest.Reply{Err: errors.New("whisper down")}),
	})
	rec := ts.do(t, "user-1", multipartRequest(t, "/memos", map[string]string{"date": "2024-03-01"}, audioPart()))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if kind := body["error"].(map[string]interface{})["kind"]; kind != "transcription" {
		t.Fatalf("kind = %v", kind)
	}
	memo, ok := body["memo"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected memo in body: %s", rec.Body.String())
	}
	if memo["transcriptStatus"] != "error" || memo["extractStatus"] != "pending" {
		t.Fatalf("unexpected statuses %v / %v", memo["transcriptStatus"], memo["extractStatus"])
	}
}

func TestCreateMemoRejectsBadUploads(t *testing.T) {
	cases := []struct {
		name  string
		limit int64
		req   func(t *testing.T) *http.Request
	}{
		{"missing audio", 0, func(t *testing.T) *http.Request {
			return multipartRequest(t, "/memos", map[string]string{"date": "2024-03-01"})
		}},
		{"unsupported type", 0, func(t *testing.T) *http.Request {
			return multipartRequest(t, "/memos", nil, filePart{field: "audio", fileName: "a.pdf", contentType: "application/pdf", data: []byte("%PDF-1.4")})
		}},
		{"too large", 8, func(t *testing.T) *http.Request {
			return multipartRequest(t, "/memos", nil, audioPart())
		}},
		{"bad date", 0, func(t *testing.T) *http.Request {
			return multipartRequest(t, "/memos", map[string]string{"date": "03/01/2024"}, audioPart())
		}},
		{"not multipart", 0, func(t *testing.T) *http.Request {
			return httptest.NewRequest(http.MethodPost, "/memos", strings.NewReader("{}"))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, serverOptions{maxFileSize: tc.limit})
			rec := ts.do(t, "user-1", tc.req(t))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
			}
			if kind := errorKind(t, rec); kind != "validation" {
				t.Fatalf("kind = %q", kind)
			}
			if keys := ts.blobs.Keys("voice-memos"); len(keys) != 0 {
				t.Fatalf("nothing should be stored, got %v", keys)
			}
		})
	}
}

func TestMemoOwnerIsolation(t *testing.T) {
	ts := newTestServer(t, serverOptions{
		transcriber: aitest.NewTranscriber(aitest.Reply{Text: "note"}),
		completer:   aitest.NewCompleter(aitest.Reply{Text: `{"tasks":[]}`}),
	})
	rec := ts.do(t, "user-1", multipartRequest(t, "/memos", map[string]string{"date": "2024-03-01"}, audioPart()))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	id := decode(t, rec)["id"].(string)

	rec = ts.do(t, "user-2", httptest.NewRequest(http.MethodGet, "/memos/"+id, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("other owner status = %d", rec.Code)
	}
	rec = ts.do(t, "user-2", httptest.NewRequest(http.MethodGet, "/memos", nil))
	if list := decodeList(t, rec); len(list) != 0 {
		t.Fatalf("other owner sees %d memos", len(list))
	}
	rec = ts.do(t, "user-1", httptest.NewRequest(http.MethodDelete, "/memos/"+id, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if removed := ts.blobs.Removed("voice-memos"); len(removed) != 1 {
		t.Fatalf("expected audio removal, got %v", removed)
	}
}

func TestRetryMemo(t *testing.T) {
	ts := newTestServer(t, serverOptions{
		transcriber: aitest.NewTranscriber(aitest.Reply{Err: errors.New("timeout")}, aitest.Reply{Text: "Order concrete"}),
		completer:   aitest.NewCompleter(aitest.Reply{Text: `{"tasks":[{"title":"Order concrete"}]}`}),
	})
	rec := ts.do(t, "user-1", multipartRequest(t, "/memos", map[string]string{"date": "2024-03-01"}, audioPart()))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
	id := decode(t, rec)["memo"].(map[string]interface{})["id"].(string)

	rec = ts.do(t, "user-1", httptest.NewRequest(http.MethodPost, "/memos/"+id+"/retry", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("retry status = %d body = %s", rec.Code, rec.Body.String())
	}
	memo := decode(t, rec)
	if memo["transcriptStatus"] != "done" || memo["extractStatus"] != "done" {
		t.Fatalf("unexpected statuses %v / %v", memo["transcriptStatus"], memo["extractStatus"])
	}
	if !bytes.Equal(ts.transcriber.Calls[1].Audio, []byte("fake-audio")) {
		t.Fatalf("retry should transcribe the stored audio")
	}
}

func TestTaskLifecycle(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	rec := ts.doJSON(t, "user-1", http.MethodPost, "/tasks", map[string]interface{}{"title": "Buy milk", "dueDate": "2024-03-01"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rec.Code, rec.Body.String())
	}
	task := decode(t, rec)
	id := task["id"].(string)
	if task["source"] != "manual" || task["taskCategory"] != "personal" || task["completed"] != false {
		t.Fatalf("unexpected task %v", task)
	}

	rec = ts.do(t, "user-1", httptest.NewRequest(http.MethodPost, "/tasks/"+id+"/toggle", nil))
	if rec.Code != http.StatusOK || decode(t, rec)["completed"] != true {
		t.Fatalf("toggle failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.doJSON(t, "user-1", http.MethodPatch, "/tasks/"+id, map[string]interface{}{"dueDate": "", "title": "Buy oat milk"})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d body = %s", rec.Code, rec.Body.String())
	}
	task = decode(t, rec)
	if task["dueDate"] != nil || task["title"] != "Buy oat milk" {
		t.Fatalf("unexpected patched task %v", task)
	}

	rec = ts.do(t, "user-1", httptest.NewRequest(http.MethodGet, "/tasks?date=2024-03-01&include_undated=true", nil))
	if list := decodeList(t, rec); len(list) != 1 {
		t.Fatalf("undated task should be listed, got %d", len(list))
	}
	rec = ts.do(t, "user-1", httptest.NewRequest(http.MethodGet, "/tasks?date=2024-03-01", nil))
	if list := decodeList(t, rec); len(list) != 0 {
		t.Fatalf("undated task should be excluded, got %d", len(list))
	}

	rec = ts.do(t, "user-1", httptest.NewRequest(http.MethodDelete, "/tasks/"+id, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = ts.do(t, "user-1", httptest.NewRequest(http.MethodGet, "/tasks/"+id, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}
}

func TestTaskValidation(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	cases := map[string]map[string]interface{}{
		"blank title":   {"title": "   "},
		"bad due date":  {"title": "x", "dueDate": "03/01/2024"},
		"bad category":  {"title": "x", "taskCategory": "chores"},
		"unknown field": {"title": "x", "priority": 1},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := ts.doJSON(t, "user-1", http.MethodPost, "/tasks", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
			}
		})
	}
	rec := ts.do(t, "user-1", httptest.NewRequest(http.MethodGet, "/tasks?date=tomorrow", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date filter status = %d", rec.Code)
	}
}

func TestInspectionFlow(t *testing.T) {
	ts := newTestServer(t, serverOptions{
		transcriber: aitest.NewTranscriber(aitest.Reply{Text: "Crack in north wall"}),
		completer:   aitest.NewCompleter(aitest.Reply{Text: "Two issues found."}),
	})
	rec := ts.doJSON(t, "user-1", http.MethodPost, "/inspections", map[string]string{"title": "Site walk", "inspectionDate": "2024-03-01"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rec.Code, rec.Body.String())
	}
	inspection := decode(t, rec)
	id := inspection["id"].(string)
	if inspection["status"] != "draft" {
		t.Fatalf("status = %v", inspection["status"])
	}

	photo := filePart{field: "photo", fileName: "wall.jpg", contentType: "image/jpeg", data: []byte("fake-jpeg")}
	rec = ts.do(t, "user-1", multipartRequest(t, "/inspections/"+id+"/findings", map[string]string{"notes": "north wall"}, photo))
	if rec.Code != http.StatusCreated {
		t.Fatalf("photo finding status = %d body = %s", rec.Code, rec.Body.String())
	}
	photoURL, _ := decode(t, rec)["photoUrl"].(string)
	if photoURL == "" {
		t.Fatalf("photo finding should carry a url")
	}

	rec = ts.do(t, "user-1", multipartRequest(t, "/inspections/"+id+"/findings", nil, audioPart()))
	if rec.Code != http.StatusCreated {
		t.Fatalf("voice finding status = %d body = %s", rec.Code, rec.Body.String())
	}
	voice := decode(t, rec)
	if voice["transcript"] != "Crack in north wall" || voice["transcriptStatus"] != "done" {
		t.Fatalf("unexpected voice finding %v", voice)
	}

	rec = ts.do(t, "user-1", httptest.NewRequest(http.MethodPost, "/inspections/"+id+"/report", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("report status = %d body = %s", rec.Code, rec.Body.String())
	}
	report := decode(t, rec)
	if report["status"] != "completed" || report["reportSummary"] != "Two issues found." {
		t.Fatalf("unexpected report %v", report)
	}

	rec = ts.do(t, "user-1", httptest.NewRequest(http.MethodGet, "/inspections/"+id, nil))
	detail := decode(t, rec)
	if findings, _ := detail["findings"].([]interface{}); len(findings) != 2 {
		t.Fatalf("expected 2 findings, got %v", detail["findings"])
	}

	u, err := url.Parse(photoURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	rec = ts.do(t, "", httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "fake-jpeg" {
		t.Fatalf("media fetch = %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("content type = %q", ct)
	}

	rec = ts.do(t, "user-1", httptest.NewRequest(http.MethodDelete, "/inspections/"+id, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if keys := ts.blobs.Keys("inspection-photos"); len(keys) != 0 {
		t.Fatalf("photos should be removed, got %v", keys)
	}
}

func TestReportWithoutFindings(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	rec := ts.doJSON(t, "user-1", http.MethodPost, "/inspections", map[string]string{"title": "Empty", "inspectionDate": "2024-03-01"})
	id := decode(t, rec)["id"].(string)
	rec = ts.do(t, "user-1", httptest.NewRequest(http.MethodPost, "/inspections/"+id+"/report", nil))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if kind := errorKind(t, rec); kind != "empty_input" {
		t.Fatalf("kind = %q", kind)
	}
}

func TestAddFindingRejectsBothFiles(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	rec := ts.doJSON(t, "user-1", http.MethodPost, "/inspections", map[string]string{"title": "Walk", "inspectionDate": "2024-03-01"})
	id := decode(t, rec)["id"].(string)
	photo := filePart{field: "photo", fileName: "a.jpg", contentType: "image/jpeg", data: []byte("jpeg")}
	rec = ts.do(t, "user-1", multipartRequest(t, "/inspections/"+id+"/findings", nil, photo, audioPart()))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMediaRejectsBadSignature(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	if _, err := ts.blobs.Put(context.Background(), "inspection-photos", "u/a.jpg", []byte("x"), "image/jpeg"); err != nil {
		t.Fatalf("put: %v", err)
	}
	expires := time.Now().Add(time.Minute).Unix()
	path := "/media/inspection-photos/u/a.jpg?expires=" + strconv.FormatInt(expires, 10) + "&signature=deadbeef"
	rec := ts.do(t, "", httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
	rec = ts.do(t, "", httptest.NewRequest(http.MethodGet, "/media/inspection-photos/u/a.jpg", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unsigned status = %d", rec.Code)
	}
}

func TestAsyncModeDispatches(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	ts := newTestServer(t, serverOptions{dispatcher: dispatcher})
	rec := ts.do(t, "user-1", multipartRequest(t, "/memos", map[string]string{"date": "2024-03-01"}, audioPart()))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	memo := decode(t, rec)
	if memo["transcriptStatus"] != "pending" {
		t.Fatalf("memo should be pending, got %v", memo["transcriptStatus"])
	}
	if len(dispatcher.jobs) != 1 || dispatcher.jobs[0].Kind != pipeline.JobProcessMemo || dispatcher.jobs[0].RecordID != memo["id"] {
		t.Fatalf("unexpected jobs %+v", dispatcher.jobs)
	}
	if ts.transcriber.CallCount() != 0 {
		t.Fatalf("transcription must not run inline")
	}
}

func TestAsyncDispatchFailureReturnsRecord(t *testing.T) {
	dispatcher := &recordingDispatcher{err: errors.New("queue full")}
	ts := newTestServer(t, serverOptions{dispatcher: dispatcher})
	rec := ts.do(t, "user-1", multipartRequest(t, "/memos", map[string]string{"date": "2024-03-01"}, audioPart()))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	memo, ok := decode(t, rec)["memo"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected memo alongside the error: %s", rec.Body.String())
	}
	if memo["transcriptStatus"] != "error" {
		t.Fatalf("returned memo should be failed, got %v", memo["transcriptStatus"])
	}

	stored, err := ts.store.GetMemo(context.Background(), "user-1", memo["id"].(string))
	if err != nil {
		t.Fatalf("get memo: %v", err)
	}
	if stored.TranscriptStatus != model.StageError || stored.Error == nil || !strings.Contains(*stored.Error, "queue full") {
		t.Fatalf("refused dispatch not recorded on the row: status=%s error=%v", stored.TranscriptStatus, stored.Error)
	}
	if !stored.Failed() {
		t.Fatalf("memo should report failed")
	}
}

func TestAsyncFindingDispatchFailureMarksRow(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	ts := newTestServer(t, serverOptions{dispatcher: dispatcher})
	rec := ts.doJSON(t, "user-1", http.MethodPost, "/inspections", map[string]string{"title": "Site walk", "inspectionDate": "2024-03-01"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create inspection: %d %s", rec.Code, rec.Body.String())
	}
	inspectionID := decode(t, rec)["id"].(string)

	dispatcher.err = errors.New("redis unreachable")
	rec = ts.do(t, "user-1", multipartRequest(t, "/inspections/"+inspectionID+"/findings", nil, audioPart()))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	finding, ok := decode(t, rec)["finding"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected finding alongside the error: %s", rec.Body.String())
	}
	stored, err := ts.store.GetFinding(context.Background(), "user-1", finding["id"].(string))
	if err != nil {
		t.Fatalf("get finding: %v", err)
	}
	if stored.TranscriptStatus == nil || *stored.TranscriptStatus != model.StageError {
		t.Fatalf("finding should be failed, got %v", stored.TranscriptStatus)
	}
}
