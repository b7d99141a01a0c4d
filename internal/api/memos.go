package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dharsanguruparan/fieldmemo/internal/apperr"
	"github.com/dharsanguruparan/fieldmemo/internal/logger"
	"github.com/dharsanguruparan/fieldmemo/internal/model"
	"github.com/dharsanguruparan/fieldmemo/internal/pipeline"
)

type memoView struct {
	*model.VoiceMemo
	AudioURL string `json:"audioUrl,omitempty"`
}

func (s *Server) memoView(ctx context.Context, m *model.VoiceMemo) *memoView {
	if m == nil {
		return nil
	}
	return &memoView{VoiceMemo: m, AudioURL: s.publicURL(ctx, s.pipeline.Buckets().VoiceMemos, m.AudioPath)}
}

// failMemo reports a stage failure together with the memo when one was stored.
func (s *Server) failMemo(w http.ResponseWriter, r *http.Request, err error, memo *model.VoiceMemo) {
	if memo == nil {
		s.respondError(w, r, err)
		return
	}
	s.respondErrorWith(w, r, err, "memo", s.memoView(r.Context(), memo))
}

func (s *Server) handleMemos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateMemo(w, r)
	case http.MethodGet:
		s.handleListMemos(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleMemoRoute(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitRoute(r.URL.Path, "/memos/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	switch {
	case action == "" && r.Method == http.MethodGet:
		s.handleGetMemo(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		s.handleDeleteMemo(w, r, id)
	case action == "retry" && r.Method == http.MethodPost:
		s.handleRetryMemo(w, r, id)
	case action == "" || action == "retry":
		methodNotAllowed(w)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleCreateMemo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	form, err := s.readForm(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	file, ok := form.files["audio"]
	if !ok {
		s.respondError(w, r, apperr.Validation("audio file is required"))
		return
	}
	kind := model.KindFromContentType(file.contentType)
	if kind == model.KindVideo {
		// Recorders commonly produce audio in a webm or mp4 container.
		kind = model.KindAudio
	}
	date := form.value("date")
	if date == "" {
		date = s.now().UTC().Format(model.DateLayout)
	}
	in := pipeline.MemoInput{
		OwnerID:     ownerID(r),
		Capture:     file.capture(kind),
		ContextDate: date,
		Category:    model.TaskCategory(form.value("task_category")),
	}

	if s.async() {
		memo, err := s.pipeline.IngestMemo(ctx, in)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.dispatchAndRespond(w, r, pipeline.Job{Kind: pipeline.JobProcessMemo, OwnerID: in.OwnerID, RecordID: memo.ID}, "memo", func(ctx context.Context) interface{} {
			current, err := s.pipeline.GetMemo(ctx, in.OwnerID, memo.ID)
			if err != nil {
				return s.memoView(ctx, memo)
			}
			return s.memoView(ctx, current)
		})
		return
	}

	memo, err := s.pipeline.ProcessMemo(ctx, in)
	if err != nil {
		s.failMemo(w, r, err, memo)
		return
	}
	respondJSON(w, http.StatusCreated, s.memoView(ctx, memo))
}

func (s *Server) handleListMemos(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.respondError(w, r, apperr.Validation("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	memos, err := s.store.ListMemos(r.Context(), ownerID(r), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	out := make([]*memoView, 0, len(memos))
	for _, m := range memos {
		out = append(out, s.memoView(r.Context(), m))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetMemo(w http.ResponseWriter, r *http.Request, id string) {
	memo, err := s.pipeline.GetMemo(r.Context(), ownerID(r), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.memoView(r.Context(), memo))
}

func (s *Server) handleDeleteMemo(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.pipeline.DeleteMemo(r.Context(), ownerID(r), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetryMemo(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	owner := ownerID(r)
	if s.async() {
		memo, err := s.pipeline.GetMemo(ctx, owner, id)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.dispatchAndRespond(w, r, pipeline.Job{Kind: pipeline.JobProcessMemo, OwnerID: owner, RecordID: id}, "memo", func(ctx context.Context) interface{} {
			return s.memoView(ctx, memo)
		})
		return
	}
	memo, err := s.pipeline.ResumeMemo(ctx, owner, id)
	if err != nil {
		s.failMemo(w, r, err, memo)
		return
	}
	respondJSON(w, http.StatusOK, s.memoView(ctx, memo))
}

// dispatchAndRespond queues job and answers 202 with the current record. A
// refused dispatch marks the row failed and is reported alongside the record.
func (s *Server) dispatchAndRespond(w http.ResponseWriter, r *http.Request, job pipeline.Job, key string, record func(context.Context) interface{}) {
	ctx := r.Context()
	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		fields := map[string]interface{}{
			logger.FieldOwnerID: job.OwnerID,
			"record_id":         job.RecordID,
			"kind":              job.Kind,
		}
		s.log.WithError(err).Warn("dispatch failed", fields)
		if ferr := s.pipeline.FailJob(context.WithoutCancel(ctx), job, "could not queue processing: "+err.Error()); ferr != nil {
			s.log.WithError(ferr).Error("record dispatch failure", fields)
		}
		s.respondErrorWith(w, r, apperr.Storage("could not queue processing", err), key, record(ctx))
		return
	}
	respondJSON(w, http.StatusAccepted, record(ctx))
}

func (s *Server) publicURL(ctx context.Context, bucket, key string) string {
	if key == "" {
		return ""
	}
	url, err := s.blobs.PublicURL(ctx, bucket, key)
	if err != nil {
		s.log.WithError(err).Warn("public url failed", map[string]interface{}{"bucket": bucket, "key": key})
		return ""
	}
	return url
}
