package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/dharsanguruparan/fieldmemo/internal/apperr"
	"github.com/dharsanguruparan/fieldmemo/internal/model"
	"github.com/dharsanguruparan/fieldmemo/internal/pipeline"
)

type createInspectionRequest struct {
	Title          string `json:"title"`
	InspectionDate string `json:"inspectionDate"`
}

type inspectionView struct {
	*model.Inspection
	Findings []*findingView `json:"findings,omitempty"`
}

type findingView struct {
	*model.Finding
	PhotoURL     string `json:"photoUrl,omitempty"`
	VoiceMemoURL string `json:"voiceMemoUrl,omitempty"`
}

func (s *Server) findingView(ctx context.Context, f *model.Finding) *findingView {
	v := &findingView{Finding: f}
	buckets := s.pipeline.Buckets()
	if f.HasPhoto() {
		v.PhotoURL = s.publicURL(ctx, buckets.InspectionPhotos, *f.PhotoPath)
	}
	if f.HasVoice() {
		v.VoiceMemoURL = s.publicURL(ctx, buckets.VoiceMemos, *f.VoiceMemoPath)
	}
	return v
}

func (s *Server) handleInspections(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateInspection(w, r)
	case http.MethodGet:
		s.handleListInspections(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleInspectionRoute(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitRoute(r.URL.Path, "/inspections/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			s.handleGetInspection(w, r, id)
		case http.MethodDelete:
			s.handleDeleteInspection(w, r, id)
		default:
			methodNotAllowed(w)
		}
	case "findings":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleAddFinding(w, r, id)
	case "report":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleReport(w, r, id)
	case "closeout":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleCloseout(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleFindingRoute(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitRoute(r.URL.Path, "/findings/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	switch {
	case action == "" && r.Method == http.MethodDelete:
		s.handleDeleteFinding(w, r, id)
	case action == "retry" && r.Method == http.MethodPost:
		s.handleRetryFinding(w, r, id)
	case action == "" || action == "retry":
		methodNotAllowed(w)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleCreateInspection(w http.ResponseWriter, r *http.Request) {
	var req createInspectionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	in, err := s.pipeline.CreateInspection(r.Context(), ownerID(r), req.Title, strings.TrimSpace(req.InspectionDate))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, &inspectionView{Inspection: in})
}

func (s *Server) handleListInspections(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListInspections(r.Context(), ownerID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	out := make([]*inspectionView, 0, len(list))
	for _, in := range list {
		out = append(out, &inspectionView{Inspection: in})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetInspection(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	owner := ownerID(r)
	in, err := s.pipeline.GetInspection(ctx, owner, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	findings, err := s.store.ListFindings(ctx, owner, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	view := &inspectionView{Inspection: in, Findings: make([]*findingView, 0, len(findings))}
	for _, f := range findings {
		view.Findings = append(view.Findings, s.findingView(ctx, f))
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteInspection(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.pipeline.DeleteInspection(r.Context(), ownerID(r), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddFinding(w http.ResponseWriter, r *http.Request, inspectionID string) {
	ctx := r.Context()
	form, err := s.readForm(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	in := pipeline.FindingInput{OwnerID: ownerID(r), InspectionID: inspectionID, Notes: form.value("notes")}
	photo, hasPhoto := form.files["photo"]
	audio, hasAudio := form.files["audio"]
	switch {
	case hasPhoto && hasAudio:
		s.respondError(w, r, apperr.Validation("a finding carries either a photo or an audio file, not both"))
		return
	case hasPhoto:
		kind := model.KindFromContentType(photo.contentType)
		if kind != model.KindPhoto && kind != model.KindVideo {
			s.respondError(w, r, apperr.Validation("photo must be an image or video, got %s", photo.contentType))
			return
		}
		c := photo.capture(kind)
		in.Capture = &c
	case hasAudio:
		c := audio.capture(model.KindAudio)
		in.Capture = &c
	}

	if s.async() && hasAudio {
		f, err := s.pipeline.IngestFinding(ctx, in)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.dispatchAndRespond(w, r, pipeline.Job{Kind: pipeline.JobTranscribeFinding, OwnerID: in.OwnerID, RecordID: f.ID}, "finding", func(ctx context.Context) interface{} {
			return s.findingView(ctx, f)
		})
		return
	}

	f, err := s.pipeline.AddFinding(ctx, in)
	if err != nil {
		s.failFinding(w, r, err, f)
		return
	}
	respondJSON(w, http.StatusCreated, s.findingView(ctx, f))
}

func (s *Server) handleDeleteFinding(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.pipeline.DeleteFinding(r.Context(), ownerID(r), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetryFinding(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	owner := ownerID(r)
	if s.async() {
		f, err := s.store.GetFinding(ctx, owner, id)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		if f.HasVoice() {
			s.dispatchAndRespond(w, r, pipeline.Job{Kind: pipeline.JobTranscribeFinding, OwnerID: owner, RecordID: id}, "finding", func(ctx context.Context) interface{} {
				return s.findingView(ctx, f)
			})
			return
		}
	}
	f, err := s.pipeline.ResumeFinding(ctx, owner, id)
	if err != nil {
		s.failFinding(w, r, err, f)
		return
	}
	respondJSON(w, http.StatusOK, s.findingView(ctx, f))
}

func (s *Server) failFinding(w http.ResponseWriter, r *http.Request, err error, f *model.Finding) {
	if f == nil {
		s.respondError(w, r, err)
		return
	}
	s.respondErrorWith(w, r, err, "finding", s.findingView(r.Context(), f))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, id string) {
	in, err := s.pipeline.GenerateReport(r.Context(), ownerID(r), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, &inspectionView{Inspection: in})
}

func (s *Server) handleCloseout(w http.ResponseWriter, r *http.Request, id string) {
	in, err := s.pipeline.GenerateCloseout(r.Context(), ownerID(r), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, &inspectionView{Inspection: in})
}
