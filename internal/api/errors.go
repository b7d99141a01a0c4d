package api

import (
	"errors"
	"net/http"

	"github.com/dharsanguruparan/fieldmemo/internal/apperr"
	"github.com/dharsanguruparan/fieldmemo/internal/repository"
)

const kindInternal apperr.Kind = "internal"

// respondError writes {"error": {...}}. The body also carries record under
// key when a row exists despite the failure, so clients can show its state.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	s.respondErrorWith(w, r, err, "", nil)
}

func (s *Server) respondErrorWith(w http.ResponseWriter, r *http.Request, err error, key string, record interface{}) {
	ae := asAppError(err)
	status := ae.HTTPStatus()
	log := s.log.WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"kind":   ae.Kind,
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Debug("request rejected")
	}
	body := map[string]interface{}{"error": ae}
	if key != "" && record != nil {
		body[key] = record
	}
	respondJSON(w, status, body)
}

func asAppError(err error) *apperr.Error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.New(apperr.KindNotFound, "not found", err)
	}
	// The cause is logged, never sent.
	return &apperr.Error{Kind: kindInternal, Message: "internal server error"}
}
