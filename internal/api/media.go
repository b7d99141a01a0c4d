package api

import (
	"bytes"
	"net/http"
	"path"
	"strings"
	"time"
)

// handleMedia serves objects of the in-memory blob store through the signed
// URLs it hands out. Other blob stores sign their own URLs.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w)
		return
	}
	if s.media == nil || s.signer == nil {
		http.NotFound(w, r)
		return
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(r.URL.Path, "/media/"), "/")
	if !ok || bucket == "" || key == "" {
		http.NotFound(w, r)
		return
	}
	expires := r.URL.Query().Get("expires")
	signature := r.URL.Query().Get("signature")
	if expires == "" || signature == "" {
		http.Error(w, "missing signature", http.StatusBadRequest)
		return
	}
	if !s.signer.ValidateFresh(bucket+"/"+key, expires, signature) {
		http.Error(w, "invalid or expired signature", http.StatusForbidden)
		return
	}
	data, err := s.media.Get(r.Context(), bucket, key)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if contentType, ok := s.media.ContentType(bucket, key); ok && contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "private, max-age=60")
	http.ServeContent(w, r, path.Base(key), time.Time{}, bytes.NewReader(data))
}
