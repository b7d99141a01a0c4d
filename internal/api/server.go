// Package api exposes the memo, task and inspection workflows over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dharsanguruparan/fieldmemo/internal/auth"
	"github.com/dharsanguruparan/fieldmemo/internal/config"
	"github.com/dharsanguruparan/fieldmemo/internal/logger"
	"github.com/dharsanguruparan/fieldmemo/internal/pipeline"
	"github.com/dharsanguruparan/fieldmemo/internal/repository"
	"github.com/dharsanguruparan/fieldmemo/internal/signing"
	"github.com/dharsanguruparan/fieldmemo/internal/storage"
)

// Dispatcher hands a stored row to background processing.
type Dispatcher interface {
	Dispatch(ctx context.Context, job pipeline.Job) error
}

// Server exposes HTTP endpoints for captures, tasks and inspections.
type Server struct {
	cfg        *config.Config
	pipeline   *pipeline.Pipeline
	store      *repository.Store
	blobs      storage.BlobStore
	auth       *auth.Authenticator
	dispatcher Dispatcher
	media      *storage.MemoryStore
	signer     *signing.Signer
	log        *logger.Logger
	now        func() time.Time

	server *http.Server
	once   sync.Once
}

// Option customizes a Server.
type Option func(*Server)

// WithDispatcher runs stages in the background when cfg.Async is set.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Server) { s.dispatcher = d }
}

// WithMedia serves the in-memory blob store under /media. Requests must carry
// an expiry and signature produced by signer.
func WithMedia(media *storage.MemoryStore, signer *signing.Signer) Option {
	return func(s *Server) {
		s.media = media
		s.signer = signer
	}
}

// WithLogger sets the request and error logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.log = l.WithComponent("api") }
}

// New constructs a Server.
func New(cfg *config.Config, p *pipeline.Pipeline, store *repository.Store, blobs storage.BlobStore, authn *auth.Authenticator, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		pipeline: p,
		store:    store,
		blobs:    blobs,
		auth:     authn,
		log:      logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	protected := http.NewServeMux()
	protected.HandleFunc("/memos", s.handleMemos)
	protected.HandleFunc("/memos/", s.handleMemoRoute)
	protected.HandleFunc("/tasks", s.handleTasks)
	protected.HandleFunc("/tasks/", s.handleTaskRoute)
	protected.HandleFunc("/inspections", s.handleInspections)
	protected.HandleFunc("/inspections/", s.handleInspectionRoute)
	protected.HandleFunc("/findings/", s.handleFindingRoute)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/media/", s.handleMedia)
	mux.Handle("/", s.auth.Middleware(s.respondError)(protected))
	return corsMiddleware(s.loggingMiddleware(mux))
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.cfg.Address,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info("api listening", map[string]interface{}{"address": s.cfg.Address, "async": s.async()})
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) async() bool {
	return s.cfg.Async && s.dispatcher != nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ownerID is always present behind the auth middleware.
func ownerID(r *http.Request) string {
	id, _ := auth.OwnerID(r.Context())
	return id
}

// splitRoute returns the id and optional action below prefix.
func splitRoute(path, prefix string) (id, action string, ok bool) {
	parts := strings.Split(strings.TrimPrefix(path, prefix), "/")
	if len(parts) == 0 || parts[0] == "" || len(parts) > 2 {
		return "", "", false
	}
	if len(parts) == 2 {
		action = parts[1]
	}
	return parts[0], action, true
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request", map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		})
	})
}
