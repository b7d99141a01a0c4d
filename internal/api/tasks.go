package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dharsanguruparan/fieldmemo/internal/apperr"
	"github.com/dharsanguruparan/fieldmemo/internal/model"
	"github.com/dharsanguruparan/fieldmemo/internal/repository"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type createTaskRequest struct {
	Title        string  `json:"title" validate:"required"`
	Notes        *string `json:"notes"`
	DueDate      *string `json:"dueDate" validate:"omitempty,datetime=2006-01-02|eq="`
	TaskCategory string  `json:"taskCategory" validate:"omitempty,oneof=personal work"`
}

// updateTaskRequest mirrors model.TaskPatch. An empty dueDate or notes
// clears the column.
type updateTaskRequest struct {
	Title        *string `json:"title" validate:"omitempty,min=1"`
	Notes        *string `json:"notes"`
	DueDate      *string `json:"dueDate" validate:"omitempty,datetime=2006-01-02|eq="`
	Completed    *bool   `json:"completed"`
	TaskCategory *string `json:"taskCategory" validate:"omitempty,oneof=personal work"`
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListTasks(w, r)
	case http.MethodPost:
		s.handleCreateTask(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleTaskRoute(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitRoute(r.URL.Path, "/tasks/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	switch {
	case action == "" && r.Method == http.MethodGet:
		s.handleGetTask(w, r, id)
	case action == "" && r.Method == http.MethodPatch:
		s.handleUpdateTask(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		s.handleDeleteTask(w, r, id)
	case action == "toggle" && r.Method == http.MethodPost:
		s.handleToggleTask(w, r, id)
	case action == "" || action == "toggle":
		methodNotAllowed(w)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.TaskFilter{
		DueDate:     q.Get("date"),
		VoiceMemoID: q.Get("voice_memo_id"),
	}
	if filter.DueDate != "" {
		if err := validate.Var(filter.DueDate, "datetime=2006-01-02"); err != nil {
			s.respondError(w, r, apperr.Validation("date must be YYYY-MM-DD"))
			return
		}
	}
	if raw := q.Get("include_undated"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			s.respondError(w, r, apperr.Validation("include_undated must be a boolean"))
			return
		}
		filter.IncludeUndated = include
	}
	tasks, err := s.store.ListTasks(r.Context(), ownerID(r), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}
	respondJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.DueDate != nil && *req.DueDate == "" {
		req.DueDate = nil
	}
	if err := validate.Struct(req); err != nil {
		s.respondError(w, r, validationError(err))
		return
	}
	task := &model.Task{
		OwnerID:      ownerID(r),
		Title:        req.Title,
		Notes:        req.Notes,
		DueDate:      req.DueDate,
		Source:       model.SourceManual,
		TaskCategory: model.TaskCategory(req.TaskCategory),
	}
	if err := s.store.CreateTask(r.Context(), task); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request, id string) {
	task, err := s.store.GetTask(r.Context(), ownerID(r), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request, id string) {
	var req updateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Title != nil {
		trimmed := strings.TrimSpace(*req.Title)
		req.Title = &trimmed
	}
	if err := validate.Struct(req); err != nil {
		s.respondError(w, r, validationError(err))
		return
	}
	patch := model.TaskPatch{
		Title:     req.Title,
		Notes:     req.Notes,
		DueDate:   req.DueDate,
		Completed: req.Completed,
	}
	if req.TaskCategory != nil {
		c := model.TaskCategory(*req.TaskCategory)
		patch.TaskCategory = &c
	}
	task, err := s.store.UpdateTask(r.Context(), ownerID(r), id, patch)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleToggleTask(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	owner := ownerID(r)
	task, err := s.store.GetTask(ctx, owner, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	completed := !task.Completed
	task, err = s.store.UpdateTask(ctx, owner, id, model.TaskPatch{Completed: &completed})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.store.DeleteTask(r.Context(), ownerID(r), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("invalid JSON body: %v", err)
	}
	return nil
}

// validationError flattens validator output into one message with a
// per-field detail map.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Validation("%v", err)
	}
	names := make([]string, 0, len(fieldErrs))
	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		names = append(names, fe.Field())
		details[fe.Field()] = fmt.Sprintf("failed %s", fe.Tag())
	}
	ae := apperr.Validation("invalid fields: %s", strings.Join(names, ", "))
	ae.Details = details
	return ae
}
