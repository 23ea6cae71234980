package task

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/teamflow/teamflow/backend-go/internal/auth"
	"github.com/teamflow/teamflow/backend-go/internal/project"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type taskRequest struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	ProjectID   string     `json:"projectId"`
	AssigneeID  *string    `json:"assigneeId"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"dueDate"`
}

type moveRequest struct {
	Status string `json:"status"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Title == "" || req.ProjectID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title and projectId are required"})
		return
	}

	params := CreateParams{
		Title:     req.Title,
		ProjectID: req.ProjectID,
		Status:    req.Status,
		Priority:  req.Priority,
		DueDate:   req.DueDate,
	}
	if req.Description != nil {
		params.Description = *req.Description
	}
	if req.AssigneeID != nil {
		params.AssigneeID = *req.AssigneeID
	}

	t, err := h.service.Create(r.Context(), userID, params)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	taskID := mux.Vars(r)["taskId"]

	t, err := h.service.Get(r.Context(), taskID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) ListByProject(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	projectID := mux.Vars(r)["projectId"]
	status := r.URL.Query().Get("status")

	tasks, err := h.service.ListByProject(r.Context(), projectID, userID, status)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	taskID := mux.Vars(r)["taskId"]

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	t, err := h.service.Update(r.Context(), taskID, userID, UpdateParams{
		Title:       req.Title,
		Description: req.Description,
		AssigneeID:  req.AssigneeID,
		Status:      req.Status,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	taskID := mux.Vars(r)["taskId"]

	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	t, err := h.service.Move(r.Context(), taskID, userID, req.Status)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	taskID := mux.Vars(r)["taskId"]

	if err := h.service.Delete(r.Context(), taskID, userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, project.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, project.ErrNotMember), errors.Is(err, project.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, ErrInvalidStatus):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task status"})
	default:
		slog.Error("service error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
