package user

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/teamflow/teamflow/backend-go/internal/auth"
	"github.com/teamflow/teamflow/backend-go/internal/presence"
)

// ProjectLister yields the projects a user can see, so the online-users
// endpoint only reveals presence in rooms the caller has access to.
type ProjectLister interface {
	ListIDsForUser(ctx context.Context, userID string) ([]string, error)
}

// OnlineQuerier reads live room presence. Satisfied by the presence router.
type OnlineQuerier interface {
	OnlineInProjects(projectIDs []string) []presence.OnlineUser
}

type Handler struct {
	store    *Store
	projects ProjectLister
	online   OnlineQuerier
}

func NewHandler(store *Store, projects ProjectLister, online OnlineQuerier) *Handler {
	return &Handler{store: store, projects: projects, online: online}
}

// Online returns the live room members across the caller's projects, deduped
// by userId.
func (h *Handler) Online(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	projectIDs, err := h.projects.ListIDsForUser(r.Context(), userID)
	if err != nil {
		slog.Error("list projects for online users failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, h.online.OnlineInProjects(projectIDs))
}

// Team lists every user with their persisted presence shadow.
func (h *Handler) Team(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.List(r.Context())
	if err != nil {
		slog.Error("list users failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, users)
}

type updateProfileRequest struct {
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	Avatar *string `json:"avatar"`
	Theme  string  `json:"theme"`
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Email != "" {
		existing, err := h.store.GetByEmail(r.Context(), req.Email)
		if err == nil && existing.ID != userID {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email already in use"})
			return
		}
	}

	updated, err := h.store.UpdateProfile(r.Context(), userID, ProfileUpdate{
		Name:   req.Name,
		Email:  req.Email,
		Avatar: req.Avatar,
		Theme:  req.Theme,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		slog.Error("update profile failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]*User{"user": updated})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
