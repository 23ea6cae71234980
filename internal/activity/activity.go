package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/teamflow/teamflow/backend-go/internal/typeid"
)

const (
	TypeProjectCreated = "project_created"
	TypeProjectUpdated = "project_updated"
	TypeProjectDeleted = "project_deleted"
	TypeTaskCreated    = "task_created"
	TypeTaskUpdated    = "task_updated"
	TypeTaskCompleted  = "task_completed"
	TypeMemberInvited  = "member_invited"
)

type Actor struct {
	ID   string `bson:"_id" json:"id"`
	Name string `bson:"name" json:"name"`
}

type ProjectRef struct {
	ID   string `bson:"_id" json:"id"`
	Name string `bson:"name" json:"name"`
}

type Activity struct {
	ID          string      `bson:"_id" json:"id"`
	Type        string      `bson:"type" json:"type"`
	Description string      `bson:"description" json:"description"`
	User        Actor       `bson:"user" json:"user"`
	Project     *ProjectRef `bson:"project,omitempty" json:"project,omitempty"`
	CreatedAt   time.Time   `bson:"createdAt" json:"createdAt"`
}

type Store struct {
	activities *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{activities: db.Collection("activities")}
}

// Record writes a feed entry. Callers treat this as best-effort; a lost
// activity must never fail the operation that produced it.
func (s *Store) Record(ctx context.Context, a Activity) {
	a.ID = typeid.NewActivityID()
	a.CreatedAt = time.Now()
	if _, err := s.activities.InsertOne(ctx, a); err != nil {
		slog.Error("record activity", "type", a.Type, "error", err)
	}
}

func (s *Store) ListForUser(ctx context.Context, userID string, limit int64) ([]Activity, error) {
	cursor, err := s.activities.Find(ctx,
		bson.M{"user._id": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	activities := []Activity{}
	if err := cursor.All(ctx, &activities); err != nil {
		return nil, fmt.Errorf("decode activities: %w", err)
	}
	return activities, nil
}

type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) ListForUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	activities, err := h.store.ListForUser(r.Context(), userID, 50)
	if err != nil {
		slog.Error("list activities failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, activities)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
