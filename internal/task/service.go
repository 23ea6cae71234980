package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/teamflow/teamflow/backend-go/internal/activity"
	"github.com/teamflow/teamflow/backend-go/internal/project"
	"github.com/teamflow/teamflow/backend-go/internal/typeid"
	"github.com/teamflow/teamflow/backend-go/internal/user"
)

var (
	ErrNotFound      = errors.New("task not found")
	ErrInvalidStatus = errors.New("invalid task status")
)

const (
	StatusTodo       = "todo"
	StatusInProgress = "in-progress"
	StatusDone       = "done"
)

func validStatus(s string) bool {
	return s == StatusTodo || s == StatusInProgress || s == StatusDone
}

func validPriority(p string) bool {
	return p == "low" || p == "medium" || p == "high"
}

type Task struct {
	ID          string     `bson:"_id" json:"id"`
	Title       string     `bson:"title" json:"title"`
	Description string     `bson:"description,omitempty" json:"description,omitempty"`
	ProjectID   string     `bson:"projectId" json:"projectId"`
	AssigneeID  string     `bson:"assigneeId,omitempty" json:"assigneeId,omitempty"`
	Status      string     `bson:"status" json:"status"`
	Priority    string     `bson:"priority" json:"priority"`
	DueDate     *time.Time `bson:"dueDate,omitempty" json:"dueDate,omitempty"`
	CreatedBy   string     `bson:"createdBy" json:"createdBy"`
	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt" json:"updatedAt"`
}

type Service struct {
	tasks      *mongo.Collection
	projects   *project.Service
	users      *user.Store
	activities *activity.Store
}

func NewService(db *mongo.Database, projects *project.Service, users *user.Store, activities *activity.Store) *Service {
	return &Service{
		tasks:      db.Collection("tasks"),
		projects:   projects,
		users:      users,
		activities: activities,
	}
}

type CreateParams struct {
	Title       string
	Description string
	ProjectID   string
	AssigneeID  string
	Status      string
	Priority    string
	DueDate     *time.Time
}

func (s *Service) Create(ctx context.Context, userID string, params CreateParams) (*Task, error) {
	if err := s.projects.CheckMembership(ctx, params.ProjectID, userID); err != nil {
		return nil, err
	}

	if params.Status == "" {
		params.Status = StatusTodo
	}
	if !validStatus(params.Status) {
		return nil, ErrInvalidStatus
	}
	if params.Priority == "" {
		params.Priority = "medium"
	}
	if !validPriority(params.Priority) {
		return nil, errors.New("invalid task priority")
	}

	now := time.Now()
	t := &Task{
		ID:          typeid.NewTaskID(),
		Title:       params.Title,
		Description: params.Description,
		ProjectID:   params.ProjectID,
		AssigneeID:  params.AssigneeID,
		Status:      params.Status,
		Priority:    params.Priority,
		DueDate:     params.DueDate,
		CreatedBy:   userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := s.tasks.InsertOne(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	s.recordActivity(ctx, activity.TypeTaskCreated, fmt.Sprintf("created task %q", t.Title), userID, t.ProjectID)

	return t, nil
}

func (s *Service) Get(ctx context.Context, taskID, userID string) (*Task, error) {
	t, err := s.get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.projects.CheckMembership(ctx, t.ProjectID, userID); err != nil {
		return nil, err
	}
	return t, nil
}

// ListByProject returns the project's tasks, optionally filtered by status.
func (s *Service) ListByProject(ctx context.Context, projectID, userID, status string) ([]Task, error) {
	if err := s.projects.CheckMembership(ctx, projectID, userID); err != nil {
		return nil, err
	}

	filter := bson.M{"projectId": projectID}
	if status != "" {
		if !validStatus(status) {
			return nil, ErrInvalidStatus
		}
		filter["status"] = status
	}

	cursor, err := s.tasks.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	tasks := []Task{}
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	return tasks, nil
}

type UpdateParams struct {
	Title       string
	Description *string
	AssigneeID  *string
	Status      string
	Priority    string
	DueDate     *time.Time
}

func (s *Service) Update(ctx context.Context, taskID, userID string, params UpdateParams) (*Task, error) {
	t, err := s.get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.projects.CheckMembership(ctx, t.ProjectID, userID); err != nil {
		return nil, err
	}

	set := bson.M{"updatedAt": time.Now()}
	if params.Title != "" {
		set["title"] = params.Title
	}
	if params.Description != nil {
		set["description"] = *params.Description
	}
	if params.AssigneeID != nil {
		set["assigneeId"] = *params.AssigneeID
	}
	if params.Status != "" {
		if !validStatus(params.Status) {
			return nil, ErrInvalidStatus
		}
		set["status"] = params.Status
	}
	if params.Priority != "" {
		if !validPriority(params.Priority) {
			return nil, errors.New("invalid task priority")
		}
		set["priority"] = params.Priority
	}
	if params.DueDate != nil {
		set["dueDate"] = *params.DueDate
	}

	var updated Task
	err = s.tasks.FindOneAndUpdate(ctx,
		bson.M{"_id": taskID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	typ := activity.TypeTaskUpdated
	desc := fmt.Sprintf("updated task %q", updated.Title)
	if params.Status == StatusDone && t.Status != StatusDone {
		typ = activity.TypeTaskCompleted
		desc = fmt.Sprintf("completed task %q", updated.Title)
	}
	s.recordActivity(ctx, typ, desc, userID, updated.ProjectID)

	return &updated, nil
}

// Move transitions a task between board columns.
func (s *Service) Move(ctx context.Context, taskID, userID, toStatus string) (*Task, error) {
	if !validStatus(toStatus) {
		return nil, ErrInvalidStatus
	}
	return s.Update(ctx, taskID, userID, UpdateParams{Status: toStatus})
}

func (s *Service) Delete(ctx context.Context, taskID, userID string) error {
	t, err := s.get(ctx, taskID)
	if err != nil {
		return err
	}
	if err := s.projects.CheckMembership(ctx, t.ProjectID, userID); err != nil {
		return err
	}

	if _, err := s.tasks.DeleteOne(ctx, bson.M{"_id": taskID}); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func (s *Service) get(ctx context.Context, taskID string) (*Task, error) {
	var t Task
	err := s.tasks.FindOne(ctx, bson.M{"_id": taskID}).Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &t, nil
}

func (s *Service) recordActivity(ctx context.Context, typ, description, userID, projectID string) {
	actor := activity.Actor{ID: userID}
	if u, err := s.users.GetByID(ctx, userID); err == nil {
		actor.Name = u.Name
	}
	s.activities.Record(ctx, activity.Activity{
		Type:        typ,
		Description: description,
		User:        actor,
		Project:     &activity.ProjectRef{ID: projectID},
	})
}
