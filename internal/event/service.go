package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/teamflow/teamflow/backend-go/internal/typeid"
)

var (
	ErrNotFound  = errors.New("event not found")
	ErrForbidden = errors.New("forbidden")
)

const (
	TypeMeeting   = "meeting"
	TypeDeadline  = "deadline"
	TypeMilestone = "milestone"
	TypeOther     = "other"
)

func validType(t string) bool {
	return t == TypeMeeting || t == TypeDeadline || t == TypeMilestone || t == TypeOther
}

type Reminder struct {
	Enabled       bool `bson:"enabled" json:"enabled"`
	MinutesBefore int  `bson:"minutesBefore" json:"minutesBefore"`
}

type Event struct {
	ID          string    `bson:"_id" json:"id"`
	Title       string    `bson:"title" json:"title"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	StartDate   time.Time `bson:"startDate" json:"startDate"`
	EndDate     time.Time `bson:"endDate" json:"endDate"`
	EventType   string    `bson:"eventType" json:"eventType"`
	CreatedBy   string    `bson:"createdBy" json:"createdBy"`
	AttendeeIDs []string  `bson:"attendeeIds" json:"attendeeIds"`
	ProjectID   string    `bson:"projectId,omitempty" json:"projectId,omitempty"`
	Reminder    *Reminder `bson:"reminder,omitempty" json:"reminder,omitempty"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updatedAt"`
}

type Service struct {
	events *mongo.Collection
}

func NewService(db *mongo.Database) *Service {
	return &Service{events: db.Collection("teamEvents")}
}

type Params struct {
	Title       string
	Description string
	StartDate   time.Time
	EndDate     time.Time
	EventType   string
	AttendeeIDs []string
	ProjectID   string
	Reminder    *Reminder
}

func (s *Service) Create(ctx context.Context, userID string, params Params) (*Event, error) {
	if params.EventType == "" {
		params.EventType = TypeOther
	}
	if !validType(params.EventType) {
		return nil, errors.New("invalid event type")
	}
	if params.EndDate.Before(params.StartDate) {
		return nil, errors.New("endDate must not be before startDate")
	}

	now := time.Now()
	e := &Event{
		ID:          typeid.NewEventID(),
		Title:       params.Title,
		Description: params.Description,
		StartDate:   params.StartDate,
		EndDate:     params.EndDate,
		EventType:   params.EventType,
		CreatedBy:   userID,
		AttendeeIDs: params.AttendeeIDs,
		ProjectID:   params.ProjectID,
		Reminder:    params.Reminder,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if e.AttendeeIDs == nil {
		e.AttendeeIDs = []string{}
	}

	if _, err := s.events.InsertOne(ctx, e); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return e, nil
}

// List returns events overlapping the given range. Zero times mean an
// unbounded side.
func (s *Service) List(ctx context.Context, from, to time.Time) ([]Event, error) {
	filter := bson.M{}
	if !from.IsZero() {
		filter["endDate"] = bson.M{"$gte": from}
	}
	if !to.IsZero() {
		filter["startDate"] = bson.M{"$lte": to}
	}

	cursor, err := s.events.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "startDate", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	events := []Event{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return events, nil
}

// Upcoming returns events starting within the next `days` days.
func (s *Service) Upcoming(ctx context.Context, days int) ([]Event, error) {
	now := time.Now()
	return s.List(ctx, now, now.AddDate(0, 0, days))
}

func (s *Service) Get(ctx context.Context, eventID string) (*Event, error) {
	var e Event
	err := s.events.FindOne(ctx, bson.M{"_id": eventID}).Decode(&e)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}

func (s *Service) Update(ctx context.Context, eventID, userID string, params Params) (*Event, error) {
	e, err := s.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e.CreatedBy != userID {
		return nil, ErrForbidden
	}

	set := bson.M{"updatedAt": time.Now()}
	if params.Title != "" {
		set["title"] = params.Title
	}
	if params.Description != "" {
		set["description"] = params.Description
	}
	if !params.StartDate.IsZero() {
		set["startDate"] = params.StartDate
	}
	if !params.EndDate.IsZero() {
		set["endDate"] = params.EndDate
	}
	if params.EventType != "" {
		if !validType(params.EventType) {
			return nil, errors.New("invalid event type")
		}
		set["eventType"] = params.EventType
	}
	if params.AttendeeIDs != nil {
		set["attendeeIds"] = params.AttendeeIDs
	}
	if params.Reminder != nil {
		set["reminder"] = params.Reminder
	}

	var updated Event
	err = s.events.FindOneAndUpdate(ctx,
		bson.M{"_id": eventID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	return &updated, nil
}

func (s *Service) Delete(ctx context.Context, eventID, userID string) error {
	e, err := s.Get(ctx, eventID)
	if err != nil {
		return err
	}
	if e.CreatedBy != userID {
		return ErrForbidden
	}

	if _, err := s.events.DeleteOne(ctx, bson.M{"_id": eventID}); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}
