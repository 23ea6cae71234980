package project

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/teamflow/teamflow/backend-go/internal/activity"
	"github.com/teamflow/teamflow/backend-go/internal/typeid"
	"github.com/teamflow/teamflow/backend-go/internal/user"
)

var (
	ErrNotFound  = errors.New("project not found")
	ErrForbidden = errors.New("forbidden")
	ErrNotMember = errors.New("not a project member")
)

type Project struct {
	ID          string    `bson:"_id" json:"id"`
	Name        string    `bson:"name" json:"name"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	OwnerID     string    `bson:"ownerId" json:"ownerId"`
	MemberIDs   []string  `bson:"memberIds" json:"memberIds"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Member is the populated member view, carrying the persisted presence
// shadow for the team availability UI.
type Member struct {
	UserID   string    `json:"userId"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

type Service struct {
	projects   *mongo.Collection
	users      *user.Store
	activities *activity.Store
}

func NewService(db *mongo.Database, users *user.Store, activities *activity.Store) *Service {
	return &Service{
		projects:   db.Collection("projects"),
		users:      users,
		activities: activities,
	}
}

func (s *Service) Create(ctx context.Context, name, description, ownerID string) (*Project, error) {
	now := time.Now()
	p := &Project{
		ID:          typeid.NewProjectID(),
		Name:        name,
		Description: description,
		OwnerID:     ownerID,
		MemberIDs:   []string{ownerID},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := s.projects.InsertOne(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	s.recordActivity(ctx, activity.TypeProjectCreated, fmt.Sprintf("created project %q", name), ownerID, p)

	return p, nil
}

func (s *Service) Get(ctx context.Context, projectID, userID string) (*Project, error) {
	p, err := s.get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !p.hasMember(userID) {
		return nil, ErrNotMember
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]Project, error) {
	cursor, err := s.projects.Find(ctx,
		bson.M{"memberIds": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	projects := []Project{}
	if err := cursor.All(ctx, &projects); err != nil {
		return nil, fmt.Errorf("decode projects: %w", err)
	}
	return projects, nil
}

// ListIDsForUser implements user.ProjectLister for the online-users endpoint.
func (s *Service) ListIDsForUser(ctx context.Context, userID string) ([]string, error) {
	projects, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	return ids, nil
}

func (s *Service) Update(ctx context.Context, projectID, userID, name, description string) (*Project, error) {
	p, err := s.get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != userID {
		return nil, ErrForbidden
	}

	set := bson.M{"updatedAt": time.Now()}
	if name != "" {
		set["name"] = name
	}
	if description != "" {
		set["description"] = description
	}

	var updated Project
	err = s.projects.FindOneAndUpdate(ctx,
		bson.M{"_id": projectID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}

	s.recordActivity(ctx, activity.TypeProjectUpdated, fmt.Sprintf("updated project %q", updated.Name), userID, &updated)

	return &updated, nil
}

func (s *Service) Delete(ctx context.Context, projectID, userID string) error {
	p, err := s.get(ctx, projectID)
	if err != nil {
		return err
	}
	if p.OwnerID != userID {
		return ErrForbidden
	}

	if _, err := s.projects.DeleteOne(ctx, bson.M{"_id": projectID}); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}

	s.recordActivity(ctx, activity.TypeProjectDeleted, fmt.Sprintf("deleted project %q", p.Name), userID, p)

	return nil
}

func (s *Service) InviteByEmail(ctx context.Context, projectID, ownerID, inviteeEmail string) error {
	p, err := s.get(ctx, projectID)
	if err != nil {
		return err
	}
	if p.OwnerID != ownerID {
		return ErrForbidden
	}

	invitee, err := s.users.GetByEmail(ctx, inviteeEmail)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return errors.New("user not found")
		}
		return fmt.Errorf("find user: %w", err)
	}

	_, err = s.projects.UpdateOne(ctx,
		bson.M{"_id": projectID},
		bson.M{"$addToSet": bson.M{"memberIds": invitee.ID}, "$set": bson.M{"updatedAt": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}

	s.recordActivity(ctx, activity.TypeMemberInvited, fmt.Sprintf("invited %s to %q", invitee.Name, p.Name), ownerID, p)

	return nil
}

func (s *Service) ListMembers(ctx context.Context, projectID, userID string) ([]Member, error) {
	p, err := s.get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !p.hasMember(userID) {
		return nil, ErrNotMember
	}

	users, err := s.users.GetByIDs(ctx, p.MemberIDs)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	members := make([]Member, len(users))
	for i, u := range users {
		members[i] = Member{
			UserID:   u.ID,
			Name:     u.Name,
			Email:    u.Email,
			IsOnline: u.IsOnline,
			LastSeen: u.LastSeen,
		}
	}
	return members, nil
}

func (s *Service) RemoveMember(ctx context.Context, projectID, ownerID, targetUserID string) error {
	p, err := s.get(ctx, projectID)
	if err != nil {
		return err
	}
	if p.OwnerID != ownerID {
		return ErrForbidden
	}
	if targetUserID == ownerID {
		return errors.New("cannot remove project owner")
	}

	_, err = s.projects.UpdateOne(ctx,
		bson.M{"_id": projectID},
		bson.M{"$pull": bson.M{"memberIds": targetUserID}, "$set": bson.M{"updatedAt": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

// CheckMembership reports whether userID belongs to the project. Used by the
// task service before touching a project's board.
func (s *Service) CheckMembership(ctx context.Context, projectID, userID string) error {
	p, err := s.get(ctx, projectID)
	if err != nil {
		return err
	}
	if !p.hasMember(userID) {
		return ErrNotMember
	}
	return nil
}

func (s *Service) get(ctx context.Context, projectID string) (*Project, error) {
	var p Project
	err := s.projects.FindOne(ctx, bson.M{"_id": projectID}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

func (p *Project) hasMember(userID string) bool {
	for _, id := range p.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (s *Service) recordActivity(ctx context.Context, typ, description, userID string, p *Project) {
	actor := activity.Actor{ID: userID}
	if u, err := s.users.GetByID(ctx, userID); err == nil {
		actor.Name = u.Name
	}
	s.activities.Record(ctx, activity.Activity{
		Type:        typ,
		Description: description,
		User:        actor,
		Project:     &activity.ProjectRef{ID: p.ID, Name: p.Name},
	})
}
