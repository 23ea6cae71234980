package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/teamflow/teamflow/backend-go/internal/presence"
)

var ErrNotFound = errors.New("user not found")

// User is the durable user record. IsOnline, Status and LastSeen are the
// presence shadow: written by the presence reconciler, read by the UI.
type User struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Email     string    `bson:"email" json:"email"`
	Password  string    `bson:"password" json:"-"`
	Avatar    string    `bson:"avatar,omitempty" json:"avatar,omitempty"`
	IsOnline  bool      `bson:"isOnline" json:"isOnline"`
	Status    string    `bson:"status" json:"status"`
	LastSeen  time.Time `bson:"lastSeen" json:"lastSeen"`
	Theme     string    `bson:"theme,omitempty" json:"theme,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

type Store struct {
	users *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{users: db.Collection("users")}
}

// EnsureIndexes creates the unique email index. Run once at startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create email index: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, u *User) error {
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.Status == "" {
		u.Status = string(presence.StatusOffline)
	}
	if u.LastSeen.IsZero() {
		u.LastSeen = now
	}
	if _, err := s.users.InsertOne(ctx, u); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]User, error) {
	cursor, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	var users []User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

func (s *Store) List(ctx context.Context) ([]User, error) {
	cursor, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var users []User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

type ProfileUpdate struct {
	Name   string
	Email  string
	Avatar *string
	Theme  string
}

func (s *Store) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*User, error) {
	set := bson.M{"updatedAt": time.Now()}
	if update.Name != "" {
		set["name"] = update.Name
	}
	if update.Email != "" {
		set["email"] = update.Email
	}
	if update.Avatar != nil {
		set["avatar"] = *update.Avatar
	}
	if update.Theme != "" {
		set["theme"] = update.Theme
	}

	var u User
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return &u, nil
}

func (s *Store) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"password": passwordHash, "updatedAt": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserPresence implements presence.Store. Best-effort: the presence
// reconciler logs and swallows whatever comes back.
func (s *Store) UpdateUserPresence(ctx context.Context, userID string, update presence.Update) error {
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{
			"isOnline": update.Online,
			"status":   string(update.Status),
			"lastSeen": update.LastSeen,
		}},
	)
	if err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// IsDuplicateEmail reports whether err is the unique-index violation for the
// email field.
func IsDuplicateEmail(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
