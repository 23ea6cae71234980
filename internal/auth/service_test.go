package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	byEmail map[string]Account
	byID    map[string]Account
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		byEmail: make(map[string]Account),
		byID:    make(map[string]Account),
	}
}

func (s *memoryStore) CreateAccount(_ context.Context, a Account) error {
	if _, exists := s.byEmail[a.Email]; exists {
		return ErrEmailTaken
	}
	s.byEmail[a.Email] = a
	s.byID[a.ID] = a
	return nil
}

func (s *memoryStore) AccountByEmail(_ context.Context, email string) (Account, error) {
	a, ok := s.byEmail[email]
	if !ok {
		return Account{}, errors.New("not found")
	}
	return a, nil
}

func (s *memoryStore) AccountByID(_ context.Context, id string) (Account, error) {
	a, ok := s.byID[id]
	if !ok {
		return Account{}, errors.New("not found")
	}
	return a, nil
}

func (s *memoryStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	a, ok := s.byID[id]
	if !ok {
		return errors.New("not found")
	}
	a.PasswordHash = passwordHash
	s.byID[id] = a
	s.byEmail[a.Email] = a
	return nil
}

func TestRegisterAndLogin(t *testing.T) {
	svc := NewService(newMemoryStore(), "test-secret")
	ctx := context.Background()

	reg, err := svc.Register(ctx, "Alice", "alice@example.com", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "alice@example.com", reg.User.Email)

	login, err := svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, login.User.ID)

	_, err = svc.Login(ctx, "alice@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := NewService(newMemoryStore(), "test-secret")
	ctx := context.Background()

	_, err := svc.Register(ctx, "Alice", "alice@example.com", "password123")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "Imposter", "alice@example.com", "password456")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService(newMemoryStore(), "test-secret")

	reg, err := svc.Register(context.Background(), "Alice", "alice@example.com", "password123")
	require.NoError(t, err)

	userID, err := svc.ValidateToken(reg.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, userID)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewService(newMemoryStore(), "secret-a")
	verifier := NewService(newMemoryStore(), "secret-b")

	reg, err := issuer.Register(context.Background(), "Alice", "alice@example.com", "password123")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(reg.Token)
	assert.Error(t, err)

	_, err = verifier.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestChangePassword(t *testing.T) {
	svc := NewService(newMemoryStore(), "test-secret")
	ctx := context.Background()

	reg, err := svc.Register(ctx, "Alice", "alice@example.com", "old-password")
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, reg.User.ID, "wrong", "new-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = svc.ChangePassword(ctx, reg.User.ID, "old-password", "new-password")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice@example.com", "old-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "alice@example.com", "new-password")
	assert.NoError(t, err)
}
