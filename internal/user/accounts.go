package user

import (
	"context"
	"errors"

	"github.com/teamflow/teamflow/backend-go/internal/auth"
)

// Adapter methods implementing auth.AccountStore on top of the user store.

func (s *Store) CreateAccount(ctx context.Context, a auth.Account) error {
	err := s.Create(ctx, &User{
		ID:       a.ID,
		Name:     a.Name,
		Email:    a.Email,
		Password: a.PasswordHash,
	})
	if err != nil {
		if IsDuplicateEmail(err) {
			return auth.ErrEmailTaken
		}
		return err
	}
	return nil
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (auth.Account, error) {
	u, err := s.GetByEmail(ctx, email)
	if err != nil {
		return auth.Account{}, err
	}
	return toAccount(u), nil
}

func (s *Store) AccountByID(ctx context.Context, id string) (auth.Account, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.Account{}, ErrNotFound
		}
		return auth.Account{}, err
	}
	return toAccount(u), nil
}

func toAccount(u *User) auth.Account {
	return auth.Account{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.Password,
	}
}
