package repositories

import (
	"circles/domain"
	"circles/errors"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := openStores(t)

	// Given two users
	alice, err := s.users.CreateUser(ctx, domain.User{Username: "alice", Name: "Alice"})
	req.NoError(err)
	bob, err := s.users.CreateUser(ctx, domain.User{Username: "bob"})
	req.NoError(err)

	// Then ids are assigned and distinct
	req.Positive(alice.ID)
	req.NotEqual(alice.ID, bob.ID)

	fetched, err := s.users.GetUser(ctx, alice.ID)
	req.NoError(err)
	req.Equal("Alice", fetched.Name)

	byName, err := s.users.GetUserByUsername(ctx, "bob")
	req.NoError(err)
	req.Equal(bob.ID, byName.ID)

	users, err := s.users.GetUsers(ctx, []int64{alice.ID, bob.ID, 999, alice.ID})
	req.NoError(err)
	req.Len(users, 2)
}

func TestUserRepository_Errors(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := openStores(t)

	_, err := s.users.CreateUser(ctx, domain.User{Username: "alice"})
	req.NoError(err)

	_, err = s.users.CreateUser(ctx, domain.User{Username: "alice"})
	req.ErrorIs(err, errors.ErrUserAlreadyExists)

	_, err = s.users.GetUser(ctx, 42)
	req.ErrorIs(err, errors.ErrNotFound)

	_, err = s.users.GetUserByUsername(ctx, "nobody")
	req.ErrorIs(err, errors.ErrNotFound)
}
