//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"circles/domain"
	"circles/errors"
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IUserRepository interface {
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)
	GetUser(ctx context.Context, id int64) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	GetUsers(ctx context.Context, ids []int64) (map[int64]domain.User, error)
}

type UserRepository struct {
	db  *badger.DB
	seq *badger.Sequence
}

func NewUserRepository(db *badger.DB) (*UserRepository, error) {
	seq, err := db.GetSequence([]byte(userSequence), sequenceBandwidth)
	if err != nil {
		return nil, err
	}
	return &UserRepository{db: db, seq: seq}, nil
}

// DiskUser is the stored form of a user.
type DiskUser struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name,omitempty"`
	ProfileImage string    `json:"profile_image,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateUser assigns an id and persists the user.
// Usernames are unique.
func (u *UserRepository) CreateUser(_ context.Context, user domain.User) (domain.User, error) {
	id, err := nextID(u.seq)
	if err != nil {
		return domain.User{}, err
	}
	user.ID = id
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	err = update(u.db, func(txn *badger.Txn) error {
		if _, err := txn.Get(usernameKey(user.Username)); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := setJSON(txn, userKey(user.ID), fromDomainUser(user)); err != nil {
			return err
		}
		return txn.Set(usernameKey(user.Username), userKey(user.ID))
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (u *UserRepository) GetUser(_ context.Context, id int64) (domain.User, error) {
	var disk DiskUser
	err := u.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &disk)
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("user %d: %w", id, err)
	}
	return toDomainUser(disk), nil
}

func (u *UserRepository) GetUserByUsername(_ context.Context, username string) (domain.User, error) {
	var disk DiskUser
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(usernameKey(username))
		if goerrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrNotFound
		}
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, key, &disk)
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("user %q: %w", username, err)
	}
	return toDomainUser(disk), nil
}

// GetUsers silently skips unknown ids.
func (u *UserRepository) GetUsers(_ context.Context, ids []int64) (map[int64]domain.User, error) {
	users := make(map[int64]domain.User, len(ids))
	err := u.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			if _, ok := users[id]; ok {
				continue
			}
			item, err := txn.Get(userKey(id))
			if goerrors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			var disk DiskUser
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &disk)
			}); err != nil {
				return err
			}
			users[id] = toDomainUser(disk)
		}
		return nil
	})
	return users, err
}

func (u *UserRepository) Close() error {
	return u.seq.Release()
}

func fromDomainUser(user domain.User) DiskUser {
	return DiskUser{
		ID:           user.ID,
		Username:     user.Username,
		Name:         user.Name,
		ProfileImage: user.ProfileImage,
		CreatedAt:    user.CreatedAt,
	}
}

func toDomainUser(disk DiskUser) domain.User {
	return domain.User{
		ID:           disk.ID,
		Username:     disk.Username,
		Name:         disk.Name,
		ProfileImage: disk.ProfileImage,
		CreatedAt:    disk.CreatedAt.UTC(),
	}
}
