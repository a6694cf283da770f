package sqlstore

import (
	"circles/domain"
	"circles/errors"
	"circles/repositories"
	"context"
	goerrors "errors"
	"fmt"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

var _ repositories.IUserRepository = (*UserStore)(nil)

type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	record := userRecord{
		Username:     user.Username,
		Name:         user.Name,
		ProfileImage: user.ProfileImage,
		CreatedAt:    user.CreatedAt,
	}
	err := s.db.WithContext(ctx).Create(&record).Error
	if goerrors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.User{}, errors.ErrUserAlreadyExists
	}
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(record), nil
}

func (s *UserStore) GetUser(ctx context.Context, id int64) (domain.User, error) {
	var record userRecord
	err := s.db.WithContext(ctx).First(&record, id).Error
	if goerrors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, fmt.Errorf("user %d: %w", id, errors.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(record), nil
}

func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	var record userRecord
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&record).Error
	if goerrors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, fmt.Errorf("user %q: %w", username, errors.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(record), nil
}

func (s *UserStore) GetUsers(ctx context.Context, ids []int64) (map[int64]domain.User, error) {
	users := make(map[int64]domain.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	var records []userRecord
	if err := s.db.WithContext(ctx).Where("id IN ?", lo.Uniq(ids)).Find(&records).Error; err != nil {
		return nil, err
	}
	for _, r := range records {
		users[r.ID] = toDomainUser(r)
	}
	return users, nil
}
