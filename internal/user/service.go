package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/datingapp/service/internal/photo"
)

// Store is the persistence the user Service needs.
type Store interface {
	Create(ctx context.Context, username, passwordHash string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, error)
	Touch(ctx context.Context, id int64) error
}

// PhotoLister reads a user's photos.
type PhotoLister interface {
	ListByUser(ctx context.Context, userID int64) ([]*photo.Photo, error)
}

// Detail is a user together with their photos.
type Detail struct {
	User
	Photos []*photo.Photo `json:"photos"`
}

// Service contains business logic for user management.
type Service struct {
	repo   Store
	photos PhotoLister
}

// NewService creates a new user Service.
func NewService(repo Store, photos PhotoLister) *Service {
	return &Service{repo: repo, photos: photos}
}

// Create registers a new user account.
func (s *Service) Create(ctx context.Context, username, passwordHash string) (*User, error) {
	u, err := s.repo.Create(ctx, username, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetByID returns a user by id.
func (s *Service) GetByID(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByUsername returns a user by username.
func (s *Service) GetByUsername(ctx context.Context, username string) (*User, error) {
	return s.repo.GetByUsername(ctx, username)
}

// GetDetail returns a user with their photo collection.
func (s *Service) GetDetail(ctx context.Context, id int64) (*Detail, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	photos, err := s.photos.ListByUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	if photos == nil {
		photos = []*photo.Photo{}
	}
	return &Detail{User: *u, Photos: photos}, nil
}

// List returns one page of users.
func (s *Service) List(ctx context.Context, page, pageSize int) ([]*User, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 50 {
		pageSize = 10
	}
	users, err := s.repo.List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*User{}
	}
	return users, nil
}

// Touch marks the user as active.
func (s *Service) Touch(ctx context.Context, id int64) error {
	return s.repo.Touch(ctx, id)
}

// IsNotFound returns true when the error indicates a user was not found.
func (s *Service) IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
