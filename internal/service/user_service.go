package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/williamsbolu/natours/internal/domain"
	"github.com/williamsbolu/natours/internal/repo"
	"github.com/williamsbolu/natours/pkg/logger"
)

type UserService interface {
	Me(ctx context.Context, userID string) (*domain.User, error)
	UpdateMe(ctx context.Context, userID string, req *domain.UpdateMeRequest) (*domain.User, error)
	// DeactivateMe soft deletes the account. The user can no longer log in.
	DeactivateMe(ctx context.Context, userID string) error
}

type userService struct {
	users repo.UserStore
}

func NewUserService(users repo.UserStore) UserService {
	return &userService{users: users}
}

func (s *userService) Me(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewError(domain.ErrUnauthenticated, msgUserGone)
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (s *userService) UpdateMe(ctx context.Context, userID string, req *domain.UpdateMeRequest) (*domain.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.users.UpdateProfile(ctx, userID, repo.ProfileUpdate{
		Name:  req.Name,
		Email: req.Email,
		Photo: req.Photo,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateEmail):
			return nil, domain.WrapError(domain.ErrDuplicateEmail, msgEmailTaken, err)
		case errors.Is(err, domain.ErrNotFound):
			return nil, domain.NewError(domain.ErrUnauthenticated, msgUserGone)
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

func (s *userService) DeactivateMe(ctx context.Context, userID string) error {
	if err := s.users.Deactivate(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewError(domain.ErrUnauthenticated, msgUserGone)
		}
		return fmt.Errorf("deactivate user: %w", err)
	}
	logger.InfoContext(ctx, "user deactivated", "user_id", userID)
	return nil
}
