package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/williamsbolu/natours/internal/domain"
	"github.com/williamsbolu/natours/internal/repo"
	"github.com/williamsbolu/natours/pkg/auth"
	"github.com/williamsbolu/natours/pkg/logger"
	"github.com/williamsbolu/natours/pkg/metrics"
)

const (
	msgNotLoggedIn  = "You are not logged in! Please log in to get access."
	msgInvalidToken = "Invalid token. Please log in again!"
	msgExpiredToken = "Your token has expired! Please log in again."
	msgUserGone     = "The user belonging to this token does no longer exist."
	msgStaleToken   = "User recently changed password! Please log in again."
	msgNoPermission = "You do not have permission to perform this action"
)

// Gate resolves session tokens to users and checks role policy.
type Gate interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
	// TryAuthenticate never fails; any problem yields nil (anonymous).
	TryAuthenticate(ctx context.Context, token string) *domain.User
	Authorize(identity domain.Identity, roles ...string) error
}

type gate struct {
	users   repo.UserStore
	tokens  *auth.TokenService
	metrics *metrics.Metrics
}

func NewGate(users repo.UserStore, tokens *auth.TokenService, m *metrics.Metrics) Gate {
	return &gate{users: users, tokens: tokens, metrics: m}
}

func (g *gate) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, g.reject(ctx, "missing_token", msgNotLoggedIn, nil)
	}

	claims, err := g.tokens.Verify(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return nil, g.reject(ctx, "expired_token", msgExpiredToken, err)
		}
		return nil, g.reject(ctx, "invalid_token", msgInvalidToken, err)
	}

	user, err := g.users.FindByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, g.reject(ctx, "user_gone", msgUserGone, nil)
		}
		return nil, fmt.Errorf("load token subject: %w", err)
	}

	if user.ChangedPasswordAfter(claims.IssuedAtTime()) {
		return nil, g.reject(ctx, "stale_token", msgStaleToken, nil)
	}
	return user, nil
}

func (g *gate) TryAuthenticate(ctx context.Context, token string) *domain.User {
	if token == "" {
		return nil
	}
	user, err := g.Authenticate(ctx, token)
	if err != nil {
		return nil
	}
	return user
}

func (g *gate) Authorize(identity domain.Identity, roles ...string) error {
	if slices.Contains(roles, identity.Role) {
		return nil
	}
	g.metrics.AuthFailure("forbidden")
	return domain.NewError(domain.ErrForbidden, msgNoPermission)
}

func (g *gate) reject(ctx context.Context, reason, message string, cause error) error {
	g.metrics.AuthFailure(reason)
	logger.WarnContext(ctx, "authentication rejected", "reason", reason)
	if cause != nil {
		return domain.WrapError(domain.ErrUnauthenticated, message, cause)
	}
	return domain.NewError(domain.ErrUnauthenticated, message)
}
