package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/williamsbolu/natours/internal/domain"
	"github.com/williamsbolu/natours/internal/platform/credentials"
	"github.com/williamsbolu/natours/internal/platform/mailer"
	"github.com/williamsbolu/natours/internal/repo"
	"github.com/williamsbolu/natours/pkg/auth"
	"github.com/williamsbolu/natours/pkg/events"
	"github.com/williamsbolu/natours/pkg/logger"
	"github.com/williamsbolu/natours/pkg/metrics"
)

const (
	msgProvideCredentials = "Please provide email and password"
	msgBadCredentials     = "Incorrect email or password"
	msgWrongCurrent       = "Your current password is wrong"
	msgNoUserWithEmail    = "There is no user with the specified email address"
	msgEmailFailed        = "There was an error sending the email, Try again later!"
	msgResetTokenInvalid  = "Token is invalid or has expired"
	msgEmailTaken         = "An account with this email already exists"
)

// Session is the result of any login-like operation.
type Session struct {
	Token string
	User  *domain.User
}

type AuthService interface {
	Signup(ctx context.Context, req *domain.SignupRequest) (*Session, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*Session, error)
	ChangePassword(ctx context.Context, userID string, req *domain.UpdatePasswordRequest) (*Session, error)
	// RequestReset stores a fresh reset token, mails it, and returns the plaintext.
	RequestReset(ctx context.Context, req *domain.ForgotPasswordRequest) (string, error)
	ResetPassword(ctx context.Context, token string, req *domain.ResetPasswordRequest) (*Session, error)
}

type AuthConfig struct {
	BaseURL  string
	ResetTTL time.Duration
	Now      func() time.Time
}

type authService struct {
	users   repo.UserStore
	hasher  credentials.Hasher
	tokens  *auth.TokenService
	mailer  mailer.Service
	bus     events.Publisher
	metrics *metrics.Metrics
	cfg     AuthConfig
}

func NewAuthService(
	users repo.UserStore,
	hasher credentials.Hasher,
	tokens *auth.TokenService,
	mailer mailer.Service,
	bus events.Publisher,
	m *metrics.Metrics,
	cfg AuthConfig,
) AuthService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = 10 * time.Minute
	}
	return &authService{
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		mailer:  mailer,
		bus:     bus,
		metrics: m,
		cfg:     cfg,
	}
}

func (s *authService) Signup(ctx context.Context, req *domain.SignupRequest) (*Session, error) {
	req.Normalize()
	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	photo := req.Photo
	if photo == "" {
		photo = domain.DefaultPhoto
	}
	user, err := s.users.Create(ctx, &domain.User{
		Name:         req.Name,
		Email:        req.Email,
		Photo:        photo,
		Role:         domain.RoleUser,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    s.cfg.Now(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return nil, domain.WrapError(domain.ErrDuplicateEmail, msgEmailTaken, err)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	// Welcome mail is a courtesy; signup stands without it.
	err = s.mailer.SendWelcome(ctx, user.Email, user.Name, s.cfg.BaseURL+"/me")
	s.metrics.EmailSent("welcome", err)
	if err != nil {
		logger.WarnContext(ctx, "welcome email failed", "error", err, "user_id", user.ID)
	}
	publish(ctx, s.bus, events.UserSignedUp, events.UserEvent{UserID: user.ID, Email: user.Email, OccurredAt: s.cfg.Now()})

	return s.session(user)
}

func (s *authService) Login(ctx context.Context, req *domain.LoginRequest) (*Session, error) {
	req.Normalize()
	if req.Email == "" || req.Password == "" {
		return nil, domain.NewError(domain.ErrValidation, msgProvideCredentials)
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.hasher.CompareDummy(req.Password)
			return nil, s.badCredentials(ctx, "unknown_email")
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	ok, err := s.hasher.Compare(req.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("compare password: %w", err)
	}
	if !ok {
		return nil, s.badCredentials(ctx, "wrong_password")
	}

	return s.session(user)
}

func (s *authService) ChangePassword(ctx context.Context, userID string, req *domain.UpdatePasswordRequest) (*Session, error) {
	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewError(domain.ErrUnauthenticated, msgUserGone)
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	ok, err := s.hasher.Compare(req.PasswordCurrent, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("compare password: %w", err)
	}
	if !ok {
		s.metrics.AuthFailure("wrong_current_password")
		return nil, domain.NewError(domain.ErrInvalidCredentials, msgWrongCurrent)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	// One second back so the token issued below is not already stale.
	changedAt := s.cfg.Now().Add(-time.Second)
	if err := s.users.UpdatePassword(ctx, user.ID, hash, changedAt); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}
	user.PasswordHash = hash
	user.PasswordChangedAt = &changedAt

	logger.InfoContext(ctx, "password changed", "user_id", user.ID)
	publish(ctx, s.bus, events.UserPasswordChanged, events.UserEvent{UserID: user.ID, Email: user.Email, OccurredAt: s.cfg.Now()})

	return s.session(user)
}

func (s *authService) RequestReset(ctx context.Context, req *domain.ForgotPasswordRequest) (string, error) {
	req.Normalize()
	if req.Email == "" {
		return "", domain.NewError(domain.ErrValidation, "Please provide your email address")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.NewError(domain.ErrNoSuchUser, msgNoUserWithEmail)
		}
		return "", fmt.Errorf("find user: %w", err)
	}

	plain, hash, err := credentials.NewResetToken()
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	if err := s.users.SetResetToken(ctx, user.ID, hash, s.cfg.Now().Add(s.cfg.ResetTTL)); err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}

	resetURL := s.cfg.BaseURL + "/api/v1/users/resetPassword/" + plain
	err = s.mailer.SendPasswordReset(ctx, user.Email, user.Name, resetURL)
	s.metrics.EmailSent("password_reset", err)
	if err != nil {
		if clearErr := s.users.ClearResetToken(ctx, user.ID, hash); clearErr != nil {
			logger.ErrorContext(ctx, "failed to roll back reset token", "error", clearErr, "user_id", user.ID)
		}
		logger.ErrorContext(ctx, "password reset email failed", "error", err, "user_id", user.ID)
		return "", domain.WrapError(domain.ErrDeliveryFailure, msgEmailFailed, err)
	}

	publish(ctx, s.bus, events.UserPasswordResetRequest, events.UserEvent{UserID: user.ID, Email: user.Email, OccurredAt: s.cfg.Now()})
	return plain, nil
}

func (s *authService) ResetPassword(ctx context.Context, token string, req *domain.ResetPasswordRequest) (*Session, error) {
	if token == "" {
		return nil, domain.NewError(domain.ErrInvalidOrExpiredToken, msgResetTokenInvalid)
	}
	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.cfg.Now()
	user, err := s.users.ConsumeResetToken(ctx, credentials.HashResetToken(token), now, hash, now.Add(-time.Second))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.metrics.AuthFailure("invalid_reset_token")
			return nil, domain.NewError(domain.ErrInvalidOrExpiredToken, msgResetTokenInvalid)
		}
		return nil, fmt.Errorf("consume reset token: %w", err)
	}

	logger.InfoContext(ctx, "password reset", "user_id", user.ID)
	publish(ctx, s.bus, events.UserPasswordChanged, events.UserEvent{UserID: user.ID, Email: user.Email, OccurredAt: now})

	return s.session(user)
}

func (s *authService) session(user *domain.User) (*Session, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, User: user}, nil
}

func (s *authService) badCredentials(ctx context.Context, reason string) error {
	s.metrics.AuthFailure(reason)
	logger.WarnContext(ctx, "login rejected", "reason", reason)
	return domain.NewError(domain.ErrInvalidCredentials, msgBadCredentials)
}
