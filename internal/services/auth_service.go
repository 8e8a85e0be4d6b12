// Package services – AuthService
//
// AuthService registers travelers, exchanges credentials for tokens and
// rotates refresh tokens. Access tokens are short-lived and stateless;
// refresh tokens are opaque, stored hashed and single-use: every refresh
// revokes the presented token and issues a new one.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-layover-backend/internal/auth"
	"github.com/tbourn/go-layover-backend/internal/domain"
	"github.com/tbourn/go-layover-backend/internal/observability"
	"github.com/tbourn/go-layover-backend/internal/repo"
)

const minPasswordLen = 8

var validate = validator.New()

// Session is the result of a successful register, login or refresh.
type Session struct {
	User             domain.User
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AuthService owns accounts and credentials.
type AuthService struct {
	DB         *gorm.DB
	Signer     *auth.Signer
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Metrics    *observability.Metrics
	Log        zerolog.Logger

	now func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(db *gorm.DB, signer *auth.Signer, accessTTL, refreshTTL time.Duration, m *observability.Metrics, log zerolog.Logger) *AuthService {
	return &AuthService{
		DB:         db,
		Signer:     signer,
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
		Metrics:    m,
		Log:        log.With().Str("component", "auth").Logger(),
		now:        time.Now,
	}
}

// RegisterInput carries the sign-up form.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates an account and opens a session for it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Register")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if validate.Var(email, "required,email,max=255") != nil || strings.TrimSpace(in.FirstName) == "" {
		return nil, ErrInvalidCredentials
	}
	if len(in.Password) < minPasswordLen {
		return nil, ErrWeakPassword
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	var sess *Session
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := repo.CreateUser(ctx, tx, email, hash, in.FirstName, in.LastName)
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrEmailTaken
		}
		if err != nil {
			return err
		}
		sess, err = s.openSession(ctx, tx, *u)
		return err
	})
	s.Metrics.Auth("register", err == nil)
	if err != nil {
		return nil, err
	}
	s.Log.Info().Str("user_id", sess.User.ID).Msg("user registered")
	return sess, nil
}

// Login verifies email and password and opens a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Login")
	defer span.End()

	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	if errors.Is(err, repo.ErrNotFound) {
		s.Metrics.Auth("login", false)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		s.Metrics.Auth("login", false)
		return nil, ErrInvalidCredentials
	}
	sess, err := s.openSession(ctx, s.DB, *u)
	s.Metrics.Auth("login", err == nil)
	return sess, err
}

// Refresh rotates a refresh token. Unknown, expired or already used tokens
// yield ErrUnauthorized.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Refresh")
	defer span.End()

	if strings.TrimSpace(refreshToken) == "" {
		return nil, ErrUnauthorized
	}
	now := s.now()

	var sess *Session
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rt, err := repo.GetRefreshTokenByHash(ctx, tx, auth.HashRefreshToken(refreshToken))
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUnauthorized
		}
		if err != nil {
			return err
		}
		if !rt.Active(now) {
			return ErrUnauthorized
		}
		// Losing a concurrent rotation surfaces as ErrNotFound here.
		if err := repo.RevokeRefreshToken(ctx, tx, rt.ID, now); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrUnauthorized
			}
			return err
		}
		u, err := repo.GetUser(ctx, tx, rt.UserID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrUnauthorized
			}
			return err
		}
		span.SetAttributes(attribute.String("user.id", u.ID))
		sess, err = s.openSession(ctx, tx, *u)
		return err
	})
	s.Metrics.Auth("refresh", err == nil)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Logout revokes the presented refresh token. It is idempotent.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	rt, err := repo.GetRefreshTokenByHash(ctx, s.DB, auth.HashRefreshToken(refreshToken))
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := repo.RevokeRefreshToken(ctx, s.DB, rt.ID, s.now()); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	s.Metrics.Auth("logout", true)
	return nil
}

// Authenticate verifies an access token and returns its user id.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (string, error) {
	_, span := otel.Tracer("services/AuthService").Start(ctx, "Authenticate")
	defer span.End()

	claims, err := s.Signer.Verify(accessToken)
	if err != nil {
		return "", ErrUnauthorized
	}
	span.SetAttributes(attribute.String("user.id", claims.UserID))
	return claims.UserID, nil
}

// Me returns the caller's account.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (s *AuthService) openSession(ctx context.Context, db *gorm.DB, u domain.User) (*Session, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "openSession",
		trace.WithAttributes(attribute.String("user.id", u.ID)))
	defer span.End()

	refresh, err := auth.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	refreshExp := s.now().Add(s.RefreshTTL).UTC()
	if _, err := repo.CreateRefreshToken(ctx, db, u.ID, auth.HashRefreshToken(refresh), refreshExp); err != nil {
		return nil, err
	}
	access, accessExp, err := s.Signer.Issue(u.ID, s.AccessTTL)
	if err != nil {
		return nil, err
	}
	return &Session{
		User:             u,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}
