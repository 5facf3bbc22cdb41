// Package services contains server-side business logic. AuthService runs the
// account and session lifecycle (register, login, refresh, logout) and
// Authenticator is the single gate every protected operation goes through.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/password"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/authkeeper/internal/server/sessions"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
}

// Recorder receives one event per finished auth operation. outcome is
// "success" or a short failure reason.
type Recorder interface {
	AuthEvent(op, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) AuthEvent(string, string) {}

// AuthService provides authentication-related operations:
//   - Register: create users and start a session
//   - Login: verify credentials, mint tokens, start a session
//   - Refresh: mint a new pair from a refresh token
//   - Logout: audit the end of a session
type AuthService struct {
	repomanager repomanager.RepositoryManager
	sessions    sessions.Store
	hasher      *password.Hasher
	codec       *auth.Codec
	logger      logging.Logger
	recorder    Recorder
	now         func() time.Time

	accessTTL  time.Duration
	refreshTTL time.Duration
	sessionTTL time.Duration
}

// NewAuthService constructs an AuthService from its collaborators and the
// token and session lifetimes in cfg.
func NewAuthService(cfg *config.Config, m repomanager.RepositoryManager, store sessions.Store,
	hasher *password.Hasher, codec *auth.Codec, logger logging.Logger) *AuthService {
	return &AuthService{
		repomanager: m,
		sessions:    store,
		hasher:      hasher,
		codec:       codec,
		logger:      logger,
		recorder:    nopRecorder{},
		now:         time.Now,
		accessTTL:   cfg.AccessTokenTTL,
		refreshTTL:  cfg.RefreshTokenTTL,
		sessionTTL:  cfg.SessionTTL,
	}
}

// WithRecorder sets the metrics sink and returns s.
func (s *AuthService) WithRecorder(r Recorder) *AuthService {
	if r != nil {
		s.recorder = r
	}
	return s
}

// Register creates an active account and returns its first token pair.
// A taken email yields a Conflict, whether found up front, by the re-check
// inside the insert transaction, or by the unique constraint when two
// registrations race.
func (s *AuthService) Register(ctx context.Context, email, pwd, displayName string) (*TokenPair, error) {
	if err := emailFree(ctx, s.repomanager.Users(), email); err != nil {
		return nil, s.registerFailed(ctx, email, err)
	}

	hash, err := s.hasher.Hash(ctx, pwd)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			return nil, common.Validation("invalid request", map[string]string{"password": "must be at most 72 bytes"})
		}
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(displayName),
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	}

	err = s.repomanager.InTx(ctx, func(ctx context.Context, repo users.Repository) error {
		if err := emailFree(ctx, repo, email); err != nil {
			return err
		}
		if _, err := repo.Create(ctx, user); err != nil {
			return fmt.Errorf("error creating user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.registerFailed(ctx, email, err)
	}

	pair, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "auth.register", "outcome", "success", "user_id", user.ID)
	s.recorder.AuthEvent("register", "success")
	return pair, nil
}

// emailFree returns common.ErrorAlreadyExists when email is taken.
func emailFree(ctx context.Context, repo users.Repository, email string) error {
	_, err := repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return common.ErrorAlreadyExists
	case errors.Is(err, common.ErrorNotFound):
		return nil
	default:
		return fmt.Errorf("error looking up user: %w", err)
	}
}

func (s *AuthService) registerFailed(ctx context.Context, email string, err error) error {
	if !errors.Is(err, common.ErrorAlreadyExists) {
		return err
	}
	s.logger.Warn(ctx, "auth.register", "outcome", "conflict", "email", email)
	s.recorder.AuthEvent("register", "conflict")
	return common.Conflict(fmt.Sprintf("user with email %s already exists", email))
}

// Login verifies credentials. Unknown email, wrong password and inactive
// account are indistinguishable to the caller; the reason is only logged.
func (s *AuthService) Login(ctx context.Context, email, pwd string) (*TokenPair, error) {
	user, err := s.repomanager.Users().GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("error looking up user: %w", err)
		}
		if err := s.hasher.VerifyDummy(ctx, pwd); err != nil {
			return nil, fmt.Errorf("error verifying password: %w", err)
		}
		return nil, s.loginFailed(ctx, email, "unknown_email")
	}

	ok, err := s.hasher.Verify(ctx, pwd, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("error verifying password: %w", err)
	}
	if !ok {
		return nil, s.loginFailed(ctx, email, "bad_password")
	}
	if !user.IsActive {
		return nil, s.loginFailed(ctx, email, "inactive")
	}

	if err := s.repomanager.Users().UpdateLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("error updating last login: %w", err)
	}

	pair, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "auth.login", "outcome", "success", "user_id", user.ID)
	s.recorder.AuthEvent("login", "success")
	return pair, nil
}

func (s *AuthService) loginFailed(ctx context.Context, email, reason string) error {
	s.logger.Warn(ctx, "auth.login.failed", "reason", reason, "email", email)
	s.recorder.AuthEvent("login", reason)
	return common.Unauthorized(common.InvalidCredentialsMessage)
}

// Refresh exchanges a valid refresh token for a brand-new pair.
//
// The presented token is not revoked and keeps working until it expires.
// No session is created here.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, ok := s.codec.Decode(refreshToken).Typed(auth.TypeRefresh)
	if !ok {
		return nil, s.refreshFailed(ctx, "invalid_token", "")
	}
	if claims.Subject == "" {
		return nil, s.refreshFailed(ctx, "missing_subject", "")
	}

	user, err := s.repomanager.Users().GetByID(ctx, claims.Subject)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("error looking up user: %w", err)
		}
		return nil, s.refreshFailed(ctx, "unknown_user", claims.Subject)
	}
	if !user.IsActive {
		return nil, s.refreshFailed(ctx, "inactive", user.ID)
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "auth.refresh", "outcome", "success", "user_id", user.ID)
	s.recorder.AuthEvent("refresh", "success")
	return pair, nil
}

func (s *AuthService) refreshFailed(ctx context.Context, reason, userID string) error {
	s.logger.Warn(ctx, "auth.refresh", "outcome", "failed", "reason", reason, "user_id", userID)
	s.recorder.AuthEvent("refresh", reason)
	return common.Unauthorized("invalid refresh token")
}

// Logout records the end of a session for the audit trail. Tokens carry no
// session id, so nothing is revoked server-side; clients discard them.
//
// TODO: put the session id in the access token and delete it from the
// store here once Authenticate checks session liveness.
func (s *AuthService) Logout(ctx context.Context, principal *models.User) error {
	if principal == nil {
		return common.Unauthorized(common.InvalidTokenMessage)
	}
	s.logger.Info(ctx, "auth.logout", "user_id", principal.ID)
	s.recorder.AuthEvent("logout", "success")
	return nil
}

// --- helpers below ---

func (s *AuthService) issuePair(user *models.User) (*TokenPair, error) {
	access, err := s.codec.Issue(auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID},
		Email:            user.Email,
	}, auth.TypeAccess, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("error issuing access token: %w", err)
	}

	refresh, err := s.codec.Issue(auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID},
	}, auth.TypeRefresh, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("error issuing refresh token: %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: common.TokenTypeBearer}, nil
}

func (s *AuthService) startSession(ctx context.Context, user *models.User) (*TokenPair, error) {
	pair, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}

	id, err := sessions.NewID()
	if err != nil {
		return nil, fmt.Errorf("error generating session id: %w", err)
	}
	if err := s.sessions.Put(ctx, id, user.ID, s.sessionTTL); err != nil {
		return nil, fmt.Errorf("error storing session: %w", err)
	}

	return pair, nil
}
