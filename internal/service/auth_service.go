package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"churchcms/api/internal/cache"
	"churchcms/api/internal/config"
	"churchcms/api/internal/ids"
	"churchcms/api/internal/models"
	"churchcms/api/internal/repository"
	"churchcms/api/internal/security"
)

type userStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	UpdatePasswordHash(ctx context.Context, id string, passwordHash []byte) error
}

type sessionStore interface {
	Create(ctx context.Context, session models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash []byte) (models.Session, error)
	DeleteByTokenHash(ctx context.Context, tokenHash []byte) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteByUserExcept(ctx context.Context, userID string, keepTokenHash []byte) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
}

// AuthService is the self-managed strategy: credentials hashed locally,
// opaque bearer tokens, sessions in the application's own table.
type AuthService struct {
	users    userStore
	sessions sessionStore
	cache    *cache.SessionCache
	cfg      config.AuthConfig
	log      zerolog.Logger
	now      func() time.Time
}

func NewAuthService(
	users userStore,
	sessions sessionStore,
	sessionCache *cache.SessionCache,
	cfg config.AuthConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		cache:    sessionCache,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func (s *AuthService) SignIn(ctx context.Context, email, password string) (AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if !security.VerifyPassword(password, user.PasswordHash) {
		return AuthResult{}, ErrInvalidCredentials
	}

	return s.issueSession(ctx, user)
}

// SignUp creates the credential first and the session second. A crash
// in between leaves a user with no session, who simply signs in again;
// the reverse (a session for a user that was never created) cannot
// happen. True atomicity across the two writes is not attempted.
func (s *AuthService) SignUp(ctx context.Context, input SignUpInput) (AuthResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return AuthResult{}, ErrInvalidCredentials
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return AuthResult{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return AuthResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  input.DisplayName,
		Role:         models.RoleMember,
		CreatedAt:    s.now(),
		UpdatedAt:    s.now(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		// The unique index closes the check-then-create race.
		if errors.Is(err, repository.ErrEmailTaken) {
			return AuthResult{}, ErrEmailTaken
		}
		return AuthResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return s.issueSession(ctx, user)
}

func (s *AuthService) issueSession(ctx context.Context, user models.User) (AuthResult, error) {
	token, tokenHash, err := security.GenerateSessionToken(s.cfg.TokenLength)
	if err != nil {
		return AuthResult{}, err
	}

	now := s.now()
	session := models.Session{
		ID:        ids.New(),
		TokenHash: tokenHash,
		UserID:    user.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return AuthResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := s.cache.Set(ctx, user, session); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("session cache set failed")
	}

	return AuthResult{
		User:      user,
		Token:     token,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// SignOut is idempotent; revoking an unknown or already-revoked token
// succeeds.
func (s *AuthService) SignOut(ctx context.Context, token string) error {
	tokenHash := security.HashSessionToken(token)

	if err := s.cache.DeleteToken(ctx, tokenHash); err != nil {
		s.log.Warn().Err(err).Msg("session cache evict failed")
	}

	if err := s.sessions.DeleteByTokenHash(ctx, tokenHash); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *AuthService) CurrentUser(ctx context.Context, token string) (models.User, bool, error) {
	if token == "" {
		return models.User{}, false, nil
	}
	tokenHash := security.HashSessionToken(token)

	if user, session, ok := s.cache.Get(ctx, tokenHash); ok {
		if session.ExpiresAt.After(s.now()) {
			return user, true, nil
		}
		// Cached but expired: fall through so the row is reaped.
	}

	session, err := s.sessions.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return models.User{}, false, nil
		}
		return models.User{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if !session.ExpiresAt.After(s.now()) {
		s.expireSession(ctx, session)
		return models.User{}, false, nil
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Orphaned session; reap it and treat the caller as
			// anonymous.
			s.expireSession(ctx, session)
			return models.User{}, false, nil
		}
		return models.User{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := s.cache.Set(ctx, user, session); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("session cache set failed")
	}

	return user, true, nil
}

func (s *AuthService) expireSession(ctx context.Context, session models.Session) {
	if err := s.sessions.DeleteByTokenHash(ctx, session.TokenHash); err != nil {
		s.log.Warn().Err(err).Str("session_id", session.ID).Msg("expired session delete failed")
	}
	if err := s.cache.DeleteToken(ctx, session.TokenHash); err != nil {
		s.log.Warn().Err(err).Str("session_id", session.ID).Msg("expired session evict failed")
	}
}

// ChangePassword re-verifies the old password, rotates the hash, and
// revokes every other session the user holds. The session presenting
// the request survives, so the caller is not logged out by their own
// rotation.
func (s *AuthService) ChangePassword(ctx context.Context, token, oldPassword, newPassword string) error {
	tokenHash := security.HashSessionToken(token)

	session, err := s.sessions.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !session.ExpiresAt.After(s.now()) {
		s.expireSession(ctx, session)
		return ErrInvalidCredentials
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if !security.VerifyPassword(oldPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	newHash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	revoked, err := s.sessions.DeleteByUserExcept(ctx, user.ID, tokenHash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := s.cache.DeleteUser(ctx, user.ID); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("user cache purge failed")
	}

	s.log.Info().
		Str("user_id", user.ID).
		Int64("sessions_revoked", revoked).
		Msg("password changed")

	return nil
}

// RevokeAll signs the user out everywhere: one set-based delete plus a
// cache purge.
func (s *AuthService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	revoked, err := s.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := s.cache.DeleteUser(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("user cache purge failed")
	}

	return revoked, nil
}

func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return sessions, nil
}
