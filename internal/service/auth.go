package service

import (
	"context"
	"errors"
	"time"

	"churchcms/api/internal/models"
)

var (
	// ErrInvalidCredentials covers both "no such email" and "wrong
	// password"; callers must not be able to tell them apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	// ErrStoreUnavailable marks retryable backend failures, distinct
	// from credential failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// AuthResult is what a successful sign-in or sign-up hands back to the
// client, which persists it as {access_token, expires_at, user}.
type AuthResult struct {
	User      models.User
	Token     string
	ExpiresAt time.Time
}

type SignUpInput struct {
	Email       string
	Password    string
	DisplayName string
}

// Authenticator is the single facade over both authentication
// strategies: the self-managed credential store (AuthService) and the
// hosted identity platform (ProviderAuthService). Exactly one
// implementation is wired per deployment.
//
// CurrentUser returns (user, true, nil) for a live session and
// (zero, false, nil) for an absent or expired one — being logged out is
// a normal state, not an error.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (AuthResult, error)
	SignUp(ctx context.Context, input SignUpInput) (AuthResult, error)
	SignOut(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (models.User, bool, error)
	ChangePassword(ctx context.Context, token, oldPassword, newPassword string) error
}
