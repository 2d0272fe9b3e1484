package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churchcms/api/internal/config"
	"churchcms/api/internal/models"
	"churchcms/api/internal/repository"
)

type memUsers struct {
	byID map[string]models.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[string]models.User)}
}

func (m *memUsers) Create(_ context.Context, user models.User) error {
	for _, existing := range m.byID {
		if strings.EqualFold(existing.Email, user.Email) {
			return repository.ErrEmailTaken
		}
	}
	m.byID[user.ID] = user
	return nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (models.User, error) {
	for _, user := range m.byID {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m *memUsers) GetByID(_ context.Context, id string) (models.User, error) {
	user, ok := m.byID[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *memUsers) UpdatePasswordHash(_ context.Context, id string, passwordHash []byte) error {
	user, ok := m.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	m.byID[id] = user
	return nil
}

type memSessions struct {
	byHash map[string]models.Session
}

func newMemSessions() *memSessions {
	return &memSessions{byHash: make(map[string]models.Session)}
}

func (m *memSessions) Create(_ context.Context, session models.Session) error {
	m.byHash[string(session.TokenHash)] = session
	return nil
}

func (m *memSessions) GetByTokenHash(_ context.Context, tokenHash []byte) (models.Session, error) {
	session, ok := m.byHash[string(tokenHash)]
	if !ok {
		return models.Session{}, repository.ErrSessionNotFound
	}
	return session, nil
}

func (m *memSessions) DeleteByTokenHash(_ context.Context, tokenHash []byte) error {
	delete(m.byHash, string(tokenHash))
	return nil
}

func (m *memSessions) DeleteByUser(_ context.Context, userID string) (int64, error) {
	var n int64
	for key, session := range m.byHash {
		if session.UserID == userID {
			delete(m.byHash, key)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) DeleteByUserExcept(_ context.Context, userID string, keepTokenHash []byte) (int64, error) {
	var n int64
	for key, session := range m.byHash {
		if session.UserID == userID && key != string(keepTokenHash) {
			delete(m.byHash, key)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) ListByUser(_ context.Context, userID string) ([]models.Session, error) {
	var sessions []models.Session
	for _, session := range m.byHash {
		if session.UserID == userID {
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

func newTestService() (*AuthService, *memUsers, *memSessions, *time.Time) {
	users := newMemUsers()
	sessions := newMemSessions()
	cfg := config.AuthConfig{
		SessionTTL:  7 * 24 * time.Hour,
		TokenLength: 32,
	}
	svc := NewAuthService(users, sessions, nil, cfg, zerolog.Nop())

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := &now
	svc.now = func() time.Time { return *clock }

	return svc, users, sessions, clock
}

func TestSignUpThenSignIn(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	signedUp, err := svc.SignUp(ctx, SignUpInput{
		Email:       "jane@example.org",
		Password:    "sunday-morning",
		DisplayName: "Jane",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, signedUp.User.Role, "default role")
	assert.NotEmpty(t, signedUp.Token)
	assert.True(t, signedUp.ExpiresAt.After(signedUp.User.CreatedAt))

	signedIn, err := svc.SignIn(ctx, "jane@example.org", "sunday-morning")
	require.NoError(t, err)
	assert.Equal(t, signedUp.User.ID, signedIn.User.ID)

	user, ok, err := svc.CurrentUser(ctx, signedIn.Token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, signedUp.User.ID, user.ID)
}

func TestSignInWrongPasswordAndUnknownEmailIndistinguishable(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.SignUp(ctx, SignUpInput{Email: "jane@example.org", Password: "sunday-morning"})
	require.NoError(t, err)

	_, wrongPassword := svc.SignIn(ctx, "jane@example.org", "monday-morning")
	_, unknownEmail := svc.SignIn(ctx, "nobody@example.org", "sunday-morning")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword, unknownEmail)
}

func TestSignUpConflictCaseInsensitive(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.SignUp(ctx, SignUpInput{Email: "a@b.com", Password: "password-one"})
	require.NoError(t, err)

	_, err = svc.SignUp(ctx, SignUpInput{Email: "A@B.COM", Password: "password-two"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestCurrentUserAnonymousPaths(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	user, ok, err := svc.CurrentUser(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, user)

	user, ok, err = svc.CurrentUser(ctx, "never-issued-token")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, user)
}

func TestLazyExpiry(t *testing.T) {
	svc, _, sessions, clock := newTestService()
	ctx := context.Background()

	result, err := svc.SignUp(ctx, SignUpInput{Email: "jane@example.org", Password: "sunday-morning"})
	require.NoError(t, err)
	require.Len(t, sessions.byHash, 1)

	*clock = clock.Add(8 * 24 * time.Hour)

	// First lookup past expiry detects it and reaps the row.
	_, ok, err := svc.CurrentUser(ctx, result.Token)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, sessions.byHash, "expired row deleted on lookup")

	// Second lookup is a plain not-found.
	_, ok, err = svc.CurrentUser(ctx, result.Token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignOutIdempotent(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	result, err := svc.SignUp(ctx, SignUpInput{Email: "jane@example.org", Password: "sunday-morning"})
	require.NoError(t, err)

	require.NoError(t, svc.SignOut(ctx, result.Token))
	require.NoError(t, svc.SignOut(ctx, result.Token), "second revoke is not an error")

	_, ok, err := svc.CurrentUser(ctx, result.Token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMultiDeviceSessionsIndependent(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.SignUp(ctx, SignUpInput{Email: "jane@example.org", Password: "sunday-morning"})
	require.NoError(t, err)

	deviceA, err := svc.SignIn(ctx, "jane@example.org", "sunday-morning")
	require.NoError(t, err)
	deviceB, err := svc.SignIn(ctx, "jane@example.org", "sunday-morning")
	require.NoError(t, err)
	assert.NotEqual(t, deviceA.Token, deviceB.Token)

	require.NoError(t, svc.SignOut(ctx, deviceA.Token))

	_, ok, err := svc.CurrentUser(ctx, deviceA.Token)
	require.NoError(t, err)
	assert.False(t, ok, "revoked session is dead")

	user, ok, err := svc.CurrentUser(ctx, deviceB.Token)
	require.NoError(t, err)
	assert.True(t, ok, "sibling session survives")

	revoked, err := svc.RevokeAll(ctx, user.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, revoked, int64(1))

	_, ok, err = svc.CurrentUser(ctx, deviceB.Token)
	require.NoError(t, err)
	assert.False(t, ok, "revoke-all kills every session")
}

func TestChangePassword(t *testing.T) {
	svc, _, sessions, _ := newTestService()
	ctx := context.Background()

	signedUp, err := svc.SignUp(ctx, SignUpInput{Email: "jane@example.org", Password: "old-password"})
	require.NoError(t, err)

	other, err := svc.SignIn(ctx, "jane@example.org", "old-password")
	require.NoError(t, err)
	require.Len(t, sessions.byHash, 2)

	require.NoError(t, svc.ChangePassword(ctx, signedUp.Token, "old-password", "new-password"))

	// The requesting session survives; the other one does not.
	_, ok, err := svc.CurrentUser(ctx, signedUp.Token)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = svc.CurrentUser(ctx, other.Token)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.SignIn(ctx, "jane@example.org", "old-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.SignIn(ctx, "jane@example.org", "new-password")
	assert.NoError(t, err)
}

func TestChangePasswordWrongOldPassword(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	signedUp, err := svc.SignUp(ctx, SignUpInput{Email: "jane@example.org", Password: "old-password"})
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, signedUp.Token, "not-the-old-password", "new-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Old credential still works.
	_, err = svc.SignIn(ctx, "jane@example.org", "old-password")
	assert.NoError(t, err)
}

func TestSignUpRejectsEmptyInput(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.SignUp(ctx, SignUpInput{Email: "", Password: "x"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.SignUp(ctx, SignUpInput{Email: "a@b.com", Password: ""})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestOrphanedSessionResolvesAnonymous(t *testing.T) {
	svc, users, sessions, _ := newTestService()
	ctx := context.Background()

	result, err := svc.SignUp(ctx, SignUpInput{Email: "jane@example.org", Password: "sunday-morning"})
	require.NoError(t, err)

	// Simulate a user hard-deleted out of band.
	delete(users.byID, result.User.ID)

	_, ok, err := svc.CurrentUser(ctx, result.Token)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, sessions.byHash, "orphaned session reaped")
}
