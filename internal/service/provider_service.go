package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"churchcms/api/internal/config"
	"churchcms/api/internal/models"
	"churchcms/api/internal/security"
)

// ProviderAuthService is the managed strategy: credential checking and
// session issuance are delegated to the hosted identity platform, and
// this service only translates between its HTTP surface and the
// Authenticator interface. Tokens are the platform's HS256 JWTs, which
// CurrentUser validates locally with the project secret so the common
// path costs no network round trip.
type ProviderAuthService struct {
	baseURL string
	apiKey  string
	secret  string
	client  *http.Client
	log     zerolog.Logger
	now     func() time.Time
}

func NewProviderAuthService(cfg config.AuthConfig, log zerolog.Logger) *ProviderAuthService {
	return &ProviderAuthService{
		baseURL: strings.TrimRight(cfg.ProviderURL, "/"),
		apiKey:  cfg.ProviderKey,
		secret:  cfg.ProviderSecret,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
		now:     time.Now,
	}
}

type providerUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Metadata struct {
		DisplayName string `json:"display_name"`
		Role        string `json:"role"`
	} `json:"user_metadata"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type providerTokenResponse struct {
	AccessToken string       `json:"access_token"`
	ExpiresIn   int64        `json:"expires_in"`
	User        providerUser `json:"user"`
}

func (u providerUser) toModel() models.User {
	// The platform reports roles from two places; app metadata wins.
	raw := u.Metadata.Role
	if raw == "" {
		raw = u.Role
	}
	role, ok := models.NormalizeRole(raw)
	if !ok {
		role = models.RoleMember
	}

	return models.User{
		ID:          u.ID,
		Email:       normalizeEmail(u.Email),
		DisplayName: u.Metadata.DisplayName,
		Role:        role,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func (s *ProviderAuthService) SignIn(ctx context.Context, email, password string) (AuthResult, error) {
	body := map[string]string{
		"email":    normalizeEmail(email),
		"password": password,
	}

	var resp providerTokenResponse
	status, err := s.post(ctx, "/token?grant_type=password", "", body, &resp)
	if err != nil {
		return AuthResult{}, err
	}
	switch {
	case status == http.StatusOK:
	case status == http.StatusBadRequest, status == http.StatusUnauthorized:
		return AuthResult{}, ErrInvalidCredentials
	default:
		return AuthResult{}, fmt.Errorf("%w: provider status %d", ErrStoreUnavailable, status)
	}

	return AuthResult{
		User:      resp.User.toModel(),
		Token:     resp.AccessToken,
		ExpiresAt: s.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

func (s *ProviderAuthService) SignUp(ctx context.Context, input SignUpInput) (AuthResult, error) {
	body := map[string]any{
		"email":    normalizeEmail(input.Email),
		"password": input.Password,
		"data": map[string]string{
			"display_name": input.DisplayName,
		},
	}

	var resp providerTokenResponse
	status, err := s.post(ctx, "/signup", "", body, &resp)
	if err != nil {
		return AuthResult{}, err
	}
	switch {
	case status == http.StatusOK:
	case status == http.StatusUnprocessableEntity, status == http.StatusConflict:
		return AuthResult{}, ErrEmailTaken
	case status == http.StatusBadRequest:
		return AuthResult{}, ErrInvalidCredentials
	default:
		return AuthResult{}, fmt.Errorf("%w: provider status %d", ErrStoreUnavailable, status)
	}

	return AuthResult{
		User:      resp.User.toModel(),
		Token:     resp.AccessToken,
		ExpiresAt: s.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

func (s *ProviderAuthService) SignOut(ctx context.Context, token string) error {
	status, err := s.post(ctx, "/logout", token, nil, nil)
	if err != nil {
		return err
	}
	// 401/404 mean the session was already gone; sign-out stays
	// idempotent.
	if status >= 500 {
		return fmt.Errorf("%w: provider status %d", ErrStoreUnavailable, status)
	}
	return nil
}

func (s *ProviderAuthService) CurrentUser(ctx context.Context, token string) (models.User, bool, error) {
	if token == "" {
		return models.User{}, false, nil
	}

	claims, err := security.ParseProviderToken(token, s.secret)
	if err != nil {
		// Invalid or expired signature: anonymous, not a fault.
		return models.User{}, false, nil
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(s.now()) {
		return models.User{}, false, nil
	}

	// The token is self-contained; fetch the profile for display name
	// and an up-to-date role.
	var user providerUser
	status, err := s.get(ctx, "/user", token, &user)
	if err != nil {
		return models.User{}, false, err
	}
	switch {
	case status == http.StatusOK:
	case status == http.StatusUnauthorized, status == http.StatusNotFound:
		return models.User{}, false, nil
	default:
		return models.User{}, false, fmt.Errorf("%w: provider status %d", ErrStoreUnavailable, status)
	}

	return user.toModel(), true, nil
}

func (s *ProviderAuthService) ChangePassword(ctx context.Context, token, oldPassword, newPassword string) error {
	user, ok, err := s.CurrentUser(ctx, token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}

	// The platform's update endpoint does not re-verify the current
	// password, so prove it with a fresh password grant first.
	if _, err := s.SignIn(ctx, user.Email, oldPassword); err != nil {
		return err
	}

	status, err := s.put(ctx, "/user", token, map[string]string{"password": newPassword})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: provider status %d", ErrStoreUnavailable, status)
	}

	// The platform revokes the user's other refresh sessions on
	// password update; nothing further to do locally.
	return nil
}

func (s *ProviderAuthService) post(ctx context.Context, path, token string, body any, out any) (int, error) {
	return s.do(ctx, http.MethodPost, path, token, body, out)
}

func (s *ProviderAuthService) put(ctx context.Context, path, token string, body any) (int, error) {
	return s.do(ctx, http.MethodPut, path, token, body, nil)
}

func (s *ProviderAuthService) get(ctx context.Context, path, token string, out any) (int, error) {
	return s.do(ctx, http.MethodGet, path, token, nil, out)
}

func (s *ProviderAuthService) do(ctx context.Context, method, path, token string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode response: %v", ErrStoreUnavailable, err)
		}
	} else {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	}

	return resp.StatusCode, nil
}
