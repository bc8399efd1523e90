package jwt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safetrack-io/safetrack/internal/domain"
	"github.com/safetrack-io/safetrack/internal/identity"
)

// mockRepository implements the token storage half of identity.Repository.
type mockRepository struct {
	users  map[string]*domain.User
	tokens map[string]*domain.RefreshToken
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users:  make(map[string]*domain.User),
		tokens: make(map[string]*domain.RefreshToken),
	}
}

func (m *mockRepository) CreateUser(_ context.Context, _ *domain.User) error { return nil }

func (m *mockRepository) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, identity.ErrUserNotFound
}

func (m *mockRepository) GetUserByEmail(_ context.Context, _, _ string) (*domain.User, error) {
	return nil, identity.ErrUserNotFound
}

func (m *mockRepository) ListTenantUsers(_ context.Context, _ string) ([]domain.User, error) {
	return nil, nil
}

func (m *mockRepository) UpdateUser(_ context.Context, _ *domain.User) error { return nil }

func (m *mockRepository) SaveRefreshToken(_ context.Context, token *domain.RefreshToken) error {
	m.tokens[token.Token] = token
	return nil
}

func (m *mockRepository) GetRefreshToken(_ context.Context, hash string) (*domain.RefreshToken, error) {
	if t, ok := m.tokens[hash]; ok {
		return t, nil
	}
	return nil, identity.ErrInvalidToken
}

func (m *mockRepository) DeleteRefreshToken(_ context.Context, hash string) error {
	delete(m.tokens, hash)
	return nil
}

func (m *mockRepository) DeleteUserRefreshTokens(_ context.Context, _ string) error { return nil }

func testUser() *domain.User {
	return &domain.User{
		ID:       "user-1",
		TenantID: "tenant-1",
		Email:    "dana@example.com",
		Name:     "Dana Reyes",
		Roles:    []domain.Role{domain.RoleEmployee, domain.RoleHSSEExpert},
	}
}

func newTestAuthenticator(t *testing.T, repo identity.Repository) *Authenticator {
	t.Helper()
	auth, err := NewAuthenticator(Config{
		Secret: "test-secret",
		Issuer: "safetrack-test",
	}, repo)
	require.NoError(t, err)
	return auth
}

func TestNewAuthenticator_RequiresSecret(t *testing.T) {
	_, err := NewAuthenticator(Config{}, newMockRepository())
	assert.ErrorContains(t, err, "secret is required")
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	repo := newMockRepository()
	auth := newTestAuthenticator(t, repo)

	pair, err := auth.GenerateTokens(context.Background(), testUser())
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := auth.ValidateAccessToken(context.Background(), pair.AccessToken)
	require.NoError(t, err)

	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.Equal(t, []domain.Role{domain.RoleEmployee, domain.RoleHSSEExpert}, claims.Roles)
}

func TestValidateAccessToken_Garbage(t *testing.T) {
	auth := newTestAuthenticator(t, newMockRepository())

	_, err := auth.ValidateAccessToken(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestValidateAccessToken_WrongSecret(t *testing.T) {
	repo := newMockRepository()
	auth := newTestAuthenticator(t, repo)

	other, err := NewAuthenticator(Config{Secret: "other-secret", Issuer: "safetrack-test"}, repo)
	require.NoError(t, err)

	pair, err := other.GenerateTokens(context.Background(), testUser())
	require.NoError(t, err)

	_, err = auth.ValidateAccessToken(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestValidateAccessToken_Expired(t *testing.T) {
	repo := newMockRepository()
	auth, err := NewAuthenticator(Config{
		Secret:              "test-secret",
		Issuer:              "safetrack-test",
		AccessTokenDuration: -time.Minute,
	}, repo)
	require.NoError(t, err)

	pair, err := auth.GenerateTokens(context.Background(), testUser())
	require.NoError(t, err)

	_, err = auth.ValidateAccessToken(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestRefreshTokens_RotatesToken(t *testing.T) {
	repo := newMockRepository()
	repo.users["user-1"] = testUser()
	auth := newTestAuthenticator(t, repo)

	pair, err := auth.GenerateTokens(context.Background(), testUser())
	require.NoError(t, err)

	fresh, err := auth.RefreshTokens(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, fresh.RefreshToken)

	// The old token was consumed by the rotation.
	_, err = auth.RefreshTokens(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestRefreshTokens_ExpiredToken(t *testing.T) {
	repo := newMockRepository()
	repo.users["user-1"] = testUser()
	auth, err := NewAuthenticator(Config{
		Secret:               "test-secret",
		Issuer:               "safetrack-test",
		RefreshTokenDuration: -time.Hour,
	}, repo)
	require.NoError(t, err)

	pair, err := auth.GenerateTokens(context.Background(), testUser())
	require.NoError(t, err)

	_, err = auth.RefreshTokens(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestRevokeRefreshToken(t *testing.T) {
	repo := newMockRepository()
	repo.users["user-1"] = testUser()
	auth := newTestAuthenticator(t, repo)

	pair, err := auth.GenerateTokens(context.Background(), testUser())
	require.NoError(t, err)

	require.NoError(t, auth.RevokeRefreshToken(context.Background(), pair.RefreshToken))

	_, err = auth.RefreshTokens(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}
