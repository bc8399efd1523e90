package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/safetrack-io/safetrack/internal/domain"
)

// mockRepository implements Repository for testing.
type mockRepository struct {
	users         map[string]*domain.User
	tokens        map[string]*domain.RefreshToken
	createUserErr error
	nextID        int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users:  make(map[string]*domain.User),
		tokens: make(map[string]*domain.RefreshToken),
	}
}

func (m *mockRepository) CreateUser(_ context.Context, user *domain.User) error {
	if m.createUserErr != nil {
		return m.createUserErr
	}
	m.nextID++
	user.ID = "user-" + string(rune('0'+m.nextID))
	user.CreatedAt = time.Now()
	m.users[user.ID] = user
	return nil
}

func (m *mockRepository) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, ErrUserNotFound
}

func (m *mockRepository) GetUserByEmail(_ context.Context, tenantID, email string) (*domain.User, error) {
	for _, u := range m.users {
		if u.TenantID == tenantID && u.Email == email {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockRepository) ListTenantUsers(_ context.Context, tenantID string) ([]domain.User, error) {
	var out []domain.User
	for _, u := range m.users {
		if u.TenantID == tenantID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *mockRepository) UpdateUser(_ context.Context, user *domain.User) error {
	if _, ok := m.users[user.ID]; !ok {
		return ErrUserNotFound
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockRepository) SaveRefreshToken(_ context.Context, token *domain.RefreshToken) error {
	m.tokens[token.Token] = token
	return nil
}

func (m *mockRepository) GetRefreshToken(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	if t, ok := m.tokens[tokenHash]; ok {
		return t, nil
	}
	return nil, ErrInvalidToken
}

func (m *mockRepository) DeleteRefreshToken(_ context.Context, tokenHash string) error {
	delete(m.tokens, tokenHash)
	return nil
}

func (m *mockRepository) DeleteUserRefreshTokens(_ context.Context, userID string) error {
	for hash, t := range m.tokens {
		if t.UserID == userID {
			delete(m.tokens, hash)
		}
	}
	return nil
}

// mockAuthenticator implements Authenticator for testing.
type mockAuthenticator struct{}

func (m *mockAuthenticator) GenerateTokens(_ context.Context, _ *domain.User) (*TokenPair, error) {
	return &TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (m *mockAuthenticator) ValidateAccessToken(_ context.Context, _ string) (*Claims, error) {
	return nil, ErrInvalidToken
}

func (m *mockAuthenticator) RefreshTokens(_ context.Context, _ string) (*TokenPair, error) {
	return &TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (m *mockAuthenticator) RevokeRefreshToken(_ context.Context, _ string) error {
	return nil
}

// mockUserCreatedHandler implements UserCreatedHandler for testing.
type mockUserCreatedHandler struct {
	called       bool
	receivedUser *domain.User
	err          error
}

func (m *mockUserCreatedHandler) OnUserCreated(_ context.Context, user *domain.User) error {
	m.called = true
	m.receivedUser = user
	return m.err
}

func TestRegister_CallsUserCreatedHandler(t *testing.T) {
	repo := newMockRepository()
	auth := &mockAuthenticator{}
	handler := &mockUserCreatedHandler{}

	service := NewService(repo, auth, handler)

	user, err := service.Register(context.Background(), RegisterInput{
		TenantID: "tenant-1",
		Email:    "test@example.com",
		Password: "password123",
		Name:     "Test User",
	})

	require.NoError(t, err)
	require.NotNil(t, user)
	assert.True(t, handler.called, "handler should be called")
	assert.Equal(t, user.ID, handler.receivedUser.ID)
	assert.Equal(t, user.Email, handler.receivedUser.Email)
}

func TestRegister_NewUsersGetEmployeeRole(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &mockAuthenticator{}, nil)

	user, err := service.Register(context.Background(), RegisterInput{
		TenantID: "tenant-1",
		Email:    "Test@Example.com",
		Password: "password123",
		Name:     "Test User",
	})

	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleEmployee}, user.Roles)
	assert.Equal(t, "test@example.com", user.Email, "email is normalized")
	assert.NotEqual(t, "password123", user.Password, "password is hashed")
}

func TestRegister_ContinuesIfHandlerFails(t *testing.T) {
	repo := newMockRepository()
	handler := &mockUserCreatedHandler{err: errors.New("handler error")}

	service := NewService(repo, &mockAuthenticator{}, handler)

	user, err := service.Register(context.Background(), RegisterInput{
		TenantID: "tenant-1",
		Email:    "test@example.com",
		Password: "password123",
		Name:     "Test User",
	})

	require.NoError(t, err)
	assert.NotNil(t, user)
	assert.True(t, handler.called, "handler should still be called")
}

func TestRegister_EmailAlreadyExists(t *testing.T) {
	repo := newMockRepository()
	repo.users["user-9"] = &domain.User{
		ID:       "user-9",
		TenantID: "tenant-1",
		Email:    "existing@example.com",
	}
	handler := &mockUserCreatedHandler{}

	service := NewService(repo, &mockAuthenticator{}, handler)

	user, err := service.Register(context.Background(), RegisterInput{
		TenantID: "tenant-1",
		Email:    "existing@example.com",
		Password: "password123",
		Name:     "Test User",
	})

	assert.Nil(t, user)
	assert.ErrorIs(t, err, ErrEmailExists)
	assert.False(t, handler.called, "handler should not be called for duplicate email")
}

func TestRegister_SameEmailDifferentTenant(t *testing.T) {
	repo := newMockRepository()
	repo.users["user-9"] = &domain.User{
		ID:       "user-9",
		TenantID: "tenant-1",
		Email:    "shared@example.com",
	}

	service := NewService(repo, &mockAuthenticator{}, nil)

	user, err := service.Register(context.Background(), RegisterInput{
		TenantID: "tenant-2",
		Email:    "shared@example.com",
		Password: "password123",
		Name:     "Other Tenant User",
	})

	require.NoError(t, err)
	assert.Equal(t, "tenant-2", user.TenantID)
}

func TestRegister_CreateUserFails(t *testing.T) {
	repo := newMockRepository()
	repo.createUserErr = errors.New("database error")
	handler := &mockUserCreatedHandler{}

	service := NewService(repo, &mockAuthenticator{}, handler)

	user, err := service.Register(context.Background(), RegisterInput{
		TenantID: "tenant-1",
		Email:    "test@example.com",
		Password: "password123",
		Name:     "Test User",
	})

	assert.Nil(t, user)
	assert.Error(t, err)
	assert.False(t, handler.called, "handler should not be called if user creation fails")
}

func seedUser(t *testing.T, repo *mockRepository, password string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	user := &domain.User{
		ID:       "user-1",
		TenantID: "tenant-1",
		Email:    "dana@example.com",
		Name:     "Dana Reyes",
		Password: string(hash),
		Roles:    []domain.Role{domain.RoleEmployee, domain.RoleInvestigator},
	}
	repo.users[user.ID] = user
	return user
}

func TestLogin_Success(t *testing.T) {
	repo := newMockRepository()
	seedUser(t, repo, "correct-horse")
	service := NewService(repo, &mockAuthenticator{}, nil)

	user, tokens, err := service.Login(context.Background(), LoginInput{
		TenantID: "tenant-1",
		Email:    "dana@example.com",
		Password: "correct-horse",
	})

	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "access", tokens.AccessToken)
}

func TestLogin_WrongPassword(t *testing.T) {
	repo := newMockRepository()
	seedUser(t, repo, "correct-horse")
	service := NewService(repo, &mockAuthenticator{}, nil)

	_, _, err := service.Login(context.Background(), LoginInput{
		TenantID: "tenant-1",
		Email:    "dana@example.com",
		Password: "wrong",
	})

	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_UnknownEmail(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &mockAuthenticator{}, nil)

	_, _, err := service.Login(context.Background(), LoginInput{
		TenantID: "tenant-1",
		Email:    "nobody@example.com",
		Password: "whatever",
	})

	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_WrongTenant(t *testing.T) {
	repo := newMockRepository()
	seedUser(t, repo, "correct-horse")
	service := NewService(repo, &mockAuthenticator{}, nil)

	_, _, err := service.Login(context.Background(), LoginInput{
		TenantID: "tenant-2",
		Email:    "dana@example.com",
		Password: "correct-horse",
	})

	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUpdateUserRoles(t *testing.T) {
	repo := newMockRepository()
	seedUser(t, repo, "x")
	service := NewService(repo, &mockAuthenticator{}, nil)

	user, err := service.UpdateUserRoles(context.Background(), "tenant-1", "user-1",
		[]domain.Role{domain.RoleHSSEManager}, "dept-7")

	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleHSSEManager}, user.Roles)
	assert.Equal(t, "dept-7", user.DepartmentID)
}

func TestUpdateUserRoles_TenantIsolation(t *testing.T) {
	repo := newMockRepository()
	seedUser(t, repo, "x")
	service := NewService(repo, &mockAuthenticator{}, nil)

	_, err := service.UpdateUserRoles(context.Background(), "tenant-2", "user-1",
		[]domain.Role{domain.RoleHSSEManager}, "")

	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateUserRoles_InvalidRole(t *testing.T) {
	repo := newMockRepository()
	seedUser(t, repo, "x")
	service := NewService(repo, &mockAuthenticator{}, nil)

	_, err := service.UpdateUserRoles(context.Background(), "tenant-1", "user-1",
		[]domain.Role{"superuser"}, "")

	assert.ErrorContains(t, err, "invalid role")
}

func TestGetActor(t *testing.T) {
	repo := newMockRepository()
	seeded := seedUser(t, repo, "x")
	seeded.DepartmentID = "dept-3"
	service := NewService(repo, &mockAuthenticator{}, nil)

	actor, err := service.GetActor(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, "user-1", actor.ID)
	assert.Equal(t, "Dana Reyes", actor.Name)
	assert.Equal(t, "dept-3", actor.DepartmentID)
	assert.True(t, actor.HasRole(domain.RoleInvestigator))
}

func TestGetActor_NotFound(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &mockAuthenticator{}, nil)

	_, err := service.GetActor(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
