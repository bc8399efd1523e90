package identity

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/safetrack-io/safetrack/internal/domain"
	"github.com/safetrack-io/safetrack/internal/pkg/ctxlog"
	"github.com/safetrack-io/safetrack/internal/pkg/httputil"
)

// TokenPair holds an access token and its refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Claims is the validated content of an access token.
type Claims struct {
	UserID   string
	TenantID string
	Roles    []domain.Role
}

// Authenticator issues and validates session tokens.
type Authenticator interface {
	GenerateTokens(ctx context.Context, user *domain.User) (*TokenPair, error)
	ValidateAccessToken(ctx context.Context, token string) (*Claims, error)
	RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error)
	RevokeRefreshToken(ctx context.Context, refreshToken string) error
}

// UserCreatedHandler is notified after a user is successfully created.
// Errors are logged and do not fail the registration.
type UserCreatedHandler interface {
	OnUserCreated(ctx context.Context, user *domain.User) error
}

// Service provides identity operations.
type Service struct {
	repo          Repository
	authenticator Authenticator
	onUserCreated UserCreatedHandler
}

// NewService creates a new identity service. onUserCreated may be nil.
func NewService(repo Repository, authenticator Authenticator, onUserCreated UserCreatedHandler) *Service {
	return &Service{
		repo:          repo,
		authenticator: authenticator,
		onUserCreated: onUserCreated,
	}
}

// RegisterInput holds data for user registration.
type RegisterInput struct {
	TenantID     string
	Email        string
	Password     string
	Name         string
	DepartmentID string
}

// Register creates a new user holding the employee role. Further roles
// are granted by an admin through UpdateUserRoles.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	if _, err := s.repo.GetUserByEmail(ctx, input.TenantID, email); err == nil {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		TenantID:     input.TenantID,
		Email:        email,
		Name:         input.Name,
		Password:     string(hash),
		Roles:        []domain.Role{domain.RoleEmployee},
		DepartmentID: input.DepartmentID,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if s.onUserCreated != nil {
		if err := s.onUserCreated.OnUserCreated(ctx, user); err != nil {
			ctxlog.FromContext(ctx).Warn("user created handler failed",
				"user_id", user.ID,
				"error", err,
			)
		}
	}

	return user, nil
}

// LoginInput holds login credentials.
type LoginInput struct {
	TenantID string
	Email    string
	Password string
}

// Login verifies credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, input LoginInput) (*domain.User, *TokenPair, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	user, err := s.repo.GetUserByEmail(ctx, input.TenantID, email)
	if err != nil {
		// Burn a comparison so missing users cost the same as bad passwords.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(input.Password))
		return nil, nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	tokens, err := s.authenticator.GenerateTokens(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("generate tokens: %w", err)
	}

	return user, tokens, nil
}

// dummyHash is a bcrypt hash of an unguessable value, used to equalize
// login timing when the email is unknown.
var dummyHash = func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("safetrack-timing-pad"), bcrypt.DefaultCost)
	return h
}()

// RefreshTokens exchanges a refresh token for a new token pair.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return s.authenticator.RefreshTokens(ctx, refreshToken)
}

// Logout revokes the refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.authenticator.RevokeRefreshToken(ctx, refreshToken)
}

// GetUserByID returns a user record.
func (s *Service) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// ListUsers returns all users of a tenant.
func (s *Service) ListUsers(ctx context.Context, tenantID string) ([]domain.User, error) {
	return s.repo.ListTenantUsers(ctx, tenantID)
}

// UpdateUserRoles replaces a user's role set and department. Admin only;
// the handler enforces that.
func (s *Service) UpdateUserRoles(ctx context.Context, tenantID, userID string, roles []domain.Role, departmentID string) (*domain.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TenantID != tenantID {
		return nil, ErrUserNotFound
	}

	for _, role := range roles {
		if !role.IsValid() {
			return nil, fmt.Errorf("invalid role: %s", role)
		}
	}
	if len(roles) == 0 {
		roles = []domain.Role{domain.RoleEmployee}
	}

	user.Roles = roles
	user.DepartmentID = departmentID

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

// GetActor resolves a user into an actor for workflow gate decisions.
// It satisfies the Directory interface of the workflow packages.
func (s *Service) GetActor(ctx context.Context, actorID string) (domain.Actor, error) {
	user, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: actor %s", domain.ErrNotFound, actorID)
	}
	return user.Actor(), nil
}

// ValidateToken validates an access token and returns the authenticated
// request context. It satisfies httputil.TokenValidator.
func (s *Service) ValidateToken(ctx context.Context, token string) (*httputil.AuthContext, error) {
	claims, err := s.authenticator.ValidateAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return &httputil.AuthContext{
		UserID:   claims.UserID,
		TenantID: claims.TenantID,
		Roles:    claims.Roles,
	}, nil
}
