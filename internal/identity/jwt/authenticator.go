// Package jwt implements the identity Authenticator with signed JWT
// access tokens and opaque, database-backed refresh tokens.
package jwt

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/safetrack-io/safetrack/internal/domain"
	"github.com/safetrack-io/safetrack/internal/identity"
)

const (
	defaultAccessTokenDuration  = 15 * time.Minute
	defaultRefreshTokenDuration = 30 * 24 * time.Hour
)

// Config holds JWT authenticator configuration.
type Config struct {
	Secret               string
	Issuer               string
	AccessTokenDuration  time.Duration
	RefreshTokenDuration time.Duration
}

// Authenticator issues HS256-signed access tokens and stores hashed
// refresh tokens through the identity repository.
type Authenticator struct {
	config Config
	repo   identity.Repository
}

// NewAuthenticator creates a JWT authenticator.
func NewAuthenticator(config Config, repo identity.Repository) (*Authenticator, error) {
	if config.Secret == "" {
		return nil, errors.New("jwt: secret is required")
	}
	if config.AccessTokenDuration == 0 {
		config.AccessTokenDuration = defaultAccessTokenDuration
	}
	if config.RefreshTokenDuration == 0 {
		config.RefreshTokenDuration = defaultRefreshTokenDuration
	}
	return &Authenticator{config: config, repo: repo}, nil
}

// accessClaims is the JWT claim set carried by access tokens.
type accessClaims struct {
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// GenerateTokens issues an access and refresh token pair for the user.
func (a *Authenticator) GenerateTokens(ctx context.Context, user *domain.User) (*identity.TokenPair, error) {
	accessToken, err := a.signAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := a.issueRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &identity.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func (a *Authenticator) signAccessToken(user *domain.User) (string, error) {
	now := time.Now()
	roles := make([]string, len(user.Roles))
	for i, r := range user.Roles {
		roles[i] = string(r)
	}

	claims := accessClaims{
		TenantID: user.TenantID,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    a.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.AccessTokenDuration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.config.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken parses and verifies an access token.
func (a *Authenticator) ValidateAccessToken(_ context.Context, tokenString string) (*identity.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &accessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.config.Secret), nil
	}, jwt.WithIssuer(a.config.Issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, identity.ErrInvalidToken
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || claims.Subject == "" {
		return nil, identity.ErrInvalidToken
	}

	roles := make([]domain.Role, 0, len(claims.Roles))
	for _, r := range claims.Roles {
		if role := domain.Role(r); role.IsValid() {
			roles = append(roles, role)
		}
	}

	return &identity.Claims{
		UserID:   claims.Subject,
		TenantID: claims.TenantID,
		Roles:    roles,
	}, nil
}

// RefreshTokens rotates a refresh token, returning a new pair. The old
// token is deleted whether or not the exchange succeeds.
func (a *Authenticator) RefreshTokens(ctx context.Context, refreshToken string) (*identity.TokenPair, error) {
	hash := hashToken(refreshToken)

	stored, err := a.repo.GetRefreshToken(ctx, hash)
	if err != nil {
		return nil, identity.ErrInvalidToken
	}

	if err := a.repo.DeleteRefreshToken(ctx, hash); err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	if time.Now().After(stored.ExpiresAt) {
		return nil, identity.ErrInvalidToken
	}

	user, err := a.repo.GetUserByID(ctx, stored.UserID)
	if err != nil {
		return nil, identity.ErrInvalidToken
	}

	return a.GenerateTokens(ctx, user)
}

// RevokeRefreshToken deletes a refresh token.
func (a *Authenticator) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	return a.repo.DeleteRefreshToken(ctx, hashToken(refreshToken))
}

func (a *Authenticator) issueRefreshToken(ctx context.Context, userID string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	token := hex.EncodeToString(raw)

	record := &domain.RefreshToken{
		Token:     hashToken(token),
		UserID:    userID,
		ExpiresAt: time.Now().Add(a.config.RefreshTokenDuration),
	}
	if err := a.repo.SaveRefreshToken(ctx, record); err != nil {
		return "", fmt.Errorf("save refresh token: %w", err)
	}

	return token, nil
}

// hashToken hashes the opaque refresh token for storage.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
