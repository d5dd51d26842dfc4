package query

import (
	"context"
	"fmt"
	"time"

	"github.com/eaglebank/ledger-service/internal/repository"
	"github.com/eaglebank/ledger-service/shared/cqrs"
	"github.com/eaglebank/ledger-service/shared/middleware"
	"github.com/eaglebank/ledger-service/shared/utils"
	"github.com/golang-jwt/jwt/v5"
)

var (
	errInvalidCredentials = fmt.Errorf("invalid credentials")
	errInvalidToken       = fmt.Errorf("invalid token")
)

// AuthQueryService handles login and token refresh. There's no command side
// for auth because these operations don't mutate application state.
type AuthQueryService struct {
	store    repository.LedgerStore
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

func NewAuthQueryService(store repository.LedgerStore, secret string, tokenTTL time.Duration) *AuthQueryService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthQueryService{
		store:    store,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

func (s *AuthQueryService) Login(ctx context.Context, cmd cqrs.LoginCommand) (string, error) {
	user, err := s.store.GetUserByEmail(ctx, cmd.Email)
	if err != nil {
		return "", errInvalidCredentials
	}
	if !utils.CheckPassword(cmd.Password, user.PasswordHash) {
		return "", errInvalidCredentials
	}
	return s.generateToken(user.ID, user.Email, user.IsAdmin)
}

// RefreshToken reissues a token for a still-existing user. The role is read
// again from the store so a revoked admin loses the capability on refresh.
func (s *AuthQueryService) RefreshToken(ctx context.Context, cmd cqrs.RefreshTokenCommand) (string, error) {
	claims, err := middleware.ParseToken(cmd.Token, s.secret)
	if err != nil {
		return "", errInvalidToken
	}
	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return "", errInvalidToken
	}
	return s.generateToken(user.ID, user.Email, user.IsAdmin)
}

func (s *AuthQueryService) generateToken(userID, email string, admin bool) (string, error) {
	role := middleware.RoleUser
	if admin {
		role = middleware.RoleAdmin
	}
	now := s.now()
	claims := middleware.Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return signed, nil
}
