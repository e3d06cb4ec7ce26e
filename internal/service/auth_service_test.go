package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/acadhub/curricula-api/internal/models"
	appErrors "github.com/acadhub/curricula-api/pkg/errors"
)

type authRepoStub struct {
	users  map[string]*models.User
	tokens map[string]*models.RefreshToken
}

func newAuthRepoStub() *authRepoStub {
	return &authRepoStub{
		users:  make(map[string]*models.User),
		tokens: make(map[string]*models.RefreshToken),
	}
}

func (s *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if user, ok := s.users[id]; ok {
		user.LastLogin = &ts
	}
	return nil
}

func (s *authRepoStub) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	for _, token := range s.tokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func (s *authRepoStub) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	s.tokens[token.ID] = token
	return nil
}

func (s *authRepoStub) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	for _, stored := range s.tokens {
		if stored.Token == token {
			return stored, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	if token, ok := s.tokens[id]; ok {
		token.Revoked = true
		token.RevokedAt = &revokedAt
	}
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *authRepoStub) {
	t.Helper()
	repo := newAuthRepoStub()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	repo.users["hod-1"] = &models.User{
		ID:             "hod-1",
		Email:          "hod@acadhub.test",
		PasswordHash:   string(hash),
		FullName:       "Dept Head",
		Role:           models.RoleHOD,
		DepartmentCode: "CS",
		Active:         true,
	}
	svc := NewAuthService(repo, &auditLoggerStub{}, nil, AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "curricula-api",
	})
	return svc, repo
}

func TestAuthServiceLoginIssuesTokens(t *testing.T) {
	svc, repo := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "hod@acadhub.test",
		Password: "secret123",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, models.RoleHOD, resp.User.Role)
	require.Equal(t, "CS", resp.User.DepartmentCode)
	require.Len(t, repo.tokens, 1)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "hod-1", claims.UserID)
	require.Equal(t, "CS", claims.DepartmentCode)
}

func TestAuthServiceLoginRejectsBadPassword(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "hod@acadhub.test",
		Password: "wrong",
	})
	requireErrorCode(t, err, appErrors.ErrInvalidCredentials.Code)
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	svc, repo := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "hod@acadhub.test",
		Password: "secret123",
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.NoError(t, err)
	require.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	original, err := repo.FindRefreshToken(context.Background(), login.RefreshToken)
	require.NoError(t, err)
	require.True(t, original.Revoked)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	requireErrorCode(t, err, appErrors.ErrUnauthorized.Code)
}

func TestAuthServiceLogoutRevokesToken(t *testing.T) {
	svc, repo := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "hod@acadhub.test",
		Password: "secret123",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), login.RefreshToken, "hod-1"))
	stored, err := repo.FindRefreshToken(context.Background(), login.RefreshToken)
	require.NoError(t, err)
	require.True(t, stored.Revoked)
}

func TestAuthServiceValidateTokenRejectsGarbage(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.ValidateToken("not-a-token")
	requireErrorCode(t, err, appErrors.ErrUnauthorized.Code)
}
