package services

import (
	"context"
	"testing"

	"pulsechat/internal/config"
	"pulsechat/internal/domain/user"
	pulse_errors "pulsechat/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAuthService(userRepo *MockUserRepository) *AuthService {
	return NewAuthService(userRepo, &config.Config{
		JWT: config.JWTConfig{Secret: "test-secret", ExpiryHours: 1},
	})
}

func TestRegisterValidation(t *testing.T) {
	svc := newAuthService(new(MockUserRepository))

	cases := []RegisterInput{
		{DisplayName: "", Email: "a@b.com", Password: "password1"},
		{DisplayName: "Alice", Email: "", Password: "password1"},
		{DisplayName: "Alice", Email: "not-an-email", Password: "password1"},
		{DisplayName: "Alice", Email: "a@b.com", Password: "short"},
	}
	for _, in := range cases {
		_, err := svc.Register(context.Background(), in)
		assert.ErrorIs(t, err, pulse_errors.ErrInvalidInput)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	userRepo := new(MockUserRepository)
	svc := newAuthService(userRepo)

	userRepo.On("GetByEmail", mock.Anything, "a@b.com").Return(user.User{ID: uuid.New()}, nil)

	_, err := svc.Register(context.Background(), RegisterInput{
		DisplayName: "Alice", Email: "a@b.com", Password: "password1",
	})

	assert.ErrorIs(t, err, pulse_errors.ErrAlreadyExists)
	userRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegisterIssuesParsableToken(t *testing.T) {
	userRepo := new(MockUserRepository)
	svc := newAuthService(userRepo)

	userRepo.On("GetByEmail", mock.Anything, mock.Anything).Return(user.User{}, pulse_errors.ErrNotFound)

	var created *user.User
	userRepo.On("Create", mock.Anything, mock.AnythingOfType("*user.User")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*user.User) }).
		Return(nil)

	resp, err := svc.Register(context.Background(), RegisterInput{
		DisplayName: "Alice", Email: "Alice@Example.com", Password: "password1",
	})

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "alice@example.com", created.Email)
	assert.NotEqual(t, "password1", created.PasswordHash)

	claims, err := svc.ParseAccessToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, created.ID.String(), claims.UserID)
}

func TestLoginWrongPassword(t *testing.T) {
	userRepo := new(MockUserRepository)
	svc := newAuthService(userRepo)

	hash, err := bcrypt.GenerateFromPassword([]byte("password1"), bcrypt.MinCost)
	require.NoError(t, err)
	userRepo.On("GetByEmail", mock.Anything, "a@b.com").Return(user.User{
		ID: uuid.New(), Email: "a@b.com", PasswordHash: string(hash),
	}, nil)

	_, err = svc.Login(context.Background(), LoginInput{Email: "a@b.com", Password: "wrong"})
	assert.ErrorIs(t, err, pulse_errors.ErrUnauthorized)

	// Unknown accounts fail the same way; the response never says which.
	userRepo.On("GetByEmail", mock.Anything, "nobody@b.com").Return(user.User{}, pulse_errors.ErrNotFound)
	_, err = svc.Login(context.Background(), LoginInput{Email: "nobody@b.com", Password: "password1"})
	assert.ErrorIs(t, err, pulse_errors.ErrUnauthorized)
}

func TestParseAccessTokenRejectsGarbage(t *testing.T) {
	svc := newAuthService(new(MockUserRepository))

	for _, token := range []string{"", "not.a.jwt", "aaaa.bbbb.cccc"} {
		_, err := svc.ParseAccessToken(token)
		assert.ErrorIs(t, err, pulse_errors.ErrUnauthorized)
	}
}

func TestParseAccessTokenRejectsForeignSecret(t *testing.T) {
	userRepo := new(MockUserRepository)
	issuer := NewAuthService(userRepo, &config.Config{
		JWT: config.JWTConfig{Secret: "other-secret", ExpiryHours: 1},
	})
	verifier := newAuthService(userRepo)

	hash, err := bcrypt.GenerateFromPassword([]byte("password1"), bcrypt.MinCost)
	require.NoError(t, err)
	u := user.User{ID: uuid.New(), Email: "a@b.com", PasswordHash: string(hash)}
	userRepo.On("GetByEmail", mock.Anything, "a@b.com").Return(u, nil)

	resp, err := issuer.Login(context.Background(), LoginInput{Email: "a@b.com", Password: "password1"})
	require.NoError(t, err)

	_, err = verifier.ParseAccessToken(resp.AccessToken)
	assert.ErrorIs(t, err, pulse_errors.ErrUnauthorized)
}
