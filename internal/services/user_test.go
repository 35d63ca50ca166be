package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tasknest/apiserver/internal/apperr"
)

func TestRegisterAndLoginIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	users := newMemoryUsers()
	issuer := &stubIssuer{}
	svc := NewUserService(users, issuer)
	ctx := context.Background()

	profile, err := svc.Register(ctx, RegisterInput{Name: "Ann", Email: "Ann@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "ann@x.com", profile.Email)

	stored, err := users.GetByEmail(ctx, "ann@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", stored.PasswordHash)

	result, err := svc.Login(ctx, LoginInput{Email: "ann@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "token-"+profile.ID.String(), result.Token)
	assert.Equal(t, profile, result.User)
	assert.Equal(t, []uuid.UUID{profile.ID}, issuer.issued)
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	svc := NewUserService(newMemoryUsers(), &stubIssuer{})
	cases := []struct {
		in   RegisterInput
		want string
	}{
		{RegisterInput{Email: "a@b.co", Password: "secret1"}, "Name is required"},
		{RegisterInput{Name: "   ", Email: "a@b.co", Password: "secret1"}, "Name is required"},
		{RegisterInput{Name: "Ann", Password: "secret1"}, "Email is required"},
		{RegisterInput{Name: "Ann", Email: "nope", Password: "secret1"}, "Please provide a valid email address"},
		{RegisterInput{Name: "Ann", Email: "a@b.co"}, "Password is required"},
		{RegisterInput{Name: "Ann", Email: "a@b.co", Password: "12345"}, "Password must be at least 6 characters long"},
		{RegisterInput{Name: "Ann", Email: "a@b.co", Password: strings.Repeat("p", 80)}, "Password cannot exceed 72 bytes"},
		{RegisterInput{Name: "Ann", Email: "a@b.co", Password: strings.Repeat("é", 37)}, "Password cannot exceed 72 bytes"},
	}
	for _, tc := range cases {
		_, err := svc.Register(context.Background(), tc.in)
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
		assert.Equal(t, tc.want, apperr.PublicMessage(err))
	}
}

func TestRegisterAcceptsPasswordAtBcryptLimit(t *testing.T) {
	t.Parallel()

	svc := NewUserService(newMemoryUsers(), &stubIssuer{})
	ctx := context.Background()
	password := strings.Repeat("p", 72)

	_, err := svc.Register(ctx, RegisterInput{Name: "Ann", Email: "a@b.co", Password: password})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginInput{Email: "a@b.co", Password: password})
	require.NoError(t, err)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	t.Parallel()

	svc := NewUserService(newMemoryUsers(), &stubIssuer{})
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Name: "Ann", Email: "ann@x.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Name: "Other", Email: " ANN@x.com ", Password: "secret2"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, "User already exists", apperr.PublicMessage(err))
}

func TestLoginDoesNotDistinguishFailures(t *testing.T) {
	t.Parallel()

	svc := NewUserService(newMemoryUsers(), &stubIssuer{})
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterInput{Name: "Ann", Email: "ann@x.com", Password: "secret1"})
	require.NoError(t, err)

	attempts := []LoginInput{
		{Email: "ann@x.com", Password: "wrong-pass"},
		{Email: "nobody@x.com", Password: "secret1"},
		{Email: "", Password: "secret1"},
		{Email: "ann@x.com"},
	}
	for _, in := range attempts {
		_, err := svc.Login(ctx, in)
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindInvalidCredentials))
		assert.Equal(t, "Invalid credentials", apperr.PublicMessage(err))
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	svc := NewUserService(newMemoryUsers(), &stubIssuer{})
	ctx := context.Background()
	profile, err := svc.Register(ctx, RegisterInput{Name: "Ann", Email: "ann@x.com", Password: "secret1"})
	require.NoError(t, err)

	got, err := svc.Resolve(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, profile, got)

	_, err = svc.Resolve(ctx, uuid.New())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, "Authenticated user not found", apperr.PublicMessage(err))
}
