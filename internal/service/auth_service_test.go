package service

import (
	"context"
	"testing"

	"lot_registry/internal/model"
	"lot_registry/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserRepo struct {
	users  map[string]*model.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.nextID++
	user.ID = f.nextID
	stored := *user
	f.users[user.Email] = &stored
	return nil
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	u, ok := f.users[email]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}

func (f *fakeUserRepo) FindByID(_ context.Context, id int) (*model.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			out := *u
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) Count(_ context.Context) (int64, error) {
	return int64(len(f.users)), nil
}

func (f *fakeUserRepo) List(_ context.Context) ([]model.User, error) {
	var out []model.User
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, nil
}

func newAuthService() AuthService {
	return NewAuthService(newFakeUserRepo(), utils.NewJWTUtil("test-secret-key", 1))
}

func TestRegister_FirstUserBecomesAdmin(t *testing.T) {
	svc := newAuthService()
	ctx := context.Background()

	user, token, err := svc.Register(ctx, "Alice", "alice@city.gov", "password123")
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.True(t, user.IsAdmin, "the first registered account should be the administrator")
	assert.NotEmpty(t, token)
	assert.NotEqual(t, "password123", user.PasswordHash, "password must be stored hashed")
}

func TestRegister_SecondUserIsAgent(t *testing.T) {
	svc := newAuthService()
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "Alice", "alice@city.gov", "password123")
	require.NoError(t, err)

	user, token, err := svc.Register(ctx, "Bob", "bob@city.gov", "password456")
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.False(t, user.IsAdmin, "accounts after the first must not get admin")
	assert.NotEmpty(t, token)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := newAuthService()
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "Alice", "alice@city.gov", "password123")
	require.NoError(t, err)

	user, token, err := svc.Register(ctx, "Other Alice", "alice@city.gov", "different-pass")
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
	assert.Nil(t, user)
	assert.Empty(t, token)
}

func TestLogin_Success(t *testing.T) {
	svc := newAuthService()
	ctx := context.Background()

	registered, _, err := svc.Register(ctx, "Alice", "alice@city.gov", "password123")
	require.NoError(t, err)

	user, token, err := svc.Login(ctx, "alice@city.gov", "password123")
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.Equal(t, registered.ID, user.ID)
	assert.True(t, user.IsAdmin)
	assert.NotEmpty(t, token)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc := newAuthService()
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "Alice", "alice@city.gov", "password123")
	require.NoError(t, err)

	user, token, err := svc.Login(ctx, "alice@city.gov", "not-the-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Nil(t, user)
	assert.Empty(t, token)
}

func TestLogin_UnknownEmail(t *testing.T) {
	svc := newAuthService()
	ctx := context.Background()

	user, token, err := svc.Login(ctx, "nobody@city.gov", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Nil(t, user)
	assert.Empty(t, token)
}
