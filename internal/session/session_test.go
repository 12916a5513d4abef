package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unigo-console/internal/api"
	"unigo-console/internal/db"
	"unigo-console/internal/model"
)

type fakeAPI struct {
	profile    *model.User
	profileErr error
	loginErr   error
	token      string
	calls      int
}

func (f *fakeAPI) Login(ctx context.Context, creds model.Credentials) (*model.AuthResponse, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &model.AuthResponse{Token: f.token, User: model.User{ID: 1, Email: creds.Email, Role: model.RoleAdmin}}, nil
}

func (f *fakeAPI) Register(ctx context.Context, req model.RegisterRequest) (*model.AuthResponse, error) {
	return &model.AuthResponse{Token: f.token, User: model.User{ID: 2, Email: req.Email, Role: req.Role}}, nil
}

func (f *fakeAPI) Profile(ctx context.Context) (*model.User, error) {
	f.calls++
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profile, nil
}

func (f *fakeAPI) UpdateProfile(ctx context.Context, upd model.ProfileUpdate) (*model.User, error) {
	u := *f.profile
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	return &u, nil
}

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)})
	s, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func TestRestoreWithoutToken(t *testing.T) {
	fa := &fakeAPI{}
	p := NewProvider(fa, NewCredentials(NewMemoryStore(), ""), nil)
	assert.True(t, p.Loading())

	require.NoError(t, p.Restore(context.Background()))
	assert.False(t, p.Loading())
	assert.Nil(t, p.User())
	assert.Equal(t, 0, fa.calls)
	assert.Empty(t, p.Header())
}

func TestRestoreFetchesProfile(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), DefaultKey, "tok"))
	fa := &fakeAPI{profile: &model.User{ID: 7, FirstName: "Awa", Role: model.RoleAdmin}}
	p := NewProvider(fa, NewCredentials(store, ""), nil)

	require.NoError(t, p.Restore(context.Background()))
	require.NotNil(t, p.User())
	assert.Equal(t, 7, p.User().ID)
	assert.Equal(t, "Bearer tok", p.Header())
}

func TestUnauthorizedProfileClearsSession(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), DefaultKey, "expired"))
	fa := &fakeAPI{profileErr: &api.Error{StatusCode: 401, Message: "Token invalide"}}
	p := NewProvider(fa, NewCredentials(store, ""), nil)

	assert.Error(t, p.Restore(context.Background()))
	assert.False(t, p.Loading())
	assert.Empty(t, p.Token())
	stored, _ := store.Load(context.Background(), DefaultKey)
	assert.Empty(t, stored)
}

func TestNetworkFailureKeepsToken(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), DefaultKey, "tok"))
	fa := &fakeAPI{profileErr: &api.NetworkError{Op: "GET", Err: errors.New("refused")}}
	p := NewProvider(fa, NewCredentials(store, ""), nil)

	assert.Error(t, p.Restore(context.Background()))
	assert.Equal(t, "tok", p.Token())
	assert.Nil(t, p.User())
}

func TestLoginPersistsAndLogoutClears(t *testing.T) {
	store := NewMemoryStore()
	fa := &fakeAPI{token: "fresh"}
	p := NewProvider(fa, NewCredentials(store, "admin"), nil)

	u, err := p.Login(context.Background(), model.Credentials{Email: "a@unigo.sn", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "a@unigo.sn", u.Email)
	stored, _ := store.Load(context.Background(), "admin")
	assert.Equal(t, "fresh", stored)

	require.NoError(t, p.Logout(context.Background()))
	assert.Nil(t, p.User())
	stored, _ = store.Load(context.Background(), "admin")
	assert.Empty(t, stored)
}

func TestLoginFailureLeavesSignedOut(t *testing.T) {
	fa := &fakeAPI{loginErr: &api.Error{StatusCode: 401, Message: "Identifiants invalides"}}
	p := NewProvider(fa, NewCredentials(NewMemoryStore(), ""), nil)

	_, err := p.Login(context.Background(), model.Credentials{})
	assert.Equal(t, "Identifiants invalides", api.UserMessage(err))
	assert.Nil(t, p.User())
}

func TestUpdateProfileRequiresSession(t *testing.T) {
	p := NewProvider(&fakeAPI{}, NewCredentials(NewMemoryStore(), ""), nil)
	_, err := p.UpdateProfile(context.Background(), model.ProfileUpdate{})
	assert.Equal(t, ErrNoSession, err)
}

func TestExpiresAt(t *testing.T) {
	exp := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	creds := NewCredentials(NewMemoryStore(), "")
	p := NewProvider(&fakeAPI{}, creds, nil)

	_, ok := p.ExpiresAt()
	assert.False(t, ok)

	require.NoError(t, creds.Save(context.Background(), signed(t, exp)))
	got, ok := p.ExpiresAt()
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	require.NoError(t, creds.Save(context.Background(), "not-a-jwt"))
	_, ok = p.ExpiresAt()
	assert.False(t, ok)
}

func testStore(t *testing.T, store TokenStore) {
	ctx := context.Background()
	key := "test-" + t.Name()

	tok, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, tok)

	require.NoError(t, store.Save(ctx, key, "one"))
	require.NoError(t, store.Save(ctx, key, "two"))
	tok, err = store.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "two", tok)

	require.NoError(t, store.Clear(ctx, key))
	tok, err = store.Load(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("UNIGO_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("UNIGO_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	testStore(t, NewRedisStore(rdb))
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("UNIGO_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("UNIGO_TEST_POSTGRES_DSN not set")
	}
	database, err := db.NewDatabase(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.AutoMigrate(context.Background()))
	testStore(t, NewPostgresStore(database))
}
