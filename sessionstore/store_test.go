package sessionstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-holocrypt"
	"github.com/goliatone/go-holocrypt/sessionstore"
)

type mockBackend struct {
	mock.Mock
	configErr error
}

func (m *mockBackend) SignIn(ctx context.Context, email, password string) (*holocrypt.Session, error) {
	args := m.Called(ctx, email, password)
	s, _ := args.Get(0).(*holocrypt.Session)
	return s, args.Error(1)
}

func (m *mockBackend) SignUp(ctx context.Context, email, password string) (*holocrypt.User, error) {
	args := m.Called(ctx, email, password)
	u, _ := args.Get(0).(*holocrypt.User)
	return u, args.Error(1)
}

func (m *mockBackend) Refresh(ctx context.Context, refreshToken string) (*holocrypt.Session, error) {
	args := m.Called(ctx, refreshToken)
	s, _ := args.Get(0).(*holocrypt.Session)
	return s, args.Error(1)
}

func (m *mockBackend) SignOut(ctx context.Context, session *holocrypt.Session) error {
	return m.Called(ctx, session).Error(0)
}

func (m *mockBackend) ConfigError() error {
	return m.configErr
}

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newManager(backend *mockBackend) (*sessionstore.Manager, *sessionstore.MemoryStorage) {
	storage := sessionstore.NewMemoryStorage()
	return sessionstore.NewManager(sessionstore.ManagerConfig{
		Backend: backend,
		Storage: storage,
		Now:     func() time.Time { return epoch },
	}), storage
}

func session(access, refresh string, expires time.Time) *holocrypt.Session {
	return &holocrypt.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expires,
		User:         &holocrypt.User{ID: "u-1", Email: "neo@example.com"},
	}
}

func collect(store holocrypt.SessionStore) *[]holocrypt.SessionEventType {
	out := &[]holocrypt.SessionEventType{}
	store.OnSessionChange(func(ev holocrypt.SessionEvent) {
		*out = append(*out, ev.Type)
	})
	return out
}

func TestManagerDegradedSkipsBackend(t *testing.T) {
	backend := &mockBackend{configErr: holocrypt.NewConfigurationError("not configured", nil)}
	m, _ := newManager(backend)

	store, err := m.New("c1")
	require.NoError(t, err)

	_, err = store.SignIn(context.Background(), "neo@example.com", "secret1")
	assert.True(t, holocrypt.IsKind(err, holocrypt.KindConfiguration))

	_, err = store.SignUp(context.Background(), "neo@example.com", "secret1")
	assert.True(t, holocrypt.IsKind(err, holocrypt.KindConfiguration))

	s, err := store.GetSession(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, s)
	assert.NoError(t, store.SignOut(context.Background()))

	backend.AssertNotCalled(t, "SignIn", mock.Anything, mock.Anything, mock.Anything)
	backend.AssertNotCalled(t, "SignUp", mock.Anything, mock.Anything, mock.Anything)
}

func TestManagerRejectsEmptyClientID(t *testing.T) {
	m, _ := newManager(&mockBackend{})
	_, err := m.New("")
	assert.Error(t, err)
}

func TestStoreSignInEmitsBeforeReturn(t *testing.T) {
	backend := &mockBackend{}
	m, storage := newManager(backend)
	issued := session("a1", "r1", epoch.Add(time.Hour))
	backend.On("SignIn", mock.Anything, "neo@example.com", "secret1").Return(issued, nil)

	store, _ := m.New("c1")
	events := collect(store)

	res, err := store.SignIn(context.Background(), "neo@example.com", "secret1")
	require.NoError(t, err)
	assert.Same(t, issued, res.Session)
	assert.Equal(t, []holocrypt.SessionEventType{holocrypt.EventSignedIn}, *events)

	stored, err := storage.Load(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "a1", stored.AccessToken)
}

func TestStoreSignInFailureLeavesNoSession(t *testing.T) {
	backend := &mockBackend{}
	m, storage := newManager(backend)
	backend.On("SignIn", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, holocrypt.NewAuthenticationError("Invalid login credentials", nil))

	store, _ := m.New("c1")
	events := collect(store)

	_, err := store.SignIn(context.Background(), "neo@example.com", "nope")
	assert.True(t, holocrypt.IsKind(err, holocrypt.KindAuthentication))
	assert.Empty(t, *events)

	stored, _ := storage.Load(context.Background(), "c1")
	assert.Nil(t, stored)
}

func TestStoreRefreshKeepsUser(t *testing.T) {
	backend := &mockBackend{}
	m, storage := newManager(backend)
	require.NoError(t, storage.Save(context.Background(), "c1", session("a1", "r1", epoch.Add(-time.Minute))))

	refreshed := &holocrypt.Session{AccessToken: "a2", RefreshToken: "r2", ExpiresAt: epoch.Add(time.Hour)}
	backend.On("Refresh", mock.Anything, "r1").Return(refreshed, nil).Once()

	store, _ := m.New("c1")
	events := collect(store)

	s, err := store.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "a2", s.AccessToken)
	require.NotNil(t, s.User)
	assert.Equal(t, "u-1", s.User.ID)
	assert.Equal(t, []holocrypt.SessionEventType{holocrypt.EventTokenRefreshed}, *events)

	// fresh now, no second refresh
	s, err = store.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a2", s.AccessToken)
	backend.AssertExpectations(t)
}

func TestStoreTransientRefreshFailureSurfaces(t *testing.T) {
	backend := &mockBackend{}
	m, storage := newManager(backend)
	require.NoError(t, storage.Save(context.Background(), "c1", session("a1", "r1", epoch.Add(-time.Minute))))
	backend.On("Refresh", mock.Anything, "r1").Return(nil, holocrypt.NewTransientError("down", nil))

	store, _ := m.New("c1")
	events := collect(store)

	s, err := store.GetSession(context.Background())
	assert.Nil(t, s)
	assert.True(t, holocrypt.IsKind(err, holocrypt.KindTransient))
	assert.Equal(t, []holocrypt.SessionEventType{holocrypt.EventSignedOut}, *events)
}

func TestStoreSignOutWithoutSession(t *testing.T) {
	backend := &mockBackend{}
	m, _ := newManager(backend)

	store, _ := m.New("c1")
	events := collect(store)

	require.NoError(t, store.SignOut(context.Background()))
	assert.Empty(t, *events)
	backend.AssertNotCalled(t, "SignOut", mock.Anything, mock.Anything)
}

func TestStoreSignOutRemoteFailure(t *testing.T) {
	backend := &mockBackend{}
	m, storage := newManager(backend)
	require.NoError(t, storage.Save(context.Background(), "c1", session("a1", "r1", epoch.Add(time.Hour))))
	backend.On("SignOut", mock.Anything, mock.Anything).Return(holocrypt.NewTransientError("down", nil))

	store, _ := m.New("c1")
	events := collect(store)

	err := store.SignOut(context.Background())
	assert.True(t, holocrypt.IsKind(err, holocrypt.KindTransient))
	assert.Equal(t, []holocrypt.SessionEventType{holocrypt.EventSignedOut}, *events)

	stored, _ := storage.Load(context.Background(), "c1")
	assert.Nil(t, stored)
}

type movingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *movingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *movingClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// signedInProvider mounts a provider over a fresh store and signs it in
// with a session that expires a minute after epoch.
func signedInProvider(t *testing.T, backend *mockBackend, clock *movingClock) *holocrypt.Provider {
	t.Helper()
	m := sessionstore.NewManager(sessionstore.ManagerConfig{Backend: backend, Now: clock.Now})
	store, err := m.New("c1")
	require.NoError(t, err)

	backend.On("SignIn", mock.Anything, "neo@example.com", "secret1").
		Return(session("a1", "r1", epoch.Add(time.Minute)), nil).Once()

	p := holocrypt.NewProvider(store, holocrypt.WithProviderLogger(holocrypt.NopLogger{}), holocrypt.WithProviderClock(clock.Now))
	p.Mount(context.Background())
	t.Cleanup(p.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.True(t, p.WaitLoaded(ctx))

	_, err = p.SignIn(context.Background(), "neo@example.com", "secret1")
	require.NoError(t, err)
	require.True(t, p.State().Authenticated())
	return p
}

func TestProviderRefreshesExpiredSessionThroughStore(t *testing.T) {
	clock := &movingClock{now: epoch}
	backend := &mockBackend{}
	p := signedInProvider(t, backend, clock)

	refreshed := &holocrypt.Session{AccessToken: "a2", RefreshToken: "r2", ExpiresAt: epoch.Add(25 * time.Hour)}
	backend.On("Refresh", mock.Anything, "r1").Return(refreshed, nil).Once()

	clock.Advance(24 * time.Hour)

	state := p.Revalidate(context.Background())
	require.True(t, state.Authenticated())
	assert.Equal(t, "a2", state.Session.AccessToken)
	assert.Equal(t, "neo@example.com", state.User().Email)
	assert.Equal(t, holocrypt.GuardRender, holocrypt.Decide(state))
	backend.AssertExpectations(t)
}

func TestProviderDropsSessionWhenRefreshRejected(t *testing.T) {
	clock := &movingClock{now: epoch}
	backend := &mockBackend{}
	p := signedInProvider(t, backend, clock)

	backend.On("Refresh", mock.Anything, "r1").
		Return(nil, holocrypt.NewAuthenticationError("Invalid Refresh Token", nil)).Once()

	clock.Advance(24 * time.Hour)

	state := p.Revalidate(context.Background())
	assert.False(t, state.Authenticated())
	assert.Equal(t, holocrypt.GuardRedirect, holocrypt.Decide(state))
	backend.AssertNumberOfCalls(t, "Refresh", 1)
}
