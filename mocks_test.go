package holocrypt

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockSessionStore struct {
	mock.Mock

	mu       sync.Mutex
	handlers []func(SessionEvent)
}

func (m *MockSessionStore) GetSession(ctx context.Context) (*Session, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*Session)
	return s, args.Error(1)
}

func (m *MockSessionStore) SignIn(ctx context.Context, email, password string) (*AuthResponse, error) {
	args := m.Called(ctx, email, password)
	r, _ := args.Get(0).(*AuthResponse)
	return r, args.Error(1)
}

func (m *MockSessionStore) SignUp(ctx context.Context, email, password string) (*AuthResponse, error) {
	args := m.Called(ctx, email, password)
	r, _ := args.Get(0).(*AuthResponse)
	return r, args.Error(1)
}

func (m *MockSessionStore) SignOut(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockSessionStore) OnSessionChange(fn func(SessionEvent)) func() {
	m.mu.Lock()
	m.handlers = append(m.handlers, fn)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.handlers = nil
		m.mu.Unlock()
	}
}

func (m *MockSessionStore) Emit(ev SessionEvent) {
	m.mu.Lock()
	handlers := append([]func(SessionEvent){}, m.handlers...)
	m.mu.Unlock()
	for _, fn := range handlers {
		fn(ev)
	}
}

func (m *MockSessionStore) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

// fakeStore is a tiny in memory session service shared by every client
// built from fakeFactory. Sign in emits before returning, like the real
// adapters.
type fakeStore struct {
	backend *fakeBackend

	mu       sync.Mutex
	session  *Session
	handlers []func(SessionEvent)
}

type fakeBackend struct {
	mu        sync.Mutex
	users     map[string]string
	signInErr error
	signUpErr error
	signOuts  int
	// block delays GetSession until closed, nil never blocks
	block chan struct{}
	// now decides when a stored session expired, time.Now when nil
	now func() time.Time
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{users: map[string]string{"neo@example.com": "secret1"}}
}

func (b *fakeBackend) factory() StoreFactory {
	return StoreFactoryFunc(func(clientID string) (SessionStore, error) {
		return &fakeStore{backend: b}, nil
	})
}

func (f *fakeStore) GetSession(ctx context.Context) (*Session, error) {
	if block := f.backend.block; block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	now := time.Now
	if f.backend.now != nil {
		now = f.backend.now
	}

	f.mu.Lock()
	session := f.session
	expired := session != nil && session.Expired(now(), 0)
	if expired {
		f.session = nil
	}
	f.mu.Unlock()

	// no refresh token exchange here, an expired session just ends
	if expired {
		f.emit(SessionEvent{Type: EventSignedOut})
		return nil, nil
	}
	return session, nil
}

func (f *fakeStore) SignIn(_ context.Context, email, password string) (*AuthResponse, error) {
	b := f.backend
	b.mu.Lock()
	err := b.signInErr
	stored, ok := b.users[email]
	b.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok || stored != password {
		return nil, NewAuthenticationError("Invalid login credentials", nil)
	}

	created := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	session := &Session{
		AccessToken:  "access-" + email,
		RefreshToken: "refresh-" + email,
		ExpiresAt:    time.Now().Add(time.Hour),
		User: &User{
			ID:        "3f2a9c1e-7d4b-4e8a-9b6c-1a2b3c4d5e6f",
			Email:     email,
			CreatedAt: &created,
		},
	}

	f.mu.Lock()
	f.session = session
	f.mu.Unlock()
	f.emit(SessionEvent{Type: EventSignedIn, Session: session})
	return &AuthResponse{User: session.User, Session: session}, nil
}

func (f *fakeStore) SignUp(_ context.Context, email, password string) (*AuthResponse, error) {
	b := f.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.signUpErr != nil {
		return nil, b.signUpErr
	}
	if _, exists := b.users[email]; exists {
		return nil, NewAuthenticationError("User already registered", nil)
	}
	b.users[email] = password
	return &AuthResponse{User: &User{ID: "new-user", Email: email}}, nil
}

func (f *fakeStore) SignOut(context.Context) error {
	f.backend.mu.Lock()
	f.backend.signOuts++
	f.backend.mu.Unlock()

	f.mu.Lock()
	had := f.session != nil
	f.session = nil
	f.mu.Unlock()
	if had {
		f.emit(SessionEvent{Type: EventSignedOut})
	}
	return nil
}

func (f *fakeStore) OnSessionChange(fn func(SessionEvent)) func() {
	f.mu.Lock()
	f.handlers = append(f.handlers, fn)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeStore) emit(ev SessionEvent) {
	f.mu.Lock()
	handlers := append([]func(SessionEvent){}, f.handlers...)
	f.mu.Unlock()
	for _, fn := range handlers {
		fn(ev)
	}
}
