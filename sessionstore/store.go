package sessionstore

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-holocrypt"
)

// DefaultRefreshMargin refreshes tokens slightly before they expire
const DefaultRefreshMargin = 10 * time.Second

// Backend is the remote half of a session store: it talks to the service
// that owns accounts and tokens. Backends keep no per client state.
type Backend interface {
	SignIn(ctx context.Context, email, password string) (*holocrypt.Session, error)
	SignUp(ctx context.Context, email, password string) (*holocrypt.User, error)
	Refresh(ctx context.Context, refreshToken string) (*holocrypt.Session, error)
	SignOut(ctx context.Context, session *holocrypt.Session) error
}

// ConfigChecker is implemented by backends that can run degraded. A non
// nil ConfigError makes every store call fail fast without a round trip.
type ConfigChecker interface {
	ConfigError() error
}

// ManagerConfig holds the options shared by the stores of a Manager
type ManagerConfig struct {
	Backend Backend
	// Storage defaults to an in-memory storage
	Storage       TokenStorage
	Logger        holocrypt.Logger
	RefreshMargin time.Duration
	Now           func() time.Time
}

// Manager builds one Store per client scope on top of a Backend. Stores
// share the token storage and refresh coordination.
type Manager struct {
	backend    Backend
	storage    TokenStorage
	logger     holocrypt.Logger
	margin     time.Duration
	now        func() time.Time
	refreshing singleflight.Group
}

var _ holocrypt.StoreFactory = (*Manager)(nil)

// NewManager applies defaults to cfg. It panics without a backend.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Backend == nil {
		panic("sessionstore: manager requires a backend")
	}

	m := &Manager{
		backend: cfg.Backend,
		storage: cfg.Storage,
		logger:  cfg.Logger,
		margin:  cfg.RefreshMargin,
		now:     cfg.Now,
	}
	if m.storage == nil {
		m.storage = NewMemoryStorage()
	}
	if m.logger == nil {
		m.logger = holocrypt.NopLogger{}
	}
	if m.margin <= 0 {
		m.margin = DefaultRefreshMargin
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// New implements holocrypt.StoreFactory
func (m *Manager) New(clientID string) (holocrypt.SessionStore, error) {
	if clientID == "" {
		return nil, fmt.Errorf("sessionstore: empty client id")
	}
	return &Store{
		manager:  m,
		key:      clientID,
		notifier: NewNotifier(),
	}, nil
}

// Storage returns the token storage sessions are kept in
func (m *Manager) Storage() TokenStorage {
	return m.storage
}

func (m *Manager) configError() error {
	if c, ok := m.backend.(ConfigChecker); ok {
		return c.ConfigError()
	}
	return nil
}

// Store is the session store handle of one client scope
type Store struct {
	manager  *Manager
	key      string
	notifier *Notifier
}

var _ holocrypt.SessionStore = (*Store)(nil)

// GetSession returns the stored session, refreshing it when the access
// token expired. A refresh the backend rejects signs the client out.
func (s *Store) GetSession(ctx context.Context) (*holocrypt.Session, error) {
	m := s.manager
	if m.configError() != nil {
		return nil, nil
	}

	current, err := m.storage.Load(ctx, s.key)
	if err != nil {
		return nil, holocrypt.NewTransientError("Unable to read the stored session", err)
	}
	if current == nil {
		return nil, nil
	}

	if !current.Expired(m.now(), m.margin) {
		return current, nil
	}

	v, err, _ := m.refreshing.Do(s.key, func() (any, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		if holocrypt.IsKind(err, holocrypt.KindAuthentication) {
			return nil, nil
		}
		return nil, err
	}

	session, _ := v.(*holocrypt.Session)
	return session, nil
}

func (s *Store) refresh(ctx context.Context) (*holocrypt.Session, error) {
	m := s.manager

	// a concurrent caller may have refreshed or cleared it already
	latest, err := m.storage.Load(ctx, s.key)
	if err != nil {
		return nil, holocrypt.NewTransientError("Unable to read the stored session", err)
	}
	if latest == nil {
		return nil, nil
	}
	if !latest.Expired(m.now(), m.margin) {
		return latest, nil
	}

	session, err := m.backend.Refresh(ctx, latest.RefreshToken)
	if err != nil {
		m.logger.Warn("session refresh failed", "client_id", s.key, "kind", holocrypt.KindOf(err), "error", err)
		s.clear(ctx)
		s.notifier.Emit(holocrypt.SessionEvent{Type: holocrypt.EventSignedOut})
		return nil, err
	}

	if session.User == nil {
		session.User = latest.User
	}

	if err := m.storage.Save(ctx, s.key, session); err != nil {
		return nil, holocrypt.NewTransientError("Unable to store the session", err)
	}

	m.logger.Debug("session refreshed", "client_id", s.key)
	s.notifier.Emit(holocrypt.SessionEvent{Type: holocrypt.EventTokenRefreshed, Session: session})
	return session, nil
}

// SignIn exchanges credentials for a session, stores it and emits
// SIGNED_IN before returning.
func (s *Store) SignIn(ctx context.Context, email, password string) (*holocrypt.AuthResponse, error) {
	m := s.manager
	if err := m.configError(); err != nil {
		return nil, err
	}

	session, err := m.backend.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if err := m.storage.Save(ctx, s.key, session); err != nil {
		return nil, holocrypt.NewTransientError("Unable to store the session", err)
	}

	s.notifier.Emit(holocrypt.SessionEvent{Type: holocrypt.EventSignedIn, Session: session})
	return &holocrypt.AuthResponse{User: session.User, Session: session}, nil
}

// SignUp registers an account. It never signs the client in, even when the
// backend confirms accounts automatically.
func (s *Store) SignUp(ctx context.Context, email, password string) (*holocrypt.AuthResponse, error) {
	m := s.manager
	if err := m.configError(); err != nil {
		return nil, err
	}

	user, err := m.backend.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return &holocrypt.AuthResponse{User: user}, nil
}

// SignOut revokes the session remotely and always forgets it locally
func (s *Store) SignOut(ctx context.Context) error {
	m := s.manager
	if m.configError() != nil {
		return nil
	}

	current, err := m.storage.Load(ctx, s.key)
	if err != nil {
		return holocrypt.NewTransientError("Unable to read the stored session", err)
	}
	if current == nil {
		return nil
	}

	remoteErr := m.backend.SignOut(ctx, current)

	s.clear(ctx)
	s.notifier.Emit(holocrypt.SessionEvent{Type: holocrypt.EventSignedOut})
	return remoteErr
}

func (s *Store) OnSessionChange(fn func(holocrypt.SessionEvent)) func() {
	return s.notifier.Subscribe(fn)
}

func (s *Store) clear(ctx context.Context) {
	if err := s.manager.storage.Delete(context.WithoutCancel(ctx), s.key); err != nil {
		s.manager.logger.Warn("unable to delete stored session", "client_id", s.key, "error", err)
	}
}
