package sessionstore

import (
	"context"
	"sync"

	"github.com/goliatone/go-holocrypt"
)

// TokenStorage persists the session of one client scope under a key.
// Load returns nil without error when nothing is stored.
type TokenStorage interface {
	Load(ctx context.Context, key string) (*holocrypt.Session, error)
	Save(ctx context.Context, key string, session *holocrypt.Session) error
	Delete(ctx context.Context, key string) error
}

// MemoryStorage keeps sessions in process memory
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string]holocrypt.Session
}

var _ TokenStorage = (*MemoryStorage)(nil)

// NewMemoryStorage returns an empty MemoryStorage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: map[string]holocrypt.Session{}}
}

func (m *MemoryStorage) Load(_ context.Context, key string) (*holocrypt.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.items[key]
	if !ok {
		return nil, nil
	}
	return cloneSession(&s), nil
}

func (m *MemoryStorage) Save(_ context.Context, key string, session *holocrypt.Session) error {
	if session == nil {
		return m.Delete(context.Background(), key)
	}

	m.mu.Lock()
	m.items[key] = *cloneSession(session)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

func cloneSession(s *holocrypt.Session) *holocrypt.Session {
	out := *s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	return &out
}
