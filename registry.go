package holocrypt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Client is the server side stand-in for one browser: its auth context,
// its login form throttle and the lock of its register form.
type Client struct {
	ID       string
	Auth     *Provider
	Throttle *LoginThrottle
	Signup   *FormLock

	lastSeen    atomic.Int64
	stopWatcher func()
}

// Touch marks the client as used at t
func (c *Client) Touch(t time.Time) {
	c.lastSeen.Store(t.UnixNano())
}

// LastSeen returns the last Touch time
func (c *Client) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

func (c *Client) close() {
	if c.stopWatcher != nil {
		c.stopWatcher()
	}
	c.Auth.Close()
}

// Registry creates, tracks and evicts client scopes. Build one per app
// instance; it is safe for concurrent use.
type Registry struct {
	factory     StoreFactory
	logger      Logger
	metrics     *Metrics
	ttl         time.Duration
	interval    time.Duration
	maxAttempts int
	maxClients  int
	now         func() time.Time

	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[string]*Client
	closed  bool
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithRegistryLogger sets the registry logger, shared with providers
func WithRegistryLogger(l Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = normalizeLogger(l)
	}
}

// WithRegistryMetrics sets the metrics sink
func WithRegistryMetrics(m *Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithClientTTL sets how long an idle client survives
func WithClientTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithSweepInterval sets how often Run evicts idle clients
func WithSweepInterval(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithMaxLoginAttempts sets the login throttle limit for new clients
func WithMaxLoginAttempts(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithMaxClients caps the live clients. When the cap is reached the least
// recently seen client is closed to make room. Zero means no cap.
func WithMaxClients(n int) RegistryOption {
	return func(r *Registry) {
		if n >= 0 {
			r.maxClients = n
		}
	}
}

// WithRegistryClock overrides time.Now
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry returns an empty registry building stores with factory
func NewRegistry(factory StoreFactory, opts ...RegistryOption) *Registry {
	base, cancel := context.WithCancel(context.Background())
	r := &Registry{
		factory:     factory,
		logger:      defLogger{},
		ttl:         30 * time.Minute,
		interval:    time.Minute,
		maxAttempts: DefaultMaxLoginAttempts,
		now:         time.Now,
		base:        base,
		cancel:      cancel,
		clients:     map[string]*Client{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Acquire returns the client for id, creating and mounting it when missing
func (r *Registry) Acquire(id string) (*Client, error) {
	now := r.now()

	var evicted *Client
	defer func() {
		if evicted != nil {
			evicted.close()
			r.logger.Debug("client scope evicted, registry full", "client_id", evicted.ID)
		}
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}

	if c, ok := r.clients[id]; ok {
		c.Touch(now)
		return c, nil
	}

	store, err := r.factory.New(id)
	if err != nil {
		return nil, fmt.Errorf("session store for client %s: %w", id, err)
	}

	if r.maxClients > 0 && len(r.clients) >= r.maxClients {
		evicted = r.leastRecentLocked()
		delete(r.clients, evicted.ID)
	}

	c := &Client{
		ID:       id,
		Auth:     NewProvider(store, WithProviderLogger(r.logger), WithProviderClock(r.now)),
		Throttle: NewLoginThrottle(r.maxAttempts),
		Signup:   &FormLock{},
	}
	c.Touch(now)
	c.stopWatcher = c.Auth.Watch(func(s AuthState) {
		r.metrics.stateChange(s)
	})
	c.Auth.Mount(r.base)

	r.clients[id] = c
	r.metrics.scopes(len(r.clients))
	r.logger.Debug("client scope created", "client_id", id)
	return c, nil
}

func (r *Registry) leastRecentLocked() *Client {
	var oldest *Client
	for _, c := range r.clients {
		if oldest == nil || c.LastSeen().Before(oldest.LastSeen()) {
			oldest = c
		}
	}
	return oldest
}

// Lookup returns an existing client without creating one
func (r *Registry) Lookup(id string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	return c, ok
}

// Release closes and forgets the client for id
func (r *Registry) Release(id string) {
	r.mu.Lock()
	c, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
		r.metrics.scopes(len(r.clients))
	}
	r.mu.Unlock()

	if ok {
		c.close()
	}
}

// Len returns the number of live clients
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Sweep closes clients idle since before now-ttl and returns how many
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.ttl)

	r.mu.Lock()
	var stale []*Client
	for id, c := range r.clients {
		if c.LastSeen().Before(cutoff) {
			stale = append(stale, c)
			delete(r.clients, id)
		}
	}
	r.metrics.scopes(len(r.clients))
	r.mu.Unlock()

	for _, c := range stale {
		c.close()
	}
	if len(stale) > 0 {
		r.logger.Debug("client scopes evicted", "count", len(stale))
	}
	return len(stale)
}

// Run sweeps idle clients until ctx is done, then closes the registry
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Close()
			return nil
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}

// Close closes every client. Acquire fails afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	clients := r.clients
	r.clients = map[string]*Client{}
	r.metrics.scopes(0)
	r.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	r.cancel()
}
