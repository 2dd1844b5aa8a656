package holocrypt

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Provider owns the AuthState of one client scope. It is the only writer of
// that state; consumers read snapshots through State or Watch.
type Provider struct {
	store  SessionStore
	logger Logger
	now    func() time.Time

	mu          sync.Mutex
	state       AuthState
	resolved    bool
	events      uint64
	closed      bool
	loaded      chan struct{}
	unsubscribe func()
	cancel      context.CancelFunc
	watchers    map[uint64]func(AuthState)
	nextWatcher uint64

	mountOnce sync.Once
	closeOnce sync.Once
}

// ProviderOption configures a Provider
type ProviderOption func(*Provider)

// WithProviderLogger sets the provider logger
func WithProviderLogger(l Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = normalizeLogger(l)
	}
}

// WithProviderClock overrides time.Now for session expiry checks
func WithProviderClock(now func() time.Time) ProviderOption {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// NewProvider returns a provider in the loading state. Call Mount to start
// resolving the session.
func NewProvider(store SessionStore, opts ...ProviderOption) *Provider {
	p := &Provider{
		store:    store,
		logger:   defLogger{},
		now:      time.Now,
		state:    AuthState{Loading: true},
		loaded:   make(chan struct{}),
		watchers: map[uint64]func(AuthState){},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Mount subscribes to session changes and resolves the current session in
// the background. Subsequent calls are no-ops. The subscription lives until
// Close.
func (p *Provider) Mount(ctx context.Context) {
	p.mountOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			cancel()
			return
		}
		p.cancel = cancel
		p.mu.Unlock()

		unsubscribe := p.store.OnSessionChange(p.handleEvent)

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			unsubscribe()
			return
		}
		p.unsubscribe = unsubscribe
		p.mu.Unlock()

		go p.resolveInitial(ctx)
	})
}

func (p *Provider) resolveInitial(ctx context.Context) {
	session, err := p.store.GetSession(ctx)
	if err != nil {
		p.logger.Warn("initial session check failed", "error", err)
		session = nil
	}

	p.mu.Lock()
	if p.closed || p.resolved {
		p.mu.Unlock()
		return
	}
	// an event delivered meanwhile is newer than this check
	if p.events == 0 {
		p.state.Session = session
	}
	p.finishLoadingLocked()
	snapshot, watchers := p.state, p.watcherListLocked()
	p.mu.Unlock()

	notify(watchers, snapshot)
}

func (p *Provider) handleEvent(ev SessionEvent) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.events++
	if ev.Type == EventSignedOut {
		p.state.Session = nil
	} else {
		p.state.Session = ev.Session
	}
	if !p.resolved {
		p.finishLoadingLocked()
	}
	snapshot, watchers := p.state, p.watcherListLocked()
	p.mu.Unlock()

	p.logger.Debug("session changed", "event", ev.Type, "authenticated", snapshot.Session != nil)
	notify(watchers, snapshot)
}

func (p *Provider) finishLoadingLocked() {
	p.resolved = true
	p.state.Loading = false
	close(p.loaded)
}

// State returns the current snapshot
func (p *Provider) State() AuthState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Revalidate asks the store for the session again once the cached one has
// expired. The store refreshes or drops it and reports that through a session
// event. An event that arrives while the store is working wins over the
// returned value.
func (p *Provider) Revalidate(ctx context.Context) AuthState {
	p.mu.Lock()
	if p.closed || !p.resolved || p.state.Session == nil || !p.state.Session.Expired(p.now(), 0) {
		state := p.state
		p.mu.Unlock()
		return state
	}
	seen := p.events
	p.mu.Unlock()

	session, err := p.store.GetSession(ctx)
	if err != nil {
		p.logger.Warn("session revalidation failed", "error", err)
		session = nil
	}

	p.mu.Lock()
	if p.closed || p.events != seen {
		state := p.state
		p.mu.Unlock()
		return state
	}
	p.state.Session = session
	snapshot, watchers := p.state, p.watcherListLocked()
	p.mu.Unlock()

	notify(watchers, snapshot)
	return snapshot
}

// Loaded is closed once the first session resolution happened
func (p *Provider) Loaded() <-chan struct{} {
	return p.loaded
}

// WaitLoaded blocks until the state resolved or ctx is done and reports
// whether the state resolved.
func (p *Provider) WaitLoaded(ctx context.Context) bool {
	select {
	case <-p.loaded:
		return true
	case <-ctx.Done():
		return false
	}
}

// Watch registers fn for every state change and returns its cancel handle
func (p *Provider) Watch(fn func(AuthState)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextWatcher
	p.nextWatcher++
	p.watchers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.watchers, id)
			p.mu.Unlock()
		})
	}
}

// SignIn delegates to the session store. The state changes through the
// session event the store emits, not through the return value.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*AuthResponse, error) {
	return p.store.SignIn(ctx, email, password)
}

// SignUp delegates to the session store. A successful sign up does not
// establish a session.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*AuthResponse, error) {
	return p.store.SignUp(ctx, email, password)
}

// SignOut asks the store to end the session and clears the local user even
// when the store call fails. The store error is returned for logging only.
func (p *Provider) SignOut(ctx context.Context) error {
	err := p.store.SignOut(ctx)
	if err != nil {
		p.logger.Warn("sign out failed remotely, clearing local session", "error", err)
	}

	p.mu.Lock()
	if p.closed || (p.state.Session == nil && p.resolved) {
		p.mu.Unlock()
		return err
	}
	p.state.Session = nil
	if !p.resolved {
		p.finishLoadingLocked()
	}
	snapshot, watchers := p.state, p.watcherListLocked()
	p.mu.Unlock()

	notify(watchers, snapshot)
	return err
}

// Close releases the session subscription. Results that arrive afterwards
// are dropped.
func (p *Provider) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		unsubscribe, cancel := p.unsubscribe, p.cancel
		p.unsubscribe, p.cancel = nil, nil
		p.watchers = map[uint64]func(AuthState){}
		p.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
		if cancel != nil {
			cancel()
		}
	})
}

// Closed reports whether Close was called
func (p *Provider) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Provider) watcherListLocked() []func(AuthState) {
	if len(p.watchers) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(p.watchers))
	for id := range p.watchers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]func(AuthState), 0, len(ids))
	for _, id := range ids {
		out = append(out, p.watchers[id])
	}
	return out
}

func notify(watchers []func(AuthState), state AuthState) {
	for _, fn := range watchers {
		fn(state)
	}
}
