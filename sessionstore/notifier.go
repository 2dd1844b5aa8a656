package sessionstore

import (
	"slices"
	"sync"

	"github.com/goliatone/go-holocrypt"
)

// Notifier fans session events out to subscribers. Events are delivered
// synchronously, one at a time, in the order Emit was called. Subscribers
// must not call Emit.
type Notifier struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]func(holocrypt.SessionEvent)

	deliver sync.Mutex
}

// NewNotifier returns a notifier without subscribers
func NewNotifier() *Notifier {
	return &Notifier{subs: map[uint64]func(holocrypt.SessionEvent){}}
}

// Subscribe registers fn. The returned handle is safe to call more than once.
func (n *Notifier) Subscribe(fn func(holocrypt.SessionEvent)) func() {
	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

// Emit delivers ev to every current subscriber in subscription order
func (n *Notifier) Emit(ev holocrypt.SessionEvent) {
	n.deliver.Lock()
	defer n.deliver.Unlock()

	for _, fn := range n.snapshot() {
		fn(ev)
	}
}

// Len returns the number of subscribers
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

func (n *Notifier) snapshot() []func(holocrypt.SessionEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ids := make([]uint64, 0, len(n.subs))
	for id := range n.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]func(holocrypt.SessionEvent), 0, len(ids))
	for _, id := range ids {
		out = append(out, n.subs[id])
	}
	return out
}
