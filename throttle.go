package holocrypt

import "sync"

// DefaultMaxLoginAttempts is the number of failed sign ins a login form accepts
const DefaultMaxLoginAttempts = 3

// LoginThrottle counts failed sign ins of one login form. It lives in
// memory, resets when the form is shown again and only shapes the UX; abuse
// prevention belongs to the session store.
type LoginThrottle struct {
	mu       sync.Mutex
	max      int
	attempts int
	form     FormLock
}

// NewLoginThrottle returns a throttle allowing max failed attempts
func NewLoginThrottle(max int) *LoginThrottle {
	if max <= 0 {
		max = DefaultMaxLoginAttempts
	}
	return &LoginThrottle{max: max}
}

// Begin claims the form for a submit. It fails when the attempts are used
// up or when another submit of the same form is still running.
func (t *LoginThrottle) Begin() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.attempts >= t.max {
		return NewTooManyAttemptsError(t.max)
	}
	return t.form.Acquire()
}

// End releases the claim taken by Begin
func (t *LoginThrottle) End() {
	t.form.Release()
}

// Fail records a rejected sign in and returns the remaining attempts
func (t *LoginThrottle) Fail() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.attempts < t.max {
		t.attempts++
	}
	return t.max - t.attempts
}

// Succeed resets the counter
func (t *LoginThrottle) Succeed() {
	t.Reset()
}

// Reset sets the counter back to zero
func (t *LoginThrottle) Reset() {
	t.mu.Lock()
	t.attempts = 0
	t.mu.Unlock()
}

// Attempts returns the failed attempts so far
func (t *LoginThrottle) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

// Max returns the configured limit
func (t *LoginThrottle) Max() int {
	return t.max
}

// Remaining returns max - attempts
func (t *LoginThrottle) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.max - t.attempts
}

// Exhausted reports whether the limit was reached
func (t *LoginThrottle) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts >= t.max
}

// FormLock is the disabled state of a form while its submit runs. The zero
// value is unlocked.
type FormLock struct {
	mu   sync.Mutex
	busy bool
}

// Acquire fails with a submit in flight error while another submit holds
// the lock.
func (l *FormLock) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.busy {
		return NewSubmitInFlightError()
	}
	l.busy = true
	return nil
}

// Release unlocks the form
func (l *FormLock) Release() {
	l.mu.Lock()
	l.busy = false
	l.mu.Unlock()
}
