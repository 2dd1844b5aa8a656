package holocrypt

import (
	"context"
	"strings"
	"time"
)

// ActivityEventType names an account action as "<action>.<outcome>"
type ActivityEventType string

const (
	ActivityEventLoginSuccess   ActivityEventType = "login.succeeded"
	ActivityEventLoginFailure   ActivityEventType = "login.failed"
	ActivityEventLoginThrottled ActivityEventType = "login.throttled"
	ActivityEventSignUpSuccess  ActivityEventType = "signup.succeeded"
	ActivityEventSignUpFailure  ActivityEventType = "signup.failed"
	ActivityEventSignOut        ActivityEventType = "logout.succeeded"
)

// Action is the part before the last dot, "login" for login.failed
func (t ActivityEventType) Action() string {
	s := string(t)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

// Outcome is the part after the last dot, empty when there is none
func (t ActivityEventType) Outcome() string {
	s := string(t)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return ""
}

// ActivityEvent is what the auth controller reports after each form
// submission. Email is the submitted address, never verified.
type ActivityEvent struct {
	EventType  ActivityEventType
	ClientID   string
	UserID     string
	Email      string
	Kind       ErrorKind
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink receives activity events. Errors are logged by the caller and
// never reach the user.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to ActivitySink. A nil func records
// nothing.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

var discardActivity ActivitySink = ActivitySinkFunc(func(context.Context, ActivityEvent) error {
	return nil
})

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return discardActivity
	}
	return s
}

func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := sink.Record(ctx, event); err != nil {
		logger.Error("activity sink failed", "event", event.EventType, "error", err)
	}
}
