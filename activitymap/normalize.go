package activitymap

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-holocrypt"
)

const (
	// MetadataKeyClientID stores the client scope that produced the event.
	MetadataKeyClientID = "client_id"
	// MetadataKeyKind stores the error kind of failed actions.
	MetadataKeyKind = "kind"
	// MetadataKeyEmail stores the masked email submitted with the form.
	MetadataKeyEmail = "email"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "session"
	defaultActorID    = "anonymous"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	Outcome    string         `json:"outcome,omitempty"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(holocrypt.ActivityEvent) string
}

// Normalize converts a holocrypt.ActivityEvent into a generic normalized shape.
// The actor is the signed in user when known, the client scope otherwise.
func Normalize(event holocrypt.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	clientActor := ""
	if id := strings.TrimSpace(event.ClientID); id != "" {
		clientActor = "client:" + id
	}

	actorID := firstNonEmpty(
		strings.TrimSpace(event.UserID),
		clientActor,
		strings.TrimSpace(options.actorFallback),
	)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		Outcome:    event.EventType.Outcome(),
		ObjectType: strings.TrimSpace(options.objectType),
		ObjectID:   resolveObjectID(event, options.objectIDResolver),
		Channel:    strings.TrimSpace(options.channel),
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the default channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the default object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object-id extraction from ActivityEvent.
func WithObjectIDResolver(resolver func(holocrypt.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the actor id used when neither user nor client is known.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// Sink returns an ActivitySink writing normalized records to logger
func Sink(logger holocrypt.Logger, opts ...Option) holocrypt.ActivitySink {
	if logger == nil {
		logger = holocrypt.NopLogger{}
	}
	return holocrypt.ActivitySinkFunc(func(_ context.Context, event holocrypt.ActivityEvent) error {
		n := Normalize(event, opts...)
		args := []any{
			"actor_id", n.ActorID,
			"channel", n.Channel,
			"object_type", n.ObjectType,
			"occurred_at", n.OccurredAt,
		}
		if n.Outcome != "" {
			args = append(args, "outcome", n.Outcome)
		}
		if n.ObjectID != "" {
			args = append(args, "object_id", n.ObjectID)
		}
		if len(n.Metadata) > 0 {
			args = append(args, "metadata", n.Metadata)
		}
		logger.Info(n.Verb, args...)
		return nil
	})
}

// MaskEmail keeps the first character of the local part and the domain
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return ""
	}
	return email[:1] + "***" + email[at:]
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
}

func resolveObjectID(event holocrypt.ActivityEvent, resolver func(holocrypt.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	return strings.TrimSpace(event.ClientID)
}

func normalizeMetadata(event holocrypt.ActivityEvent) map[string]any {
	metadata := cloneMap(event.Metadata)

	set := func(key string, value any) {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[key]; !exists {
			metadata[key] = value
		}
	}

	if id := strings.TrimSpace(event.ClientID); id != "" {
		set(MetadataKeyClientID, id)
	}
	if event.Kind != holocrypt.KindUnknown {
		set(MetadataKeyKind, string(event.Kind))
	}
	if masked := MaskEmail(event.Email); masked != "" {
		set(MetadataKeyEmail, masked)
	}

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
