package activitymap_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-holocrypt"
	"github.com/goliatone/go-holocrypt/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := holocrypt.ActivityEvent{
		EventType: holocrypt.ActivityEventLoginFailure,
		ClientID:  "c-42",
		Email:     "neo@example.com",
		Kind:      holocrypt.KindAuthentication,
		Metadata: map[string]any{
			"remaining": 2,
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "client:c-42" {
		t.Fatalf("expected actor_id client:c-42, got %q", out.ActorID)
	}
	if out.Verb != string(holocrypt.ActivityEventLoginFailure) {
		t.Fatalf("expected verb %q, got %q", holocrypt.ActivityEventLoginFailure, out.Verb)
	}
	if out.ObjectType != "session" {
		t.Fatalf("expected object_type session, got %q", out.ObjectType)
	}
	if out.ObjectID != "c-42" {
		t.Fatalf("expected object_id c-42, got %q", out.ObjectID)
	}
	if out.Outcome != "failed" {
		t.Fatalf("expected outcome failed, got %q", out.Outcome)
	}
	if out.Channel != "auth" {
		t.Fatalf("expected channel auth, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}

	if out.Metadata["remaining"] != 2 {
		t.Fatalf("expected metadata remaining 2, got %#v", out.Metadata["remaining"])
	}
	if out.Metadata[activitymap.MetadataKeyKind] != "authentication" {
		t.Fatalf("expected metadata kind authentication, got %#v", out.Metadata[activitymap.MetadataKeyKind])
	}
	if out.Metadata[activitymap.MetadataKeyEmail] != "n***@example.com" {
		t.Fatalf("expected masked email, got %#v", out.Metadata[activitymap.MetadataKeyEmail])
	}
}

func TestNormalizePrefersUser(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(holocrypt.ActivityEvent{
		EventType: holocrypt.ActivityEventLoginSuccess,
		ClientID:  "c-1",
		UserID:    "user-7",
	})

	if out.ActorID != "user-7" {
		t.Fatalf("expected actor_id user-7, got %q", out.ActorID)
	}
	if out.OccurredAt.IsZero() {
		t.Fatal("expected occurred_at to default to now")
	}
}

func TestNormalizeOptions(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(
		holocrypt.ActivityEvent{EventType: holocrypt.ActivityEventSignOut},
		activitymap.WithDefaultChannel(" web "),
		activitymap.WithDefaultObjectType("account"),
		activitymap.WithActorFallback("system"),
		activitymap.WithObjectIDResolver(func(holocrypt.ActivityEvent) string { return " obj-1 " }),
	)

	if out.ActorID != "system" {
		t.Fatalf("expected actor fallback system, got %q", out.ActorID)
	}
	if out.Channel != "web" || out.ObjectType != "account" || out.ObjectID != "obj-1" {
		t.Fatalf("unexpected options result %#v", out)
	}
	if out.Metadata != nil {
		t.Fatalf("expected nil metadata, got %#v", out.Metadata)
	}
}

func TestNormalizeKeepsCallerMetadata(t *testing.T) {
	t.Parallel()

	in := map[string]any{activitymap.MetadataKeyClientID: "override"}
	out := activitymap.Normalize(holocrypt.ActivityEvent{ClientID: "c-1", Metadata: in})

	if out.Metadata[activitymap.MetadataKeyClientID] != "override" {
		t.Fatalf("expected caller metadata to win, got %#v", out.Metadata)
	}
	out.Metadata["extra"] = true
	if _, leaked := in["extra"]; leaked {
		t.Fatal("normalize must not mutate the input metadata")
	}
}

func TestMaskEmail(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"neo@example.com": "n***@example.com",
		" a@b.co ":        "a***@b.co",
		"@example.com":    "",
		"not-an-email":    "",
		"":                "",
	}
	for in, want := range cases {
		if got := activitymap.MaskEmail(in); got != want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

type recordingLogger struct {
	holocrypt.NopLogger
	msg  string
	args []any
}

func (l *recordingLogger) Info(msg string, args ...any) {
	l.msg, l.args = msg, args
}

func TestSinkLogsNormalized(t *testing.T) {
	t.Parallel()

	logger := &recordingLogger{}
	sink := activitymap.Sink(logger)

	err := sink.Record(context.Background(), holocrypt.ActivityEvent{
		EventType: holocrypt.ActivityEventSignUpSuccess,
		ClientID:  "c-9",
		UserID:    "user-9",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger.msg != string(holocrypt.ActivityEventSignUpSuccess) {
		t.Fatalf("expected verb as message, got %q", logger.msg)
	}
	if len(logger.args) < 2 || logger.args[0] != "actor_id" || logger.args[1] != "user-9" {
		t.Fatalf("expected actor_id user-9 first, got %#v", logger.args)
	}
}
