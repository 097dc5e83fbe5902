package activitymap_test

import (
	"testing"
	"time"

	auth "github.com/klasshub/go-lms-auth"
	"github.com/klasshub/go-lms-auth/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 2, 14, 8, 15, 0, 0, time.UTC)
	event := auth.ActivityEvent{
		EventType:  auth.ActivityEventUserStatusChanged,
		Actor:      auth.ActorRef{ID: "staff-7", Type: "admin"},
		UserID:     "student-314",
		FromStatus: auth.UserStatusActive,
		ToStatus:   auth.UserStatusSuspended,
		Metadata: map[string]any{
			"case": "HELPDESK-88",
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	fields := map[string]struct{ got, want string }{
		"actor_id":    {out.ActorID, "staff-7"},
		"verb":        {out.Verb, string(auth.ActivityEventUserStatusChanged)},
		"object_type": {out.ObjectType, "user"},
		"object_id":   {out.ObjectID, "student-314"},
		"channel":     {out.Channel, "auth"},
	}
	for name, f := range fields {
		if f.got != f.want {
			t.Errorf("%s: expected %q, got %q", name, f.want, f.got)
		}
	}
	if !out.OccurredAt.Equal(ts) {
		t.Errorf("occurred_at: expected %v, got %v", ts, out.OccurredAt)
	}

	meta := map[string]struct{ got, want any }{
		"case":                            {out.Metadata["case"], "HELPDESK-88"},
		activitymap.MetadataKeyActorType:  {out.Metadata[activitymap.MetadataKeyActorType], "admin"},
		activitymap.MetadataKeyFromStatus: {out.Metadata[activitymap.MetadataKeyFromStatus], string(auth.UserStatusActive)},
		activitymap.MetadataKeyToStatus:   {out.Metadata[activitymap.MetadataKeyToStatus], string(auth.UserStatusSuspended)},
	}
	for key, m := range meta {
		if m.got != m.want {
			t.Errorf("metadata %s: expected %#v, got %#v", key, m.want, m.got)
		}
	}

	// the source event's metadata must not pick up the derived keys
	if len(event.Metadata) != 1 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeOptionOverrides(t *testing.T) {
	t.Parallel()

	event := auth.ActivityEvent{
		EventType: auth.ActivityEventEmailVerified,
		Actor:     auth.ActorRef{Type: "user"},
		UserID:    "student-271",
		Metadata: map[string]any{
			"verification_id":                "otp-issue-5",
			activitymap.MetadataKeyActorType: "existing",
		},
	}

	out := activitymap.Normalize(
		event,
		activitymap.WithDefaultChannel("security"),
		activitymap.WithDefaultObjectType("account"),
		activitymap.WithObjectIDResolver(func(e auth.ActivityEvent) string {
			v, _ := e.Metadata["verification_id"].(string)
			return v
		}),
	)

	if out.Channel != "security" || out.ObjectType != "account" {
		t.Fatalf("overrides not applied: channel=%q object_type=%q", out.Channel, out.ObjectType)
	}
	if out.ObjectID != "otp-issue-5" {
		t.Fatalf("expected resolver to pick the verification id, got %q", out.ObjectID)
	}
	if out.Metadata[activitymap.MetadataKeyActorType] != "existing" {
		t.Fatalf("expected existing actor_type preserved, got %#v", out.Metadata[activitymap.MetadataKeyActorType])
	}
	if out.OccurredAt.IsZero() {
		t.Fatal("expected occurred_at to be set when input is zero")
	}
}

func TestNormalizeActorFallbackChain(t *testing.T) {
	t.Parallel()

	// actor id wins, then the subject user, then the fallback label
	tests := []struct {
		name   string
		event  auth.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "actor id present",
			event:  auth.ActivityEvent{Actor: auth.ActorRef{ID: "staff-1"}, UserID: "student-1"},
			expect: "staff-1",
		},
		{
			name:   "falls back to the subject user",
			event:  auth.ActivityEvent{UserID: "student-2"},
			expect: "student-2",
		},
		{
			name:   "default fallback label",
			event:  auth.ActivityEvent{},
			expect: "system",
		},
		{
			name:   "configured fallback label",
			event:  auth.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithActorFallback("cron")},
			expect: "cron",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := activitymap.Normalize(tc.event, tc.opts...)
			if out.ActorID != tc.expect {
				t.Fatalf("expected actor_id %q, got %q", tc.expect, out.ActorID)
			}
		})
	}
}
