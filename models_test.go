package auth

import (
	"testing"
	"time"
)

func TestUserEnsureStatusDefaultsToPending(t *testing.T) {
	u := &User{}

	u.EnsureStatus()

	if u.Status != UserStatusPending {
		t.Fatalf("expected default status %q, got %q", UserStatusPending, u.Status)
	}
}

func TestUserEnsureStatusKeepsExisting(t *testing.T) {
	u := &User{Status: UserStatusActive}

	u.EnsureStatus()

	if u.Status != UserStatusActive {
		t.Fatalf("expected status %q to survive, got %q", UserStatusActive, u.Status)
	}
}

func TestUserIsApproved(t *testing.T) {
	cases := []struct {
		name   string
		user   *User
		expect bool
	}{
		{name: "active", user: &User{Status: UserStatusActive}, expect: true},
		{name: "pending", user: &User{Status: UserStatusPending}, expect: false},
		{name: "rejected", user: &User{Status: UserStatusRejected}, expect: false},
		{name: "suspended", user: &User{Status: UserStatusSuspended}, expect: false},
		{name: "archived", user: &User{Status: UserStatusArchived}, expect: false},
		{name: "nil user", user: nil, expect: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.user.IsApproved(); got != tc.expect {
				t.Fatalf("IsApproved returned %t, expected %t", got, tc.expect)
			}
		})
	}
}

func TestUserAddMetadata(t *testing.T) {
	u := &User{}

	u.AddMetadata("source", "import").AddMetadata("cohort", "2026")

	if u.Metadata["source"] != "import" {
		t.Fatalf("expected metadata source %q, got %v", "import", u.Metadata["source"])
	}
	if u.Metadata["cohort"] != "2026" {
		t.Fatalf("expected metadata cohort %q, got %v", "2026", u.Metadata["cohort"])
	}
}

func TestVerificationCodeLive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	consumed := now.Add(-time.Minute)

	cases := []struct {
		name   string
		code   *VerificationCode
		expect bool
	}{
		{
			name:   "unconsumed and unexpired",
			code:   &VerificationCode{ExpiresAt: now.Add(time.Minute)},
			expect: true,
		},
		{
			name:   "expired exactly at the deadline",
			code:   &VerificationCode{ExpiresAt: now},
			expect: false,
		},
		{
			name:   "consumed",
			code:   &VerificationCode{ExpiresAt: now.Add(time.Minute), ConsumedAt: &consumed},
			expect: false,
		},
		{
			name:   "nil code",
			code:   nil,
			expect: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.code.Live(now); got != tc.expect {
				t.Fatalf("Live returned %t, expected %t", got, tc.expect)
			}
		})
	}
}
