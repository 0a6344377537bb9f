package domain

import (
	"testing"
	"time"
)

func TestSessionInvalid(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		session     Session
		wantInvalid bool
		wantReason  string
	}{
		{
			name: "active recent session is valid",
			session: Session{
				IsActive:       true,
				JoinedAt:       now.Add(-time.Hour),
				LastActivityAt: now.Add(-time.Minute),
			},
			wantInvalid: false,
		},
		{
			name: "explicitly left",
			session: Session{
				IsActive:       false,
				JoinedAt:       now.Add(-time.Hour),
				LastActivityAt: now.Add(-time.Minute),
			},
			wantInvalid: true,
			wantReason:  "inactive",
		},
		{
			name: "expired after 24h of silence",
			session: Session{
				IsActive:       true,
				JoinedAt:       now.Add(-48 * time.Hour),
				LastActivityAt: now.Add(-25 * time.Hour),
			},
			wantInvalid: true,
			wantReason:  "expired",
		},
		{
			name: "joined in the future",
			session: Session{
				IsActive:       true,
				JoinedAt:       now.Add(time.Hour),
				LastActivityAt: now.Add(2 * time.Hour),
			},
			wantInvalid: true,
			wantReason:  "joined_in_future",
		},
		{
			name: "activity before join",
			session: Session{
				IsActive:       true,
				JoinedAt:       now.Add(-time.Hour),
				LastActivityAt: now.Add(-2 * time.Hour),
			},
			wantInvalid: true,
			wantReason:  "activity_before_join",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invalid, reason := tt.session.Invalid(now, DefaultSessionTTL)
			if invalid != tt.wantInvalid {
				t.Errorf("Invalid() = %v, want %v", invalid, tt.wantInvalid)
			}
			if reason != tt.wantReason {
				t.Errorf("Invalid() reason = %q, want %q", reason, tt.wantReason)
			}
		})
	}
}

func TestSessionTouch(t *testing.T) {
	now := time.Now()
	s := Session{
		IsActive:       false,
		JoinedAt:       now.Add(-time.Hour),
		LastActivityAt: now.Add(-time.Hour),
	}

	s.Touch(now)

	if !s.IsActive {
		t.Error("Touch() should reactivate the session")
	}
	if !s.LastActivityAt.Equal(now) {
		t.Errorf("Touch() LastActivityAt = %v, want %v", s.LastActivityAt, now)
	}
}

func TestCursorColorDeterministic(t *testing.T) {
	first := CursorColor("user-42")
	second := CursorColor("user-42")
	if first != second {
		t.Errorf("CursorColor not stable: %s vs %s", first, second)
	}
	if first == "" {
		t.Error("CursorColor returned empty color")
	}
}
