package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestStatusAt_ExactlyOneStatusHolds(t *testing.T) {
	start := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	tests := []struct {
		name string
		now  time.Time
		want SessionStatus
	}{
		{"long before start", start.Add(-24 * time.Hour), StatusScheduled},
		{"one nanosecond before start", start.Add(-time.Nanosecond), StatusScheduled},
		{"exactly at start", start, StatusOngoing},
		{"middle of window", start.Add(30 * time.Minute), StatusOngoing},
		{"exactly at end", end, StatusOngoing},
		{"one nanosecond after end", end.Add(time.Nanosecond), StatusEnded},
		{"long after end", end.Add(24 * time.Hour), StatusEnded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StatusAt(start, end, tt.now)
			if got != tt.want {
				t.Fatalf("StatusAt() = %s, want %s", got, tt.want)
			}

			switch got {
			case StatusScheduled:
				if !tt.now.Before(start) {
					t.Error("scheduled must imply now < start")
				}
			case StatusOngoing:
				if tt.now.Before(start) || tt.now.After(end) {
					t.Error("ongoing must imply start <= now <= end")
				}
			case StatusEnded:
				if !tt.now.After(end) {
					t.Error("ended must imply now > end")
				}
			}
		})
	}
}

func TestDebateSession_DerivedBooleans(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name           string
		session        DebateSession
		wantOngoing    bool
		wantHasStarted bool
		wantHasEnded   bool
	}{
		{
			name:           "scheduled",
			session:        DebateSession{StartTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour)},
			wantOngoing:    false,
			wantHasStarted: false,
			wantHasEnded:   false,
		},
		{
			name:           "ongoing",
			session:        DebateSession{StartTime: now.Add(-time.Minute), EndTime: now.Add(time.Hour)},
			wantOngoing:    true,
			wantHasStarted: true,
			wantHasEnded:   false,
		},
		{
			name:           "ended",
			session:        DebateSession{StartTime: now.Add(-2 * time.Hour), EndTime: now.Add(-time.Hour)},
			wantOngoing:    false,
			wantHasStarted: true,
			wantHasEnded:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.session.IsOngoing(now); got != tt.wantOngoing {
				t.Errorf("IsOngoing() = %v, want %v", got, tt.wantOngoing)
			}
			if got := tt.session.HasStarted(now); got != tt.wantHasStarted {
				t.Errorf("HasStarted() = %v, want %v", got, tt.wantHasStarted)
			}
			if got := tt.session.HasEnded(now); got != tt.wantHasEnded {
				t.Errorf("HasEnded() = %v, want %v", got, tt.wantHasEnded)
			}
		})
	}
}

func TestDebateTopic_Validate(t *testing.T) {
	validDescription := "Should schools replace homework with projects?"
	tests := []struct {
		name    string
		topic   DebateTopic
		wantErr error
	}{
		{"valid", DebateTopic{Title: "Homework", Description: validDescription, CreatedBy: 1}, nil},
		{"short title", DebateTopic{Title: "Hw", Description: validDescription, CreatedBy: 1}, ErrInvalidTopicTitle},
		{"long title", DebateTopic{Title: strings.Repeat("a", 256), Description: validDescription, CreatedBy: 1}, ErrInvalidTopicTitle},
		{"short description", DebateTopic{Title: "Homework", Description: "too short", CreatedBy: 1}, ErrInvalidTopicDescription},
		{"missing creator", DebateTopic{Title: "Homework", Description: validDescription}, ErrInvalidCreatedBy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.topic.Validate(); err != tt.wantErr {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDebateSession_Validate(t *testing.T) {
	start := time.Now()

	t.Run("defaults capacity", func(t *testing.T) {
		s := DebateSession{StartTime: start, EndTime: start.Add(time.Hour), CreatedBy: 7}
		if err := s.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if s.MaxParticipants != DefaultMaxParticipants {
			t.Errorf("MaxParticipants = %d, want %d", s.MaxParticipants, DefaultMaxParticipants)
		}
	})

	tests := []struct {
		name    string
		session DebateSession
		wantErr error
	}{
		{"end before start", DebateSession{StartTime: start, EndTime: start.Add(-time.Minute), CreatedBy: 1}, ErrInvalidSessionWindow},
		{"empty window", DebateSession{StartTime: start, EndTime: start, CreatedBy: 1}, ErrInvalidSessionWindow},
		{"negative capacity", DebateSession{StartTime: start, EndTime: start.Add(time.Hour), MaxParticipants: -1, CreatedBy: 1}, ErrInvalidCapacity},
		{"missing creator", DebateSession{StartTime: start, EndTime: start.Add(time.Hour)}, ErrInvalidCreatedBy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.session.Validate(); err != tt.wantErr {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseModerationKind(t *testing.T) {
	tests := []struct {
		input   string
		want    ModerationKind
		wantErr bool
	}{
		{"mute", ModerationMute, false},
		{"WARN", ModerationWarn, false},
		{" remove ", ModerationRemove, false},
		{"ban", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseModerationKind(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseModerationKind(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseModerationKind(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMessage_JSONHidesDeletedFlag(t *testing.T) {
	msg := Message{
		ID:        3,
		SessionID: 1,
		Sender:    User{ID: 9, Username: "alice", Role: RoleStudent},
		Content:   "hello",
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		IsDeleted: true,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, ok := decoded["IsDeleted"]; ok {
		t.Error("deleted flag must not be serialized")
	}
	user, ok := decoded["user"].(map[string]interface{})
	if !ok {
		t.Fatal("expected nested user object")
	}
	if user["username"] != "alice" || user["role"] != "STUDENT" {
		t.Errorf("unexpected user payload: %v", user)
	}
}
