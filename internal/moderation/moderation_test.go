package moderation

import (
	"context"
	"errors"
	"testing"
	"time"

	"debatehall/internal/membership"
	"debatehall/internal/memstore"
	"debatehall/pkg/types"
)

func setup(t *testing.T) (*Service, *membership.Manager, *memstore.Store, *types.DebateSession) {
	t.Helper()
	store := memstore.New()
	now := time.Now()
	session := &types.DebateSession{
		TopicID:         1,
		StartTime:       now.Add(-time.Minute),
		EndTime:         now.Add(time.Hour),
		CreatedBy:       1,
		MaxParticipants: 10,
		IsActive:        true,
	}
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatal(err)
	}
	members := membership.NewManager(store)
	if _, err := members.Join(context.Background(), 2, session, now); err != nil {
		t.Fatal(err)
	}
	return NewService(store, members), members, store, session
}

func TestService_Moderate(t *testing.T) {
	tests := []struct {
		name        string
		moderatorID int64
		target      int64
		action      types.ModerationKind
		wantErr     error
		wantActive  bool
	}{
		{"warn is recorded only", 1, 2, types.ModerationWarn, nil, true},
		{"mute is recorded only", 1, 2, types.ModerationMute, nil, true},
		{"remove deactivates", 1, 2, types.ModerationRemove, nil, false},
		{"non creator", 3, 2, types.ModerationWarn, ErrNotSessionCreator, true},
		{"self", 1, 1, types.ModerationWarn, ErrSelfModeration, true},
		{"not a participant", 1, 4, types.ModerationWarn, membership.ErrNotAParticipant, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, members, store, session := setup(t)
			ctx := context.Background()

			record, err := svc.Moderate(ctx, tt.moderatorID, session, tt.target, tt.action, time.Now())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Moderate() error = %v, want %v", err, tt.wantErr)
			}

			active, _ := members.IsActiveParticipant(ctx, 2, session.ID)
			if active != tt.wantActive {
				t.Errorf("participant active = %v, want %v", active, tt.wantActive)
			}

			actions, _ := store.ListModerationActions(ctx, session.ID)
			if tt.wantErr != nil {
				if len(actions) != 0 {
					t.Errorf("rejected moderation must not be recorded, got %d", len(actions))
				}
				return
			}
			if record.ID == 0 || record.Action != tt.action || record.ModeratorID != 1 || record.ParticipantID != 2 {
				t.Errorf("unexpected record: %+v", record)
			}
			if len(actions) != 1 {
				t.Errorf("recorded %d actions, want 1", len(actions))
			}
		})
	}
}

func TestService_RemovedParticipantCannotBeModeratedAgain(t *testing.T) {
	svc, _, _, session := setup(t)
	ctx := context.Background()

	if _, err := svc.Moderate(ctx, 1, session, 2, types.ModerationRemove, time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Moderate(ctx, 1, session, 2, types.ModerationWarn, time.Now()); !errors.Is(err, membership.ErrNotAParticipant) {
		t.Errorf("Moderate() after removal error = %v, want ErrNotAParticipant", err)
	}
}

func TestService_History(t *testing.T) {
	svc, _, _, session := setup(t)
	ctx := context.Background()

	if _, err := svc.Moderate(ctx, 1, session, 2, types.ModerationWarn, time.Now()); err != nil {
		t.Fatal(err)
	}

	history, err := svc.History(ctx, session, 1)
	if err != nil || len(history) != 1 {
		t.Fatalf("History() = %v, %v", history, err)
	}
	if _, err := svc.History(ctx, session, 2); !errors.Is(err, ErrNotSessionCreator) {
		t.Errorf("History() by participant error = %v, want ErrNotSessionCreator", err)
	}
}
