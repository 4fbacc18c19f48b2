package membership

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"debatehall/internal/memstore"
	"debatehall/pkg/types"
)

func ongoingSession(id int64, capacity int) *types.DebateSession {
	now := time.Now()
	return &types.DebateSession{
		ID:              id,
		StartTime:       now.Add(-time.Minute),
		EndTime:         now.Add(time.Hour),
		CreatedBy:       1,
		MaxParticipants: capacity,
		IsActive:        true,
	}
}

func TestManager_JoinRequiresOngoingSession(t *testing.T) {
	m := NewManager(memstore.New())
	now := time.Now()

	tests := []struct {
		name    string
		start   time.Time
		end     time.Time
		wantMsg string
	}{
		{"scheduled", now.Add(time.Hour), now.Add(2 * time.Hour), "cannot join a session that has not started yet"},
		{"ended", now.Add(-2 * time.Hour), now.Add(-time.Hour), "cannot join a session that has already ended"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &types.DebateSession{ID: 1, StartTime: tt.start, EndTime: tt.end, MaxParticipants: 5}
			_, err := m.Join(context.Background(), 2, session, now)
			if !errors.Is(err, ErrSessionNotOngoing) {
				t.Fatalf("Join() error = %v, want ErrSessionNotOngoing", err)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("Join() error message = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestManager_JoinTwiceFails(t *testing.T) {
	m := NewManager(memstore.New())
	ctx := context.Background()
	session := ongoingSession(1, 5)

	if _, err := m.Join(ctx, 2, session, time.Now()); err != nil {
		t.Fatalf("first Join() error = %v", err)
	}
	if _, err := m.Join(ctx, 2, session, time.Now()); !errors.Is(err, ErrAlreadyActiveParticipant) {
		t.Errorf("second Join() error = %v, want ErrAlreadyActiveParticipant", err)
	}
}

func TestManager_RejoinPreservesJoinedAt(t *testing.T) {
	m := NewManager(memstore.New())
	ctx := context.Background()
	session := ongoingSession(1, 5)

	firstJoin := time.Now().Add(-30 * time.Second)
	p, err := m.Join(ctx, 2, session, firstJoin)
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if !p.JoinedAt.Equal(firstJoin) {
		t.Fatalf("JoinedAt = %v, want %v", p.JoinedAt, firstJoin)
	}

	if err := m.Leave(ctx, 2, session.ID); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}
	active, _ := m.IsActiveParticipant(ctx, 2, session.ID)
	if active {
		t.Fatal("user should be inactive after Leave")
	}

	rejoined, err := m.Join(ctx, 2, session, time.Now())
	if err != nil {
		t.Fatalf("rejoin error = %v", err)
	}
	if !rejoined.IsActive {
		t.Error("rejoin should reactivate")
	}
	if !rejoined.JoinedAt.Equal(firstJoin) {
		t.Errorf("rejoin JoinedAt = %v, want original %v", rejoined.JoinedAt, firstJoin)
	}

	stored, err := m.Participant(ctx, 2, session.ID)
	if err != nil {
		t.Fatalf("Participant() error = %v", err)
	}
	if !stored.JoinedAt.Equal(firstJoin) {
		t.Errorf("stored JoinedAt = %v, want %v", stored.JoinedAt, firstJoin)
	}
}

func TestManager_CapacityExceeded(t *testing.T) {
	m := NewManager(memstore.New())
	ctx := context.Background()
	session := ongoingSession(1, 1)

	if _, err := m.Join(ctx, 2, session, time.Now()); err != nil {
		t.Fatalf("Join(A) error = %v", err)
	}
	if _, err := m.Join(ctx, 3, session, time.Now()); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("Join(B) error = %v, want ErrCapacityExceeded", err)
	}

	// a freed slot can be taken
	if err := m.Leave(ctx, 2, session.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Join(ctx, 3, session, time.Now()); err != nil {
		t.Errorf("Join(B) after A left error = %v", err)
	}

	// reactivation is subject to capacity too
	if _, err := m.Join(ctx, 2, session, time.Now()); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("rejoin(A) error = %v, want ErrCapacityExceeded", err)
	}
}

func TestManager_ConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	m := NewManager(memstore.New())
	ctx := context.Background()
	const capacity = 5
	session := ongoingSession(1, capacity)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := m.Join(ctx, userID, session, time.Now())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrCapacityExceeded):
				rejected++
			default:
				t.Errorf("unexpected Join() error: %v", err)
			}
		}(int64(100 + i))
	}
	wg.Wait()

	if accepted != capacity {
		t.Errorf("accepted = %d, want %d", accepted, capacity)
	}
	count, err := m.Count(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if count != capacity {
		t.Errorf("Count() = %d, want %d", count, capacity)
	}
	if accepted+rejected != 50 {
		t.Errorf("every join should resolve, got %d", accepted+rejected)
	}
}

func TestManager_ConcurrentJoinLeaveSameUser(t *testing.T) {
	m := NewManager(memstore.New())
	ctx := context.Background()
	session := ongoingSession(1, 5)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = m.Join(ctx, 2, session, time.Now())
		}()
		go func() {
			defer wg.Done()
			_ = m.Leave(ctx, 2, session.ID)
		}()
	}
	wg.Wait()

	count, _ := m.Count(ctx, session.ID)
	if count > 1 {
		t.Errorf("a single user can hold at most one active row, count = %d", count)
	}
}

func TestManager_LeaveWithoutMembership(t *testing.T) {
	m := NewManager(memstore.New())
	ctx := context.Background()
	session := ongoingSession(1, 5)

	if err := m.Leave(ctx, 2, session.ID); !errors.Is(err, ErrNotAParticipant) {
		t.Errorf("Leave() without row error = %v, want ErrNotAParticipant", err)
	}

	if _, err := m.Join(ctx, 2, session, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := m.Leave(ctx, 2, session.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.Leave(ctx, 2, session.ID); !errors.Is(err, ErrNotAParticipant) {
		t.Errorf("second Leave() error = %v, want ErrNotAParticipant", err)
	}
}

func TestManager_ActiveParticipantsAndParticipant(t *testing.T) {
	m := NewManager(memstore.New())
	ctx := context.Background()
	session := ongoingSession(1, 5)
	base := time.Now()

	for i, userID := range []int64{3, 2, 4} {
		if _, err := m.Join(ctx, userID, session, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Deactivate(ctx, 4, session.ID); err != nil {
		t.Fatal(err)
	}

	active, err := m.ActiveParticipants(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 || active[0].UserID != 3 || active[1].UserID != 2 {
		t.Errorf("unexpected active participants: %+v", active)
	}

	if _, err := m.Participant(ctx, 99, session.ID); !errors.Is(err, ErrNotAParticipant) {
		t.Errorf("Participant(missing) error = %v", err)
	}
}
