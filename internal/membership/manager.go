// Package membership owns durable session membership: join, leave and the
// active-participant predicate every other component authorizes against.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"debatehall/internal/keylock"
	"debatehall/pkg/interfaces"
	"debatehall/pkg/types"
)

// Manager serializes membership mutations per session
type Manager struct {
	store interfaces.ParticipantStore
	locks *keylock.Map
}

func NewManager(store interfaces.ParticipantStore) *Manager {
	return &Manager{
		store: store,
		locks: keylock.New(),
	}
}

// Join makes userID an active participant of session.
// An inactive row is reactivated with its original joined_at; capacity
// counts active rows only and applies to reactivation as well.
func (m *Manager) Join(ctx context.Context, userID int64, session *types.DebateSession, now time.Time) (*types.Participant, error) {
	if status := session.Status(now); status != types.StatusOngoing {
		return nil, &StatusError{Op: "join", Status: status}
	}

	unlock := m.locks.Lock(session.ID)
	defer unlock()

	existing, err := m.store.GetParticipant(ctx, session.ID, userID)
	switch {
	case err == nil && existing.IsActive:
		return nil, ErrAlreadyActiveParticipant
	case err != nil && !errors.Is(err, interfaces.ErrParticipantNotFound):
		return nil, fmt.Errorf("failed to load participant: %w", err)
	}

	count, err := m.store.CountActiveParticipants(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count participants: %w", err)
	}
	if count >= session.MaxParticipants {
		return nil, ErrCapacityExceeded
	}

	if existing != nil {
		if err := m.store.SetParticipantActive(ctx, session.ID, userID, true); err != nil {
			return nil, fmt.Errorf("failed to reactivate participant: %w", err)
		}
		existing.IsActive = true
		log.Printf("Participant rejoined: user=%d session=%d", userID, session.ID)
		return existing, nil
	}

	participant := &types.Participant{
		SessionID: session.ID,
		UserID:    userID,
		JoinedAt:  now,
		IsActive:  true,
	}
	if err := m.store.CreateParticipant(ctx, participant); err != nil {
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}

	log.Printf("Participant joined: user=%d session=%d active=%d", userID, session.ID, count+1)
	return participant, nil
}

// Leave marks the active membership inactive. Past messages stay visible.
func (m *Manager) Leave(ctx context.Context, userID, sessionID int64) error {
	unlock := m.locks.Lock(sessionID)
	defer unlock()

	existing, err := m.store.GetParticipant(ctx, sessionID, userID)
	if errors.Is(err, interfaces.ErrParticipantNotFound) {
		return ErrNotAParticipant
	}
	if err != nil {
		return fmt.Errorf("failed to load participant: %w", err)
	}
	if !existing.IsActive {
		return ErrNotAParticipant
	}

	if err := m.store.SetParticipantActive(ctx, sessionID, userID, false); err != nil {
		return fmt.Errorf("failed to deactivate participant: %w", err)
	}

	log.Printf("Participant left: user=%d session=%d", userID, sessionID)
	return nil
}

// IsActiveParticipant is the authorization predicate for session access
func (m *Manager) IsActiveParticipant(ctx context.Context, userID, sessionID int64) (bool, error) {
	p, err := m.store.GetParticipant(ctx, sessionID, userID)
	if errors.Is(err, interfaces.ErrParticipantNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load participant: %w", err)
	}
	return p.IsActive, nil
}

// Participant returns the membership row, active or not
func (m *Manager) Participant(ctx context.Context, userID, sessionID int64) (*types.Participant, error) {
	p, err := m.store.GetParticipant(ctx, sessionID, userID)
	if errors.Is(err, interfaces.ErrParticipantNotFound) {
		return nil, ErrNotAParticipant
	}
	return p, err
}

// Count returns the number of active participants
func (m *Manager) Count(ctx context.Context, sessionID int64) (int, error) {
	return m.store.CountActiveParticipants(ctx, sessionID)
}

// ActiveParticipants lists active members ordered by join time
func (m *Manager) ActiveParticipants(ctx context.Context, sessionID int64) ([]*types.Participant, error) {
	return m.store.ListActiveParticipants(ctx, sessionID)
}

// Deactivate removes an active participant on a moderator's behalf.
// It behaves like Leave but is logged as a removal.
func (m *Manager) Deactivate(ctx context.Context, userID, sessionID int64) error {
	if err := m.Leave(ctx, userID, sessionID); err != nil {
		return err
	}
	log.Printf("Participant removed by moderator: user=%d session=%d", userID, sessionID)
	return nil
}
