// Package moderation records moderator decisions against session participants.
// Only removal has an effect beyond the audit record.
package moderation

import (
	"context"
	"fmt"
	"log"
	"time"

	"debatehall/internal/membership"
	"debatehall/pkg/interfaces"
	"debatehall/pkg/types"
)

// Members is the membership view moderation acts on
type Members interface {
	IsActiveParticipant(ctx context.Context, userID, sessionID int64) (bool, error)
	Deactivate(ctx context.Context, userID, sessionID int64) error
}

type Service struct {
	store   interfaces.ModerationStore
	members Members
}

func NewService(store interfaces.ModerationStore, members Members) *Service {
	return &Service{
		store:   store,
		members: members,
	}
}

// Moderate records action against participantID. The target must be an
// active participant; a removal also ends their membership.
func (s *Service) Moderate(ctx context.Context, moderatorID int64, session *types.DebateSession, participantID int64, action types.ModerationKind, now time.Time) (*types.ModerationAction, error) {
	if session.CreatedBy != moderatorID {
		return nil, ErrNotSessionCreator
	}
	if participantID == moderatorID {
		return nil, ErrSelfModeration
	}

	active, err := s.members.IsActiveParticipant(ctx, participantID, session.ID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, membership.ErrNotAParticipant
	}

	if action == types.ModerationRemove {
		if err := s.members.Deactivate(ctx, participantID, session.ID); err != nil {
			return nil, err
		}
	}

	record := &types.ModerationAction{
		SessionID:     session.ID,
		ParticipantID: participantID,
		ModeratorID:   moderatorID,
		Action:        action,
		Timestamp:     now,
	}
	if err := s.store.RecordModerationAction(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record moderation action: %w", err)
	}

	log.Printf("Moderation recorded: action=%s participant=%d session=%d moderator=%d",
		action, participantID, session.ID, moderatorID)
	return record, nil
}

// History lists the session's moderation actions, oldest first
func (s *Service) History(ctx context.Context, session *types.DebateSession, viewerID int64) ([]*types.ModerationAction, error) {
	if session.CreatedBy != viewerID {
		return nil, ErrNotSessionCreator
	}
	return s.store.ListModerationActions(ctx, session.ID)
}
