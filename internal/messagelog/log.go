// Package messagelog appends and reads the per-session chat history.
package messagelog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"debatehall/internal/keylock"
	"debatehall/internal/membership"
	"debatehall/pkg/interfaces"
	"debatehall/pkg/types"
)

// DefaultMaxLength bounds a message in runes
const DefaultMaxLength = 2000

// Store is the persistence the log needs
type Store interface {
	interfaces.MessageStore
	interfaces.ParticipantStore
}

// Options carry the send policy
type Options struct {
	// RequireOngoing rejects appends outside the session window
	RequireOngoing bool
	// CreatorCanPost lets the session creator post without a membership row
	CreatorCanPost bool
	// MaxLength in runes; zero means DefaultMaxLength
	MaxLength int
}

func DefaultOptions() Options {
	return Options{
		RequireOngoing: true,
		MaxLength:      DefaultMaxLength,
	}
}

// Log orders appends per session. Arrival order under the session lock is the log order.
type Log struct {
	store Store
	opts  Options
	locks *keylock.Map
}

func New(store Store, opts Options) *Log {
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}
	return &Log{
		store: store,
		opts:  opts,
		locks: keylock.New(),
	}
}

// Append validates and stores a message from sender.
// The stored timestamp never goes backwards within a session.
func (l *Log) Append(ctx context.Context, session *types.DebateSession, sender *types.User, content string, now time.Time) (*types.Message, error) {
	if err := l.Authorize(ctx, session, sender.ID, "post in", now); err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > l.opts.MaxLength {
		return nil, ErrMessageTooLong
	}

	unlock := l.locks.Lock(session.ID)
	defer unlock()

	timestamp := now
	last, ok, err := l.store.LastMessageTime(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read last message time: %w", err)
	}
	if ok && timestamp.Before(last) {
		timestamp = last
	}

	message := &types.Message{
		SessionID: session.ID,
		Sender:    *sender,
		Content:   content,
		Timestamp: timestamp,
	}
	if err := l.store.AppendMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	log.Printf("Message appended: id=%d user=%d session=%d", message.ID, sender.ID, session.ID)
	return message, nil
}

// Authorize applies the send policy to userID for op, e.g. "post in" or "type in".
// Typing follows the same rules as posting.
func (l *Log) Authorize(ctx context.Context, session *types.DebateSession, userID int64, op string, now time.Time) error {
	if l.opts.RequireOngoing {
		if status := session.Status(now); status != types.StatusOngoing {
			return &membership.StatusError{Op: op, Status: status}
		}
	}
	return l.authorizeSender(ctx, session, userID)
}

func (l *Log) authorizeSender(ctx context.Context, session *types.DebateSession, userID int64) error {
	if l.opts.CreatorCanPost && session.CreatedBy == userID {
		return nil
	}

	p, err := l.store.GetParticipant(ctx, session.ID, userID)
	if errors.Is(err, interfaces.ErrParticipantNotFound) {
		return membership.ErrNotAParticipant
	}
	if err != nil {
		return fmt.Errorf("failed to load participant: %w", err)
	}
	if !p.IsActive {
		return membership.ErrNotAParticipant
	}
	return nil
}

// Get returns a message regardless of its deleted flag
func (l *Log) Get(ctx context.Context, messageID int64) (*types.Message, error) {
	m, err := l.store.GetMessage(ctx, messageID)
	if errors.Is(err, interfaces.ErrMessageNotFound) {
		return nil, ErrMessageNotFound
	}
	return m, err
}

// SoftDelete hides a message from history without removing it
func (l *Log) SoftDelete(ctx context.Context, messageID int64) error {
	return l.setDeleted(ctx, messageID, true)
}

// Restore undoes SoftDelete
func (l *Log) Restore(ctx context.Context, messageID int64) error {
	return l.setDeleted(ctx, messageID, false)
}

func (l *Log) setDeleted(ctx context.Context, messageID int64, deleted bool) error {
	err := l.store.SetMessageDeleted(ctx, messageID, deleted)
	if errors.Is(err, interfaces.ErrMessageNotFound) {
		return ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	log.Printf("Message visibility changed: id=%d deleted=%t", messageID, deleted)
	return nil
}

// History returns what viewerID may read, ordered by (timestamp, id).
// The creator sees the whole log; an active participant sees messages
// from its joined_at onwards.
func (l *Log) History(ctx context.Context, session *types.DebateSession, viewerID int64) ([]*types.Message, error) {
	var since time.Time
	if session.CreatedBy != viewerID {
		p, err := l.store.GetParticipant(ctx, session.ID, viewerID)
		if errors.Is(err, interfaces.ErrParticipantNotFound) {
			return nil, membership.ErrNotAParticipant
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load participant: %w", err)
		}
		if !p.IsActive {
			return nil, membership.ErrNotAParticipant
		}
		since = p.JoinedAt
	}

	messages, err := l.store.ListMessages(ctx, session.ID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}
