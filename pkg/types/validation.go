package types

import (
	"strings"
	"unicode/utf8"
)

// Validate checks the topic against the original model constraints
func (t *DebateTopic) Validate() error {
	title := strings.TrimSpace(t.Title)
	if n := utf8.RuneCountInString(title); n < 5 || n > 255 {
		return ErrInvalidTopicTitle
	}
	if utf8.RuneCountInString(strings.TrimSpace(t.Description)) < 20 {
		return ErrInvalidTopicDescription
	}
	if !IsValidID(t.CreatedBy) {
		return ErrInvalidCreatedBy
	}
	return nil
}

// Validate ensures the session window and capacity are usable.
// A zero capacity is replaced with DefaultMaxParticipants.
func (s *DebateSession) Validate() error {
	if !s.EndTime.After(s.StartTime) {
		return ErrInvalidSessionWindow
	}
	if s.MaxParticipants == 0 {
		s.MaxParticipants = DefaultMaxParticipants
	}
	if s.MaxParticipants < 1 {
		return ErrInvalidCapacity
	}
	if !IsValidID(s.CreatedBy) {
		return ErrInvalidCreatedBy
	}
	return nil
}

// Validate checks username and role
func (u *User) Validate() error {
	if n := utf8.RuneCountInString(u.Username); n < 1 || n > 150 {
		return ErrInvalidUsername
	}
	if !IsValidRole(u.Role) {
		return ErrInvalidRole
	}
	return nil
}

// IsValidID reports whether id can reference a stored row
func IsValidID(id int64) bool {
	return id > 0
}

// IsValidRole checks the role enumeration
func IsValidRole(role Role) bool {
	return role == RoleStudent || role == RoleModerator
}

// ParseModerationKind accepts the lowercase REST form ("mute") or the stored form ("MUTE")
func ParseModerationKind(action string) (ModerationKind, error) {
	switch kind := ModerationKind(strings.ToUpper(strings.TrimSpace(action))); kind {
	case ModerationMute, ModerationWarn, ModerationRemove:
		return kind, nil
	default:
		return "", ErrInvalidModerationKind
	}
}
