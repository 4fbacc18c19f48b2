package types

import "time"

// StatusAt computes a session status from its window.
// Exactly one status holds for any (start, end, now).
func StatusAt(start, end, now time.Time) SessionStatus {
	switch {
	case now.Before(start):
		return StatusScheduled
	case now.After(end):
		return StatusEnded
	default:
		return StatusOngoing
	}
}

// Status returns the session status at now
func (s *DebateSession) Status(now time.Time) SessionStatus {
	return StatusAt(s.StartTime, s.EndTime, now)
}

// IsOngoing reports start_time <= now <= end_time
func (s *DebateSession) IsOngoing(now time.Time) bool {
	return s.Status(now) == StatusOngoing
}

// HasStarted reports now >= start_time
func (s *DebateSession) HasStarted(now time.Time) bool {
	return s.Status(now) != StatusScheduled
}

// HasEnded reports now > end_time
func (s *DebateSession) HasEnded(now time.Time) bool {
	return s.Status(now) == StatusEnded
}

// Duration is the length of the session window
func (s *DebateSession) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}
