package models

import (
	"fmt"
	"time"
)

// EndReason records why a session left the Active state.
type EndReason string

const (
	EndStopped   EndReason = "stopped"   // explicit stop from the UI
	EndTimeout   EndReason = "timeout"   // platform runtime budget exceeded
	EndAbandoned EndReason = "abandoned" // coordinator shut down while Active
)

// Session is one Active period of the job coordinator.
type Session struct {
	id         string
	sequence   int
	Label      Label
	QueueDepth int
	Progress   Progress
	EndReason  EndReason
	StartedAt  time.Time
	EndedAt    *time.Time
}

// NewSession creates an unsaved session starting at startedAt.
func NewSession(id string, startedAt time.Time, label Label, queueDepth int) *Session {
	return &Session{id: id, Label: label, QueueDepth: queueDepth, StartedAt: startedAt}
}

// RestoreSession rebuilds a session loaded from storage.
func RestoreSession(id string, sequence int, s Session) *Session {
	s.id = id
	s.sequence = sequence
	return &s
}

func (s *Session) ID() string           { return s.id }
func (s *Session) SetID(id string)      { s.id = id }
func (s *Session) Sequence() int        { return s.sequence }
func (s *Session) SetSequence(n int)    { s.sequence = n }
func (s *Session) CreatedAt() time.Time { return s.StartedAt }

// Finished reports whether the session has an end time.
func (s *Session) Finished() bool { return s.EndedAt != nil }

// Duration is the Active time of the session. Unfinished sessions are measured up to now.
func (s *Session) Duration(now time.Time) time.Duration {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}

// Validate checks required fields.
func (s *Session) Validate() error {
	if s.id == "" {
		return fmt.Errorf("session id is required")
	}
	if s.StartedAt.IsZero() {
		return fmt.Errorf("session start time is required")
	}
	if s.EndedAt != nil && s.EndedAt.Before(s.StartedAt) {
		return fmt.Errorf("session ends before it starts")
	}
	switch s.EndReason {
	case "", EndStopped, EndTimeout, EndAbandoned:
	default:
		return fmt.Errorf("unknown end reason %q", s.EndReason)
	}
	return nil
}

// ItemStatus is the outcome of one queued download.
type ItemStatus string

const (
	ItemCompleted ItemStatus = "completed"
	ItemSkipped   ItemStatus = "skipped" // duplicate already on disk
	ItemFailed    ItemStatus = "failed"
	ItemCancelled ItemStatus = "cancelled"
)

// SessionItem records one download attempted during a session.
type SessionItem struct {
	ID         string
	SessionID  string
	Position   int
	TrackName  string
	ArtistName string
	ISRC       string
	Status     ItemStatus
	Error      string
	CreatedAt  time.Time
}
