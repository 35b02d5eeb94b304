// Package session defines the hand-off marker recorded while a task is in
// progress.
package session

import "time"

// Session marks one open hand-off of a task to the coding agent.
type Session struct {
	ID        string    `json:"sessionId"`
	TaskID    string    `json:"taskId"`
	Active    bool      `json:"active"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt,omitzero"`
}

// Close marks the session inactive at the given time.
func (s *Session) Close(at time.Time) {
	s.Active = false
	s.EndedAt = at
}
