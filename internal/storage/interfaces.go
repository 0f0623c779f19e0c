package storage

import "time"

// SessionRepository handles session registry operations.
type SessionRepository interface {
	CreateSession(rec SessionRecord) error
	GetSession(id string) (*SessionRecord, error)
	UpdateSession(rec SessionRecord) error
	DeleteSession(id string) error
	ListSessions() ([]SessionRecord, error)
	DeleteIdleSessions(cutoff time.Time) ([]string, error)
}

// TurnRepository handles transcript persistence.
type TurnRepository interface {
	AppendTurn(rec TurnRecord) error
	GetTurns(sessionID string) ([]TurnRecord, error)
	ClearTurns(sessionID string) error
}
