package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned when a session ID is not in the registry.
var ErrSessionNotFound = errors.New("session not found")

const timeLayout = "2006-01-02 15:04:05.999"

func (s *SQLiteStore) CreateSession(rec SessionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.LastActivity.IsZero() {
		rec.LastActivity = rec.CreatedAt
	}
	query := "INSERT INTO sessions (id, role_name, phase, turn_counter, created_at, last_activity) VALUES (?, ?, ?, ?, ?, ?)"
	_, err := s.db.Exec(query, rec.ID, rec.RoleName, rec.Phase, rec.TurnCounter,
		rec.CreatedAt.UTC().Format(timeLayout), rec.LastActivity.UTC().Format(timeLayout))
	return err
}

func (s *SQLiteStore) GetSession(id string) (*SessionRecord, error) {
	query := "SELECT id, role_name, phase, turn_counter, created_at, last_activity FROM sessions WHERE id = ?"
	var rec SessionRecord
	var createdAt, lastActivity string
	err := s.db.QueryRow(query, id).Scan(&rec.ID, &rec.RoleName, &rec.Phase, &rec.TurnCounter, &createdAt, &lastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	rec.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	rec.LastActivity, _ = time.Parse(timeLayout, lastActivity)
	return &rec, nil
}

func (s *SQLiteStore) UpdateSession(rec SessionRecord) error {
	query := "UPDATE sessions SET role_name = ?, phase = ?, turn_counter = ?, last_activity = ? WHERE id = ?"
	res, err := s.db.Exec(query, rec.RoleName, rec.Phase, rec.TurnCounter,
		time.Now().UTC().Format(timeLayout), rec.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, rec.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(id string) error {
	if _, err := s.db.Exec("DELETE FROM turns WHERE session_id = ?", id); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	return err
}

func (s *SQLiteStore) ListSessions() ([]SessionRecord, error) {
	query := "SELECT id, role_name, phase, turn_counter, created_at, last_activity FROM sessions ORDER BY created_at"
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var createdAt, lastActivity string
		if err := rows.Scan(&rec.ID, &rec.RoleName, &rec.Phase, &rec.TurnCounter, &createdAt, &lastActivity); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		rec.LastActivity, _ = time.Parse(timeLayout, lastActivity)
		sessions = append(sessions, rec)
	}
	return sessions, rows.Err()
}

// DeleteIdleSessions removes sessions idle since before cutoff, returning the
// removed IDs so callers can drop in-memory state for them too.
func (s *SQLiteStore) DeleteIdleSessions(cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query("SELECT id FROM sessions WHERE last_activity < ?", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if err := s.DeleteSession(id); err != nil {
			return nil, err
		}
	}
	if len(ids) > 0 {
		s.logger.Info("evicted idle sessions", "count", len(ids))
	}
	return ids, nil
}

func (s *SQLiteStore) AppendTurn(rec TurnRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	query := "INSERT INTO turns (session_id, seq, speaker, text, created_at) VALUES (?, ?, ?, ?, ?)"
	_, err := s.db.Exec(query, rec.SessionID, rec.Seq, rec.Speaker, rec.Text,
		rec.CreatedAt.UTC().Format(timeLayout))
	return err
}

func (s *SQLiteStore) GetTurns(sessionID string) ([]TurnRecord, error) {
	query := "SELECT id, session_id, seq, speaker, text, created_at FROM turns WHERE session_id = ? ORDER BY seq"
	rows, err := s.db.Query(query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []TurnRecord
	for rows.Next() {
		var rec TurnRecord
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Seq, &rec.Speaker, &rec.Text, &createdAt); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		turns = append(turns, rec)
	}
	return turns, rows.Err()
}

func (s *SQLiteStore) ClearTurns(sessionID string) error {
	_, err := s.db.Exec("DELETE FROM turns WHERE session_id = ?", sessionID)
	return err
}
