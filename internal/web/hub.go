package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/firstday-app/firstday/internal/session"
	"github.com/firstday-app/firstday/internal/storage"
)

// Hub owns the live sessions. Each entry carries its own lock so concurrent
// requests for different sessions never block each other, while requests for
// the same session serialize. Session records and transcripts are written
// through to the registry after every mutation; credentials stay in the
// in-memory Session only.
type Hub struct {
	mu      sync.Mutex
	entries map[string]*hubEntry

	sessions storage.SessionRepository
	turns    storage.TurnRepository
	logger   *slog.Logger
}

type hubEntry struct {
	mu   sync.Mutex
	sess *session.Session

	// persistedTurns is how many transcript turns are already in the
	// registry. Resets to zero when the transcript is cleared.
	persistedTurns int
}

func NewHub(logger *slog.Logger, sessions storage.SessionRepository, turns storage.TurnRepository) *Hub {
	return &Hub{
		entries:  make(map[string]*hubEntry),
		sessions: sessions,
		turns:    turns,
		logger:   logger.With("component", "hub"),
	}
}

func newSessionID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// Create makes a fresh session, registers it, and returns it.
func (h *Hub) Create() (*session.Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	sess := session.New(id)

	if err := h.sessions.CreateSession(recordFromSession(sess)); err != nil {
		return nil, fmt.Errorf("failed to register session: %w", err)
	}

	h.mu.Lock()
	h.entries[id] = &hubEntry{sess: sess}
	sessionsActive.Set(float64(len(h.entries)))
	h.mu.Unlock()

	h.logger.Info("session created", "session_id", id)
	return sess, nil
}

// With runs fn against the session under its lock, then writes the session
// record and any new transcript turns through to the registry. Registry write
// failures are logged, not surfaced: the live session is the source of truth.
func (h *Hub) With(id string, fn func(*session.Session) error) error {
	h.mu.Lock()
	entry, ok := h.entries[id]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrSessionNotFound, id)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	fnErr := fn(entry.sess)
	h.sync(entry)
	return fnErr
}

func (h *Hub) sync(entry *hubEntry) {
	sess := entry.sess

	if err := h.sessions.UpdateSession(recordFromSession(sess)); err != nil {
		h.logger.Warn("failed to update session record", "session_id", sess.ID, "error", err)
	}

	// A shrunk transcript means the session was reset or a role was
	// re-selected, so start the persisted copy over.
	if len(sess.Transcript) < entry.persistedTurns {
		if err := h.turns.ClearTurns(sess.ID); err != nil {
			h.logger.Warn("failed to clear persisted turns", "session_id", sess.ID, "error", err)
			return
		}
		entry.persistedTurns = 0
	}

	for _, turn := range sess.Transcript[entry.persistedTurns:] {
		err := h.turns.AppendTurn(storage.TurnRecord{
			SessionID: sess.ID,
			Seq:       turn.Seq,
			Speaker:   string(turn.Speaker),
			Text:      turn.Text,
		})
		if err != nil {
			h.logger.Warn("failed to persist turn", "session_id", sess.ID, "seq", turn.Seq, "error", err)
			return
		}
		entry.persistedTurns++
	}
}

// Len reports how many sessions are live.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Run evicts idle sessions until ctx is done. Blocks; run it in a goroutine.
func (h *Hub) Run(ctx context.Context, idleTimeout time.Duration) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.evictIdle(time.Now().Add(-idleTimeout))
		}
	}
}

func (h *Hub) evictIdle(cutoff time.Time) {
	ids, err := h.sessions.DeleteIdleSessions(cutoff)
	if err != nil {
		h.logger.Error("idle eviction failed", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	h.mu.Lock()
	for _, id := range ids {
		delete(h.entries, id)
	}
	sessionsActive.Set(float64(len(h.entries)))
	h.mu.Unlock()

	sessionsEvictedTotal.Add(float64(len(ids)))
}

func recordFromSession(sess *session.Session) storage.SessionRecord {
	return storage.SessionRecord{
		ID:           sess.ID,
		RoleName:     sess.RoleName(),
		Phase:        string(sess.Phase),
		TurnCounter:  sess.TurnCounter,
		CreatedAt:    sess.CreatedAt,
		LastActivity: sess.LastActivity,
	}
}
