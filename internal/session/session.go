// Package session owns the conversation state machine for one learner: the
// ordered transcript, the exchange counter, and the session lifecycle. A
// Session is exclusively owned by one client and is only mutated through the
// Controller; appends are the only permitted transcript mutation.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/firstday-app/firstday/internal/roles"
)

var (
	// ErrInvalidPhase is returned when an operation is attempted outside its
	// valid lifecycle phase. The session is left untouched.
	ErrInvalidPhase = errors.New("operation not valid in current session phase")

	// ErrEmptyCredential blocks the transition out of AwaitingCredential.
	ErrEmptyCredential = errors.New("credential must not be empty")

	// ErrEmptyMessage rejects a blank user submission before any mutation.
	ErrEmptyMessage = errors.New("message must not be empty")
)

// Phase is the session lifecycle state.
type Phase string

const (
	PhaseAwaitingCredential    Phase = "awaiting_credential"
	PhaseAwaitingRoleSelection Phase = "awaiting_role_selection"
	PhaseActive                Phase = "active"
)

// Speaker identifies the author of a turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one message in the simulated conversation.
type Turn struct {
	Speaker Speaker
	Text    string
	Seq     int
}

// Session holds all per-learner state. The credential lives here in process
// memory for the session's lifetime and is never persisted.
type Session struct {
	ID         string
	Role       *roles.Role
	Credential string
	Transcript []Turn

	// TurnCounter starts at 1 and equals 1 + completed user/assistant
	// exchanges. The bootstrap generation does not advance it. It doubles as
	// the displayed ticket/email number.
	TurnCounter int

	Phase        Phase
	CreatedAt    time.Time
	LastActivity time.Time
}

// New creates a fresh session awaiting its credential.
func New(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		Phase:        PhaseAwaitingCredential,
		TurnCounter:  1,
		CreatedAt:    now,
		LastActivity: now,
	}
}

// SubmitCredential moves AwaitingCredential -> AwaitingRoleSelection. An
// empty credential fails the transition and mutates nothing.
func (s *Session) SubmitCredential(credential string) error {
	if s.Phase != PhaseAwaitingCredential {
		return fmt.Errorf("%w: credential already submitted", ErrInvalidPhase)
	}
	if credential == "" {
		return ErrEmptyCredential
	}
	s.Credential = credential
	s.Phase = PhaseAwaitingRoleSelection
	s.touch()
	return nil
}

// Activate moves AwaitingRoleSelection -> Active for the chosen role,
// clearing any prior transcript. The caller (Controller) must follow up with
// the bootstrap generation before accepting user input.
func (s *Session) Activate(role roles.Role) error {
	if s.Phase != PhaseAwaitingRoleSelection {
		return fmt.Errorf("%w: role selection not available", ErrInvalidPhase)
	}
	s.Role = &role
	s.Transcript = nil
	s.TurnCounter = 1
	s.Phase = PhaseActive
	s.touch()
	return nil
}

// StartOver moves Active -> AwaitingRoleSelection, clearing transcript and
// role. The credential survives so the learner does not re-enter the key.
func (s *Session) StartOver() error {
	if s.Phase != PhaseActive {
		return fmt.Errorf("%w: no active simulation to reset", ErrInvalidPhase)
	}
	s.Role = nil
	s.Transcript = nil
	s.TurnCounter = 1
	s.Phase = PhaseAwaitingRoleSelection
	s.touch()
	return nil
}

// AppendUserTurn appends a learner message. Valid only in Active phase, and
// only after the opening assistant turn exists: the transcript strictly
// alternates starting with Assistant.
func (s *Session) AppendUserTurn(text string) error {
	if s.Phase != PhaseActive {
		return fmt.Errorf("%w: simulation not active", ErrInvalidPhase)
	}
	if len(s.Transcript) == 0 {
		return fmt.Errorf("%w: opening scenario not generated yet", ErrInvalidPhase)
	}
	if last := s.Transcript[len(s.Transcript)-1]; last.Speaker != SpeakerAssistant {
		return fmt.Errorf("%w: awaiting assistant reply", ErrInvalidPhase)
	}
	s.Transcript = append(s.Transcript, Turn{
		Speaker: SpeakerUser,
		Text:    text,
		Seq:     len(s.Transcript),
	})
	s.touch()
	return nil
}

// AppendAssistantTurn appends a generated (or synthetic error) message. The
// transcript must be empty or end with a user turn.
func (s *Session) AppendAssistantTurn(text string) error {
	if s.Phase != PhaseActive {
		return fmt.Errorf("%w: simulation not active", ErrInvalidPhase)
	}
	if len(s.Transcript) > 0 && s.Transcript[len(s.Transcript)-1].Speaker != SpeakerUser {
		return fmt.Errorf("%w: assistant turn already present", ErrInvalidPhase)
	}
	s.Transcript = append(s.Transcript, Turn{
		Speaker: SpeakerAssistant,
		Text:    text,
		Seq:     len(s.Transcript),
	})
	s.touch()
	return nil
}

// LastAssistantText returns the text of the most recent assistant turn, or ""
// if there is none.
func (s *Session) LastAssistantText() string {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Speaker == SpeakerAssistant {
			return s.Transcript[i].Text
		}
	}
	return ""
}

// RoleName returns the selected role's name, or "" before selection.
func (s *Session) RoleName() string {
	if s.Role == nil {
		return ""
	}
	return s.Role.Name
}

func (s *Session) touch() {
	s.LastActivity = time.Now()
}
