package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firstday-app/firstday/internal/roles"
)

func testRole() roles.Role {
	return roles.Role{
		Name:         "Support Engineer",
		Description:  "desc",
		Instructions: "You are simulating a support environment.",
	}
}

func TestNewSession(t *testing.T) {
	s := New("sess-1")
	assert.Equal(t, PhaseAwaitingCredential, s.Phase)
	assert.Equal(t, 1, s.TurnCounter)
	assert.Nil(t, s.Role)
	assert.Empty(t, s.Transcript)
}

func TestSubmitCredential(t *testing.T) {
	s := New("sess-1")

	err := s.SubmitCredential("")
	assert.ErrorIs(t, err, ErrEmptyCredential)
	assert.Equal(t, PhaseAwaitingCredential, s.Phase)

	require.NoError(t, s.SubmitCredential("secret-key"))
	assert.Equal(t, PhaseAwaitingRoleSelection, s.Phase)
	assert.Equal(t, "secret-key", s.Credential)

	// Second submission is out of phase
	err = s.SubmitCredential("another")
	assert.ErrorIs(t, err, ErrInvalidPhase)
	assert.Equal(t, "secret-key", s.Credential)
}

func TestActivate(t *testing.T) {
	s := New("sess-1")

	// Cannot activate before credential
	err := s.Activate(testRole())
	assert.ErrorIs(t, err, ErrInvalidPhase)

	require.NoError(t, s.SubmitCredential("key"))
	require.NoError(t, s.Activate(testRole()))
	assert.Equal(t, PhaseActive, s.Phase)
	assert.Equal(t, "Support Engineer", s.RoleName())
	assert.Empty(t, s.Transcript)
}

func TestStartOver(t *testing.T) {
	s := New("sess-1")
	require.NoError(t, s.SubmitCredential("key"))

	// Nothing to reset before activation
	assert.ErrorIs(t, s.StartOver(), ErrInvalidPhase)

	require.NoError(t, s.Activate(testRole()))
	require.NoError(t, s.AppendAssistantTurn("welcome"))
	require.NoError(t, s.AppendUserTurn("hi"))
	require.NoError(t, s.AppendAssistantTurn("reply"))
	s.TurnCounter++
	require.NoError(t, s.AppendUserTurn("more"))
	require.NoError(t, s.AppendAssistantTurn("again"))
	s.TurnCounter++
	require.Len(t, s.Transcript, 5)

	require.NoError(t, s.StartOver())
	assert.Equal(t, PhaseAwaitingRoleSelection, s.Phase)
	assert.Nil(t, s.Role)
	assert.Empty(t, s.Transcript)
	assert.Equal(t, 1, s.TurnCounter)
	// Credential survives a reset
	assert.Equal(t, "key", s.Credential)
}

func TestAppendAlternation(t *testing.T) {
	s := New("sess-1")
	require.NoError(t, s.SubmitCredential("key"))
	require.NoError(t, s.Activate(testRole()))

	// User input is not accepted before the opening assistant turn
	assert.ErrorIs(t, s.AppendUserTurn("hi"), ErrInvalidPhase)

	require.NoError(t, s.AppendAssistantTurn("opening email"))
	// Two assistant turns in a row are rejected
	assert.ErrorIs(t, s.AppendAssistantTurn("again"), ErrInvalidPhase)

	require.NoError(t, s.AppendUserTurn("my reply"))
	// Two user turns in a row are rejected
	assert.ErrorIs(t, s.AppendUserTurn("another"), ErrInvalidPhase)

	require.NoError(t, s.AppendAssistantTurn("follow-up"))

	// Transcript strictly alternates starting with Assistant
	for i, turn := range s.Transcript {
		assert.Equal(t, i, turn.Seq)
		if i%2 == 0 {
			assert.Equal(t, SpeakerAssistant, turn.Speaker)
		} else {
			assert.Equal(t, SpeakerUser, turn.Speaker)
		}
	}
}

func TestAppendOutsideActive(t *testing.T) {
	s := New("sess-1")
	assert.ErrorIs(t, s.AppendUserTurn("hi"), ErrInvalidPhase)
	assert.ErrorIs(t, s.AppendAssistantTurn("hi"), ErrInvalidPhase)
}

func TestLastAssistantText(t *testing.T) {
	s := New("sess-1")
	assert.Equal(t, "", s.LastAssistantText())

	require.NoError(t, s.SubmitCredential("key"))
	require.NoError(t, s.Activate(testRole()))
	require.NoError(t, s.AppendAssistantTurn("first email"))
	assert.Equal(t, "first email", s.LastAssistantText())

	require.NoError(t, s.AppendUserTurn("reply"))
	assert.Equal(t, "first email", s.LastAssistantText())

	require.NoError(t, s.AppendAssistantTurn("second email"))
	assert.Equal(t, "second email", s.LastAssistantText())
}
