package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firstday-app/firstday/internal/gateway"
	"github.com/firstday-app/firstday/internal/prompt"
	"github.com/firstday-app/firstday/internal/roles"
)

// Controller orchestrates full exchanges against a Session. It is the only
// component that mutates session state; all side effects stay inside the
// session value passed in.
type Controller struct {
	catalog *roles.Catalog
	builder *prompt.Builder
	gw      gateway.Gateway
	logger  *slog.Logger
}

// NewController wires the controller's collaborators.
func NewController(logger *slog.Logger, catalog *roles.Catalog, builder *prompt.Builder, gw gateway.Gateway) *Controller {
	return &Controller{
		catalog: catalog,
		builder: builder,
		gw:      gw,
		logger:  logger.With("component", "session_controller"),
	}
}

// SubmitCredential stores the learner's API key on the session.
func (c *Controller) SubmitCredential(sess *Session, credential string) error {
	return sess.SubmitCredential(credential)
}

// SelectRole activates the chosen role and synchronously generates the
// opening scenario email, so the session is never left with an empty inbox.
// Exactly one bootstrap-intent generation happens per activation; it does not
// advance the exchange counter.
func (c *Controller) SelectRole(ctx context.Context, sess *Session, roleName string) error {
	if sess.Phase != PhaseAwaitingRoleSelection {
		return fmt.Errorf("%w: role selection not available", ErrInvalidPhase)
	}

	role, err := c.catalog.Get(roleName)
	if err != nil {
		return err
	}

	intent, rendered, err := c.builder.Build(prompt.Input{
		Instructions:    role.Instructions,
		TranscriptEmpty: true,
	})
	if err != nil {
		return err
	}

	if err := sess.Activate(role); err != nil {
		return err
	}

	result, genErr := c.gw.Generate(ctx, gateway.GenerateRequest{
		Prompt:     rendered,
		Credential: sess.Credential,
	})

	text := result.Text
	status := statusOK
	if genErr != nil {
		text = visibleErrorText(genErr)
		status = statusGatewayError
		c.logger.Warn("bootstrap generation failed",
			"session_id", sess.ID,
			"role", role.Name,
			"error", genErr,
		)
	}
	recordGeneration(intent, status)

	if err := sess.AppendAssistantTurn(text); err != nil {
		return err
	}

	c.logger.Info("simulation started",
		"session_id", sess.ID,
		"role", role.Name,
		"bootstrap_ok", genErr == nil,
	)
	return nil
}

// Exchange runs one full user -> assistant exchange:
// classify and render the prompt, append the user turn, call the gateway with
// the prior transcript, and append exactly one final assistant turn. A
// gateway failure produces a synthetic, user-visible error turn so the
// learner's submission is never lost and the counter still advances. A
// cancelled call commits nothing.
func (c *Controller) Exchange(ctx context.Context, sess *Session, userText string) error {
	if sess.Phase != PhaseActive {
		return fmt.Errorf("%w: simulation not active", ErrInvalidPhase)
	}
	if userText == "" {
		return ErrEmptyMessage
	}

	// Classification happens before any state mutation.
	intent, rendered, err := c.builder.Build(prompt.Input{
		UserText:          userText,
		Instructions:      sess.Role.Instructions,
		LastAssistantText: sess.LastAssistantText(),
		TranscriptEmpty:   len(sess.Transcript) == 0,
	})
	if err != nil {
		return err
	}

	if err := sess.AppendUserTurn(userText); err != nil {
		return err
	}

	// Prior transcript excludes the turn just appended.
	prior := historyFromTranscript(sess.Transcript[:len(sess.Transcript)-1])

	result, genErr := c.gw.Generate(ctx, gateway.GenerateRequest{
		Prompt:     rendered,
		History:    prior,
		Credential: sess.Credential,
	})

	if genErr != nil && ctx.Err() != nil {
		// The client abandoned the call. Roll back the uncommitted user turn
		// so the transcript holds no half-finished exchange.
		sess.Transcript = sess.Transcript[:len(sess.Transcript)-1]
		recordGeneration(intent, statusCancelled)
		return fmt.Errorf("generation abandoned: %w", ctx.Err())
	}

	text := result.Text
	status := statusOK
	if genErr != nil {
		text = visibleErrorText(genErr)
		status = statusGatewayError
		c.logger.Warn("generation failed, committing synthetic assistant turn",
			"session_id", sess.ID,
			"intent", intent,
			"error", genErr,
		)
	}
	recordGeneration(intent, status)

	if err := sess.AppendAssistantTurn(text); err != nil {
		return err
	}
	sess.TurnCounter++

	c.logger.Info("exchange completed",
		"session_id", sess.ID,
		"intent", intent,
		"turn_counter", sess.TurnCounter,
		"transcript_len", len(sess.Transcript),
	)
	return nil
}

// StartOver resets the simulation back to role selection.
func (c *Controller) StartOver(sess *Session) error {
	if err := sess.StartOver(); err != nil {
		return err
	}
	c.logger.Info("session reset", "session_id", sess.ID)
	return nil
}

// historyFromTranscript maps session turns into the gateway's history shape:
// user turns to "user", assistant turns to "model", order preserved.
func historyFromTranscript(turns []Turn) []gateway.HistoryTurn {
	if len(turns) == 0 {
		return nil
	}
	history := make([]gateway.HistoryTurn, 0, len(turns))
	for _, t := range turns {
		role := gateway.RoleUser
		if t.Speaker == SpeakerAssistant {
			role = gateway.RoleModel
		}
		history = append(history, gateway.HistoryTurn{Role: role, Text: t.Text})
	}
	return history
}

// visibleErrorText renders a gateway failure as the assistant turn the
// learner sees. The typed gateway message is safe for display; anything else
// gets a generic line.
func visibleErrorText(err error) string {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return fmt.Sprintf("Error generating response: %s", gwErr.Message)
	}
	return fmt.Sprintf("Error generating response: %v", err)
}
