// Package gateway defines the adapter boundary to the external
// chat-completion model. Providers live in subpackages; callers only see the
// Gateway interface and the typed Error.
//
// The gateway is stateless: the prior transcript is resent in full on every
// call. The external model retains nothing between calls beyond what the
// history carries, so this reconstruction is part of the contract, not an
// optimization target.
package gateway

import (
	"context"
	"fmt"
)

// History roles as the external API expects them. User turns map to "user",
// assistant turns to "model", order preserved.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// HistoryTurn is one prior message in the conversation.
type HistoryTurn struct {
	Role string
	Text string
}

// GenerateRequest carries one rendered prompt plus the context to replay.
type GenerateRequest struct {
	// Prompt is the rendered instruction text for this turn. It is sent as
	// the final user message after History.
	Prompt string

	// History is the prior transcript in order. May be empty (bootstrap).
	History []HistoryTurn

	// Credential is the per-session API key. Held in memory only; providers
	// must never log it.
	Credential string
}

// GenerateResult is a successful generation.
type GenerateResult struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Gateway produces the next simulated message. Implementations block until
// the call completes or ctx is done, and return *Error for every failure
// mode: auth, quota, network fault, malformed or empty response. They never
// panic past this boundary.
type Gateway interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}

// Error is the typed failure every provider returns. Message is safe to show
// to the learner; Err carries the underlying cause for logs.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WrapError builds a typed gateway error around a cause.
func WrapError(message string, err error) *Error {
	return &Error{Message: message, Err: err}
}
