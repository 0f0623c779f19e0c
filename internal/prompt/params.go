package prompt

// Typed parameter structs for the prompt templates. Using structs instead of
// positional fmt args keeps template changes compile-checked at the call site.

// BootstrapParams for the bootstrap template. Sent once per session, before
// any user turn, to generate the opening scenario email.
type BootstrapParams struct {
	Instructions string // Role-specific simulation instructions from the catalog
}

// HintParams for the hint template.
type HintParams struct {
	Scenario string // Text of the most recent assistant turn, empty if none
}

// NoviceGuidanceParams for the novice_guidance template.
type NoviceGuidanceParams struct {
	UserMessage string // Raw user text, passed verbatim
}

// FollowUpParams for the follow_up template.
type FollowUpParams struct {
	UserMessage string // Raw user text, embedded verbatim in the directive
}
