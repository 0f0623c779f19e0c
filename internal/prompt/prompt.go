// Package prompt classifies learner input into one of four intents and
// renders the instruction text sent to the model for that intent. Templates
// live in an embedded YAML document and are rendered with text/template
// through typed parameter structs.
//
// Classification is pure and deterministic: it depends only on the user text
// and on whether the transcript is empty, and it must run before any session
// state is mutated.
package prompt

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

// HintMarker is the literal token a hint request must start with.
const HintMarker = "[HINT]"

// noviceTriggers are matched as case-sensitive literal substrings. The set is
// intentionally narrow and is kept exactly as shipped; do not expand it.
var noviceTriggers = []string{
	"I don't know how to respond",
	"I'm new",
	"I'm a fresher",
}

// Intent is the classification of one user input.
type Intent string

const (
	IntentHint           Intent = "hint"
	IntentNoviceGuidance Intent = "novice_guidance"
	IntentBootstrap      Intent = "bootstrap"
	IntentFollowUp       Intent = "follow_up"
)

// Classify picks exactly one intent for the given input. Priority is fixed:
// hint marker, then novice triggers, then bootstrap on an empty transcript,
// then the follow-up fallback. Total: every input classifies.
func Classify(userText string, transcriptEmpty bool) Intent {
	if strings.HasPrefix(userText, HintMarker) {
		return IntentHint
	}
	for _, trigger := range noviceTriggers {
		if strings.Contains(userText, trigger) {
			return IntentNoviceGuidance
		}
	}
	if transcriptEmpty {
		return IntentBootstrap
	}
	return IntentFollowUp
}

// Shortcuts are the three fixed help texts the rendering collaborator may
// submit on the learner's behalf.
type Shortcuts struct {
	Hint          string `yaml:"hint" json:"hint"`
	DontKnow      string `yaml:"dont_know" json:"dont_know"`
	BestPractices string `yaml:"best_practices" json:"best_practices"`
}

// Input carries everything Build needs for one classification + render.
type Input struct {
	UserText          string
	Instructions      string // role instructions, used by the bootstrap intent
	LastAssistantText string // most recent assistant turn, used by the hint intent
	TranscriptEmpty   bool
}

// Builder renders intent templates. Safe for concurrent use after creation.
type Builder struct {
	templates map[Intent]*template.Template
	shortcuts Shortcuts
}

// NewBuilder parses the embedded templates.
func NewBuilder() (*Builder, error) {
	return NewBuilderFromYAML(defaultTemplates)
}

// NewBuilderFromYAML parses templates from a YAML document.
func NewBuilderFromYAML(data []byte) (*Builder, error) {
	var doc struct {
		Prompts   map[string]string `yaml:"prompts"`
		Shortcuts Shortcuts         `yaml:"shortcuts"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse prompt templates: %w", err)
	}

	b := &Builder{
		templates: make(map[Intent]*template.Template),
		shortcuts: doc.Shortcuts,
	}
	for _, intent := range []Intent{IntentBootstrap, IntentHint, IntentNoviceGuidance, IntentFollowUp} {
		text, ok := doc.Prompts[string(intent)]
		if !ok {
			return nil, fmt.Errorf("missing template for intent %q", intent)
		}
		tmpl, err := template.New(string(intent)).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %q: %w", intent, err)
		}
		b.templates[intent] = tmpl
	}
	return b, nil
}

// Shortcuts returns the canned help texts.
func (b *Builder) Shortcuts() Shortcuts {
	return b.shortcuts
}

// Build classifies the input and renders the matching template. Pure: no I/O,
// no state mutation, deterministic for a given input.
func (b *Builder) Build(in Input) (Intent, string, error) {
	intent := Classify(in.UserText, in.TranscriptEmpty)

	var params any
	switch intent {
	case IntentBootstrap:
		params = BootstrapParams{Instructions: in.Instructions}
	case IntentHint:
		params = HintParams{Scenario: in.LastAssistantText}
	case IntentNoviceGuidance:
		params = NoviceGuidanceParams{UserMessage: in.UserText}
	default:
		params = FollowUpParams{UserMessage: in.UserText}
	}

	var sb strings.Builder
	if err := b.templates[intent].Execute(&sb, params); err != nil {
		return intent, "", fmt.Errorf("failed to render %q template: %w", intent, err)
	}
	return intent, sb.String(), nil
}
