// Package intent classifies inbound user input into a closed, per-state
// intent set. A literal match against a known button value short-circuits
// the LLM; otherwise the router asks the LLM to label the input against the
// current state's intent set.
package intent

import (
	"context"
	"strings"

	"github.com/deckforge/orchestrator/internal/llm"
	"github.com/deckforge/orchestrator/internal/session"
)

// Intent is one closed-set classification result.
type Intent string

const (
	IntentAcceptPlan        Intent = "accept_plan"
	IntentRejectPlan        Intent = "reject_plan"
	IntentAcceptStrawman    Intent = "accept_strawman"
	IntentRequestRefinement Intent = "request_refinement"
	IntentVariantOverride   Intent = "variant_override"
	IntentFreeFormEdit      Intent = "free_form_edit"
	IntentAck               Intent = "ack"
	IntentRestart           Intent = "restart"
)

// setForState returns the closed intent set valid for state, and whether
// the state has one at all (PROVIDE_GREETING and ASK_CLARIFYING_QUESTIONS
// do not classify intent; any reply simply advances the state machine).
func setForState(state session.DialogState) ([]Intent, bool) {
	switch state {
	case session.StateCreateConfirmationPlan:
		return []Intent{IntentAcceptPlan, IntentRejectPlan}, true
	case session.StateGenerateStrawman, session.StateRefineStrawman:
		return []Intent{IntentAcceptStrawman, IntentRequestRefinement, IntentVariantOverride, IntentFreeFormEdit}, true
	case session.StateTerminal:
		return []Intent{IntentAck, IntentRestart}, true
	default:
		return nil, false
	}
}

// Router classifies user input into an Intent, falling back to the LLM
// provider when no literal value match is found.
type Router struct {
	provider llm.Provider
	model    string
}

// NewRouter constructs a Router backed by provider, using model for its LLM
// fallback classification calls. model may be empty, in which case the
// provider applies its own default.
func NewRouter(provider llm.Provider, model string) *Router {
	return &Router{provider: provider, model: model}
}

// Classify returns the intent for userText given state. If userText exactly
// matches a known action value for state, that intent is returned directly
// without invoking the LLM. Otherwise the LLM is asked to choose among the
// closed set; an unrecognized response maps to IntentFreeFormEdit.
func (r *Router) Classify(ctx context.Context, state session.DialogState, userText string) (Intent, error) {
	set, hasSet := setForState(state)
	if !hasSet {
		return "", nil
	}

	trimmed := strings.TrimSpace(userText)
	for _, i := range set {
		if string(i) == trimmed {
			return i, nil
		}
	}

	label, err := r.provider.Complete(ctx, llm.Request{
		Model:       r.model,
		Temperature: 0,
		System:      systemPrompt(state, set),
		Messages:    []llm.Message{{Role: session.RoleUser, Content: userText}},
	})
	if err != nil {
		return "", err
	}

	normalized := strings.TrimSpace(strings.ToLower(label.Text))
	for _, i := range set {
		if string(i) == normalized {
			return i, nil
		}
	}
	return IntentFreeFormEdit, nil
}

func systemPrompt(state session.DialogState, set []Intent) string {
	labels := make([]string, len(set))
	for i, v := range set {
		labels[i] = string(v)
	}
	return "Classify the user's message for dialog state " + string(state) +
		" into exactly one of: " + strings.Join(labels, ", ") +
		". Respond with only the label."
}
