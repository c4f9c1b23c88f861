package fsm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deckforge/orchestrator/internal/classifier"
	"github.com/deckforge/orchestrator/internal/envelope"
	"github.com/deckforge/orchestrator/internal/intent"
	"github.com/deckforge/orchestrator/internal/llm"
	"github.com/deckforge/orchestrator/internal/session"
)

const historyContextLimit = 12

// enterGenerateStrawman handles the transition out of
// CREATE_CONFIRMATION_PLAN once the plan is accepted.
func (m *Machine) enterGenerateStrawman(ctx context.Context, sess session.Session) ([]envelope.Event, error) {
	history, err := m.store.LoadHistory(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("fsm: load history: %w", err)
	}

	resp, err := m.provider.Complete(ctx, llm.Request{
		Model:       m.modelOrDefault(m.cfg.StrawmanModel),
		System:      strawmanSystemPrompt,
		Messages:    conversationMessages(history),
		Temperature: m.cfg.StrawmanTemp,
	})
	if err != nil {
		return nil, fmt.Errorf("fsm: generate strawman: %w", err)
	}

	strawman, err := decodeStrawman(resp.Text)
	if err != nil {
		return nil, err
	}
	strawman.Slides = classifier.Classify(m.reg, strawman.Slides, strawman.TargetAudience)

	if m.cfg.EnablePreview {
		previewURL, previewID, err := m.deck.Preview(ctx, sess.ID, strawman)
		if err != nil {
			m.logger.Warn(ctx, "preview render failed", "session_id", sess.ID, "error", err.Error())
		} else {
			strawman.PreviewURL = previewURL
			strawman.PreviewPresentationID = previewID
		}
	}

	sess.Strawman = &strawman
	sess.CurrentState = session.StateGenerateStrawman
	if err := m.saveState(ctx, sess); err != nil {
		return nil, err
	}

	events := envelope.PackageStrawman(sess.ID, strawman)
	if err := m.appendAssistant(ctx, sess.ID, session.StateGenerateStrawman, "strawman_preview", strawman.MainTitle, events[0].MessageID()); err != nil {
		return nil, err
	}
	return events, nil
}

// handleStrawmanCycle classifies the user's reply to a presented strawman
// and dispatches to acceptance, refinement, variant override, or free-form
// edit (treated as an implicit refinement request).
func (m *Machine) handleStrawmanCycle(ctx context.Context, sess session.Session, text string) ([]envelope.Event, error) {
	in, err := m.router.Classify(ctx, sess.CurrentState, text)
	if err != nil {
		return nil, fmt.Errorf("fsm: classify strawman response: %w", err)
	}

	switch in {
	case intent.IntentAcceptStrawman:
		return m.enterContentGeneration(ctx, sess)
	case intent.IntentVariantOverride:
		return m.handleVariantOverride(ctx, sess, text)
	case intent.IntentRequestRefinement, intent.IntentFreeFormEdit:
		return m.handleRefinement(ctx, sess, text)
	default:
		msg := envelope.NewChatMessage(sess.ID, session.RoleAssistant, "Please Accept or Refine the strawman to continue.")
		if err := m.appendAssistant(ctx, sess.ID, sess.CurrentState, "", msg.Text, msg.MessageID()); err != nil {
			return nil, err
		}
		return []envelope.Event{msg, envelope.NewActionRequest(sess.ID, envelope.AcceptRefineActions())}, nil
	}
}

// handleRefinement asks the LLM for a list of UPDATE/CREATE/DELETE
// operations against the current strawman, applies them, and re-runs the
// classifier before re-emitting the strawman to the client. VARIANT_OVERRIDE
// entries in the returned op list are ignored.
func (m *Machine) handleRefinement(ctx context.Context, sess session.Session, instruction string) ([]envelope.Event, error) {
	if sess.Strawman == nil {
		return nil, fmt.Errorf("fsm: session %s has no strawman to refine", sess.ID)
	}

	current, err := json.Marshal(sess.Strawman)
	if err != nil {
		return nil, fmt.Errorf("fsm: encode current strawman: %w", err)
	}

	resp, err := m.provider.Complete(ctx, llm.Request{
		Model:  m.modelOrDefault(m.cfg.RefinementModel),
		System: refinementSystemPrompt,
		Messages: []llm.Message{
			{Role: session.RoleAssistant, Content: string(current)},
			{Role: session.RoleUser, Content: instruction},
		},
		Temperature: m.cfg.RefinementTemp,
	})
	if err != nil {
		return nil, fmt.Errorf("fsm: refine strawman: %w", err)
	}

	ops, err := decodeRefinementOps(resp.Text)
	if err != nil {
		return nil, err
	}

	slides, err := applyRefinementOps(sess.Strawman.Slides, ops)
	if err != nil {
		return nil, err
	}
	slides = classifier.Classify(m.reg, slides, sess.Strawman.TargetAudience)

	strawman := *sess.Strawman
	strawman.Slides = slides
	sess.Strawman = &strawman
	sess.CurrentState = session.StateRefineStrawman
	if err := m.saveState(ctx, sess); err != nil {
		return nil, err
	}

	events := envelope.PackageStrawman(sess.ID, strawman)
	if err := m.appendAssistant(ctx, sess.ID, session.StateRefineStrawman, "strawman_preview", strawman.MainTitle, events[0].MessageID()); err != nil {
		return nil, err
	}
	return events, nil
}

// handleVariantOverride asks the LLM to extract the targeted slide number
// and variant_id from free text, applies the override directly (bypassing
// keyword classification), and surfaces any diversity-rule warning the
// override introduces without undoing it.
func (m *Machine) handleVariantOverride(ctx context.Context, sess session.Session, text string) ([]envelope.Event, error) {
	if sess.Strawman == nil {
		return nil, fmt.Errorf("fsm: session %s has no strawman to override", sess.ID)
	}

	slideNumber, variantID, err := m.extractVariantOverride(ctx, text)
	if err != nil {
		return nil, err
	}

	warning, err := applyVariantOverride(m.reg, sess.Strawman.Slides, slideNumber, variantID, sess.Strawman.TargetAudience)
	if err != nil {
		msg := envelope.NewChatMessage(sess.ID, session.RoleAssistant, err.Error())
		if aerr := m.appendAssistant(ctx, sess.ID, sess.CurrentState, "", msg.Text, msg.MessageID()); aerr != nil {
			return nil, aerr
		}
		return []envelope.Event{msg}, nil
	}

	sess.CurrentState = session.StateRefineStrawman
	if err := m.saveState(ctx, sess); err != nil {
		return nil, err
	}

	events := envelope.PackageStrawman(sess.ID, *sess.Strawman)
	entryID := events[0].MessageID()
	if warning != "" {
		events = append([]envelope.Event{envelope.NewStatusUpdate(sess.ID, "diversity_warning", warning)}, events...)
	}
	if err := m.appendAssistant(ctx, sess.ID, session.StateRefineStrawman, "strawman_preview", sess.Strawman.MainTitle, entryID); err != nil {
		return nil, err
	}
	return events, nil
}

func (m *Machine) extractVariantOverride(ctx context.Context, text string) (int, string, error) {
	resp, err := m.provider.Complete(ctx, llm.Request{
		Model: m.modelOrDefault(m.cfg.IntentModel),
		System: "Extract the slide number and desired variant_id from the user's request. " +
			"Respond with only a JSON object {\"slide_number\": N, \"variant_id\": \"...\"}.",
		Messages:    []llm.Message{{Role: session.RoleUser, Content: text}},
		Temperature: 0,
	})
	if err != nil {
		return 0, "", fmt.Errorf("fsm: extract variant override: %w", err)
	}

	var out struct {
		SlideNumber int    `json:"slide_number"`
		VariantID   string `json:"variant_id"`
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &out); err != nil {
		return 0, "", fmt.Errorf("fsm: decode variant override: %w", err)
	}
	return out.SlideNumber, out.VariantID, nil
}

// conversationMessages converts the stored turns of history (user and
// assistant alike) into llm.Message, capped to the most recent historyContextLimit entries so
// the strawman-generation prompt stays bounded.
func conversationMessages(history []session.Entry) []llm.Message {
	start := 0
	if len(history) > historyContextLimit {
		start = len(history) - historyContextLimit
	}
	out := make([]llm.Message, 0, len(history)-start)
	for _, e := range history[start:] {
		out = append(out, llm.Message{Role: e.Role, Content: e.Content})
	}
	return out
}
