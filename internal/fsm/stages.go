package fsm

import (
	"context"
	"fmt"

	"github.com/deckforge/orchestrator/internal/envelope"
	"github.com/deckforge/orchestrator/internal/intent"
	"github.com/deckforge/orchestrator/internal/llm"
	"github.com/deckforge/orchestrator/internal/session"
)

// enterClarifyingQuestions handles the transition out of PROVIDE_GREETING:
// the user's reply is the presentation topic, so ASK_CLARIFYING_QUESTIONS's
// entry work (producing 3-5 topical questions) runs immediately.
func (m *Machine) enterClarifyingQuestions(ctx context.Context, sess session.Session, topic string) ([]envelope.Event, error) {
	text, err := m.complete(ctx, m.cfg.ClarifyingModel, m.cfg.ClarifyingTemp, clarifyingQuestionsSystemPrompt, []llm.Message{
		{Role: session.RoleUser, Content: topic},
	})
	if err != nil {
		return nil, fmt.Errorf("fsm: clarifying questions: %w", err)
	}

	sess.CurrentState = session.StateAskClarifyingQuestions
	if err := m.saveState(ctx, sess); err != nil {
		return nil, err
	}

	msg := envelope.NewChatMessage(sess.ID, session.RoleAssistant, text)
	if err := m.appendAssistant(ctx, sess.ID, session.StateAskClarifyingQuestions, "clarifying_questions", text, msg.MessageID()); err != nil {
		return nil, err
	}
	return []envelope.Event{msg}, nil
}

// enterConfirmationPlan handles the transition out of
// ASK_CLARIFYING_QUESTIONS once the user has answered.
func (m *Machine) enterConfirmationPlan(ctx context.Context, sess session.Session, answers string) ([]envelope.Event, error) {
	text, err := m.complete(ctx, m.cfg.PlanModel, m.cfg.PlanTemp, confirmationPlanSystemPrompt, []llm.Message{
		{Role: session.RoleUser, Content: answers},
	})
	if err != nil {
		return nil, fmt.Errorf("fsm: confirmation plan: %w", err)
	}

	sess.CurrentState = session.StateCreateConfirmationPlan
	if err := m.saveState(ctx, sess); err != nil {
		return nil, err
	}

	plan := envelope.NewChatMessage(sess.ID, session.RoleAssistant, text)
	if err := m.appendAssistant(ctx, sess.ID, session.StateCreateConfirmationPlan, "confirmation_plan", text, plan.MessageID()); err != nil {
		return nil, err
	}
	actions := envelope.NewActionRequest(sess.ID, envelope.AcceptRejectPlanActions())
	return []envelope.Event{plan, actions}, nil
}

// handleConfirmationPlan classifies the user's reply to the plan and either
// advances to GENERATE_STRAWMAN or loops back to ASK_CLARIFYING_QUESTIONS.
func (m *Machine) handleConfirmationPlan(ctx context.Context, sess session.Session, text string) ([]envelope.Event, error) {
	in, err := m.router.Classify(ctx, session.StateCreateConfirmationPlan, text)
	if err != nil {
		return nil, fmt.Errorf("fsm: classify plan response: %w", err)
	}

	switch in {
	case intent.IntentAcceptPlan:
		return m.enterGenerateStrawman(ctx, sess)
	case intent.IntentRejectPlan:
		return m.reopenClarifyingQuestions(ctx, sess, text)
	default:
		msg := envelope.NewChatMessage(sess.ID, session.RoleAssistant, "Please choose Accept or Reject to continue.")
		if err := m.appendAssistant(ctx, sess.ID, session.StateCreateConfirmationPlan, "", msg.Text, msg.MessageID()); err != nil {
			return nil, err
		}
		actions := envelope.NewActionRequest(sess.ID, envelope.AcceptRejectPlanActions())
		return []envelope.Event{msg, actions}, nil
	}
}

func (m *Machine) reopenClarifyingQuestions(ctx context.Context, sess session.Session, feedback string) ([]envelope.Event, error) {
	text, err := m.complete(ctx, m.cfg.ClarifyingModel, m.cfg.ClarifyingTemp, reopenClarifyingQuestionsSystemPrompt, []llm.Message{
		{Role: session.RoleUser, Content: feedback},
	})
	if err != nil {
		return nil, fmt.Errorf("fsm: reopen clarifying questions: %w", err)
	}

	sess.CurrentState = session.StateAskClarifyingQuestions
	if err := m.saveState(ctx, sess); err != nil {
		return nil, err
	}

	msg := envelope.NewChatMessage(sess.ID, session.RoleAssistant, text)
	if err := m.appendAssistant(ctx, sess.ID, session.StateAskClarifyingQuestions, "clarifying_questions", text, msg.MessageID()); err != nil {
		return nil, err
	}
	return []envelope.Event{msg}, nil
}
