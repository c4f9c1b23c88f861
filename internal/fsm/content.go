package fsm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/deckforge/orchestrator/internal/envelope"
	"github.com/deckforge/orchestrator/internal/scheduler"
	"github.com/deckforge/orchestrator/internal/session"
)

// enterContentGeneration handles the transition out of GENERATE_STRAWMAN or
// REFINE_STRAWMAN once the strawman is accepted: the Stage-6 scheduler
// dispatches every slide, failures are summarized but never abort the
// session, and the session lands in TERMINAL with whatever presentation URL
// the deck-builder could assemble.
func (m *Machine) enterContentGeneration(ctx context.Context, sess session.Session) ([]envelope.Event, error) {
	if sess.Strawman == nil {
		return nil, fmt.Errorf("fsm: session %s has no strawman to generate content for", sess.ID)
	}

	runID := uuid.NewString()
	sess.CurrentState = session.StateContentGeneration
	sess.ActiveSchedulerRun = runID
	if err := m.saveState(ctx, sess); err != nil {
		return nil, err
	}

	dispatching := envelope.NewStatusUpdate(sess.ID, "dispatching", "Generating content for your slides...")
	if err := m.appendAssistant(ctx, sess.ID, session.StateContentGeneration, "", dispatching.Message, dispatching.MessageID()); err != nil {
		return nil, err
	}
	events := []envelope.Event{dispatching}

	result := m.sched.Run(ctx, *sess.Strawman)

	strawman := *sess.Strawman
	strawman.Slides = result.GeneratedSlides
	sess.Strawman = &strawman

	finalURL, err := m.deck.Finalize(ctx, sess.ID, result.GeneratedSlides)
	if err != nil {
		m.logger.Error(ctx, "deck finalize failed", "session_id", sess.ID, "error", err.Error())
	}

	if len(result.FailedSlides) > 0 {
		summary := envelope.NewStatusUpdate(sess.ID, "partial_failure", summarizeFailures(result))
		if err := m.appendAssistant(ctx, sess.ID, session.StateContentGeneration, "", summary.Message, summary.MessageID()); err != nil {
			return nil, err
		}
		events = append(events, summary)
	}

	sess.FinalPresentationURL = finalURL
	sess.ActiveSchedulerRun = ""
	sess.CurrentState = session.StateTerminal
	if err := m.saveState(ctx, sess); err != nil {
		return nil, err
	}

	final := envelope.NewPresentationURL(sess.ID, finalURL)
	if err := m.appendAssistant(ctx, sess.ID, session.StateTerminal, "presentation_url", finalURL, final.MessageID()); err != nil {
		return nil, err
	}
	events = append(events, final)
	return events, nil
}

// summarizeFailures renders the Stage-6 error summary into a short,
// user-facing message: slide count affected plus the recommended actions.
func summarizeFailures(result scheduler.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d slides could not be generated.", len(result.FailedSlides), len(result.GeneratedSlides))
	if len(result.ErrorSummary.RecommendedAction) > 0 {
		b.WriteString(" Recommended: ")
		b.WriteString(strings.Join(result.ErrorSummary.RecommendedAction, "; "))
	}
	return b.String()
}
