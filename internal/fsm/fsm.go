// Package fsm implements the seven-state per-session dialog state machine:
// PROVIDE_GREETING, ASK_CLARIFYING_QUESTIONS, CREATE_CONFIRMATION_PLAN,
// GENERATE_STRAWMAN, REFINE_STRAWMAN, CONTENT_GENERATION, TERMINAL. A
// Machine holds the transition logic; a Driver hosts a single session's
// execution and serializes its inbound messages.
package fsm

import (
	"context"
	"fmt"
	"time"

	"github.com/deckforge/orchestrator/internal/deckbuilder"
	"github.com/deckforge/orchestrator/internal/envelope"
	"github.com/deckforge/orchestrator/internal/intent"
	"github.com/deckforge/orchestrator/internal/llm"
	"github.com/deckforge/orchestrator/internal/registry"
	"github.com/deckforge/orchestrator/internal/scheduler"
	"github.com/deckforge/orchestrator/internal/session"
	"github.com/deckforge/orchestrator/internal/telemetry"
)

// Config tunes per-stage model selection and sampling. A per-stage model
// field left empty falls back to DefaultModel.
type Config struct {
	DefaultModel    string
	GreetingModel   string
	ClarifyingModel string
	PlanModel       string
	StrawmanModel   string
	RefinementModel string
	IntentModel     string
	GreetingTemp    float32
	ClarifyingTemp  float32
	PlanTemp        float32
	StrawmanTemp    float32
	RefinementTemp  float32
	EnablePreview   bool
	SchedulerConfig scheduler.Config
}

// DefaultConfig returns sensible defaults matching the spec's per-stage
// temperature guidance.
func DefaultConfig() Config {
	return Config{
		GreetingTemp:    0.7,
		ClarifyingTemp:  0.5,
		PlanTemp:        0.3,
		StrawmanTemp:    0.5,
		RefinementTemp:  0.4,
		SchedulerConfig: scheduler.DefaultConfig(),
	}
}

// Machine holds every dependency the seven dialog states need: the session
// store, the LLM provider, the intent router, the taxonomy registry, the
// Stage-6 scheduler, and the deck-builder client. It has no per-call state
// of its own; all mutable state lives in the session.Session it loads and
// saves on each step.
type Machine struct {
	store   session.Store
	provider llm.Provider
	router  *intent.Router
	reg     *registry.Registry
	sched   *scheduler.Scheduler
	deck    deckbuilder.Builder
	logger  telemetry.Logger
	metrics telemetry.Metrics
	cfg     Config
}

// New constructs a Machine. deck may be deckbuilder.Noop{} when the preview
// feature is disabled.
func New(store session.Store, provider llm.Provider, reg *registry.Registry, sched *scheduler.Scheduler, deck deckbuilder.Builder, logger telemetry.Logger, metrics telemetry.Metrics, cfg Config) *Machine {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	if deck == nil {
		deck = deckbuilder.Noop{}
	}
	intentModel := cfg.IntentModel
	if intentModel == "" {
		intentModel = cfg.DefaultModel
	}
	return &Machine{
		store: store, provider: provider, router: intent.NewRouter(provider, intentModel),
		reg: reg, sched: sched, deck: deck, logger: logger, metrics: metrics, cfg: cfg,
	}
}

// HandleConnect runs the work due on connection accept: if the session is
// brand new (still in PROVIDE_GREETING with no recorded history), it emits
// the greeting. Reconnects to an already-greeted session return nil; the
// Connection Handler is responsible for history restoration or the
// sync_response path in that case.
func (m *Machine) HandleConnect(ctx context.Context, sessionID, userID string) ([]envelope.Event, error) {
	sess, err := m.store.GetOrCreate(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("fsm: get or create session: %w", err)
	}
	if sess.CurrentState != session.StateProvideGreeting || len(sess.ConversationHistory) > 0 {
		return nil, nil
	}
	return m.emitGreeting(ctx, sessionID)
}

// emitGreeting runs the greeting LLM call and records it as the session's
// first PROVIDE_GREETING turn, regardless of what history already exists
// (used both for brand new sessions and for a restarted one).
func (m *Machine) emitGreeting(ctx context.Context, sessionID string) ([]envelope.Event, error) {
	text, err := m.complete(ctx, m.cfg.GreetingModel, m.cfg.GreetingTemp, greetingSystemPrompt,
		[]llm.Message{{Role: session.RoleUser, Content: "Hello"}})
	if err != nil {
		return nil, fmt.Errorf("fsm: greeting: %w", err)
	}

	msg := envelope.NewChatMessage(sessionID, session.RoleAssistant, text)
	if err := m.appendAssistant(ctx, sessionID, session.StateProvideGreeting, "greeting", text, msg.MessageID()); err != nil {
		return nil, err
	}
	return []envelope.Event{msg}, nil
}

// HandleMessage processes one inbound user message: it records the user's
// turn, dispatches to the handler for the session's current state, and
// persists the resulting state transition before returning the outbound
// events to send.
func (m *Machine) HandleMessage(ctx context.Context, sessionID, userID, text string) ([]envelope.Event, error) {
	sess, err := m.store.GetOrCreate(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("fsm: get or create session: %w", err)
	}

	if err := m.store.AppendHistory(ctx, sessionID, session.Entry{
		Role: session.RoleUser, State: sess.CurrentState, Content: text, Timestamp: now(),
	}); err != nil {
		return nil, fmt.Errorf("fsm: append user entry: %w", err)
	}

	switch sess.CurrentState {
	case session.StateProvideGreeting:
		return m.enterClarifyingQuestions(ctx, sess, text)
	case session.StateAskClarifyingQuestions:
		return m.enterConfirmationPlan(ctx, sess, text)
	case session.StateCreateConfirmationPlan:
		return m.handleConfirmationPlan(ctx, sess, text)
	case session.StateGenerateStrawman, session.StateRefineStrawman:
		return m.handleStrawmanCycle(ctx, sess, text)
	case session.StateContentGeneration:
		return m.ackInProgress(ctx, sess)
	case session.StateTerminal:
		return m.handleTerminal(ctx, sess, text)
	default:
		return nil, fmt.Errorf("fsm: session %s in unknown state %q", sessionID, sess.CurrentState)
	}
}

func (m *Machine) ackInProgress(ctx context.Context, sess session.Session) ([]envelope.Event, error) {
	msg := envelope.NewChatMessage(sess.ID, session.RoleAssistant, "Your presentation is still being generated; I'll send the link shortly.")
	if err := m.appendAssistant(ctx, sess.ID, session.StateContentGeneration, "", msg.Text, msg.MessageID()); err != nil {
		return nil, err
	}
	return []envelope.Event{msg}, nil
}

func (m *Machine) handleTerminal(ctx context.Context, sess session.Session, text string) ([]envelope.Event, error) {
	in, err := m.router.Classify(ctx, session.StateTerminal, text)
	if err != nil {
		return nil, fmt.Errorf("fsm: classify terminal intent: %w", err)
	}
	if in == intent.IntentRestart {
		sess.CurrentState = session.StateProvideGreeting
		sess.Strawman = nil
		sess.FinalPresentationURL = ""
		sess.ActiveSchedulerRun = ""
		sess.UpdatedAt = now()
		if err := m.store.Save(ctx, sess); err != nil {
			return nil, fmt.Errorf("fsm: save session: %w", err)
		}
		return m.emitGreeting(ctx, sess.ID)
	}

	msg := envelope.NewChatMessage(sess.ID, session.RoleAssistant, "Your presentation is ready. Say \"restart\" to build another.")
	if err := m.appendAssistant(ctx, sess.ID, session.StateTerminal, "", msg.Text, msg.MessageID()); err != nil {
		return nil, err
	}
	return []envelope.Event{msg}, nil
}

// appendAssistant appends one assistant conversation entry to the session's
// history, tagged with the state it was produced in and its outbound
// message ID so history reconstruction can replay it verbatim.
func (m *Machine) appendAssistant(ctx context.Context, sessionID string, state session.DialogState, variant, content, messageID string) error {
	return m.store.AppendHistory(ctx, sessionID, session.Entry{
		Role: session.RoleAssistant, State: state, ContentVariant: variant,
		Content: content, Timestamp: now(), MessageID: messageID,
	})
}

func (m *Machine) saveState(ctx context.Context, sess session.Session) error {
	sess.UpdatedAt = now()
	if err := m.store.Save(ctx, sess); err != nil {
		return fmt.Errorf("fsm: save session: %w", err)
	}
	return nil
}

func (m *Machine) complete(ctx context.Context, model string, temp float32, system string, messages []llm.Message) (string, error) {
	resp, err := m.provider.Complete(ctx, llm.Request{
		Model:       m.modelOrDefault(model),
		System:      system,
		Messages:    messages,
		Temperature: temp,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// modelOrDefault falls back to the Machine-wide DefaultModel when a
// per-stage model id was left unconfigured.
func (m *Machine) modelOrDefault(model string) string {
	if model != "" {
		return model
	}
	return m.cfg.DefaultModel
}

func now() time.Time { return time.Now().UTC() }
