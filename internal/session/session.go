// Package session defines the durable per-session conversation container for
// the presentation-construction orchestrator: the dialog state, the
// append-only conversation log, and the presentation draft under
// construction. A Session is created on first connect and is mutated only by
// the dialog state machine; it is never deleted by the core (retention is a
// Store concern).
package session

import (
	"context"
	"errors"
	"time"
)

// DialogState is one of the seven states of the per-session dialog FSM.
type DialogState string

const (
	// StateProvideGreeting is the entry state for a brand new session.
	StateProvideGreeting DialogState = "PROVIDE_GREETING"
	// StateAskClarifyingQuestions asks 3-5 topical questions about the deck.
	StateAskClarifyingQuestions DialogState = "ASK_CLARIFYING_QUESTIONS"
	// StateCreateConfirmationPlan presents a plan for accept/reject.
	StateCreateConfirmationPlan DialogState = "CREATE_CONFIRMATION_PLAN"
	// StateGenerateStrawman produces the first presentation draft.
	StateGenerateStrawman DialogState = "GENERATE_STRAWMAN"
	// StateRefineStrawman applies UPDATE/CREATE/DELETE/VARIANT_OVERRIDE edits.
	StateRefineStrawman DialogState = "REFINE_STRAWMAN"
	// StateContentGeneration runs the Stage-6 scheduler over all slides.
	StateContentGeneration DialogState = "CONTENT_GENERATION"
	// StateTerminal is the final state; the session does no further work.
	StateTerminal DialogState = "TERMINAL"
)

// Role identifies who authored a conversation entry or outbound message.
type Role string

const (
	// RoleUser marks content authored by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks content authored by the orchestrator/LLM.
	RoleAssistant Role = "assistant"
)

type (
	// Session captures the durable per-session dialog state. Session IDs are
	// stable and caller-provided. Sessions are created implicitly on first
	// connect and are never ended by the core; lifecycle is driven entirely
	// by CurrentState reaching StateTerminal.
	Session struct {
		// ID is the durable session identifier (opaque, unique).
		ID string
		// UserID identifies the owning end user.
		UserID string
		// CurrentState is the active dialog FSM state. Exactly one state is
		// active per session at any time.
		CurrentState DialogState
		// ConversationHistory is the ordered, append-only log of past turns.
		ConversationHistory []Entry
		// Strawman is the presentation draft, set once GENERATE_STRAWMAN has
		// run at least once.
		Strawman *Strawman
		// FinalPresentationURL is set when CONTENT_GENERATION completes.
		FinalPresentationURL string
		// ActiveSchedulerRun names the in-flight Stage-6 scheduler invocation,
		// if any, so a reconnecting client can tell content generation is
		// still running without re-running it.
		ActiveSchedulerRun string
		// CreatedAt records when the session was created.
		CreatedAt time.Time
		// UpdatedAt records the last time the session was persisted.
		UpdatedAt time.Time
	}

	// Entry is one turn in the conversation log. History is ordered by
	// Timestamp; SeqIndex breaks ties between equal timestamps.
	Entry struct {
		// Role is the author of this entry.
		Role Role
		// State is the dialog state active when this entry was produced.
		State DialogState
		// ContentVariant distinguishes entries produced in the same state
		// (e.g., "greeting", "confirmation_plan", "strawman_preview") so the packager can
		// reconstruct the right outbound message shape on reconnect.
		ContentVariant string
		// Content is the opaque textual payload of the entry (user free text,
		// or a rendered assistant message).
		Content string
		// Timestamp is the UTC time this entry was recorded.
		Timestamp time.Time
		// SeqIndex is the monotonically increasing per-session sequence
		// number; used as a tie-break when timestamps collide.
		SeqIndex int64
		// MessageID is the opaque identifier of the outbound message this
		// entry corresponds to, if any (empty for pure input entries).
		MessageID string
	}

	// Store persists Session state and its conversation log. Implementations
	// must guarantee a single consistent read per call; concurrent saves for
	// the same session may use last-writer-wins semantics for mutable
	// fields, but AppendHistory must never lose or duplicate an entry with a
	// distinct MessageID.
	Store interface {
		// GetOrCreate loads an existing session or creates a new one in
		// StateProvideGreeting. Idempotent: calling it twice for the same ID
		// returns the same session (the second call does not reset state).
		GetOrCreate(ctx context.Context, sessionID, userID string) (Session, error)
		// Save replaces the mutable fields of a session record. It does not
		// touch ConversationHistory; use AppendHistory for that.
		Save(ctx context.Context, s Session) error
		// AppendHistory appends a single entry to the session's conversation
		// log. Idempotent by MessageID: appending an entry whose MessageID
		// already exists in the log is a no-op.
		AppendHistory(ctx context.Context, sessionID string, entry Entry) error
		// LoadHistory returns the full conversation log for a session in
		// chronological order (Timestamp, then SeqIndex).
		LoadHistory(ctx context.Context, sessionID string) ([]Entry, error)
	}
)

// ErrNotFound indicates no session exists for the given ID.
var ErrNotFound = errors.New("session not found")

// Clone returns a deep copy of s safe to hand to callers outside the store.
func (s Session) Clone() Session {
	out := s
	if len(s.ConversationHistory) > 0 {
		out.ConversationHistory = make([]Entry, len(s.ConversationHistory))
		copy(out.ConversationHistory, s.ConversationHistory)
	}
	if s.Strawman != nil {
		sm := *s.Strawman
		sm.Slides = make([]Slide, len(s.Strawman.Slides))
		for i, sl := range s.Strawman.Slides {
			sm.Slides[i] = sl.Clone()
		}
		out.Strawman = &sm
	}
	return out
}
