// Package envelope builds and reconstructs the outbound message protocol:
// every frame pushed to a client is a typed Event embedding Base, tagging
// message_id/session_id/timestamp/type/role, with a type-specific payload.
package envelope

import (
	"time"

	"github.com/google/uuid"

	"github.com/deckforge/orchestrator/internal/session"
)

// Type names one of the six outbound message shapes.
type Type string

const (
	TypeChatMessage      Type = "chat_message"
	TypeActionRequest    Type = "action_request"
	TypeSlideUpdate      Type = "slide_update"
	TypeStatusUpdate     Type = "status_update"
	TypePresentationURL  Type = "presentation_url"
	TypeSyncResponse     Type = "sync_response"
)

// Event is the tagged-union interface every outbound frame implements.
// Concrete types embed Base and add a typed Payload() result.
type Event interface {
	MessageID() string
	SessionID() string
	Timestamp() time.Time
	Type() Type
	Role() session.Role
	Payload() any
}

// Base carries the fields common to every outbound frame. Concrete event
// types embed Base and are constructed via NewBase.
type Base struct {
	id      string
	session string
	at      time.Time
	typ     Type
	role    session.Role
	payload any
}

// NewBase constructs a Base with a fresh message ID and the current UTC
// timestamp, attributed to the given role.
func NewBase(typ Type, sessionID string, role session.Role, payload any) Base {
	return Base{
		id:      uuid.NewString(),
		session: sessionID,
		at:      time.Now().UTC(),
		typ:     typ,
		role:    role,
		payload: payload,
	}
}

func (b Base) MessageID() string      { return b.id }
func (b Base) SessionID() string      { return b.session }
func (b Base) Timestamp() time.Time   { return b.at }
func (b Base) Type() Type             { return b.typ }
func (b Base) Role() session.Role     { return b.role }
func (b Base) Payload() any           { return b.payload }

// WithMessageID overrides the generated message ID, used when reconstructing
// history from a stored Entry whose MessageID must be preserved.
func (b Base) WithMessageID(id string) Base {
	if id != "" {
		b.id = id
	}
	return b
}

// WithTimestamp overrides the generated timestamp, used during history
// reconstruction to preserve the original entry's time.
func (b Base) WithTimestamp(t time.Time) Base {
	if !t.IsZero() {
		b.at = t.UTC()
	}
	return b
}

type (
	// ChatMessage carries free-form assistant or user text.
	ChatMessage struct {
		Base
		Text string
	}

	// Action describes one button in an ActionRequest.
	Action struct {
		Label         string
		Value         string
		Primary       bool
		RequiresInput bool
	}

	// ActionRequest offers the user a closed set of buttons.
	ActionRequest struct {
		Base
		Actions []Action
	}

	// SlideUpdate carries strawman/slide metadata, including preview info
	// when the deck-builder has rendered one.
	SlideUpdate struct {
		Base
		Strawman               session.Strawman
		PreviewURL             string
		PreviewPresentationID  string
	}

	// StatusUpdate is an advisory Stage-6 progress marker.
	StatusUpdate struct {
		Base
		Message string
		Phase   string
	}

	// PresentationURLMessage is the terminal-state artifact.
	PresentationURLMessage struct {
		Base
		URL string
	}

	// SyncResponse acknowledges a sync_request, e.g. when history is skipped.
	SyncResponse struct {
		Base
		Action string
	}
)

// NewChatMessage builds a chat_message frame.
func NewChatMessage(sessionID string, role session.Role, text string) ChatMessage {
	return ChatMessage{Base: NewBase(TypeChatMessage, sessionID, role, text), Text: text}
}

// NewActionRequest builds an action_request frame.
func NewActionRequest(sessionID string, actions []Action) ActionRequest {
	return ActionRequest{Base: NewBase(TypeActionRequest, sessionID, session.RoleAssistant, actions), Actions: actions}
}

// NewSlideUpdate builds a slide_update frame.
func NewSlideUpdate(sessionID string, strawman session.Strawman, previewURL, previewID string) SlideUpdate {
	payload := map[string]any{"strawman": strawman, "preview_url": previewURL, "preview_presentation_id": previewID}
	return SlideUpdate{
		Base:                  NewBase(TypeSlideUpdate, sessionID, session.RoleAssistant, payload),
		Strawman:              strawman,
		PreviewURL:            previewURL,
		PreviewPresentationID: previewID,
	}
}

// NewStatusUpdate builds a status_update frame.
func NewStatusUpdate(sessionID, phase, message string) StatusUpdate {
	payload := map[string]any{"phase": phase, "message": message}
	return StatusUpdate{Base: NewBase(TypeStatusUpdate, sessionID, session.RoleAssistant, payload), Message: message, Phase: phase}
}

// NewPresentationURL builds a presentation_url frame.
func NewPresentationURL(sessionID, url string) PresentationURLMessage {
	return PresentationURLMessage{Base: NewBase(TypePresentationURL, sessionID, session.RoleAssistant, url), URL: url}
}

// NewSyncResponse builds a sync_response frame.
func NewSyncResponse(sessionID, action string) SyncResponse {
	payload := map[string]string{"action": action}
	return SyncResponse{Base: NewBase(TypeSyncResponse, sessionID, session.RoleAssistant, payload), Action: action}
}

// AcceptRefineActions is the canonical Accept/Refine button pair offered
// after a strawman is presented (Stage 4/5).
func AcceptRefineActions() []Action {
	return []Action{
		{Label: "Accept", Value: "accept_strawman", Primary: true},
		{Label: "Refine", Value: "request_refinement"},
	}
}

// AcceptRejectPlanActions is the button pair offered after a confirmation
// plan is presented.
func AcceptRejectPlanActions() []Action {
	return []Action{
		{Label: "Yes, let's build it!", Value: "accept_plan", Primary: true},
		{Label: "I'd like to make changes", Value: "reject_plan"},
	}
}

var (
	_ Event = ChatMessage{}
	_ Event = ActionRequest{}
	_ Event = SlideUpdate{}
	_ Event = StatusUpdate{}
	_ Event = PresentationURLMessage{}
	_ Event = SyncResponse{}
)
