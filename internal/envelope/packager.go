package envelope

import (
	"github.com/deckforge/orchestrator/internal/session"
)

// PackageStrawman builds the three ordered outbound messages emitted at
// Stage 4/5: a slide_update, then (if a preview exists) a chat_message with
// the preview link, then an action_request offering Accept/Refine.
func PackageStrawman(sessionID string, strawman session.Strawman) []Event {
	out := []Event{NewSlideUpdate(sessionID, strawman, strawman.PreviewURL, strawman.PreviewPresentationID)}
	if strawman.PreviewURL != "" {
		out = append(out, NewChatMessage(sessionID, session.RoleAssistant, "Here's a preview: "+strawman.PreviewURL))
	}
	out = append(out, NewActionRequest(sessionID, AcceptRefineActions()))
	return out
}

// Reconstruct replays a session's stored conversation history into the
// outbound message stream a reconnecting client should receive, in
// chronological order. Each entry's State/ContentVariant determines which
// messages the live pipeline would have emitted for that turn; any preview
// URL is always taken from the current session.Strawman, never from stale
// history content.
func Reconstruct(sess session.Session) []Event {
	var out []Event
	for _, entry := range sess.ConversationHistory {
		out = append(out, reconstructEntry(sess, entry)...)
	}
	return out
}

func reconstructEntry(sess session.Session, entry session.Entry) []Event {
	base := func(typ Type) Base {
		return NewBase(typ, sess.ID, entry.Role, entry.Content).
			WithMessageID(entry.MessageID).
			WithTimestamp(entry.Timestamp)
	}

	switch entry.ContentVariant {
	case "strawman_preview":
		if sess.Strawman == nil {
			return nil
		}
		su := NewSlideUpdate(sess.ID, *sess.Strawman, sess.Strawman.PreviewURL, sess.Strawman.PreviewPresentationID)
		su.Base = su.Base.WithMessageID(entry.MessageID).WithTimestamp(entry.Timestamp)
		events := []Event{su}
		if sess.Strawman.PreviewURL != "" {
			cm := NewChatMessage(sess.ID, entry.Role, "Here's a preview: "+sess.Strawman.PreviewURL)
			cm.Base = cm.Base.WithMessageID(entry.MessageID).WithTimestamp(entry.Timestamp)
			events = append(events, cm)
		}
		ar := NewActionRequest(sess.ID, AcceptRefineActions())
		ar.Base = ar.Base.WithTimestamp(entry.Timestamp)
		events = append(events, ar)
		return events
	case "confirmation_plan":
		ar := NewActionRequest(sess.ID, AcceptRejectPlanActions())
		ar.Base = ar.Base.WithMessageID(entry.MessageID).WithTimestamp(entry.Timestamp)
		return []Event{
			ChatMessage{Base: base(TypeChatMessage), Text: entry.Content},
			ar,
		}
	case "presentation_url":
		pu := NewPresentationURL(sess.ID, entry.Content)
		pu.Base = pu.Base.WithMessageID(entry.MessageID).WithTimestamp(entry.Timestamp)
		return []Event{pu}
	default:
		return []Event{ChatMessage{Base: base(TypeChatMessage), Text: entry.Content}}
	}
}
