package envelope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deckforge/orchestrator/internal/session"
)

func TestNewChatMessageSetsTypeRoleAndNonEmptyID(t *testing.T) {
	msg := NewChatMessage("sess-1", session.RoleAssistant, "hello")

	require.Equal(t, TypeChatMessage, msg.Type())
	require.Equal(t, session.RoleAssistant, msg.Role())
	require.Equal(t, "sess-1", msg.SessionID())
	require.NotEmpty(t, msg.MessageID())
	require.WithinDuration(t, time.Now().UTC(), msg.Timestamp(), time.Second)
}

func TestWithMessageIDAndTimestampOverrideOnlyWhenNonZero(t *testing.T) {
	msg := NewChatMessage("sess-1", session.RoleUser, "hi")
	originalID := msg.MessageID()
	originalAt := msg.Timestamp()

	unchanged := msg.Base.WithMessageID("").WithTimestamp(time.Time{})
	require.Equal(t, originalID, unchanged.MessageID())
	require.Equal(t, originalAt, unchanged.Timestamp())

	fixedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	overridden := msg.Base.WithMessageID("fixed-id").WithTimestamp(fixedAt)
	require.Equal(t, "fixed-id", overridden.MessageID())
	require.Equal(t, fixedAt, overridden.Timestamp())
}

func TestToFrameFormatsTimestampAsRFC3339NanoUTC(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("EST", -5*3600))
	msg := NewChatMessage("sess-1", session.RoleAssistant, "hi").Base.WithTimestamp(at)
	event := ChatMessage{Base: msg, Text: "hi"}

	frame := ToFrame(event)
	require.Equal(t, "2026-03-04T10:06:07Z", frame.Timestamp)
	require.Equal(t, TypeChatMessage, frame.Type)
	require.Equal(t, "assistant", frame.Role)
}

func TestPackageStrawmanOmitsPreviewChatMessageWhenNoPreviewURL(t *testing.T) {
	strawman := session.Strawman{MainTitle: "Deck"}
	events := PackageStrawman("sess-1", strawman)

	require.Len(t, events, 2)
	require.Equal(t, TypeSlideUpdate, events[0].Type())
	require.Equal(t, TypeActionRequest, events[1].Type())
}

func TestPackageStrawmanIncludesPreviewChatMessageWhenPreviewURLSet(t *testing.T) {
	strawman := session.Strawman{MainTitle: "Deck", PreviewURL: "http://preview.local/1"}
	events := PackageStrawman("sess-1", strawman)

	require.Len(t, events, 3)
	require.Equal(t, TypeSlideUpdate, events[0].Type())
	require.Equal(t, TypeChatMessage, events[1].Type())
	require.Equal(t, TypeActionRequest, events[2].Type())
}

func TestReconstructPreservesMessageIDAndTimestampFromHistory(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sess := session.Session{
		ID: "sess-1",
		ConversationHistory: []session.Entry{
			{Role: session.RoleAssistant, State: session.StateProvideGreeting, Content: "hi", Timestamp: at, MessageID: "m1"},
		},
	}

	events := Reconstruct(sess)
	require.Len(t, events, 1)
	require.Equal(t, "m1", events[0].MessageID())
	require.Equal(t, at, events[0].Timestamp())
}

func TestReconstructStrawmanPreviewUsesCurrentSessionPreviewNotHistoryContent(t *testing.T) {
	strawman := &session.Strawman{MainTitle: "Deck", PreviewURL: "http://preview.local/current"}
	sess := session.Session{
		ID:       "sess-1",
		Strawman: strawman,
		ConversationHistory: []session.Entry{
			{Role: session.RoleAssistant, State: session.StateGenerateStrawman, ContentVariant: "strawman_preview", Content: "stale preview text"},
		},
	}

	events := Reconstruct(sess)
	require.Len(t, events, 3)
	su, ok := events[0].(SlideUpdate)
	require.True(t, ok)
	require.Equal(t, "http://preview.local/current", su.PreviewURL)

	cm, ok := events[1].(ChatMessage)
	require.True(t, ok)
	require.Contains(t, cm.Text, "http://preview.local/current")
	require.Equal(t, TypeActionRequest, events[2].Type())
}

func TestReconstructStrawmanPreviewSkipsEntryWhenStrawmanMissing(t *testing.T) {
	sess := session.Session{
		ID: "sess-1",
		ConversationHistory: []session.Entry{
			{Role: session.RoleAssistant, ContentVariant: "strawman_preview", Content: "anything"},
		},
	}

	require.Empty(t, Reconstruct(sess))
}

func TestReconstructConfirmationPlanEmitsChatMessageThenAcceptRejectActions(t *testing.T) {
	sess := session.Session{
		ID: "sess-1",
		ConversationHistory: []session.Entry{
			{Role: session.RoleAssistant, ContentVariant: "confirmation_plan", Content: "Here's the plan"},
		},
	}

	events := Reconstruct(sess)
	require.Len(t, events, 2)
	cm, ok := events[0].(ChatMessage)
	require.True(t, ok)
	require.Equal(t, "Here's the plan", cm.Text)

	ar, ok := events[1].(ActionRequest)
	require.True(t, ok)
	require.Equal(t, AcceptRejectPlanActions(), ar.Actions)
}

func TestReconstructPresentationURLEntry(t *testing.T) {
	sess := session.Session{
		ID: "sess-1",
		ConversationHistory: []session.Entry{
			{Role: session.RoleAssistant, ContentVariant: "presentation_url", Content: "http://deck.local/final"},
		},
	}

	events := Reconstruct(sess)
	require.Len(t, events, 1)
	pu, ok := events[0].(PresentationURLMessage)
	require.True(t, ok)
	require.Equal(t, "http://deck.local/final", pu.URL)
}

func TestReconstructDefaultEntryEmitsPlainChatMessage(t *testing.T) {
	sess := session.Session{
		ID: "sess-1",
		ConversationHistory: []session.Entry{
			{Role: session.RoleUser, Content: "user text"},
		},
	}

	events := Reconstruct(sess)
	require.Len(t, events, 1)
	cm, ok := events[0].(ChatMessage)
	require.True(t, ok)
	require.Equal(t, "user text", cm.Text)
	require.Equal(t, session.RoleUser, cm.Role())
}
