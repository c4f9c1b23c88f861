package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deckforge/orchestrator/internal/session"
)

func TestGetOrCreateInitializesNewSessionAtGreetingState(t *testing.T) {
	store := New()
	sess, err := store.GetOrCreate(context.Background(), "sess-1", "user-1")
	require.NoError(t, err)
	require.Equal(t, session.StateProvideGreeting, sess.CurrentState)
	require.Empty(t, sess.ConversationHistory)
}

func TestGetOrCreateReturnsSameSessionOnSecondCall(t *testing.T) {
	store := New()
	ctx := context.Background()
	first, err := store.GetOrCreate(ctx, "sess-1", "user-1")
	require.NoError(t, err)

	require.NoError(t, store.AppendHistory(ctx, "sess-1", session.Entry{Role: session.RoleUser, Content: "hi"}))

	second, err := store.GetOrCreate(ctx, "sess-1", "user-1")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, second.ConversationHistory, 1)
}

func TestSavePreservesConversationHistoryButReplacesOtherFields(t *testing.T) {
	store := New()
	ctx := context.Background()
	_, err := store.GetOrCreate(ctx, "sess-1", "user-1")
	require.NoError(t, err)
	require.NoError(t, store.AppendHistory(ctx, "sess-1", session.Entry{Role: session.RoleUser, Content: "hi"}))

	updated := session.Session{ID: "sess-1", UserID: "user-1", CurrentState: session.StateTerminal}
	require.NoError(t, store.Save(ctx, updated))

	got, err := store.GetOrCreate(ctx, "sess-1", "user-1")
	require.NoError(t, err)
	require.Equal(t, session.StateTerminal, got.CurrentState)
	require.Len(t, got.ConversationHistory, 1)
}

func TestSaveReturnsNotFoundForUnknownSession(t *testing.T) {
	store := New()
	err := store.Save(context.Background(), session.Session{ID: "missing"})
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestAppendHistoryIsIdempotentByMessageID(t *testing.T) {
	store := New()
	ctx := context.Background()
	_, err := store.GetOrCreate(ctx, "sess-1", "user-1")
	require.NoError(t, err)

	entry := session.Entry{Role: session.RoleAssistant, Content: "hi", MessageID: "m1"}
	require.NoError(t, store.AppendHistory(ctx, "sess-1", entry))
	require.NoError(t, store.AppendHistory(ctx, "sess-1", entry))

	history, err := store.LoadHistory(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestLoadHistoryOrdersByTimestampThenSeqIndex(t *testing.T) {
	store := New()
	ctx := context.Background()
	_, err := store.GetOrCreate(ctx, "sess-1", "user-1")
	require.NoError(t, err)

	require.NoError(t, store.AppendHistory(ctx, "sess-1", session.Entry{Role: session.RoleUser, Content: "first"}))
	require.NoError(t, store.AppendHistory(ctx, "sess-1", session.Entry{Role: session.RoleAssistant, Content: "second"}))

	history, err := store.LoadHistory(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "first", history[0].Content)
	require.Equal(t, "second", history[1].Content)
	require.Equal(t, int64(1), history[0].SeqIndex)
	require.Equal(t, int64(2), history[1].SeqIndex)
}

func TestLoadHistoryReturnsNotFoundForUnknownSession(t *testing.T) {
	store := New()
	_, err := store.LoadHistory(context.Background(), "missing")
	require.ErrorIs(t, err, session.ErrNotFound)
}
