package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/deckforge/orchestrator/internal/envelope"
	"github.com/deckforge/orchestrator/internal/session"
	"github.com/deckforge/orchestrator/internal/session/inmem"
)

// fakeDriver is a scripted fsm.Driver stand-in: Connect returns a fixed
// event list, Submit delegates to submitFn when set.
type fakeDriver struct {
	connectEvents []envelope.Event
	connectErr    error
	submitFn      func(text string) ([]envelope.Event, error)
	canceled      []string
}

func (d *fakeDriver) Connect(_ context.Context, sessionID, userID string) ([]envelope.Event, error) {
	return d.connectEvents, d.connectErr
}

func (d *fakeDriver) Submit(_ context.Context, sessionID, userID, text string) ([]envelope.Event, error) {
	if d.submitFn != nil {
		return d.submitFn(text)
	}
	return nil, nil
}

func (d *fakeDriver) Cancel(sessionID string) {
	d.canceled = append(d.canceled, sessionID)
}

func dialTestServer(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func newTestServer(h http.Handler) *httptest.Server {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	return httptest.NewServer(mux)
}

func TestConnectEmitsGreetingEventsWhenDriverProvidesThem(t *testing.T) {
	store := inmem.New()
	driver := &fakeDriver{
		connectEvents: []envelope.Event{envelope.NewChatMessage("sess-1", session.RoleAssistant, "hi")},
	}
	h := New(driver, store, nil, nil)
	srv := newTestServer(h)
	defer srv.Close()

	conn := dialTestServer(t, srv, "session_id=sess-1&user_id=u1")
	defer conn.Close()

	var frame envelope.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, envelope.TypeChatMessage, frame.Type)
}

func TestSkipHistorySendsSyncResponseWhenDriverHasNoGreeting(t *testing.T) {
	store := inmem.New()
	driver := &fakeDriver{}
	h := New(driver, store, nil, nil)
	srv := newTestServer(h)
	defer srv.Close()

	conn := dialTestServer(t, srv, "session_id=sess-2&user_id=u1&skip_history=true")
	defer conn.Close()

	var frame envelope.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, envelope.TypeSyncResponse, frame.Type)
	payload, ok := frame.Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "skip_history", payload["action"])
}

func TestUserMessageFrameIsRoutedToDriverSubmit(t *testing.T) {
	store := inmem.New()
	driver := &fakeDriver{
		submitFn: func(text string) ([]envelope.Event, error) {
			return []envelope.Event{envelope.NewChatMessage("sess-3", session.RoleAssistant, "echo:"+text)}, nil
		},
	}
	h := New(driver, store, nil, nil)
	srv := newTestServer(h)
	defer srv.Close()

	conn := dialTestServer(t, srv, "session_id=sess-3&user_id=u1&skip_history=true")
	defer conn.Close()

	var sync envelope.Frame
	require.NoError(t, conn.ReadJSON(&sync))

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "user_message",
		"data": map[string]any{"text": "hello"},
	}))

	var reply envelope.Frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, envelope.TypeChatMessage, reply.Type)
	require.Equal(t, "echo:hello", reply.Payload)
}

func TestMissingSessionIDRejectsUpgrade(t *testing.T) {
	store := inmem.New()
	h := New(&fakeDriver{}, store, nil, nil)
	srv := newTestServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user_id=u1"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
