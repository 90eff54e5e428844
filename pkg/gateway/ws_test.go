package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amara/docwise/pkg/qa"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, srv *Server) (*websocket.Conn, func()) {
	t.Helper()

	ts := httptest.NewServer(srv.Handler())
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	return conn, func() {
		conn.Close()
		ts.Close()
	}
}

func TestWebSocket_BlankQuestionRejected(t *testing.T) {
	conn, cleanup := dialWS(t, newTestServer(t, 3))
	defer cleanup()

	require.NoError(t, conn.WriteJSON(wsQuestion{Question: "   "}))

	var errMsg wsError
	require.NoError(t, conn.ReadJSON(&errMsg))
	assert.Equal(t, "question must be a non-empty string", errMsg.Error)
}

func TestWebSocket_ConversationRoundTrip(t *testing.T) {
	srv := newTestServer(t, 3)
	handler := srv.Handler()
	require.Equal(t, http.StatusOK, indexDocument(t, handler, "ws-session", "a.pdf").Code)

	conn, cleanup := dialWS(t, srv)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(wsQuestion{
		Question:  "How long do refunds take?",
		SessionID: "ws-session",
	}))

	var first qa.Result
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "final answer", first.Answer)
	assert.Equal(t, "ws-session", first.SessionID)
	assert.Equal(t, 1, first.TurnNumber)
	assert.False(t, first.HistoryUsed)

	// Follow-up on the same connection echoes the session id back.
	require.NoError(t, conn.WriteJSON(wsQuestion{
		Question:  "Tell me more about it",
		SessionID: first.SessionID,
	}))

	var second qa.Result
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, 2, second.TurnNumber)
	assert.True(t, second.HistoryUsed)
}

func TestWebSocket_UnknownSessionReportsError(t *testing.T) {
	conn, cleanup := dialWS(t, newTestServer(t, 3))
	defer cleanup()

	require.NoError(t, conn.WriteJSON(wsQuestion{Question: "q", SessionID: "missing"}))

	var errMsg wsError
	require.NoError(t, conn.ReadJSON(&errMsg))
	assert.Contains(t, errMsg.Error, "session not found")

	// The connection survives the error and keeps serving.
	require.NoError(t, conn.WriteJSON(wsQuestion{Question: "fresh start"}))
	var result qa.Result
	require.NoError(t, conn.ReadJSON(&result))
	assert.NotEmpty(t, result.SessionID)
}

func TestWebSocket_RejectedDuringShutdown(t *testing.T) {
	srv := newTestServer(t, 3)
	srv.shutdownMu.Lock()
	srv.isShuttingDown = true
	srv.shutdownMu.Unlock()

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if conn != nil {
		conn.Close()
	}

	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
