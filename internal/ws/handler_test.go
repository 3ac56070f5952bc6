package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arena-gg/arena-backend/internal/hub"
	"github.com/arena-gg/arena-backend/internal/identity"
	"github.com/arena-gg/arena-backend/internal/protocol"
	"github.com/arena-gg/arena-backend/internal/store"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newWSServer(t *testing.T) *httptest.Server {
	t.Helper()
	h := hub.New(store.NewMemory(), zap.NewNop())
	provider := identity.Static{"tok-a": "a", "tok-b": "b"}
	srv := httptest.NewServer(Handler(h, provider, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, strings.Replace(srv.URL, "http", "ws", 1), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(frame)))
}

// recvType reads frames until one of the wanted type arrives.
func recvType(t *testing.T, conn *websocket.Conn, wanted string) protocol.ServerMessage {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, data, err := conn.Read(ctx)
		cancel()
		require.NoError(t, err)
		var msg protocol.ServerMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == wanted {
			return msg
		}
	}
	t.Fatalf("no %q frame arrived", wanted)
	return protocol.ServerMessage{}
}

func TestAuthenticateHandshake(t *testing.T) {
	srv := newWSServer(t)
	conn := dial(t, srv)

	send(t, conn, `{"type":"authenticate","token":"tok-a"}`)
	msg := recvType(t, conn, "authenticated")
	require.Equal(t, "a", msg.UserID)
}

func TestBadTokenClosesConnection(t *testing.T) {
	srv := newWSServer(t)
	conn := dial(t, srv)

	send(t, conn, `{"type":"authenticate","token":"nope"}`)
	msg := recvType(t, conn, "error")
	require.Equal(t, "unauthorized", msg.Message)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err, "connection should be closed")
}

func TestFirstFrameMustAuthenticate(t *testing.T) {
	srv := newWSServer(t)
	conn := dial(t, srv)

	send(t, conn, `{"type":"joinQueue","gameType":"pong"}`)
	msg := recvType(t, conn, "error")
	require.Equal(t, "unauthorized", msg.Message)
}

func TestMalformedFrameGetsErrorNotClose(t *testing.T) {
	srv := newWSServer(t)
	conn := dial(t, srv)
	send(t, conn, `{"type":"authenticate","token":"tok-a"}`)
	recvType(t, conn, "authenticated")

	send(t, conn, `{"type":"selfDestruct"}`)
	recvType(t, conn, "error")

	// The connection survived; a real command still works.
	send(t, conn, `{"type":"joinQueue","gameType":"pong"}`)
	msg := recvType(t, conn, "queueUpdate")
	require.Equal(t, 1, msg.Position)
}

func TestQueuePairingOverWire(t *testing.T) {
	srv := newWSServer(t)

	connA := dial(t, srv)
	send(t, connA, `{"type":"authenticate","token":"tok-a"}`)
	recvType(t, connA, "authenticated")

	connB := dial(t, srv)
	send(t, connB, `{"type":"authenticate","token":"tok-b"}`)
	recvType(t, connB, "authenticated")

	send(t, connA, `{"type":"joinQueue","gameType":"tank"}`)
	send(t, connB, `{"type":"joinQueue","gameType":"tank"}`)

	startA := recvType(t, connA, "gameStart")
	startB := recvType(t, connB, "gameStart")
	require.Equal(t, startA.GameID, startB.GameID)
	require.Len(t, startA.Participants, 2)

	// The authoritative loop is ticking: state frames flow to both sides.
	state := recvType(t, connA, "gameState")
	require.NotNil(t, state.State)
	require.Len(t, state.State.Tanks, 2)
}
