// Package ws owns the websocket transport: one connection maps to one
// authenticated player session, with a writer goroutine draining the
// session outbox and the reader loop feeding decoded commands to the
// hub. Malformed frames get an error message back; they never kill the
// connection or the process.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/arena-gg/arena-backend/internal/game"
	"github.com/arena-gg/arena-backend/internal/hub"
	"github.com/arena-gg/arena-backend/internal/identity"
	"github.com/arena-gg/arena-backend/internal/protocol"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const (
	authTimeout  = 10 * time.Second
	idleTimeout  = 5 * time.Minute
	writeTimeout = 3 * time.Second
)

func Handler(h *hub.Hub, provider identity.Provider, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		// First frame must authenticate; everything else is rejected.
		userID, err := authenticate(r.Context(), conn, provider)
		if err != nil {
			writeOne(r.Context(), conn, protocol.ErrorMsg("unauthorized"))
			conn.Close(websocket.StatusPolicyViolation, "unauthorized")
			return
		}

		connCtx, cancel := context.WithCancel(r.Context())
		defer cancel()

		outbox := make(chan protocol.ServerMessage, 64)
		reply := make(chan struct{}, 1)
		h.Inbox() <- hub.Connect{UserID: userID, Outbox: outbox, Cancel: cancel, Reply: reply}
		<-reply
		defer func() { h.Inbox() <- hub.Disconnect{UserID: userID, Outbox: outbox} }()

		writeOne(connCtx, conn, protocol.Authenticated(userID))
		log.Info("connection authenticated", zap.String("user", userID))

		// Writer goroutine
		go func() {
			for {
				select {
				case <-connCtx.Done():
					return
				case msg := <-outbox:
					writeOne(connCtx, conn, msg)
				}
			}
		}()

		// Reader loop
		for {
			ctx, cancelRead := context.WithTimeout(connCtx, idleTimeout)
			_, data, err := conn.Read(ctx)
			cancelRead()
			if err != nil {
				// Clean close, eviction, or broken pipe: Disconnect in
				// the defer handles cleanup either way.
				return
			}

			in, err := protocol.Decode(data)
			if err != nil {
				writeOne(connCtx, conn, protocol.ErrorMsg(err.Error()))
				continue
			}
			dispatch(connCtx, conn, h, userID, in)
		}
	}
}

func dispatch(ctx context.Context, conn *websocket.Conn, h *hub.Hub, userID string, in protocol.Inbound) {
	switch m := in.(type) {
	case protocol.Authenticate:
		writeOne(ctx, conn, protocol.ErrorMsg("already authenticated"))
	case protocol.JoinQueue:
		h.Inbox() <- hub.JoinQueue{UserID: userID, GameType: m.GameType}
	case protocol.LeaveQueue:
		h.Inbox() <- hub.LeaveQueue{UserID: userID, GameType: m.GameType}
	case protocol.GameInvite:
		h.Inbox() <- hub.Invite{FromUserID: userID, ToUserID: m.ToUserID, GameType: m.GameType}
	case protocol.RespondInvite:
		h.Inbox() <- hub.RespondInvite{UserID: userID, InvitationID: m.InvitationID, Accept: m.Accept}
	case protocol.CreateTournament:
		h.Inbox() <- hub.CreateTournament{HostID: userID, GameType: m.GameType, Roster: m.Roster, Seed: m.Seed}
	case protocol.Move:
		h.Inbox() <- hub.Forward{UserID: userID, In: game.Input{Direction: m.Direction}}
	case protocol.TankInput:
		h.Inbox() <- hub.Forward{UserID: userID, In: game.Input{
			Throttle: m.Throttle,
			Turn:     m.Turn,
			Turret:   m.Turret,
			Fire:     m.Fire,
		}}
	case protocol.LeaveGame:
		h.Inbox() <- hub.LeaveGame{UserID: userID, GameID: m.GameID}
	}
}

func authenticate(parent context.Context, conn *websocket.Conn, provider identity.Provider) (string, error) {
	ctx, cancel := context.WithTimeout(parent, authTimeout)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		return "", err
	}
	in, err := protocol.Decode(data)
	if err != nil {
		return "", identity.ErrUnauthorized
	}
	auth, ok := in.(protocol.Authenticate)
	if !ok {
		return "", identity.ErrUnauthorized
	}
	return provider.Resolve(auth.Token)
}

func writeOne(ctx context.Context, conn *websocket.Conn, msg protocol.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}
