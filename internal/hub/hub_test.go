package hub

import (
	"testing"
	"time"

	"github.com/arena-gg/arena-backend/internal/game"
	"github.com/arena-gg/arena-backend/internal/protocol"
	"github.com/arena-gg/arena-backend/internal/session"
	"github.com/arena-gg/arena-backend/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHub(t *testing.T) (*Hub, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	h := New(mem, zap.NewNop())
	return h, mem
}

func connect(t *testing.T, h *Hub, userID string) chan protocol.ServerMessage {
	t.Helper()
	outbox := make(chan protocol.ServerMessage, 1024)
	reply := make(chan struct{}, 1)
	h.Inbox() <- Connect{UserID: userID, Outbox: outbox, Cancel: func() {}, Reply: reply}
	select {
	case <-reply:
	case <-time.After(2 * time.Second):
		t.Fatalf("connect for %s timed out", userID)
	}
	return outbox
}

func hubView(t *testing.T, h *Hub) View {
	t.Helper()
	reply := make(chan View, 1)
	h.Inbox() <- GetView{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("view request timed out")
		return View{}
	}
}

func waitHub(t *testing.T, h *Hub, cond func(View) bool) View {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		v := hubView(t, h)
		if cond(v) {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition never reached, last view: %+v", v)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// recvType drains outbox until a frame of the wanted type arrives;
// per-tick state frames and presence noise are skipped.
func recvType(t *testing.T, outbox chan protocol.ServerMessage, wanted string) protocol.ServerMessage {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-outbox:
			if msg.Type == wanted {
				return msg
			}
		case <-deadline:
			t.Fatalf("no %q frame arrived", wanted)
			return protocol.ServerMessage{}
		}
	}
}

func TestQueuePairingStartsMatch(t *testing.T) {
	h, _ := newTestHub(t)
	outA := connect(t, h, "a")
	connect(t, h, "b")

	h.Inbox() <- JoinQueue{UserID: "a", GameType: game.TypeTank}
	pos := recvType(t, outA, "queueUpdate")
	require.Equal(t, 1, pos.Position)

	h.Inbox() <- JoinQueue{UserID: "b", GameType: game.TypeTank}
	v := waitHub(t, h, func(v View) bool { return v.NumMatches == 1 })
	require.Equal(t, session.StatusInMatch, v.Statuses["a"])
	require.Equal(t, session.StatusInMatch, v.Statuses["b"])
	require.Zero(t, v.QueueLens[game.TypeTank])

	created := recvType(t, outA, "gameCreated")
	started := recvType(t, outA, "gameStart")
	require.Equal(t, created.GameID, started.GameID)
	require.Len(t, started.Participants, 2)
}

func TestJoinQueueWhileInMatchRejected(t *testing.T) {
	h, _ := newTestHub(t)
	outA := connect(t, h, "a")
	connect(t, h, "b")
	h.Inbox() <- JoinQueue{UserID: "a", GameType: game.TypeTank}
	h.Inbox() <- JoinQueue{UserID: "b", GameType: game.TypeTank}
	waitHub(t, h, func(v View) bool { return v.NumMatches == 1 })

	h.Inbox() <- JoinQueue{UserID: "a", GameType: game.TypePong}
	recvType(t, outA, "error")
	require.Zero(t, hubView(t, h).QueueLens[game.TypePong])
}

func TestLeaveQueueRestoresOnline(t *testing.T) {
	h, _ := newTestHub(t)
	outA := connect(t, h, "a")

	h.Inbox() <- JoinQueue{UserID: "a", GameType: game.TypePong}
	waitHub(t, h, func(v View) bool { return v.Statuses["a"] == session.StatusQueued })

	h.Inbox() <- LeaveQueue{UserID: "a", GameType: game.TypePong}
	recvType(t, outA, "leftQueue")
	v := waitHub(t, h, func(v View) bool { return v.Statuses["a"] == session.StatusOnline })
	require.Zero(t, v.QueueLens[game.TypePong])
}

func TestInviteDeclined(t *testing.T) {
	h, _ := newTestHub(t)
	outA := connect(t, h, "a")
	outB := connect(t, h, "b")

	h.Inbox() <- Invite{FromUserID: "a", ToUserID: "b", GameType: game.TypeTank}
	inv := recvType(t, outB, "gameInvitation")
	require.Equal(t, "a", inv.FromUserID)
	require.NotEmpty(t, inv.InvitationID)

	h.Inbox() <- RespondInvite{UserID: "b", InvitationID: inv.InvitationID, Accept: false}
	declined := recvType(t, outA, "inviteDeclined")
	require.Equal(t, inv.InvitationID, declined.InvitationID)
	// Nobody's status changed and no match spawned.
	v := hubView(t, h)
	require.Equal(t, session.StatusOnline, v.Statuses["a"])
	require.Equal(t, session.StatusOnline, v.Statuses["b"])
	require.Zero(t, v.NumMatches)
}

func TestInviteAcceptStartsMatch(t *testing.T) {
	h, _ := newTestHub(t)
	connect(t, h, "a")
	outB := connect(t, h, "b")

	h.Inbox() <- Invite{FromUserID: "a", ToUserID: "b", GameType: game.TypeTank}
	inv := recvType(t, outB, "gameInvitation")

	h.Inbox() <- RespondInvite{UserID: "b", InvitationID: inv.InvitationID, Accept: true}
	v := waitHub(t, h, func(v View) bool { return v.NumMatches == 1 })
	require.Equal(t, session.StatusInMatch, v.Statuses["a"])
	require.Equal(t, session.StatusInMatch, v.Statuses["b"])
}

func TestInviteWhileQueuedRejected(t *testing.T) {
	h, _ := newTestHub(t)
	outA := connect(t, h, "a")
	connect(t, h, "b")
	h.Inbox() <- JoinQueue{UserID: "b", GameType: game.TypePong}
	waitHub(t, h, func(v View) bool { return v.Statuses["b"] == session.StatusQueued })

	h.Inbox() <- Invite{FromUserID: "a", ToUserID: "b", GameType: game.TypeTank}
	recvType(t, outA, "error")
}

func TestDisconnectCleansQueueAndSession(t *testing.T) {
	h, _ := newTestHub(t)
	outA := connect(t, h, "a")
	h.Inbox() <- JoinQueue{UserID: "a", GameType: game.TypePong}
	waitHub(t, h, func(v View) bool { return v.QueueLens[game.TypePong] == 1 })

	h.Inbox() <- Disconnect{UserID: "a", Outbox: outA}
	v := waitHub(t, h, func(v View) bool { return v.NumSessions == 0 })
	require.Zero(t, v.QueueLens[game.TypePong])
}

func TestStaleDisconnectIgnoredAfterEviction(t *testing.T) {
	h, _ := newTestHub(t)
	oldOutbox := connect(t, h, "a")
	connect(t, h, "a") // evicts the first connection

	h.Inbox() <- Disconnect{UserID: "a", Outbox: oldOutbox}
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, hubView(t, h).NumSessions)
}

func TestLeaveGameForfeitsAndPersists(t *testing.T) {
	h, mem := newTestHub(t)
	connect(t, h, "a")
	outB := connect(t, h, "b")
	h.Inbox() <- JoinQueue{UserID: "a", GameType: game.TypeTank}
	h.Inbox() <- JoinQueue{UserID: "b", GameType: game.TypeTank}
	v := waitHub(t, h, func(v View) bool { return v.NumMatches == 1 })
	matchID := v.MatchIDs["a"]
	require.NotEmpty(t, matchID)

	h.Inbox() <- LeaveGame{UserID: "a", GameID: matchID}
	end := recvType(t, outB, "gameEnd")
	require.Equal(t, "b", end.Winner)
	require.True(t, end.Forfeit)

	waitHub(t, h, func(v View) bool {
		return v.NumMatches == 0 &&
			v.Statuses["a"] == session.StatusOnline &&
			v.Statuses["b"] == session.StatusOnline
	})

	deadline := time.Now().Add(2 * time.Second)
	for len(mem.Results()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	results := mem.Results()
	require.Len(t, results, 1)
	require.Equal(t, "abandoned", results[0].Result)
	require.Equal(t, "b", results[0].WinnerID)
}

func TestTournamentRunsToCompletion(t *testing.T) {
	h, _ := newTestHub(t)
	outs := map[string]chan protocol.ServerMessage{}
	for _, u := range []string{"a", "b", "c", "d"} {
		outs[u] = connect(t, h, u)
	}

	h.Inbox() <- CreateTournament{HostID: "a", GameType: game.TypeTank, Roster: []string{"a", "b", "c", "d"}, Seed: 0}
	recvType(t, outs["a"], "tournamentCreated")
	v := waitHub(t, h, func(v View) bool { return v.NumMatches == 2 && v.NumBrackets == 1 })

	// a and c forfeit their semifinals; b and d advance to the final.
	h.Inbox() <- LeaveGame{UserID: "a", GameID: v.MatchIDs["a"]}
	h.Inbox() <- LeaveGame{UserID: "c", GameID: v.MatchIDs["c"]}
	// The final has spawned once b and d share a match ID.
	v = waitHub(t, h, func(v View) bool {
		return v.NumMatches == 1 && v.MatchIDs["b"] != "" && v.MatchIDs["b"] == v.MatchIDs["d"]
	})
	require.Equal(t, session.StatusOnline, v.Statuses["a"])
	require.Equal(t, session.StatusInMatch, v.Statuses["b"])
	require.Equal(t, session.StatusInMatch, v.Statuses["d"])

	// b forfeits the final; d is champion.
	h.Inbox() <- LeaveGame{UserID: "b", GameID: v.MatchIDs["b"]}
	done := recvType(t, outs["d"], "tournamentComplete")
	require.Equal(t, "d", done.Champion)

	waitHub(t, h, func(v View) bool {
		return v.NumBrackets == 0 && v.NumMatches == 0 &&
			v.Statuses["d"] == session.StatusOnline
	})
}

func TestTournamentRejectsSmallRoster(t *testing.T) {
	h, _ := newTestHub(t)
	outA := connect(t, h, "a")
	connect(t, h, "b")
	connect(t, h, "c")

	h.Inbox() <- CreateTournament{HostID: "a", GameType: game.TypeTank, Roster: []string{"a", "b", "c"}, Seed: 0}
	recvType(t, outA, "error")
	require.Zero(t, hubView(t, h).NumBrackets)
}

func TestShutdownAbandonsLiveMatches(t *testing.T) {
	h, mem := newTestHub(t)
	connect(t, h, "a")
	connect(t, h, "b")
	h.Inbox() <- JoinQueue{UserID: "a", GameType: game.TypeTank}
	h.Inbox() <- JoinQueue{UserID: "b", GameType: game.TypeTank}
	waitHub(t, h, func(v View) bool { return v.NumMatches == 1 })

	done := make(chan struct{})
	h.Inbox() <- Shutdown{Done: done}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("shutdown never completed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(mem.Results()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	results := mem.Results()
	require.Len(t, results, 1)
	require.Equal(t, "abandoned", results[0].Result)
	require.Empty(t, results[0].WinnerID)
}

func TestAcceptInviteWhileQueuedRejected(t *testing.T) {
	h, _ := newTestHub(t)
	connect(t, h, "a")
	outB := connect(t, h, "b")

	h.Inbox() <- Invite{FromUserID: "a", ToUserID: "b", GameType: game.TypeTank}
	inv := recvType(t, outB, "gameInvitation")

	h.Inbox() <- JoinQueue{UserID: "b", GameType: game.TypePong}
	recvType(t, outB, "queueUpdate")

	h.Inbox() <- RespondInvite{UserID: "b", InvitationID: inv.InvitationID, Accept: true}
	recvType(t, outB, "error")
	v := hubView(t, h)
	require.Zero(t, v.NumMatches)
	require.Equal(t, session.StatusQueued, v.Statuses["b"])

	// The invitation stayed pending: once b is free again it still works.
	h.Inbox() <- LeaveQueue{UserID: "b", GameType: game.TypePong}
	recvType(t, outB, "leftQueue")
	h.Inbox() <- RespondInvite{UserID: "b", InvitationID: inv.InvitationID, Accept: true}
	waitHub(t, h, func(v View) bool { return v.NumMatches == 1 })
}

func TestMatchedPlayersLeaveAllQueues(t *testing.T) {
	h, _ := newTestHub(t)
	connect(t, h, "a")
	connect(t, h, "b")
	connect(t, h, "c")

	// b waits in both queues; the tank queue fills first.
	h.Inbox() <- JoinQueue{UserID: "b", GameType: game.TypePong}
	h.Inbox() <- JoinQueue{UserID: "b", GameType: game.TypeTank}
	h.Inbox() <- JoinQueue{UserID: "a", GameType: game.TypeTank}
	v := waitHub(t, h, func(v View) bool { return v.NumMatches == 1 })
	require.Zero(t, v.QueueLens[game.TypePong], "stale queue entry survived the match start")

	// A third player joining pong must wait, not get paired with the
	// already-playing b.
	h.Inbox() <- JoinQueue{UserID: "c", GameType: game.TypePong}
	v = waitHub(t, h, func(v View) bool { return v.QueueLens[game.TypePong] == 1 })
	require.Equal(t, 1, v.NumMatches)
	require.Equal(t, session.StatusQueued, v.Statuses["c"])
	require.Equal(t, session.StatusInMatch, v.Statuses["b"])
}

func TestCreateTournamentRequiresOnlineHost(t *testing.T) {
	h, _ := newTestHub(t)
	outA := connect(t, h, "a")
	for _, u := range []string{"b", "c", "d"} {
		connect(t, h, u)
	}
	h.Inbox() <- JoinQueue{UserID: "a", GameType: game.TypePong}
	waitHub(t, h, func(v View) bool { return v.Statuses["a"] == session.StatusQueued })

	h.Inbox() <- CreateTournament{HostID: "a", GameType: game.TypeTank, Roster: []string{"a", "b", "c", "d"}, Seed: 0}
	recvType(t, outA, "error")
	require.Zero(t, hubView(t, h).NumBrackets)
}

func TestShutdownPersistsEveryLiveMatch(t *testing.T) {
	h, mem := newTestHub(t)
	for _, u := range []string{"a", "b", "c", "d"} {
		connect(t, h, u)
	}
	h.Inbox() <- JoinQueue{UserID: "a", GameType: game.TypeTank}
	h.Inbox() <- JoinQueue{UserID: "b", GameType: game.TypeTank}
	h.Inbox() <- JoinQueue{UserID: "c", GameType: game.TypePong}
	h.Inbox() <- JoinQueue{UserID: "d", GameType: game.TypePong}
	waitHub(t, h, func(v View) bool { return v.NumMatches == 2 })

	// A backlog of gameplay frames must not starve the stop order.
	for i := 0; i < 200; i++ {
		h.Inbox() <- Forward{UserID: "a", In: game.Input{Throttle: 1}}
	}

	done := make(chan struct{})
	h.Inbox() <- Shutdown{Done: done}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("shutdown never completed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(mem.Results()) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	results := mem.Results()
	require.Len(t, results, 2)
	for _, r := range results {
		require.Equal(t, "abandoned", r.Result)
		require.Empty(t, r.WinnerID)
	}
}
