// Package hub is the single-writer coordinator. One goroutine owns the
// session registry, the matchmaking queues, the invitation table and
// every tournament bracket, so queue drains, status flips and bracket
// advancement are atomic with respect to each other: a player can never
// be matched into two sessions at once. Match sessions run their own
// goroutines and report back through the inbox.
package hub

import (
	"context"
	"time"

	"github.com/arena-gg/arena-backend/internal/game"
	"github.com/arena-gg/arena-backend/internal/match"
	"github.com/arena-gg/arena-backend/internal/matchmaking"
	"github.com/arena-gg/arena-backend/internal/protocol"
	"github.com/arena-gg/arena-backend/internal/session"
	"github.com/arena-gg/arena-backend/internal/store"
	"github.com/arena-gg/arena-backend/internal/tournament"
	"go.uber.org/zap"
)

const sweepInterval = time.Second

type Msg interface{ isHubMsg() }

type Connect struct {
	UserID string
	Outbox chan protocol.ServerMessage
	Cancel context.CancelFunc
	Reply  chan struct{}
}

// Disconnect carries the connection's outbox so a stale disconnect from
// an evicted connection cannot tear down its replacement.
type Disconnect struct {
	UserID string
	Outbox chan protocol.ServerMessage
}

type JoinQueue struct {
	UserID   string
	GameType game.Type
}

type LeaveQueue struct {
	UserID   string
	GameType game.Type
}

type Invite struct {
	FromUserID string
	ToUserID   string
	GameType   game.Type
}

type RespondInvite struct {
	UserID       string
	InvitationID string
	Accept       bool
}

type CreateTournament struct {
	HostID   string
	GameType game.Type
	Roster   []string
	Seed     int64
}

// Forward routes a gameplay input to the sender's current match.
type Forward struct {
	UserID string
	In     game.Input
}

type LeaveGame struct {
	UserID string
	GameID string
}

type Shutdown struct{ Done chan struct{} }

type GetView struct{ Reply chan View }

type matchEnded struct{ res match.Result }

func (Connect) isHubMsg()          {}
func (Disconnect) isHubMsg()       {}
func (JoinQueue) isHubMsg()        {}
func (LeaveQueue) isHubMsg()       {}
func (Invite) isHubMsg()           {}
func (RespondInvite) isHubMsg()    {}
func (CreateTournament) isHubMsg() {}
func (Forward) isHubMsg()          {}
func (LeaveGame) isHubMsg()        {}
func (Shutdown) isHubMsg()         {}
func (GetView) isHubMsg()          {}
func (matchEnded) isHubMsg()       {}

// View reflects internal state without data races; test-only probe.
type View struct {
	NumSessions int
	QueueLens   map[game.Type]int
	NumMatches  int
	NumBrackets int
	Statuses    map[string]session.Status
	MatchIDs    map[string]string
}

type Hub struct {
	inbox    chan Msg
	registry *session.Registry
	queues   *matchmaking.Queues
	invites  *matchmaking.Invitations
	brackets map[string]*tournament.Bracket
	matches  map[string]*match.Session
	inMatch  map[string]string // userID -> matchID, survives the grace window

	recorder     store.Recorder
	log          *zap.Logger
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownDone chan struct{}
}

// New starts the coordinator goroutine. The hub owns its lifetime: it
// is not parented to any caller context, so a cancelled signal context
// cannot kill the loop before a Shutdown message has drained and
// persisted the live matches. Teardown happens only through Shutdown.
func New(recorder store.Recorder, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		inbox:    make(chan Msg, 256),
		registry: session.NewRegistry(),
		queues:   matchmaking.NewQueues(),
		invites:  matchmaking.NewInvitations(),
		brackets: make(map[string]*tournament.Bracket),
		matches:  make(map[string]*match.Session),
		inMatch:  make(map[string]string),
		recorder: recorder,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- Msg { return h.inbox }

func (h *Hub) loop() {
	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()
	defer h.cancel()

	for {
		select {
		case <-h.ctx.Done():
			return

		case now := <-sweep.C:
			for _, inv := range h.invites.ExpireStale(now) {
				h.sendTo(inv.FromUserID, protocol.ServerMessage{
					Type:         "inviteExpired",
					InvitationID: inv.ID,
					ToUserID:     inv.ToUserID,
					Reason:       "expired",
				})
			}

		case m := <-h.inbox:
			if h.handle(m) {
				return
			}
		}
	}
}

// handle processes one message; true ends the loop (shutdown complete).
func (h *Hub) handle(m Msg) bool {
	switch msg := m.(type) {
	case Connect:
		h.connect(msg)

	case Disconnect:
		h.disconnect(msg)

	case JoinQueue:
		h.joinQueue(msg)

	case LeaveQueue:
		if sess, ok := h.registry.Get(msg.UserID); ok {
			if h.queues.Leave(msg.UserID, msg.GameType) {
				_ = h.registry.SetStatus(msg.UserID, session.StatusOnline)
				h.broadcastPresence(msg.UserID, string(session.StatusOnline))
			}
			h.send(sess, protocol.ServerMessage{Type: "leftQueue", GameType: string(msg.GameType)})
		}

	case Invite:
		h.invite(msg)

	case RespondInvite:
		h.respondInvite(msg)

	case CreateTournament:
		h.createTournament(msg)

	case Forward:
		if matchID, ok := h.inMatch[msg.UserID]; ok {
			if ms := h.matches[matchID]; ms != nil {
				h.post(ms, match.Input{UserID: msg.UserID, In: msg.In})
			}
		}

	case LeaveGame:
		if ms := h.matches[msg.GameID]; ms != nil && h.inMatch[msg.UserID] == msg.GameID {
			h.post(ms, match.Leave{UserID: msg.UserID})
		}

	case matchEnded:
		h.matchEnded(msg.res)
		if h.shutdownDone != nil && len(h.matches) == 0 {
			close(h.shutdownDone)
			return true
		}

	case Shutdown:
		h.shutdownDone = msg.Done
		if len(h.matches) == 0 {
			close(h.shutdownDone)
			return true
		}
		for _, ms := range h.matches {
			// Unlike gameplay frames, the stop order must arrive even
			// when the inbox is saturated, so it gets a blocking send.
			go func(ms *match.Session) {
				select {
				case ms.Inbox() <- match.Shutdown{}:
				case <-ms.Done():
				}
			}(ms)
		}

	case GetView:
		view := View{
			NumSessions: h.registry.Len(),
			QueueLens: map[game.Type]int{
				game.TypePong: h.queues.Len(game.TypePong),
				game.TypeTank: h.queues.Len(game.TypeTank),
			},
			NumMatches:  len(h.matches),
			NumBrackets: len(h.brackets),
			Statuses:    make(map[string]session.Status),
			MatchIDs:    make(map[string]string),
		}
		h.registry.Each(func(s *session.PlayerSession) {
			view.Statuses[s.UserID] = s.Status
			view.MatchIDs[s.UserID] = s.CurrentMatchID
		})
		msg.Reply <- view
	}
	return false
}

func (h *Hub) connect(msg Connect) {
	sess, evicted := h.registry.Register(msg.UserID, msg.Outbox, msg.Cancel)
	if evicted != nil {
		// Last connection wins: tear the previous one down.
		h.log.Info("evicting duplicate session", zap.String("user", msg.UserID))
		evicted.Cancel()
	}
	// Reattach to a match still inside its grace window.
	if matchID, ok := h.inMatch[msg.UserID]; ok {
		if ms := h.matches[matchID]; ms != nil {
			_ = h.registry.SetStatus(msg.UserID, session.StatusInMatch)
			sess.CurrentMatchID = matchID
			h.post(ms, match.Reconnect{UserID: msg.UserID, Outbox: msg.Outbox})
		}
	}
	h.broadcastPresence(msg.UserID, string(sess.Status))
	if msg.Reply != nil {
		msg.Reply <- struct{}{}
	}
}

func (h *Hub) disconnect(msg Disconnect) {
	sess, ok := h.registry.Get(msg.UserID)
	if !ok || sess.Outbox != msg.Outbox {
		return // stale disconnect from an evicted connection
	}
	h.queues.RemoveUser(msg.UserID)
	for _, inv := range h.invites.RemoveUser(msg.UserID) {
		other := inv.FromUserID
		if other == msg.UserID {
			other = inv.ToUserID
		}
		h.sendTo(other, protocol.ServerMessage{
			Type:         "inviteExpired",
			InvitationID: inv.ID,
			Reason:       "cancelled",
		})
	}
	if matchID, ok := h.inMatch[msg.UserID]; ok {
		if ms := h.matches[matchID]; ms != nil {
			h.post(ms, match.Disconnect{UserID: msg.UserID})
		}
	} else {
		// Between rounds a dropout forfeits their next bracket match.
		h.dropoutFromBrackets(msg.UserID)
	}
	h.registry.Unregister(msg.UserID)
	h.broadcastPresence(msg.UserID, "offline")
}

func (h *Hub) joinQueue(msg JoinQueue) {
	sess, ok := h.registry.Get(msg.UserID)
	if !ok {
		return
	}
	if sess.Status != session.StatusOnline && sess.Status != session.StatusQueued {
		h.send(sess, protocol.ErrorMsg("cannot join queue while "+string(sess.Status)))
		return
	}
	pos, _ := h.queues.Join(msg.UserID, msg.GameType, time.Now())
	_ = h.registry.SetStatus(msg.UserID, session.StatusQueued)
	h.send(sess, protocol.ServerMessage{Type: "queueUpdate", GameType: string(msg.GameType), Position: pos})
	h.broadcastPresence(msg.UserID, string(session.StatusQueued))

	if popped := h.queues.PopReady(msg.GameType, msg.GameType.QueueSize()); popped != nil {
		users := make([]string, len(popped))
		for i, e := range popped {
			users[i] = e.UserID
		}
		h.startMatch(msg.GameType, users, "", time.Now().UnixNano())
	}
}

func (h *Hub) invite(msg Invite) {
	from, ok := h.registry.Get(msg.FromUserID)
	if !ok {
		return
	}
	target, ok := h.registry.Get(msg.ToUserID)
	if !ok || target.Status != session.StatusOnline {
		h.send(from, protocol.ErrorMsg("player unavailable"))
		return
	}
	inv, err := h.invites.Create(msg.FromUserID, msg.ToUserID, msg.GameType, time.Now())
	if err != nil {
		h.send(from, protocol.ErrorMsg(err.Error()))
		return
	}
	h.send(target, protocol.ServerMessage{
		Type:         "gameInvitation",
		InvitationID: inv.ID,
		FromUserID:   inv.FromUserID,
		GameType:     string(inv.GameType),
	})
}

func (h *Hub) respondInvite(msg RespondInvite) {
	sess, ok := h.registry.Get(msg.UserID)
	if !ok {
		return
	}
	// Accepting requires a free recipient; the invitation stays pending
	// so it can be accepted once they are back online.
	if msg.Accept && sess.Status != session.StatusOnline {
		h.send(sess, protocol.ErrorMsg("cannot accept invite while "+string(sess.Status)))
		return
	}
	inv, err := h.invites.Respond(msg.InvitationID, msg.UserID, msg.Accept, time.Now())
	if err != nil {
		h.send(sess, protocol.ErrorMsg(err.Error()))
		return
	}
	if !msg.Accept {
		h.sendTo(inv.FromUserID, protocol.ServerMessage{
			Type:         "inviteDeclined",
			InvitationID: inv.ID,
			ToUserID:     inv.ToUserID,
		})
		return
	}
	inviter, ok := h.registry.Get(inv.FromUserID)
	if !ok || inviter.Status != session.StatusOnline {
		h.send(sess, protocol.ErrorMsg("player unavailable"))
		return
	}
	h.startMatch(inv.GameType, []string{inv.FromUserID, inv.ToUserID}, "", time.Now().UnixNano())
}

func (h *Hub) createTournament(msg CreateTournament) {
	host, ok := h.registry.Get(msg.HostID)
	if !ok {
		return
	}
	if host.Status != session.StatusOnline {
		h.send(host, protocol.ErrorMsg("cannot create tournament while "+string(host.Status)))
		return
	}
	for _, userID := range msg.Roster {
		s, ok := h.registry.Get(userID)
		if !ok || s.Status != session.StatusOnline {
			h.send(host, protocol.ErrorMsg("player unavailable: "+userID))
			return
		}
	}
	b, err := tournament.New(msg.HostID, msg.GameType, msg.Roster, msg.Seed)
	if err != nil {
		h.send(host, protocol.ErrorMsg(err.Error()))
		return
	}
	h.brackets[b.ID] = b
	created := protocol.ServerMessage{
		Type:         "tournamentCreated",
		TournamentID: b.ID,
		GameType:     string(b.GameType),
		Rounds:       roundViews(b),
	}
	for _, userID := range b.Participants {
		h.sendTo(userID, created)
	}
	h.log.Info("tournament created",
		zap.String("tournament", b.ID),
		zap.Int("roster", len(b.Participants)))
	h.spawnBracketMatches(b)
}

// startMatch atomically flips every participant to IN_MATCH and spawns
// the session actor. Participants missing from the registry (tournament
// players who dropped mid-bracket) start disconnected and are covered by
// the grace window.
func (h *Hub) startMatch(gt game.Type, users []string, tournamentID string, seed int64) *match.Session {
	// Matched players leave every queue they were waiting in, so a stale
	// entry can never drain them into a second concurrent session.
	for _, userID := range users {
		h.queues.RemoveUser(userID)
	}
	parts := make([]*match.Participant, len(users))
	for i, userID := range users {
		p := &match.Participant{UserID: userID}
		if sess, ok := h.registry.Get(userID); ok {
			p.Outbox = sess.Outbox
			p.Connected = true
		}
		parts[i] = p
	}
	onEnd := func(res match.Result) {
		// Posted from the match goroutine; never block it on the hub.
		go func() {
			select {
			case h.inbox <- matchEnded{res: res}:
			case <-h.ctx.Done():
			}
		}()
	}
	ms, err := match.New(h.ctx, gt, tournamentID, parts, seed, onEnd, h.log)
	if err != nil {
		h.log.Error("failed to start match", zap.Error(err))
		return nil
	}
	h.matches[ms.ID] = ms

	participants := make([]protocol.Participant, len(parts))
	for i, p := range parts {
		participants[i] = protocol.Participant{UserID: p.UserID, Slot: p.Slot}
	}
	for _, userID := range users {
		if err := h.registry.SetStatus(userID, session.StatusInMatch); err != nil {
			h.log.Warn("status transition rejected", zap.String("user", userID), zap.Error(err))
		}
		if sess, ok := h.registry.Get(userID); ok {
			sess.CurrentMatchID = ms.ID
		}
		h.inMatch[userID] = ms.ID
		h.sendTo(userID, protocol.ServerMessage{Type: "gameCreated", GameID: ms.ID, GameType: string(gt)})
		h.sendTo(userID, protocol.ServerMessage{
			Type:         "gameStart",
			GameID:       ms.ID,
			GameType:     string(gt),
			TournamentID: tournamentID,
			Participants: participants,
		})
		h.broadcastPresence(userID, string(session.StatusInMatch))
	}
	h.post(ms, match.Start{})
	h.log.Info("match started",
		zap.String("match", ms.ID),
		zap.String("gameType", string(gt)),
		zap.Strings("users", users))
	return ms
}

func (h *Hub) matchEnded(res match.Result) {
	delete(h.matches, res.MatchID)
	for _, userID := range res.Participants {
		if h.inMatch[userID] == res.MatchID {
			delete(h.inMatch, userID)
		}
	}
	h.persist(res)

	b := h.bracketFor(res)
	for _, userID := range res.Participants {
		// Tournament winners stay IN_MATCH awaiting the next round.
		if b != nil && userID == res.WinnerID {
			continue
		}
		h.setOnline(userID)
	}
	if b == nil {
		return
	}

	winner := res.WinnerID
	if winner == "" && len(res.Participants) > 0 && res.State == match.StateFinished {
		// Draws cannot feed a bracket; the first slot advances.
		winner = res.Participants[0]
	}
	if err := b.RecordResult(res.MatchID, winner); err != nil {
		h.log.Warn("bracket rejected result", zap.String("match", res.MatchID), zap.Error(err))
		return
	}
	advanced := protocol.ServerMessage{
		Type:         "tournamentAdvanced",
		TournamentID: b.ID,
		GameID:       res.MatchID,
		Winner:       winner,
		Rounds:       roundViews(b),
	}
	for _, userID := range b.Remaining() {
		h.sendTo(userID, advanced)
	}
	h.finishOrContinue(b)
}

// finishOrContinue spawns any newly startable bracket matches, or wraps
// the bracket up once the final resolves.
func (h *Hub) finishOrContinue(b *tournament.Bracket) {
	if !b.Complete() {
		h.spawnBracketMatches(b)
		return
	}
	champion := b.Champion()
	done := protocol.ServerMessage{
		Type:         "tournamentComplete",
		TournamentID: b.ID,
		Champion:     champion,
		Rounds:       roundViews(b),
	}
	for _, userID := range b.Participants {
		h.sendTo(userID, done)
		h.setOnline(userID)
	}
	if champion != "" {
		h.recordOutcome(store.Outcome{
			UserID:        champion,
			GameType:      string(b.GameType),
			Won:           true,
			TournamentWin: true,
		})
	}
	delete(h.brackets, b.ID)
	h.log.Info("tournament complete", zap.String("tournament", b.ID), zap.String("champion", champion))
}

func (h *Hub) spawnBracketMatches(b *tournament.Bracket) {
	for _, p := range b.Startable() {
		ms := h.startMatch(b.GameType, []string{p.A, p.B}, b.ID, time.Now().UnixNano())
		if ms != nil {
			p.MatchID = ms.ID
		}
	}
	// Byes may have resolved the whole bracket without a single match.
	if b.Complete() {
		h.finishOrContinue(b)
	}
}

func (h *Hub) dropoutFromBrackets(userID string) {
	for _, b := range h.brackets {
		remaining := false
		for _, p := range b.Remaining() {
			if p == userID {
				remaining = true
				break
			}
		}
		if !remaining {
			continue
		}
		b.Dropout(userID)
		h.log.Info("bracket dropout", zap.String("tournament", b.ID), zap.String("user", userID))
		h.finishOrContinue(b)
	}
}

func (h *Hub) bracketFor(res match.Result) *tournament.Bracket {
	if res.TournamentID == "" {
		return nil
	}
	return h.brackets[res.TournamentID]
}

func (h *Hub) persist(res match.Result) {
	duration := int64(0)
	if !res.StartedAt.IsZero() {
		duration = res.EndedAt.Sub(res.StartedAt).Milliseconds()
	}
	rec := store.MatchResult{
		MatchID:      res.MatchID,
		GameType:     string(res.GameType),
		TournamentID: res.TournamentID,
		Result:       string(res.State),
		WinnerID:     res.WinnerID,
		Draw:         res.Draw,
		Forfeit:      res.Forfeit,
		DurationMS:   duration,
	}
	for i, userID := range res.Participants {
		score := 0
		if i < len(res.Scores) {
			score = res.Scores[i]
		}
		rec.Participants = append(rec.Participants, store.ParticipantResult{
			UserID: userID,
			Slot:   i,
			Score:  score,
			Won:    userID == res.WinnerID,
		})
		h.recordOutcome(store.Outcome{
			UserID:   userID,
			GameType: string(res.GameType),
			Won:      userID == res.WinnerID,
			Draw:     res.Draw,
		})
	}
	go func() {
		if err := h.recorder.RecordMatchResult(context.Background(), rec); err != nil {
			// The in-memory result already reached the clients; it stays
			// authoritative even when durable storage misses it.
			h.log.Error("failed to persist match result", zap.String("match", res.MatchID), zap.Error(err))
		}
	}()
}

func (h *Hub) recordOutcome(o store.Outcome) {
	go func() {
		if err := h.recorder.RecordOutcome(context.Background(), o); err != nil {
			h.log.Error("failed to persist outcome", zap.String("user", o.UserID), zap.Error(err))
		}
	}()
}

func (h *Hub) setOnline(userID string) {
	sess, ok := h.registry.Get(userID)
	if !ok {
		return
	}
	if sess.Status != session.StatusOnline {
		_ = h.registry.SetStatus(userID, session.StatusOnline)
		h.broadcastPresence(userID, string(session.StatusOnline))
	}
}

// broadcastPresence fans a status change out to every live session.
// Fire-and-forget: it never blocks the hub.
func (h *Hub) broadcastPresence(userID, status string) {
	msg := protocol.Presence(userID, status)
	h.registry.Each(func(s *session.PlayerSession) {
		h.send(s, msg)
	})
}

// send delivers without ever blocking the hub; a full outbox drops the
// frame (never retried, matching the broadcast contract).
func (h *Hub) send(sess *session.PlayerSession, msg protocol.ServerMessage) {
	select {
	case sess.Outbox <- msg:
	default:
	}
}

func (h *Hub) sendTo(userID string, msg protocol.ServerMessage) {
	if sess, ok := h.registry.Get(userID); ok {
		h.send(sess, msg)
	}
}

// post sends to a match inbox without risking a block on a loop that
// already exited; matchEnded cleanup makes dropped frames harmless.
func (h *Hub) post(ms *match.Session, m match.Msg) {
	select {
	case ms.Inbox() <- m:
	default:
	}
}

func roundViews(b *tournament.Bracket) []protocol.RoundView {
	out := make([]protocol.RoundView, len(b.Rounds))
	for r, round := range b.Rounds {
		views := make([]protocol.PairingView, len(round))
		for i, p := range round {
			views[i] = protocol.PairingView{MatchID: p.MatchID, A: p.A, B: p.B, Winner: p.Winner}
		}
		out[r] = protocol.RoundView{Pairings: views}
	}
	return out
}
