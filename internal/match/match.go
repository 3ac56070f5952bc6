// Package match runs one authoritative game instance per goroutine.
// A session owns its engine outright: inputs, disconnects and ticks are
// all funneled through the inbox and handled strictly in arrival order,
// which is the only ordering the simulation needs for determinism.
package match

import (
	"context"
	"time"

	"github.com/arena-gg/arena-backend/internal/game"
	"github.com/arena-gg/arena-backend/internal/protocol"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TickInterval is the fixed simulation step.
const TickInterval = 50 * time.Millisecond

// GracePeriod is how long a disconnected participant may take to come
// back before the session is abandoned. The simulation pauses while the
// window is open; a reconnect resumes it with state unchanged.
const GracePeriod = 10 * time.Second

type State string

const (
	StatePending   State = "pending"
	StateActive    State = "active"
	StateFinished  State = "finished"
	StateAbandoned State = "abandoned"
)

type Msg interface{ isMatchMsg() }

type Start struct{}

type Input struct {
	UserID string
	In     game.Input
}

type Disconnect struct{ UserID string }

type Reconnect struct {
	UserID string
	Outbox chan protocol.ServerMessage
}

// Leave is a voluntary exit and forfeits immediately, no grace window.
type Leave struct{ UserID string }

// Shutdown forces an ABANDONED result so the outcome is persisted
// instead of lost when the process exits.
type Shutdown struct{}

type GetView struct{ Reply chan View }

func (Start) isMatchMsg()      {}
func (Input) isMatchMsg()      {}
func (Disconnect) isMatchMsg() {}
func (Reconnect) isMatchMsg()  {}
func (Leave) isMatchMsg()      {}
func (Shutdown) isMatchMsg()   {}
func (GetView) isMatchMsg()    {}

type graceFired struct{ gen int }

func (graceFired) isMatchMsg() {}

type Participant struct {
	UserID    string
	Slot      int
	Outbox    chan protocol.ServerMessage
	Connected bool
}

// View reflects internal state without data races; test-only probe.
type View struct {
	State        State
	Tick         int64
	Paused       bool
	NumConnected int
	Scores       []int
}

// Result is handed to the session's end callback exactly once.
type Result struct {
	MatchID      string
	GameType     game.Type
	TournamentID string
	State        State
	WinnerSlot   int
	WinnerID     string
	Draw         bool
	Forfeit      bool
	Scores       []int
	Participants []string
	StartedAt    time.Time
	EndedAt      time.Time
}

type Session struct {
	ID           string
	GameType     game.Type
	TournamentID string

	inbox        chan Msg
	engine       game.Engine
	state        State
	tick         int64
	paused       bool
	graceGen     int
	participants []*Participant
	startedAt    time.Time

	onEnd  func(Result)
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New binds participants to slots in order and starts the session
// goroutine in PENDING state; nothing ticks until Start arrives.
// onEnd must not block: it is invoked from the session goroutine.
func New(parent context.Context, gt game.Type, tournamentID string, users []*Participant, seed int64, onEnd func(Result), log *zap.Logger) (*Session, error) {
	eng, err := game.New(gt, len(users), seed)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		ID:           uuid.NewString(),
		GameType:     gt,
		TournamentID: tournamentID,
		inbox:        make(chan Msg, 64),
		engine:       eng,
		state:        StatePending,
		participants: users,
		onEnd:        onEnd,
		log:          log,
		ctx:          ctx,
		cancel:       cancel,
	}
	for i, p := range users {
		p.Slot = i
	}
	go s.loop()
	return s, nil
}

func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Done closes once the session goroutine has exited; senders that must
// not drop a message block on the inbox guarded by this channel.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Session) loop() {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	defer s.cancel()

	for {
		select {
		case <-s.ctx.Done():
			if s.state == StateActive || s.state == StatePending {
				s.end(StateAbandoned, -1, false)
			}
			return

		case <-ticker.C:
			if s.state != StateActive || s.paused {
				continue
			}
			s.tick++
			out, done := s.engine.Step()
			s.broadcastState()
			if done {
				s.end(StateFinished, out.WinnerSlot, false)
				return
			}

		case m := <-s.inbox:
			if s.handle(m) {
				return
			}
		}
	}
}

// handle processes one message; true means the session reached a
// terminal state and the loop must exit.
func (s *Session) handle(m Msg) bool {
	switch msg := m.(type) {
	case Start:
		if s.state != StatePending {
			return false
		}
		s.state = StateActive
		s.startedAt = time.Now()
		// A participant absent from the first tick (tournament players
		// who dropped between rounds) gets the same grace window as a
		// mid-match disconnect.
		if !s.allConnected() {
			s.openGrace()
		}
		s.broadcastState()

	case Input:
		if s.state != StateActive || s.paused {
			return false
		}
		p := s.bySlot(msg.UserID)
		if p == nil {
			// Not a bound participant; dropped, not fatal.
			return false
		}
		if err := s.engine.SetInput(p.Slot, msg.In); err != nil {
			s.log.Warn("input rejected", zap.String("match", s.ID), zap.Error(err))
		}

	case Disconnect:
		p := s.bySlot(msg.UserID)
		if p == nil || !p.Connected {
			return false
		}
		p.Connected = false
		if s.state != StateActive {
			return false
		}
		s.openGrace()
		s.broadcastState()
		s.log.Info("participant disconnected, grace window open",
			zap.String("match", s.ID), zap.String("user", msg.UserID))

	case Reconnect:
		p := s.bySlot(msg.UserID)
		if p == nil || p.Connected {
			return false
		}
		p.Outbox = msg.Outbox
		p.Connected = true
		if s.allConnected() {
			s.paused = false
			s.graceGen++ // invalidate the pending grace fire
		}
		s.broadcastState()
		s.log.Info("participant reconnected", zap.String("match", s.ID), zap.String("user", msg.UserID))

	case graceFired:
		if msg.gen != s.graceGen || s.state != StateActive || !s.paused {
			return false // stale fire
		}
		winner := s.forfeitWinner()
		s.end(StateAbandoned, winner, true)
		return true

	case Leave:
		p := s.bySlot(msg.UserID)
		if p == nil || s.state == StateFinished || s.state == StateAbandoned {
			return false
		}
		p.Connected = false
		winner := s.forfeitWinner()
		s.end(StateAbandoned, winner, true)
		return true

	case Shutdown:
		if s.state == StateActive || s.state == StatePending {
			s.end(StateAbandoned, -1, false)
		}
		return true

	case GetView:
		connected := 0
		for _, p := range s.participants {
			if p.Connected {
				connected++
			}
		}
		msg.Reply <- View{
			State:        s.state,
			Tick:         s.tick,
			Paused:       s.paused,
			NumConnected: connected,
			Scores:       s.engine.Snapshot().Scores,
		}
	}
	return false
}

// openGrace pauses the simulation and arms the forfeit timer. Each call
// bumps the generation so a reconnect invalidates the pending fire.
func (s *Session) openGrace() {
	s.paused = true
	s.graceGen++
	gen := s.graceGen
	time.AfterFunc(GracePeriod, func() {
		select {
		case s.inbox <- graceFired{gen: gen}:
		case <-s.ctx.Done():
		}
	})
}

func (s *Session) bySlot(userID string) *Participant {
	for _, p := range s.participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (s *Session) allConnected() bool {
	for _, p := range s.participants {
		if !p.Connected {
			return false
		}
	}
	return true
}

// forfeitWinner picks the slot that wins by default: the connected
// participant, best score first when several remain.
func (s *Session) forfeitWinner() int {
	winner := -1
	best := -1
	snap := s.engine.Snapshot()
	for _, p := range s.participants {
		if !p.Connected {
			continue
		}
		score := 0
		if p.Slot < len(snap.Scores) {
			score = snap.Scores[p.Slot]
		}
		if winner == -1 || score > best {
			winner, best = p.Slot, score
		}
	}
	return winner
}

func (s *Session) broadcastState() {
	snap := s.engine.Snapshot()
	msg := protocol.ServerMessage{
		Type:   "gameState",
		GameID: s.ID,
		Tick:   s.tick,
		State:  &snap,
		Paused: s.paused,
	}
	s.broadcast(msg)
}

// broadcast never blocks the simulation: full or gone outboxes miss the
// frame and catch up on the next one.
func (s *Session) broadcast(msg protocol.ServerMessage) {
	for _, p := range s.participants {
		if !p.Connected {
			continue
		}
		select {
		case p.Outbox <- msg:
		default:
		}
	}
}

func (s *Session) end(final State, winnerSlot int, forfeit bool) {
	if s.state == StateFinished || s.state == StateAbandoned {
		return
	}
	s.state = final
	snap := s.engine.Snapshot()
	res := Result{
		MatchID:      s.ID,
		GameType:     s.GameType,
		TournamentID: s.TournamentID,
		State:        final,
		WinnerSlot:   winnerSlot,
		Draw:         final == StateFinished && winnerSlot < 0,
		Forfeit:      forfeit,
		Scores:       snap.Scores,
		StartedAt:    s.startedAt,
		EndedAt:      time.Now(),
	}
	for _, p := range s.participants {
		res.Participants = append(res.Participants, p.UserID)
		if p.Slot == winnerSlot {
			res.WinnerID = p.UserID
		}
	}
	s.broadcast(protocol.ServerMessage{
		Type:    "gameEnd",
		GameID:  s.ID,
		Winner:  res.WinnerID,
		Draw:    res.Draw,
		Forfeit: forfeit,
	})
	if s.onEnd != nil {
		s.onEnd(res)
	}
	s.cancel()
}
