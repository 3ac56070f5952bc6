// Package protocol defines the wire surface: one JSON object per
// message, discriminated by "type". Inbound payloads decode into a
// closed variant set so dispatch is exhaustive at compile time; outbound
// messages share one flat struct the way clients consume them.
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/arena-gg/arena-backend/internal/game"
)

var ErrMalformed = errors.New("malformed message")
var ErrUnknownType = errors.New("unknown message type")

// wire is the flat inbound shape; Decode narrows it to an Inbound variant.
type wire struct {
	Type         string   `json:"type"`
	Token        string   `json:"token,omitempty"`
	GameType     string   `json:"gameType,omitempty"`
	ToUserID     string   `json:"toUserId,omitempty"`
	InvitationID string   `json:"invitationId,omitempty"`
	Accept       bool     `json:"accept,omitempty"`
	Roster       []string `json:"roster,omitempty"`
	Seed         int64    `json:"seed,omitempty"`
	Direction    string   `json:"direction,omitempty"`
	Throttle     int      `json:"throttle,omitempty"`
	Turn         int      `json:"turn,omitempty"`
	Turret       int      `json:"turret,omitempty"`
	Fire         bool     `json:"fire,omitempty"`
	GameID       string   `json:"gameId,omitempty"`
}

type Inbound interface{ isInbound() }

type Authenticate struct{ Token string }

type JoinQueue struct{ GameType game.Type }

type LeaveQueue struct{ GameType game.Type }

type GameInvite struct {
	ToUserID string
	GameType game.Type
}

type RespondInvite struct {
	InvitationID string
	Accept       bool
}

type CreateTournament struct {
	GameType game.Type
	Roster   []string
	Seed     int64
}

type Move struct{ Direction game.Direction }

type TankInput struct {
	Throttle int
	Turn     int
	Turret   int
	Fire     bool
}

type LeaveGame struct{ GameID string }

func (Authenticate) isInbound()     {}
func (JoinQueue) isInbound()        {}
func (LeaveQueue) isInbound()       {}
func (GameInvite) isInbound()       {}
func (RespondInvite) isInbound()    {}
func (CreateTournament) isInbound() {}
func (Move) isInbound()             {}
func (TankInput) isInbound()        {}
func (LeaveGame) isInbound()        {}

// Decode parses one inbound frame. Unknown types and bad payloads come
// back as errors so the connection can answer with an error message
// instead of dying.
func Decode(data []byte) (Inbound, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, ErrMalformed
	}
	switch w.Type {
	case "authenticate":
		return Authenticate{Token: w.Token}, nil
	case "joinQueue", "leaveQueue":
		gt, ok := game.ParseType(w.GameType)
		if !ok {
			return nil, ErrMalformed
		}
		if w.Type == "joinQueue" {
			return JoinQueue{GameType: gt}, nil
		}
		return LeaveQueue{GameType: gt}, nil
	case "gameInvite":
		gt, ok := game.ParseType(w.GameType)
		if !ok || w.ToUserID == "" {
			return nil, ErrMalformed
		}
		return GameInvite{ToUserID: w.ToUserID, GameType: gt}, nil
	case "respondInvite":
		if w.InvitationID == "" {
			return nil, ErrMalformed
		}
		return RespondInvite{InvitationID: w.InvitationID, Accept: w.Accept}, nil
	case "createTournament":
		gt, ok := game.ParseType(w.GameType)
		if !ok {
			return nil, ErrMalformed
		}
		return CreateTournament{GameType: gt, Roster: w.Roster, Seed: w.Seed}, nil
	case "move":
		switch game.Direction(w.Direction) {
		case game.DirUp, game.DirDown, game.DirStop:
			return Move{Direction: game.Direction(w.Direction)}, nil
		}
		return nil, ErrMalformed
	case "tankInput":
		return TankInput{Throttle: w.Throttle, Turn: w.Turn, Turret: w.Turret, Fire: w.Fire}, nil
	case "leaveGame":
		if w.GameID == "" {
			return nil, ErrMalformed
		}
		return LeaveGame{GameID: w.GameID}, nil
	default:
		return nil, ErrUnknownType
	}
}

type Participant struct {
	UserID string `json:"userId"`
	Slot   int    `json:"slot"`
}

type RoundView struct {
	Pairings []PairingView `json:"pairings"`
}

type PairingView struct {
	MatchID string `json:"matchId,omitempty"`
	A       string `json:"a,omitempty"`
	B       string `json:"b,omitempty"`
	Winner  string `json:"winner,omitempty"`
}

// ServerMessage is every outbound frame. Only the fields relevant to
// Type are populated; the rest marshal away under omitempty.
type ServerMessage struct {
	Type         string         `json:"type"`
	UserID       string         `json:"userId,omitempty"`
	Status       string         `json:"status,omitempty"`
	GameID       string         `json:"gameId,omitempty"`
	GameType     string         `json:"gameType,omitempty"`
	Position     int            `json:"position,omitempty"`
	InvitationID string         `json:"invitationId,omitempty"`
	FromUserID   string         `json:"fromUserId,omitempty"`
	ToUserID     string         `json:"toUserId,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	TournamentID string         `json:"tournamentId,omitempty"`
	Champion     string         `json:"champion,omitempty"`
	Participants []Participant  `json:"participants,omitempty"`
	Rounds       []RoundView    `json:"rounds,omitempty"`
	Tick         int64          `json:"tick,omitempty"`
	State        *game.Snapshot `json:"state,omitempty"`
	Paused       bool           `json:"paused,omitempty"`
	Winner       string         `json:"winner,omitempty"`
	Draw         bool           `json:"draw,omitempty"`
	Forfeit      bool           `json:"forfeit,omitempty"`
	Message      string         `json:"message,omitempty"`
}

func ErrorMsg(msg string) ServerMessage {
	return ServerMessage{Type: "error", Message: msg}
}

func Authenticated(userID string) ServerMessage {
	return ServerMessage{Type: "authenticated", UserID: userID}
}

func Presence(userID, status string) ServerMessage {
	return ServerMessage{Type: "presence", UserID: userID, Status: status}
}
