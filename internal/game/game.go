package game

import "errors"

var ErrUnknownGameType = errors.New("unknown game type")
var ErrBadSlot = errors.New("slot out of range")
var ErrBadPlayerCount = errors.New("unsupported player count")

type Type string

const (
	TypePong Type = "pong"
	TypeTank Type = "tank"
)

func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case TypePong:
		return TypePong, true
	case TypeTank:
		return TypeTank, true
	default:
		return "", false
	}
}

// QueueSize is how many queued players it takes to start a match.
// Both game types are head-to-head in queue mode.
func (t Type) QueueSize() int { return 2 }

// MaxSlots is the largest participant count an engine of this type accepts.
func (t Type) MaxSlots() int {
	if t == TypePong {
		return 4
	}
	return 2
}

type Direction string

const (
	DirUp   Direction = "up"
	DirDown Direction = "down"
	DirStop Direction = "stop"
)

// Input is a discrete movement intent for one slot. The simulation, not
// the client, is authoritative over position; clients only send intents.
// Pong reads Direction; tank reads the rest. Axis values are -1, 0 or 1.
type Input struct {
	Direction Direction
	Throttle  int
	Turn      int
	Turret    int
	Fire      bool
}

// Outcome describes a terminal simulation state.
// WinnerSlot is -1 on a draw.
type Outcome struct {
	WinnerSlot int
	Draw       bool
	Scores     []int
}

type BallView struct {
	X  float64 `json:"x"`
	Z  float64 `json:"z"`
	VX float64 `json:"vx"`
	VZ float64 `json:"vz"`
}

type PaddleView struct {
	Slot int     `json:"slot"`
	Pos  float64 `json:"pos"`
}

type TankView struct {
	Slot   int     `json:"slot"`
	X      float64 `json:"x"`
	Z      float64 `json:"z"`
	Rot    float64 `json:"rot"`
	Turret float64 `json:"turret"`
	Lives  int     `json:"lives"`
}

type BulletView struct {
	X    float64 `json:"x"`
	Z    float64 `json:"z"`
	Slot int     `json:"slot"`
}

// Snapshot is the broadcast-ready per-tick state delta. Exactly one of
// the pong or tank field groups is populated.
type Snapshot struct {
	Ball    *BallView    `json:"ball,omitempty"`
	Paddles []PaddleView `json:"paddles,omitempty"`
	Scores  []int        `json:"scores,omitempty"`
	Tanks   []TankView   `json:"tanks,omitempty"`
	Bullets []BulletView `json:"bullets,omitempty"`
}

// Engine is a deterministic fixed-step simulation. Implementations are
// not safe for concurrent use; a match session owns its engine outright.
type Engine interface {
	Slots() int
	SetInput(slot int, in Input) error
	// Step advances one tick and reports whether a terminal condition
	// was reached.
	Step() (Outcome, bool)
	Snapshot() Snapshot
}

// New builds an engine for the given type and participant count.
// The seed fixes serve angles so replays and tests are reproducible.
func New(t Type, players int, seed int64) (Engine, error) {
	switch t {
	case TypePong:
		return NewPong(players, seed)
	case TypeTank:
		return NewTank(players)
	default:
		return nil, ErrUnknownGameType
	}
}
