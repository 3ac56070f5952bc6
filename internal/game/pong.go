package game

import (
	"math"
	"math/rand"
)

// Field and motion constants mirror the client's local pong build so the
// authoritative and offline variants feel identical.
const (
	pongFieldWidth  = 20.0
	pongFieldDepth  = 10.0
	pongPaddleSpeed = 0.2
	pongPaddleHalf  = 1.0 // half of paddle length
	pongPaddleThick = 0.1 // half of paddle thickness
	pongBallSpeed   = 0.15
	pongBallRadius  = 0.25
	pongSpeedup     = 1.05
	pongSpin        = 0.05
	pongWinScore    = 5
)

type paddle struct {
	pos float64 // z for slots 0/1, x for slots 2/3
	dir Direction
}

// Pong is the authoritative paddle game. Two players defend the x edges;
// in the four-player variant the field is square and slots 2/3 defend
// the z edges. A conceded goal scores one point for every other slot.
type Pong struct {
	players int
	halfW   float64
	halfD   float64

	ballX, ballZ float64
	velX, velZ   float64

	paddles []paddle
	scores  []int

	rng *rand.Rand
}

func NewPong(players int, seed int64) (*Pong, error) {
	if players != 2 && players != 4 {
		return nil, ErrBadPlayerCount
	}
	p := &Pong{
		players: players,
		halfW:   pongFieldWidth / 2,
		halfD:   pongFieldDepth / 2,
		paddles: make([]paddle, players),
		scores:  make([]int, players),
		rng:     rand.New(rand.NewSource(seed)),
	}
	if players == 4 {
		// Square field so all four goals are the same width.
		p.halfD = p.halfW
	}
	p.resetBall()
	return p, nil
}

func (p *Pong) Slots() int { return p.players }

func (p *Pong) SetInput(slot int, in Input) error {
	if slot < 0 || slot >= p.players {
		return ErrBadSlot
	}
	switch in.Direction {
	case DirUp, DirDown, DirStop:
		p.paddles[slot].dir = in.Direction
	}
	return nil
}

func (p *Pong) resetBall() {
	p.ballX, p.ballZ = 0, 0
	angle := (p.rng.Float64() - 0.5) * math.Pi / 3 // -30..30 degrees
	dir := 1.0
	if p.rng.Float64() < 0.5 {
		dir = -1
	}
	p.velX = dir * pongBallSpeed * math.Cos(angle)
	p.velZ = pongBallSpeed * math.Sin(angle)
}

func (p *Pong) Step() (Outcome, bool) {
	p.movePaddles()
	p.ballX += p.velX
	p.ballZ += p.velZ

	if p.players == 2 {
		// Top/bottom walls only exist head-to-head.
		maxZ := p.halfD - pongBallRadius
		if p.ballZ > maxZ || p.ballZ < -maxZ {
			p.velZ = -p.velZ
			p.ballZ = clamp(p.ballZ, -maxZ, maxZ)
		}
	}

	p.collidePaddles()

	if goal := p.concededBy(); goal >= 0 {
		for i := range p.scores {
			if i != goal {
				p.scores[i]++
			}
		}
		p.resetBall()
		if winner := p.leader(); winner >= 0 {
			return Outcome{WinnerSlot: winner, Scores: append([]int(nil), p.scores...)}, true
		}
	}
	return Outcome{}, false
}

func (p *Pong) movePaddles() {
	limit := p.halfD - pongPaddleHalf
	for i := range p.paddles {
		switch p.paddles[i].dir {
		case DirUp:
			p.paddles[i].pos += pongPaddleSpeed
		case DirDown:
			p.paddles[i].pos -= pongPaddleSpeed
		}
		p.paddles[i].pos = clamp(p.paddles[i].pos, -limit, limit)
	}
}

// paddleLine is where a slot's paddle face sits along its guarding axis.
func (p *Pong) paddleLine(slot int) float64 {
	edge := p.halfW - 1
	if slot == 0 || slot == 2 {
		edge = -edge
	}
	return edge
}

func (p *Pong) collidePaddles() {
	for i := range p.paddles {
		line := p.paddleLine(i)
		along, across := p.ballX, p.ballZ // slots 0/1 guard x edges
		if i >= 2 {
			along, across = p.ballZ, p.ballX
		}
		inward := 1.0
		if line > 0 {
			inward = -1
		}
		face := line + inward*pongPaddleThick
		behind := line - inward*pongPaddleThick
		lead := along - inward*pongBallRadius
		if !between(lead, behind, face) {
			continue
		}
		if math.Abs(across-p.paddles[i].pos) > pongPaddleHalf {
			continue
		}
		hitOffset := (across - p.paddles[i].pos) / pongPaddleHalf
		if i < 2 {
			p.velX *= -pongSpeedup
			p.ballX = face + inward*pongBallRadius
			p.velZ += hitOffset * pongSpin
		} else {
			p.velZ *= -pongSpeedup
			p.ballZ = face + inward*pongBallRadius
			p.velX += hitOffset * pongSpin
		}
	}
}

// concededBy reports which slot the ball just got past, or -1.
func (p *Pong) concededBy() int {
	if p.ballX < -p.halfW {
		return 0
	}
	if p.ballX > p.halfW {
		return 1
	}
	if p.players == 4 {
		if p.ballZ < -p.halfD {
			return 2
		}
		if p.ballZ > p.halfD {
			return 3
		}
	}
	return -1
}

func (p *Pong) leader() int {
	for i, s := range p.scores {
		if s >= pongWinScore {
			return i
		}
	}
	return -1
}

func (p *Pong) Snapshot() Snapshot {
	views := make([]PaddleView, p.players)
	for i := range p.paddles {
		views[i] = PaddleView{Slot: i, Pos: p.paddles[i].pos}
	}
	return Snapshot{
		Ball:    &BallView{X: p.ballX, Z: p.ballZ, VX: p.velX, VZ: p.velZ},
		Paddles: views,
		Scores:  append([]int(nil), p.scores...),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func between(v, a, b float64) bool {
	if a > b {
		a, b = b, a
	}
	return v >= a && v <= b
}
