package game

import "math"

const (
	tankFieldWidth  = 30.0
	tankFieldDepth  = 20.0
	tankSpeed       = 0.1
	tankTurnSpeed   = 0.05
	turretTurnSpeed = 0.05
	bulletSpeed     = 0.3
	tankHitRadius   = 1.5
	tankLives       = 3
	// 1s at the 50ms tick.
	fireCooldownTicks = 20
)

type tank struct {
	x, z     float64
	rot      float64
	turret   float64
	lives    int
	cooldown int
	in       Input
}

type bullet struct {
	x, z   float64
	dx, dz float64
	owner  int
}

// Tank is the authoritative top-down tank duel. Last tank alive wins;
// simultaneous destruction is the one draw the rule set permits.
type Tank struct {
	tanks   []tank
	bullets []bullet
}

func NewTank(players int) (*Tank, error) {
	if players != 2 {
		return nil, ErrBadPlayerCount
	}
	return &Tank{
		tanks: []tank{
			{x: -8, rot: 0, turret: 0, lives: tankLives},
			{x: 8, rot: math.Pi, turret: math.Pi, lives: tankLives},
		},
	}, nil
}

func (g *Tank) Slots() int { return len(g.tanks) }

func (g *Tank) SetInput(slot int, in Input) error {
	if slot < 0 || slot >= len(g.tanks) {
		return ErrBadSlot
	}
	g.tanks[slot].in = Input{
		Throttle: sign(in.Throttle),
		Turn:     sign(in.Turn),
		Turret:   sign(in.Turret),
		Fire:     in.Fire,
	}
	return nil
}

func (g *Tank) Step() (Outcome, bool) {
	for i := range g.tanks {
		t := &g.tanks[i]
		if t.lives <= 0 {
			continue
		}
		if t.cooldown > 0 {
			t.cooldown--
		}
		t.rot += float64(t.in.Turn) * tankTurnSpeed
		t.turret += float64(t.in.Turret) * turretTurnSpeed
		if t.in.Throttle != 0 {
			nx := t.x + math.Sin(t.rot)*float64(t.in.Throttle)*tankSpeed
			nz := t.z + math.Cos(t.rot)*float64(t.in.Throttle)*tankSpeed
			if math.Abs(nx) < tankFieldWidth/2-1 && math.Abs(nz) < tankFieldDepth/2-1.5 {
				t.x, t.z = nx, nz
			}
		}
		if t.in.Fire && t.cooldown == 0 {
			dx, dz := math.Sin(t.turret), math.Cos(t.turret)
			g.bullets = append(g.bullets, bullet{
				x:     t.x + dx*2,
				z:     t.z + dz*2,
				dx:    dx,
				dz:    dz,
				owner: i,
			})
			t.cooldown = fireCooldownTicks
			t.in.Fire = false
		}
	}

	g.stepBullets()

	alive := 0
	last := -1
	for i := range g.tanks {
		if g.tanks[i].lives > 0 {
			alive++
			last = i
		}
	}
	if alive <= 1 {
		out := Outcome{WinnerSlot: last, Scores: g.livesPerSlot()}
		if alive == 0 {
			out.Draw = true
			out.WinnerSlot = -1
		}
		return out, true
	}
	return Outcome{}, false
}

func (g *Tank) stepBullets() {
	kept := g.bullets[:0]
	for _, b := range g.bullets {
		b.x += b.dx * bulletSpeed
		b.z += b.dz * bulletSpeed
		if math.Abs(b.x) > tankFieldWidth/2 || math.Abs(b.z) > tankFieldDepth/2 {
			continue
		}
		hit := false
		for i := range g.tanks {
			t := &g.tanks[i]
			if i == b.owner || t.lives <= 0 {
				continue
			}
			if math.Hypot(b.x-t.x, b.z-t.z) < tankHitRadius {
				t.lives--
				hit = true
				break
			}
		}
		if !hit {
			kept = append(kept, b)
		}
	}
	g.bullets = kept
}

func (g *Tank) livesPerSlot() []int {
	lives := make([]int, len(g.tanks))
	for i := range g.tanks {
		lives[i] = g.tanks[i].lives
	}
	return lives
}

func (g *Tank) Snapshot() Snapshot {
	tanks := make([]TankView, len(g.tanks))
	for i, t := range g.tanks {
		tanks[i] = TankView{Slot: i, X: t.x, Z: t.z, Rot: t.rot, Turret: t.turret, Lives: t.lives}
	}
	bullets := make([]BulletView, len(g.bullets))
	for i, b := range g.bullets {
		bullets[i] = BulletView{X: b.x, Z: b.z, Slot: b.owner}
	}
	return Snapshot{Tanks: tanks, Bullets: bullets}
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
