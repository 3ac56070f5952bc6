// Package tournament implements the single-elimination bracket. The
// bracket is pure state owned by the hub; it never talks to connections
// or match actors itself.
package tournament

import (
	"errors"
	"math/rand"

	"github.com/arena-gg/arena-backend/internal/game"
	"github.com/google/uuid"
)

var ErrInsufficientPlayers = errors.New("insufficient players")
var ErrUnknownMatch = errors.New("match not tracked by bracket")

// Pairing is one slot pair within a round. Empty A/B means the side is
// either an unresolved feed from the previous round or a bye. MatchID is
// bound by the hub once a live match session is spawned for the pairing.
type Pairing struct {
	MatchID string
	A, B    string
	Winner  string
	decided bool
}

type Bracket struct {
	ID           string
	HostID       string
	GameType     game.Type
	Participants []string
	Rounds       [][]Pairing

	dropped map[string]bool
}

// New builds a bracket from the roster. Rosters smaller than 4 are
// rejected; non-power-of-two rosters are padded with byes. A non-zero
// seed shuffles the roster deterministically; seed 0 keeps roster order.
func New(hostID string, gt game.Type, roster []string, seed int64) (*Bracket, error) {
	if len(roster) < 4 {
		return nil, ErrInsufficientPlayers
	}
	seeded := append([]string(nil), roster...)
	if seed != 0 {
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(seeded), func(i, j int) { seeded[i], seeded[j] = seeded[j], seeded[i] })
	}
	size := 1
	for size < len(seeded) {
		size *= 2
	}
	for len(seeded) < size {
		seeded = append(seeded, "") // bye
	}

	b := &Bracket{
		ID:           uuid.NewString(),
		HostID:       hostID,
		GameType:     gt,
		Participants: append([]string(nil), roster...),
		dropped:      make(map[string]bool),
	}
	for n := size / 2; n >= 1; n /= 2 {
		b.Rounds = append(b.Rounds, make([]Pairing, n))
	}
	for i := 0; i < size/2; i++ {
		b.Rounds[0][i] = Pairing{A: seeded[2*i], B: seeded[2*i+1]}
	}
	b.settleByes()
	return b, nil
}

// Startable returns pointers to pairings that have both sides bound,
// no live match yet, and no decided winner. Round k+1 sides only fill
// once round k feeds them, so this never starts a round early.
func (b *Bracket) Startable() []*Pairing {
	var out []*Pairing
	for r := range b.Rounds {
		for i := range b.Rounds[r] {
			p := &b.Rounds[r][i]
			if p.A != "" && p.B != "" && !p.decided && p.MatchID == "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// RecordResult resolves the pairing bound to matchID with the winning
// userID and cascades feeds (and any byes they unlock).
func (b *Bracket) RecordResult(matchID, winner string) error {
	for r := range b.Rounds {
		for i := range b.Rounds[r] {
			p := &b.Rounds[r][i]
			if p.MatchID == matchID && !p.decided {
				b.decide(r, i, winner)
				b.settleByes()
				return nil
			}
		}
	}
	return ErrUnknownMatch
}

// Dropout forfeits every undecided, not-yet-started pairing the user
// holds a side in; the opposing side auto-advances. The bracket keeps
// going rather than cancelling.
func (b *Bracket) Dropout(userID string) {
	b.dropped[userID] = true
	for r := range b.Rounds {
		for i := range b.Rounds[r] {
			p := &b.Rounds[r][i]
			if p.decided || p.MatchID != "" {
				continue
			}
			switch userID {
			case p.A:
				p.A = ""
			case p.B:
				p.B = ""
			}
		}
	}
	b.settleByes()
}

func (b *Bracket) decide(round, idx int, winner string) {
	p := &b.Rounds[round][idx]
	p.Winner = winner
	p.decided = true
	if round+1 < len(b.Rounds) {
		next := &b.Rounds[round+1][idx/2]
		if idx%2 == 0 {
			next.A = winner
		} else {
			next.B = winner
		}
	}
}

// settleByes resolves pairings where a side is a bye but the feeding
// pairings are all decided, so a lone participant advances immediately.
func (b *Bracket) settleByes() {
	for {
		progressed := false
		for r := range b.Rounds {
			for i := range b.Rounds[r] {
				p := &b.Rounds[r][i]
				if p.decided || p.MatchID != "" {
					continue
				}
				if !b.sidesFinal(r, i) {
					continue
				}
				if p.A == "" || p.B == "" || b.dropped[p.A] || b.dropped[p.B] {
					winner := p.A
					if winner == "" || b.dropped[winner] {
						winner = p.B
					}
					if winner != "" && b.dropped[winner] {
						winner = ""
					}
					b.decide(r, i, winner)
					progressed = true
				}
			}
		}
		if !progressed {
			return
		}
	}
}

// sidesFinal reports whether both feeds of Rounds[r][i] are settled, so
// an empty side really is a bye and not a pending feed.
func (b *Bracket) sidesFinal(r, i int) bool {
	if r == 0 {
		return true
	}
	return b.Rounds[r-1][2*i].decided && b.Rounds[r-1][2*i+1].decided
}

func (b *Bracket) Complete() bool {
	final := b.Rounds[len(b.Rounds)-1]
	return final[0].decided
}

// Champion is meaningful only once Complete; empty means every remaining
// participant dropped and the bracket ended without a winner.
func (b *Bracket) Champion() string {
	return b.Rounds[len(b.Rounds)-1][0].Winner
}

// Owns reports whether matchID belongs to this bracket.
func (b *Bracket) Owns(matchID string) bool {
	for r := range b.Rounds {
		for i := range b.Rounds[r] {
			if b.Rounds[r][i].MatchID == matchID {
				return true
			}
		}
	}
	return false
}

// Remaining lists participants who have not dropped out.
func (b *Bracket) Remaining() []string {
	var out []string
	for _, p := range b.Participants {
		if !b.dropped[p] {
			out = append(out, p)
		}
	}
	return out
}
