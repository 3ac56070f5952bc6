// Package matchmaking holds the per-game-type FIFO queues and the
// direct-invitation table. Both are pure structures owned by the hub
// goroutine; draining and status flips are made atomic there.
package matchmaking

import (
	"time"

	"github.com/arena-gg/arena-backend/internal/game"
)

type Entry struct {
	UserID   string
	GameType game.Type
	JoinedAt time.Time
}

type Queues struct {
	entries map[game.Type][]Entry
}

func NewQueues() *Queues {
	return &Queues{entries: make(map[game.Type][]Entry)}
}

// Join appends an entry unless one already exists for (userID, gameType).
// Returns the 1-based queue position; joining twice is idempotent and
// reports the existing position.
func (q *Queues) Join(userID string, gt game.Type, now time.Time) (int, bool) {
	for i, e := range q.entries[gt] {
		if e.UserID == userID {
			return i + 1, false
		}
	}
	q.entries[gt] = append(q.entries[gt], Entry{UserID: userID, GameType: gt, JoinedAt: now})
	return len(q.entries[gt]), true
}

// Leave removes the entry if present. Not an error otherwise.
func (q *Queues) Leave(userID string, gt game.Type) bool {
	for i, e := range q.entries[gt] {
		if e.UserID == userID {
			q.entries[gt] = append(q.entries[gt][:i], q.entries[gt][i+1:]...)
			return true
		}
	}
	return false
}

// RemoveUser drops the user from every queue (disconnect cleanup).
func (q *Queues) RemoveUser(userID string) {
	for gt := range q.entries {
		q.Leave(userID, gt)
	}
}

func (q *Queues) Len(gt game.Type) int { return len(q.entries[gt]) }

// PopReady dequeues the oldest n entries in strict arrival order, or
// nothing if fewer than n are waiting.
func (q *Queues) PopReady(gt game.Type, n int) []Entry {
	if len(q.entries[gt]) < n {
		return nil
	}
	popped := append([]Entry(nil), q.entries[gt][:n]...)
	q.entries[gt] = append([]Entry(nil), q.entries[gt][n:]...)
	return popped
}
