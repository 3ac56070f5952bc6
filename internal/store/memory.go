package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory keeps results in-process. It backs tests and the no-database
// dev mode; the contract matches the postgres-backed DB.
type Memory struct {
	mu      sync.Mutex
	matches []MatchSummary
	parts   map[string][]ParticipantResult
	stats   map[string]map[string]*StatLine // userID -> gameType
}

func NewMemory() *Memory {
	return &Memory{
		parts: make(map[string][]ParticipantResult),
		stats: make(map[string]map[string]*StatLine),
	}
}

func (m *Memory) RecordMatchResult(_ context.Context, res MatchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches = append(m.matches, MatchSummary{
		MatchID:    res.MatchID,
		GameType:   res.GameType,
		Result:     res.Result,
		WinnerID:   res.WinnerID,
		Draw:       res.Draw,
		DurationMS: res.DurationMS,
		PlayedAt:   time.Now(),
	})
	m.parts[res.MatchID] = append([]ParticipantResult(nil), res.Participants...)
	return nil
}

func (m *Memory) RecordOutcome(_ context.Context, o Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byGame := m.stats[o.UserID]
	if byGame == nil {
		byGame = make(map[string]*StatLine)
		m.stats[o.UserID] = byGame
	}
	line := byGame[o.GameType]
	if line == nil {
		line = &StatLine{UserID: o.UserID, GameType: o.GameType}
		byGame[o.GameType] = line
	}
	switch {
	case o.Won:
		line.Wins++
	case o.Draw:
		line.Draws++
	default:
		line.Losses++
	}
	if o.TournamentWin {
		line.TournamentWins++
	}
	return nil
}

func (m *Memory) RecentMatches(_ context.Context, limit int) ([]MatchSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]MatchSummary(nil), m.matches...)
	sort.Slice(out, func(i, j int) bool { return out[i].PlayedAt.After(out[j].PlayedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) StatsFor(_ context.Context, userID string) ([]StatLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StatLine
	for _, line := range m.stats[userID] {
		out = append(out, *line)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameType < out[j].GameType })
	return out, nil
}

// Results is a test convenience: recorded match summaries, oldest first.
func (m *Memory) Results() []MatchSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MatchSummary(nil), m.matches...)
}
