// Package store is the durability boundary. The hub treats both sinks
// as fire-and-forget: failures are logged by the caller and never roll
// back in-memory match state.
package store

import (
	"context"
	"time"
)

type ParticipantResult struct {
	UserID string
	Slot   int
	Score  int
	Won    bool
}

type MatchResult struct {
	MatchID      string
	GameType     string
	TournamentID string
	Result       string // finished | abandoned
	WinnerID     string
	Draw         bool
	Forfeit      bool
	DurationMS   int64
	Participants []ParticipantResult
}

type Outcome struct {
	UserID        string
	GameType      string
	Won           bool
	Draw          bool
	TournamentWin bool
}

// Recorder is the write contract the orchestration core requires.
type Recorder interface {
	RecordMatchResult(ctx context.Context, res MatchResult) error
	RecordOutcome(ctx context.Context, o Outcome) error
}

// MatchSummary is the read shape for the recent-matches listing.
type MatchSummary struct {
	MatchID    string    `json:"matchId"`
	GameType   string    `json:"gameType"`
	Result     string    `json:"result"`
	WinnerID   string    `json:"winnerId,omitempty"`
	Draw       bool      `json:"draw,omitempty"`
	DurationMS int64     `json:"durationMs"`
	PlayedAt   time.Time `json:"playedAt"`
}

type StatLine struct {
	UserID         string `json:"userId"`
	GameType       string `json:"gameType"`
	Wins           int    `json:"wins"`
	Losses         int    `json:"losses"`
	Draws          int    `json:"draws"`
	TournamentWins int    `json:"tournamentWins"`
}

// Reader backs the HTTP read routes.
type Reader interface {
	RecentMatches(ctx context.Context, limit int) ([]MatchSummary, error)
	StatsFor(ctx context.Context, userID string) ([]StatLine, error)
}
