package store

import (
	"context"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// MatchRecord is the persisted row for one completed or abandoned match.
type MatchRecord struct {
	ID           string    `gorm:"primaryKey;type:uuid"`
	GameType     string    `gorm:"index;not null"`
	TournamentID *string   `gorm:"index"` // nil = casual match
	Result       string    `gorm:"type:varchar(16)"`
	WinnerID     *string   `gorm:"index"`
	Draw         bool      `gorm:"default:false"`
	Forfeit      bool      `gorm:"default:false"`
	DurationMS   int64     `gorm:"default:0"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

type MatchParticipantRecord struct {
	MatchID string `gorm:"primaryKey;type:uuid"`
	UserID  string `gorm:"primaryKey;index"`
	Slot    int
	Score   int
	Won     bool
}

type PlayerStatRecord struct {
	UserID         string `gorm:"primaryKey"`
	GameType       string `gorm:"primaryKey"`
	Wins           int    `gorm:"default:0"`
	Losses         int    `gorm:"default:0"`
	Draws          int    `gorm:"default:0"`
	TournamentWins int    `gorm:"default:0"`
}

func (MatchRecord) TableName() string            { return "matches" }
func (MatchParticipantRecord) TableName() string { return "match_participants" }
func (PlayerStatRecord) TableName() string       { return "player_stats" }

type DB struct {
	db *gorm.DB
}

// Open connects to postgres and migrates the result tables.
func Open(dsn string) (*DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&MatchRecord{}, &MatchParticipantRecord{}, &PlayerStatRecord{}); err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

func (s *DB) RecordMatchResult(ctx context.Context, res MatchResult) error {
	rec := MatchRecord{
		ID:         res.MatchID,
		GameType:   res.GameType,
		Result:     res.Result,
		Draw:       res.Draw,
		Forfeit:    res.Forfeit,
		DurationMS: res.DurationMS,
	}
	if res.TournamentID != "" {
		rec.TournamentID = &res.TournamentID
	}
	if res.WinnerID != "" {
		rec.WinnerID = &res.WinnerID
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		for _, p := range res.Participants {
			row := MatchParticipantRecord{
				MatchID: res.MatchID,
				UserID:  p.UserID,
				Slot:    p.Slot,
				Score:   p.Score,
				Won:     p.Won,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *DB) RecordOutcome(ctx context.Context, o Outcome) error {
	row := PlayerStatRecord{UserID: o.UserID, GameType: o.GameType}
	switch {
	case o.Won:
		row.Wins = 1
	case o.Draw:
		row.Draws = 1
	default:
		row.Losses = 1
	}
	if o.TournamentWin {
		row.TournamentWins = 1
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "game_type"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"wins":            gorm.Expr("player_stats.wins + ?", row.Wins),
			"losses":          gorm.Expr("player_stats.losses + ?", row.Losses),
			"draws":           gorm.Expr("player_stats.draws + ?", row.Draws),
			"tournament_wins": gorm.Expr("player_stats.tournament_wins + ?", row.TournamentWins),
		}),
	}).Create(&row).Error
}

func (s *DB) RecentMatches(ctx context.Context, limit int) ([]MatchSummary, error) {
	var rows []MatchRecord
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]MatchSummary, 0, len(rows))
	for _, r := range rows {
		sum := MatchSummary{
			MatchID:    r.ID,
			GameType:   r.GameType,
			Result:     r.Result,
			Draw:       r.Draw,
			DurationMS: r.DurationMS,
			PlayedAt:   r.CreatedAt,
		}
		if r.WinnerID != nil {
			sum.WinnerID = *r.WinnerID
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *DB) StatsFor(ctx context.Context, userID string) ([]StatLine, error) {
	var rows []PlayerStatRecord
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]StatLine, 0, len(rows))
	for _, r := range rows {
		out = append(out, StatLine{
			UserID:         r.UserID,
			GameType:       r.GameType,
			Wins:           r.Wins,
			Losses:         r.Losses,
			Draws:          r.Draws,
			TournamentWins: r.TournamentWins,
		})
	}
	return out, nil
}
