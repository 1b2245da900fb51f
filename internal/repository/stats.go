package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chess-match-bot/internal/model"
)

// ErrStatsNotFound means a user has no recorded results in the guild.
var ErrStatsNotFound = errors.New("stats not found")

const statsColumns = `user_stat_id, guild_id, user_id, wins, losses, draws, win_ratio`

// StatsRepository maintains per-guild win/loss/draw counters. Each
// result is applied in a single upsert that recomputes the stored win
// ratio from the post-update counters:
//
//	win_ratio = wins / (wins + losses + 1 + draws/2)
//
// The +1 in the denominator keeps a perfect record below 1.0 and stops
// a single win from jumping straight to the top of the leaderboard.
type StatsRepository struct {
	pool *pgxpool.Pool
}

// NewStatsRepository creates a new StatsRepository instance.
func NewStatsRepository(pool *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{pool: pool}
}

func scanStat(row pgx.Row) (*model.UserStat, error) {
	var s model.UserStat
	err := row.Scan(
		&s.UserStatID,
		&s.GuildID,
		&s.UserID,
		&s.Wins,
		&s.Losses,
		&s.Draws,
		&s.WinRatio,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// RecordWin adds a win for the user in the guild.
func (r *StatsRepository) RecordWin(ctx context.Context, guildID, userID int64) (*model.UserStat, error) {
	const query = `
		INSERT INTO user_stats (guild_id, user_id, wins, losses, draws, win_ratio)
		VALUES ($1, $2, 1, 0, 0, 0.5)
		ON CONFLICT (guild_id, user_id) DO UPDATE
		SET wins = user_stats.wins + 1,
		    win_ratio = (user_stats.wins + 1)::double precision
		        / (user_stats.wins + 1 + user_stats.losses + 1 + user_stats.draws / 2.0)
		RETURNING ` + statsColumns

	s, err := scanStat(r.pool.QueryRow(ctx, query, guildID, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to record win: %w", err)
	}

	return s, nil
}

// RecordLoss adds a loss for the user in the guild.
func (r *StatsRepository) RecordLoss(ctx context.Context, guildID, userID int64) (*model.UserStat, error) {
	const query = `
		INSERT INTO user_stats (guild_id, user_id, wins, losses, draws, win_ratio)
		VALUES ($1, $2, 0, 1, 0, 0)
		ON CONFLICT (guild_id, user_id) DO UPDATE
		SET losses = user_stats.losses + 1,
		    win_ratio = user_stats.wins::double precision
		        / (user_stats.wins + user_stats.losses + 1 + 1 + user_stats.draws / 2.0)
		RETURNING ` + statsColumns

	s, err := scanStat(r.pool.QueryRow(ctx, query, guildID, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to record loss: %w", err)
	}

	return s, nil
}

// RecordDraw adds a draw for the user in the guild.
func (r *StatsRepository) RecordDraw(ctx context.Context, guildID, userID int64) (*model.UserStat, error) {
	const query = `
		INSERT INTO user_stats (guild_id, user_id, wins, losses, draws, win_ratio)
		VALUES ($1, $2, 0, 0, 1, 0)
		ON CONFLICT (guild_id, user_id) DO UPDATE
		SET draws = user_stats.draws + 1,
		    win_ratio = user_stats.wins::double precision
		        / (user_stats.wins + user_stats.losses + 1 + (user_stats.draws + 1) / 2.0)
		RETURNING ` + statsColumns

	s, err := scanStat(r.pool.QueryRow(ctx, query, guildID, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to record draw: %w", err)
	}

	return s, nil
}

// GetByUser retrieves a user's counters in the guild. Returns
// ErrStatsNotFound if the user has never finished a rated match there.
func (r *StatsRepository) GetByUser(ctx context.Context, guildID, userID int64) (*model.UserStat, error) {
	const query = `
		SELECT ` + statsColumns + `
		FROM user_stats
		WHERE guild_id = $1 AND user_id = $2
	`

	s, err := scanStat(r.pool.QueryRow(ctx, query, guildID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStatsNotFound
		}
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	return s, nil
}

// GetLeaderboard retrieves the guild's top players by win ratio.
// Ties break on user ID so the ordering is stable across calls.
func (r *StatsRepository) GetLeaderboard(ctx context.Context, guildID int64, limit int) ([]*model.UserStat, error) {
	const query = `
		SELECT ` + statsColumns + `
		FROM user_stats
		WHERE guild_id = $1
		ORDER BY win_ratio DESC, user_id ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	defer rows.Close()

	var stats []*model.UserStat
	for rows.Next() {
		s, err := scanStat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stats: %w", err)
	}

	return stats, nil
}
