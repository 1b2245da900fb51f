// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chess-match-bot/internal/model"
)

// Common errors for repository operations.
var (
	ErrMatchNotFound = errors.New("match not found")
	// ErrMatchConflict means a conditional status transition matched no
	// row: the match moved to a different status since it was read.
	ErrMatchConflict = errors.New("match status conflict")
)

const matchColumns = `match_id, guild_id, channel_id, user_id, opponent_id, winner_id, loser_id, game_state, status, rated, created_at`

// MatchRepository handles match persistence. Every lifecycle transition
// is a conditional UPDATE guarded by the expected current status, so a
// stale caller loses the race instead of overwriting a finished match.
type MatchRepository struct {
	pool *pgxpool.Pool
}

// NewMatchRepository creates a new MatchRepository instance.
func NewMatchRepository(pool *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{pool: pool}
}

func scanMatch(row pgx.Row) (*model.Match, error) {
	var m model.Match
	err := row.Scan(
		&m.MatchID,
		&m.GuildID,
		&m.ChannelID,
		&m.UserID,
		&m.OpponentID,
		&m.WinnerID,
		&m.LoserID,
		&m.GameState,
		&m.Status,
		&m.Rated,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Create opens a new invite in the channel. opponentID is nil for an
// open invite anyone may accept.
func (r *MatchRepository) Create(ctx context.Context, guildID, channelID, userID int64, opponentID *int64, rated bool) (*model.Match, error) {
	const query = `
		INSERT INTO matches (guild_id, channel_id, user_id, opponent_id, status, rated, created_at)
		VALUES ($1, $2, $3, $4, 'invite', $5, NOW())
		RETURNING ` + matchColumns

	m, err := scanMatch(r.pool.QueryRow(ctx, query, guildID, channelID, userID, opponentID, rated))
	if err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}

	return m, nil
}

// FindOpen returns the channel's current non-terminal match (a pending
// invite or a game in progress). Returns ErrMatchNotFound if the channel
// has none.
func (r *MatchRepository) FindOpen(ctx context.Context, channelID int64) (*model.Match, error) {
	const query = `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE channel_id = $1 AND status IN ('invite', 'in-progress')
		ORDER BY created_at DESC
		LIMIT 1
	`

	m, err := scanMatch(r.pool.QueryRow(ctx, query, channelID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to find open match: %w", err)
	}

	return m, nil
}

// FindInvite returns the channel's pending invite, if any.
func (r *MatchRepository) FindInvite(ctx context.Context, channelID int64) (*model.Match, error) {
	return r.findByStatus(ctx, channelID, model.StatusInvite)
}

// FindActive returns the channel's in-progress match, if any.
func (r *MatchRepository) FindActive(ctx context.Context, channelID int64) (*model.Match, error) {
	return r.findByStatus(ctx, channelID, model.StatusInProgress)
}

func (r *MatchRepository) findByStatus(ctx context.Context, channelID int64, status string) (*model.Match, error) {
	const query = `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE channel_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	m, err := scanMatch(r.pool.QueryRow(ctx, query, channelID, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to find match: %w", err)
	}

	return m, nil
}

// GetByID retrieves a match by its primary key.
func (r *MatchRepository) GetByID(ctx context.Context, matchID int64) (*model.Match, error) {
	const query = `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE match_id = $1
	`

	m, err := scanMatch(r.pool.QueryRow(ctx, query, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to get match: %w", err)
	}

	return m, nil
}

// AcceptInvite moves an invite to in-progress, recording who accepted
// and the opening game state. Fails with ErrMatchConflict if the match
// is no longer an invite.
func (r *MatchRepository) AcceptInvite(ctx context.Context, matchID, opponentID int64, gameState string) (*model.Match, error) {
	const query = `
		UPDATE matches
		SET status = 'in-progress', opponent_id = $2, game_state = $3
		WHERE match_id = $1 AND status = 'invite'
		RETURNING ` + matchColumns

	m, err := scanMatch(r.pool.QueryRow(ctx, query, matchID, opponentID, gameState))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMatchConflict
		}
		return nil, fmt.Errorf("failed to accept invite: %w", err)
	}

	return m, nil
}

// DeclineInvite moves an invite to declined.
func (r *MatchRepository) DeclineInvite(ctx context.Context, matchID int64) error {
	return r.closeInvite(ctx, matchID, model.StatusDeclined)
}

// CancelInvite moves an invite to cancelled.
func (r *MatchRepository) CancelInvite(ctx context.Context, matchID int64) error {
	return r.closeInvite(ctx, matchID, model.StatusCancelled)
}

func (r *MatchRepository) closeInvite(ctx context.Context, matchID int64, status string) error {
	const query = `
		UPDATE matches
		SET status = $2
		WHERE match_id = $1 AND status = 'invite'
	`

	result, err := r.pool.Exec(ctx, query, matchID, status)
	if err != nil {
		return fmt.Errorf("failed to close invite: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrMatchConflict
	}

	return nil
}

// SaveGameState persists the game state of an in-progress match. Fails
// with ErrMatchConflict if the match finished in the meantime.
func (r *MatchRepository) SaveGameState(ctx context.Context, matchID int64, gameState string) error {
	const query = `
		UPDATE matches
		SET game_state = $2
		WHERE match_id = $1 AND status = 'in-progress'
	`

	result, err := r.pool.Exec(ctx, query, matchID, gameState)
	if err != nil {
		return fmt.Errorf("failed to save game state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrMatchConflict
	}

	return nil
}

// RecordWin finishes an in-progress match with a decisive result.
func (r *MatchRepository) RecordWin(ctx context.Context, matchID, winnerID, loserID int64, gameState string) error {
	return r.finish(ctx, matchID, model.StatusWon, &winnerID, &loserID, gameState)
}

// RecordSurrender finishes an in-progress match by surrender. The
// surrendering side is recorded as the loser.
func (r *MatchRepository) RecordSurrender(ctx context.Context, matchID, winnerID, loserID int64, gameState string) error {
	return r.finish(ctx, matchID, model.StatusSurrendered, &winnerID, &loserID, gameState)
}

// RecordDraw finishes an in-progress match with no winner.
func (r *MatchRepository) RecordDraw(ctx context.Context, matchID int64, gameState string) error {
	return r.finish(ctx, matchID, model.StatusStalemate, nil, nil, gameState)
}

func (r *MatchRepository) finish(ctx context.Context, matchID int64, status string, winnerID, loserID *int64, gameState string) error {
	const query = `
		UPDATE matches
		SET status = $2, winner_id = $3, loser_id = $4, game_state = $5
		WHERE match_id = $1 AND status = 'in-progress'
	`

	result, err := r.pool.Exec(ctx, query, matchID, status, winnerID, loserID, gameState)
	if err != nil {
		return fmt.Errorf("failed to finish match: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrMatchConflict
	}

	return nil
}
