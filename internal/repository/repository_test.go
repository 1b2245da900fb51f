// Package repository tests use testcontainers-go to spin up a real
// PostgreSQL container, since the lifecycle guarantees live in SQL.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"chess-match-bot/internal/model"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool.
// Skips the test if Docker is not available.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	err = runMigrations(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// runMigrations applies the database schema
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS matches (
			match_id BIGSERIAL PRIMARY KEY,
			guild_id BIGINT NOT NULL,
			channel_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			opponent_id BIGINT,
			winner_id BIGINT,
			loser_id BIGINT,
			game_state TEXT,
			status TEXT NOT NULL,
			rated BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_matches_channel_status ON matches (channel_id, status)
	`)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS user_stats (
			user_stat_id BIGSERIAL PRIMARY KEY,
			guild_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			wins INTEGER NOT NULL DEFAULT 0,
			losses INTEGER NOT NULL DEFAULT 0,
			draws INTEGER NOT NULL DEFAULT 0,
			win_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
			UNIQUE (guild_id, user_id)
		)
	`)
	return err
}

func int64Ptr(v int64) *int64 { return &v }

// ============================================================================
// MatchRepository Tests
// ============================================================================

func TestMatchRepository_Create(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewMatchRepository(pool)
	ctx := context.Background()

	// Open invite with no named opponent
	m, err := repo.Create(ctx, 10, 100, 1, nil, true)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInvite, m.Status)
	assert.Equal(t, int64(10), m.GuildID)
	assert.Equal(t, int64(100), m.ChannelID)
	assert.Equal(t, int64(1), m.UserID)
	assert.Nil(t, m.OpponentID)
	assert.Nil(t, m.GameState)
	assert.True(t, m.Rated)
	assert.False(t, m.CreatedAt.IsZero())

	// Targeted invite in another channel
	m, err = repo.Create(ctx, 10, 101, 1, int64Ptr(2), false)
	require.NoError(t, err)
	require.NotNil(t, m.OpponentID)
	assert.Equal(t, int64(2), *m.OpponentID)
	assert.False(t, m.Rated)
}

func TestMatchRepository_FindOpen(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewMatchRepository(pool)
	ctx := context.Background()

	// Empty channel
	_, err := repo.FindOpen(ctx, 100)
	assert.ErrorIs(t, err, ErrMatchNotFound)

	m, err := repo.Create(ctx, 10, 100, 1, nil, true)
	require.NoError(t, err)

	// Invite is an open match
	found, err := repo.FindOpen(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, m.MatchID, found.MatchID)

	// Still open once in progress
	_, err = repo.AcceptInvite(ctx, m.MatchID, 2, `{}`)
	require.NoError(t, err)
	found, err = repo.FindOpen(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, found.Status)

	// A finished match no longer blocks the channel
	err = repo.RecordDraw(ctx, m.MatchID, `{}`)
	require.NoError(t, err)
	_, err = repo.FindOpen(ctx, 100)
	assert.ErrorIs(t, err, ErrMatchNotFound)

	// Other channels are unaffected throughout
	_, err = repo.FindOpen(ctx, 999)
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestMatchRepository_AcceptInvite(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewMatchRepository(pool)
	ctx := context.Background()

	m, err := repo.Create(ctx, 10, 100, 1, nil, true)
	require.NoError(t, err)

	accepted, err := repo.AcceptInvite(ctx, m.MatchID, 2, `{"v":1}`)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, accepted.Status)
	require.NotNil(t, accepted.OpponentID)
	assert.Equal(t, int64(2), *accepted.OpponentID)
	require.NotNil(t, accepted.GameState)
	assert.Equal(t, `{"v":1}`, *accepted.GameState)

	// Second accept loses the race
	_, err = repo.AcceptInvite(ctx, m.MatchID, 3, `{}`)
	assert.ErrorIs(t, err, ErrMatchConflict)
}

func TestMatchRepository_DeclineAndCancel(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewMatchRepository(pool)
	ctx := context.Background()

	m, err := repo.Create(ctx, 10, 100, 1, int64Ptr(2), true)
	require.NoError(t, err)

	err = repo.DeclineInvite(ctx, m.MatchID)
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, m.MatchID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDeclined, got.Status)

	// Cancelling a declined invite is a conflict
	err = repo.CancelInvite(ctx, m.MatchID)
	assert.ErrorIs(t, err, ErrMatchConflict)

	m2, err := repo.Create(ctx, 10, 100, 1, nil, true)
	require.NoError(t, err)
	err = repo.CancelInvite(ctx, m2.MatchID)
	require.NoError(t, err)

	got, err = repo.GetByID(ctx, m2.MatchID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
}

func TestMatchRepository_SaveGameState(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewMatchRepository(pool)
	ctx := context.Background()

	m, err := repo.Create(ctx, 10, 100, 1, nil, true)
	require.NoError(t, err)

	// Only an in-progress match accepts state writes
	err = repo.SaveGameState(ctx, m.MatchID, `{"v":1}`)
	assert.ErrorIs(t, err, ErrMatchConflict)

	_, err = repo.AcceptInvite(ctx, m.MatchID, 2, `{"v":1}`)
	require.NoError(t, err)

	err = repo.SaveGameState(ctx, m.MatchID, `{"v":2}`)
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, m.MatchID)
	require.NoError(t, err)
	require.NotNil(t, got.GameState)
	assert.Equal(t, `{"v":2}`, *got.GameState)

	// Finished matches reject late writes
	err = repo.RecordWin(ctx, m.MatchID, 1, 2, `{"v":3}`)
	require.NoError(t, err)
	err = repo.SaveGameState(ctx, m.MatchID, `{"v":4}`)
	assert.ErrorIs(t, err, ErrMatchConflict)
}

func TestMatchRepository_Finish(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewMatchRepository(pool)
	ctx := context.Background()

	start := func(channelID int64) *model.Match {
		m, err := repo.Create(ctx, 10, channelID, 1, nil, true)
		require.NoError(t, err)
		_, err = repo.AcceptInvite(ctx, m.MatchID, 2, `{}`)
		require.NoError(t, err)
		return m
	}

	// Decisive result
	m := start(100)
	err := repo.RecordWin(ctx, m.MatchID, 2, 1, `{}`)
	require.NoError(t, err)
	got, err := repo.GetByID(ctx, m.MatchID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWon, got.Status)
	assert.Equal(t, int64(2), *got.WinnerID)
	assert.Equal(t, int64(1), *got.LoserID)

	// Surrender
	m = start(101)
	err = repo.RecordSurrender(ctx, m.MatchID, 1, 2, `{}`)
	require.NoError(t, err)
	got, err = repo.GetByID(ctx, m.MatchID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSurrendered, got.Status)
	assert.Equal(t, int64(1), *got.WinnerID)

	// Draw leaves winner and loser unset
	m = start(102)
	err = repo.RecordDraw(ctx, m.MatchID, `{}`)
	require.NoError(t, err)
	got, err = repo.GetByID(ctx, m.MatchID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStalemate, got.Status)
	assert.Nil(t, got.WinnerID)
	assert.Nil(t, got.LoserID)

	// Finishing twice is a conflict
	err = repo.RecordWin(ctx, m.MatchID, 1, 2, `{}`)
	assert.ErrorIs(t, err, ErrMatchConflict)
}

// ============================================================================
// StatsRepository Tests
// ============================================================================

func TestStatsRepository_RecordWin(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewStatsRepository(pool)
	ctx := context.Background()

	// First win from a clean slate lands at 0.5, not 1.0
	s, err := repo.RecordWin(ctx, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 0, s.Losses)
	assert.Equal(t, 0, s.Draws)
	assert.InDelta(t, 0.5, s.WinRatio, 1e-9)

	s, err = repo.RecordWin(ctx, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Wins)
	assert.InDelta(t, 2.0/3.0, s.WinRatio, 1e-9)
}

func TestStatsRepository_RecordLoss(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewStatsRepository(pool)
	ctx := context.Background()

	s, err := repo.RecordLoss(ctx, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 0, s.WinRatio, 1e-9)

	// Three wins and a loss: 3 / (3 + 1 + 1)
	for i := 0; i < 3; i++ {
		_, err = repo.RecordWin(ctx, 10, 2)
		require.NoError(t, err)
	}
	s, err = repo.RecordLoss(ctx, 10, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 0.6, s.WinRatio, 1e-9)
}

func TestStatsRepository_RecordDraw(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewStatsRepository(pool)
	ctx := context.Background()

	s, err := repo.RecordDraw(ctx, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Draws)
	assert.InDelta(t, 0, s.WinRatio, 1e-9)

	// A draw counts half a game: 1 / (1 + 0 + 1 + 0.5)
	_, err = repo.RecordWin(ctx, 10, 1)
	require.NoError(t, err)
	s, err = repo.GetByUser(ctx, 10, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/2.5, s.WinRatio, 1e-9)
}

func TestStatsRepository_GetByUser(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewStatsRepository(pool)
	ctx := context.Background()

	_, err := repo.GetByUser(ctx, 10, 1)
	assert.ErrorIs(t, err, ErrStatsNotFound)

	_, err = repo.RecordWin(ctx, 10, 1)
	require.NoError(t, err)

	s, err := repo.GetByUser(ctx, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), s.GuildID)
	assert.Equal(t, int64(1), s.UserID)
	assert.Equal(t, 1, s.Wins)

	// Counters are scoped per guild
	_, err = repo.GetByUser(ctx, 11, 1)
	assert.ErrorIs(t, err, ErrStatsNotFound)
}

func TestStatsRepository_GetLeaderboard(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewStatsRepository(pool)
	ctx := context.Background()

	// user 1: two wins, user 2: one win, user 3: one loss
	_, _ = repo.RecordWin(ctx, 10, 1)
	_, _ = repo.RecordWin(ctx, 10, 1)
	_, _ = repo.RecordWin(ctx, 10, 2)
	_, _ = repo.RecordLoss(ctx, 10, 3)

	// user 5 in another guild must not appear
	_, _ = repo.RecordWin(ctx, 11, 5)

	stats, err := repo.GetLeaderboard(ctx, 10, 10)
	require.NoError(t, err)
	require.Len(t, stats, 3)
	assert.Equal(t, int64(1), stats[0].UserID)
	assert.Equal(t, int64(2), stats[1].UserID)
	assert.Equal(t, int64(3), stats[2].UserID)

	// Equal ratios order by user ID
	_, _ = repo.RecordWin(ctx, 10, 4)
	stats, err = repo.GetLeaderboard(ctx, 10, 10)
	require.NoError(t, err)
	require.Len(t, stats, 4)
	assert.Equal(t, int64(2), stats[1].UserID)
	assert.Equal(t, int64(4), stats[2].UserID)

	// Limit applies
	stats, err = repo.GetLeaderboard(ctx, 10, 2)
	require.NoError(t, err)
	assert.Len(t, stats, 2)
}
