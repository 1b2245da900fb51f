// Package main is the entry point for the chess match bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chess-match-bot/internal/bot"
	"chess-match-bot/internal/config"
	"chess-match-bot/internal/pkg/db"
	"chess-match-bot/internal/pkg/lock"
	"chess-match-bot/internal/repository"
	"chess-match-bot/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	matchRepo := repository.NewMatchRepository(dbPool.Pool)
	statsRepo := repository.NewStatsRepository(dbPool.Pool)

	// Initialize service and per-channel lock
	matchService := service.NewMatchService(matchRepo, statsRepo, log.Logger)
	channelLock := lock.NewChannelLock()

	deps := &bot.Dependencies{
		Config:       cfg,
		MatchService: matchService,
		ChannelLock:  channelLock,
	}

	telegramBot, err := bot.New(deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	telegramBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: matches table. channel_id + status is the hot path:
	// every command starts by looking up the channel's open match.
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
		);
		CREATE INDEX IF NOT EXISTS idx_matches_channel_status ON matches(channel_id, status);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: matches table created")

	// Migration 2: per-guild counters, one row per player per guild.
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
		);
		CREATE INDEX IF NOT EXISTS idx_user_stats_guild_ratio ON user_stats(guild_id, win_ratio DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: user_stats table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
