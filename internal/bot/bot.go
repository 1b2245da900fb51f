// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"chess-match-bot/internal/config"
	"chess-match-bot/internal/handler"
	"chess-match-bot/internal/pkg/lock"
	"chess-match-bot/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot          *tele.Bot
	cfg          *config.Config
	matchService *service.MatchService
	channelLock  *lock.ChannelLock

	matchHandler *handler.MatchHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config       *config.Config
	MatchService *service.MatchService
	ChannelLock  *lock.ChannelLock
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:          teleBot,
		cfg:          deps.Config,
		matchService: deps.MatchService,
		channelLock:  deps.ChannelLock,
	}

	b.matchHandler = handler.NewMatchHandler(deps.Config, deps.MatchService, deps.ChannelLock)

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command handlers.
func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/help", b.handleStart)

	b.bot.Handle("/new", b.matchHandler.HandleNew)
	b.bot.Handle("/accept", b.matchHandler.HandleAccept)
	b.bot.Handle("/decline", b.matchHandler.HandleDecline)
	b.bot.Handle("/cancel", b.matchHandler.HandleCancel)
	b.bot.Handle("/move", b.matchHandler.HandleMove)
	b.bot.Handle("/show", b.matchHandler.HandleShow)
	b.bot.Handle("/surrender", b.matchHandler.HandleSurrender)
	b.bot.Handle("/stats", b.matchHandler.HandleStats)
	b.bot.Handle("/leaderboard", b.matchHandler.HandleLeaderboard)
}

// handleStart replies with a short command reference.
func (b *Bot) handleStart(c tele.Context) error {
	return c.Reply(
		"♟️ Chess match bot\n\n" +
			"/new — challenge the channel, or reply to someone to challenge them (add \"unrated\" for a casual game)\n" +
			"/accept — accept a pending invite\n" +
			"/decline — decline a pending invite\n" +
			"/cancel — withdraw your own invite\n" +
			"/move <move> — play a move (e4 or e2e4)\n" +
			"/show — show the current board\n" +
			"/surrender — resign the match\n" +
			"/stats — your results, or reply to see someone else's\n" +
			"/leaderboard — top players in this chat")
}

// Start starts the bot polling.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// GetBot returns the underlying telebot instance.
func (b *Bot) GetBot() *tele.Bot {
	return b.bot
}
