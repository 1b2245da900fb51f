// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"chess-match-bot/internal/config"
	"chess-match-bot/internal/engine"
	"chess-match-bot/internal/pkg/lock"
	"chess-match-bot/internal/repository"
	"chess-match-bot/internal/service"
)

// MatchHandler handles all chess match commands. Commands that change
// match state run under the channel lock so two updates from the same
// chat are processed one at a time.
type MatchHandler struct {
	cfg          *config.Config
	matchService *service.MatchService
	channelLock  *lock.ChannelLock

	// names maps user IDs to the last display name seen for them, so
	// mentions of players who are not the sender still read naturally.
	names sync.Map // map[int64]string
}

// NewMatchHandler creates a new MatchHandler.
func NewMatchHandler(cfg *config.Config, matchService *service.MatchService, channelLock *lock.ChannelLock) *MatchHandler {
	return &MatchHandler{
		cfg:          cfg,
		matchService: matchService,
		channelLock:  channelLock,
	}
}

// chatScope returns the guild and channel for a message. The guild is
// the chat; the channel is the chat, or the chat combined with the
// topic in forum-style groups so each topic runs its own match.
func chatScope(c tele.Context) (guildID, channelID int64) {
	chat := c.Chat()
	guildID = chat.ID
	channelID = chat.ID
	if msg := c.Message(); msg != nil && msg.ThreadID != 0 {
		channelID = chat.ID<<16 | int64(msg.ThreadID)&0xffff
	}
	return guildID, channelID
}

func (h *MatchHandler) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.cfg.Match.CommandTimeout)
}

// rememberName records a user's display name for later mentions.
func (h *MatchHandler) rememberName(user *tele.User) {
	if user == nil {
		return
	}
	name := user.FirstName
	if name == "" {
		name = user.Username
	}
	if name != "" {
		h.names.Store(user.ID, name)
	}
}

// mention renders a tappable mention for a user ID, using the last seen
// display name when there is one.
func (h *MatchHandler) mention(userID int64) string {
	label := "player"
	if name, ok := h.names.Load(userID); ok {
		label = name.(string)
	}
	return fmt.Sprintf("[%s](tg://user?id=%d)", escapeMarkdown(label), userID)
}

// escapeMarkdown neutralizes the Markdown control characters Telegram
// recognizes inside a mention label.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer("[", "", "]", "", "`", "", "*", "", "_", "")
	return replacer.Replace(s)
}

// targetUser resolves another user from the message: the sender of the
// replied-to message, or a profile mention in the message entities.
// Plain @username mentions carry no user ID and cannot be resolved.
func targetUser(c tele.Context) *tele.User {
	msg := c.Message()
	if msg == nil {
		return nil
	}
	if msg.ReplyTo != nil && msg.ReplyTo.Sender != nil && !msg.ReplyTo.Sender.IsBot {
		return msg.ReplyTo.Sender
	}
	for _, entity := range msg.Entities {
		if entity.Type == tele.EntityTMention && entity.User != nil && !entity.User.IsBot {
			return entity.User
		}
	}
	return nil
}

// HandleNew handles the /new command: open an invite, optionally
// targeted at a specific opponent, optionally unrated.
func (h *MatchHandler) HandleNew(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	h.rememberName(sender)

	rated := true
	for _, arg := range c.Args() {
		if strings.EqualFold(arg, "unrated") {
			rated = false
		}
	}

	var opponentID *int64
	if target := targetUser(c); target != nil {
		h.rememberName(target)
		opponentID = &target.ID
	} else if hasUsernameMention(c) {
		return c.Reply("♟️ I can't tell who that is. Reply to your opponent's message or mention them from their profile.")
	}

	guildID, channelID := chatScope(c)
	ctx, cancel := h.ctx()
	defer cancel()

	h.channelLock.Lock(channelID)
	defer h.channelLock.Unlock(channelID)

	m, err := h.matchService.NewMatch(ctx, guildID, channelID, sender.ID, opponentID, rated)
	if err != nil {
		return h.replyError(c, err)
	}

	suffix := ""
	if !m.Rated {
		suffix = " This match is unrated."
	}
	if m.IsTargeted() {
		return h.replyMarkdown(c, fmt.Sprintf("♟️ %s has challenged %s to a chess match! Type /accept to play or /decline to pass.%s",
			h.mention(m.UserID), h.mention(*m.OpponentID), suffix))
	}
	return h.replyMarkdown(c, fmt.Sprintf("♟️ %s is looking for an opponent! Type /accept to play.%s",
		h.mention(m.UserID), suffix))
}

// hasUsernameMention reports whether the message carries a plain
// @username mention, which has no resolvable user ID.
func hasUsernameMention(c tele.Context) bool {
	msg := c.Message()
	if msg == nil {
		return false
	}
	for _, entity := range msg.Entities {
		if entity.Type == tele.EntityMention {
			return true
		}
	}
	return false
}

// HandleAccept handles the /accept command.
func (h *MatchHandler) HandleAccept(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	h.rememberName(sender)

	_, channelID := chatScope(c)
	ctx, cancel := h.ctx()
	defer cancel()

	h.channelLock.Lock(channelID)
	defer h.channelLock.Unlock(channelID)

	update, err := h.matchService.Accept(ctx, channelID, sender.ID)
	if err != nil {
		return h.replyError(c, err)
	}

	header := fmt.Sprintf("♟️ The match is on! %s plays white, %s plays black. White moves first.",
		h.mention(update.WhiteID), h.mention(update.BlackID))
	return h.replyMarkdown(c, header+"\n"+h.renderBoard(update))
}

// HandleDecline handles the /decline command.
func (h *MatchHandler) HandleDecline(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	h.rememberName(sender)

	_, channelID := chatScope(c)
	ctx, cancel := h.ctx()
	defer cancel()

	h.channelLock.Lock(channelID)
	defer h.channelLock.Unlock(channelID)

	invite, err := h.matchService.Decline(ctx, channelID, sender.ID)
	if err != nil {
		return h.replyError(c, err)
	}

	return h.replyMarkdown(c, fmt.Sprintf("♟️ %s has declined the match against %s.",
		h.mention(sender.ID), h.mention(invite.UserID)))
}

// HandleCancel handles the /cancel command.
func (h *MatchHandler) HandleCancel(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	h.rememberName(sender)

	_, channelID := chatScope(c)
	ctx, cancel := h.ctx()
	defer cancel()

	h.channelLock.Lock(channelID)
	defer h.channelLock.Unlock(channelID)

	if _, err := h.matchService.Cancel(ctx, channelID, sender.ID); err != nil {
		return h.replyError(c, err)
	}

	return h.replyMarkdown(c, fmt.Sprintf("♟️ %s has cancelled the invite.", h.mention(sender.ID)))
}

// HandleMove handles the /move command.
func (h *MatchHandler) HandleMove(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	h.rememberName(sender)

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("♟️ Usage: /move <move>, e.g. /move e4 or /move e2e4")
	}

	_, channelID := chatScope(c)
	ctx, cancel := h.ctx()
	defer cancel()

	h.channelLock.Lock(channelID)
	defer h.channelLock.Unlock(channelID)

	update, err := h.matchService.Move(ctx, channelID, sender.ID, args[0])
	if err != nil {
		return h.replyError(c, err)
	}

	return h.replyMarkdown(c, h.renderBoard(update))
}

// HandleShow handles the /show command.
func (h *MatchHandler) HandleShow(c tele.Context) error {
	h.rememberName(c.Sender())

	_, channelID := chatScope(c)
	ctx, cancel := h.ctx()
	defer cancel()

	update, err := h.matchService.Show(ctx, channelID)
	if err != nil {
		return h.replyError(c, err)
	}

	return h.replyMarkdown(c, h.renderBoard(update))
}

// HandleSurrender handles the /surrender command.
func (h *MatchHandler) HandleSurrender(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	h.rememberName(sender)

	_, channelID := chatScope(c)
	ctx, cancel := h.ctx()
	defer cancel()

	h.channelLock.Lock(channelID)
	defer h.channelLock.Unlock(channelID)

	update, err := h.matchService.Surrender(ctx, channelID, sender.ID)
	if err != nil {
		return h.replyError(c, err)
	}

	return h.replyMarkdown(c, h.renderBoard(update))
}

// HandleStats handles the /stats command. With a reply or profile
// mention it shows that player, otherwise the sender.
func (h *MatchHandler) HandleStats(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	h.rememberName(sender)

	subject := sender
	if target := targetUser(c); target != nil {
		h.rememberName(target)
		subject = target
	}

	guildID, _ := chatScope(c)
	ctx, cancel := h.ctx()
	defer cancel()

	stat, err := h.matchService.Stats(ctx, guildID, subject.ID)
	if err != nil {
		return h.replyError(c, err)
	}

	return h.replyMarkdown(c, fmt.Sprintf("♟️ %s — %d wins, %d losses, %d draws. Win ratio: %.3f",
		h.mention(subject.ID), stat.Wins, stat.Losses, stat.Draws, stat.WinRatio))
}

// HandleLeaderboard handles the /leaderboard command.
func (h *MatchHandler) HandleLeaderboard(c tele.Context) error {
	h.rememberName(c.Sender())

	guildID, _ := chatScope(c)
	ctx, cancel := h.ctx()
	defer cancel()

	stats, err := h.matchService.Leaderboard(ctx, guildID, h.cfg.Leaderboard.Limit)
	if err != nil {
		return h.replyError(c, err)
	}
	if len(stats) == 0 {
		return c.Reply("♟️ No rated matches have been played here yet.")
	}

	var sb strings.Builder
	sb.WriteString("🏆 *Chess leaderboard*\n")
	for i, s := range stats {
		fmt.Fprintf(&sb, "%s %s — %.3f (%dW/%dL/%dD)\n",
			rankBadge(i+1), h.mention(s.UserID), s.WinRatio, s.Wins, s.Losses, s.Draws)
	}
	return h.replyMarkdown(c, sb.String())
}

// rankBadge decorates the top three places with medals.
func rankBadge(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return fmt.Sprintf("%d.", rank)
	}
}

// renderBoard formats a board update: the position diagram, the last
// move, and either whose turn it is or how the match ended.
func (h *MatchHandler) renderBoard(u *service.BoardUpdate) string {
	var sb strings.Builder
	sb.WriteString("```\n")
	sb.WriteString(u.BoardText)
	sb.WriteString("\n```\n")

	if u.LastMoveSAN != "" {
		fmt.Fprintf(&sb, "Last move: *%s*\n", u.LastMoveSAN)
	}

	switch u.Outcome {
	case service.OutcomeCheckmate:
		fmt.Fprintf(&sb, "♛ Checkmate! %s wins the match!\n", h.mention(u.WinnerID))
		sb.WriteString(h.renderRecord(u))
	case service.OutcomeStalemate:
		sb.WriteString("Stalemate! The match is a draw.\n")
		sb.WriteString(h.renderRecord(u))
	case service.OutcomeDraw:
		sb.WriteString("The match is drawn.\n")
		sb.WriteString(h.renderRecord(u))
	case service.OutcomeSurrender:
		fmt.Fprintf(&sb, "🏳️ %s has surrendered! %s wins the match!\n",
			h.mention(u.LoserID), h.mention(u.WinnerID))
		sb.WriteString(h.renderRecord(u))
	default:
		if u.Check {
			sb.WriteString("Check!\n")
		}
		color := "White"
		if !u.WhiteToMove {
			color = "Black"
		}
		fmt.Fprintf(&sb, "%s to move: %s", color, h.mention(u.ToMoveID))
	}

	return sb.String()
}

// renderRecord appends the movetext of a finished game, when there is
// one.
func (h *MatchHandler) renderRecord(u *service.BoardUpdate) string {
	if u.Movetext == "" {
		return ""
	}
	return "```\n" + u.Movetext + "\n```"
}

func (h *MatchHandler) replyMarkdown(c tele.Context, text string) error {
	return c.Reply(text, tele.ModeMarkdown)
}

// replyError maps domain errors to user-facing messages. Anything
// unrecognized is logged and answered generically.
func (h *MatchHandler) replyError(c tele.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrChannelBusy):
		return c.Reply("♟️ There is already a match going on in this channel. Finish it first!")
	case errors.Is(err, service.ErrSelfChallenge):
		return c.Reply("♟️ You can't challenge yourself.")
	case errors.Is(err, service.ErrNoInvite):
		return c.Reply("♟️ There is no pending invite in this channel.")
	case errors.Is(err, service.ErrOwnInvite):
		return c.Reply("♟️ You can't accept your own invite.")
	case errors.Is(err, service.ErrNotInvited):
		return c.Reply("♟️ That invite isn't for you.")
	case errors.Is(err, service.ErrNotInitiator):
		return c.Reply("♟️ Only the player who sent the invite can cancel it.")
	case errors.Is(err, service.ErrNoMatch):
		return c.Reply("♟️ There is no match in progress in this channel.")
	case errors.Is(err, service.ErrNotParticipant):
		return c.Reply("♟️ You're not playing in this match.")
	case errors.Is(err, service.ErrNotYourTurn):
		return c.Reply("♟️ It's not your turn!")
	case errors.Is(err, engine.ErrInvalidMove):
		return c.Reply("♟️ That doesn't look like a chess move. Try something like e4 or e2e4.")
	case errors.Is(err, engine.ErrIllegalMove):
		return c.Reply("♟️ That move isn't legal in this position.")
	case errors.Is(err, engine.ErrAmbiguousMove):
		return c.Reply("♟️ That move is ambiguous. Spell out the piece's square, e.g. Nbd2 or Rac3.")
	case errors.Is(err, repository.ErrMatchConflict):
		return c.Reply("♟️ The match changed while I was processing that. Try again.")
	default:
		log.Error().Err(err).Msg("Match command failed")
		return c.Reply("♟️ Something went wrong, please try again later.")
	}
}
