// Package service provides business logic implementations.
package service

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"chess-match-bot/internal/game"
	"chess-match-bot/internal/model"
	"chess-match-bot/internal/repository"
)

// Match lifecycle errors. Handlers map each to a user-facing message.
var (
	ErrChannelBusy    = errors.New("channel already has an open match")
	ErrNoInvite       = errors.New("no pending invite")
	ErrNoMatch        = errors.New("no match in progress")
	ErrSelfChallenge  = errors.New("cannot challenge yourself")
	ErrOwnInvite      = errors.New("cannot accept own invite")
	ErrNotInvited     = errors.New("invite is for someone else")
	ErrNotInitiator   = errors.New("only the initiator can cancel")
	ErrNotParticipant = errors.New("not a participant in this match")
	ErrNotYourTurn    = errors.New("not your turn")
)

// MatchStore is the match persistence the service depends on.
type MatchStore interface {
	Create(ctx context.Context, guildID, channelID, userID int64, opponentID *int64, rated bool) (*model.Match, error)
	FindOpen(ctx context.Context, channelID int64) (*model.Match, error)
	FindInvite(ctx context.Context, channelID int64) (*model.Match, error)
	FindActive(ctx context.Context, channelID int64) (*model.Match, error)
	AcceptInvite(ctx context.Context, matchID, opponentID int64, gameState string) (*model.Match, error)
	DeclineInvite(ctx context.Context, matchID int64) error
	CancelInvite(ctx context.Context, matchID int64) error
	SaveGameState(ctx context.Context, matchID int64, gameState string) error
	RecordWin(ctx context.Context, matchID, winnerID, loserID int64, gameState string) error
	RecordSurrender(ctx context.Context, matchID, winnerID, loserID int64, gameState string) error
	RecordDraw(ctx context.Context, matchID int64, gameState string) error
}

// StatsStore is the counter persistence the service depends on.
type StatsStore interface {
	RecordWin(ctx context.Context, guildID, userID int64) (*model.UserStat, error)
	RecordLoss(ctx context.Context, guildID, userID int64) (*model.UserStat, error)
	RecordDraw(ctx context.Context, guildID, userID int64) (*model.UserStat, error)
	GetByUser(ctx context.Context, guildID, userID int64) (*model.UserStat, error)
	GetLeaderboard(ctx context.Context, guildID int64, limit int) ([]*model.UserStat, error)
}

// MatchService drives the match state machine. The database row is the
// only authority on match state: every operation re-reads the match,
// decides against what it read, and writes back through a conditional
// transition, so two racing commands cannot both land.
type MatchService struct {
	matches MatchStore
	stats   StatsStore
	logger  zerolog.Logger
}

// NewMatchService creates a new MatchService instance.
func NewMatchService(matches MatchStore, stats StatsStore, logger zerolog.Logger) *MatchService {
	return &MatchService{
		matches: matches,
		stats:   stats,
		logger:  logger,
	}
}

// NewMatch opens an invite in the channel. opponentID is nil for an
// open invite. A channel holds at most one open match at a time.
func (s *MatchService) NewMatch(ctx context.Context, guildID, channelID, userID int64, opponentID *int64, rated bool) (*model.Match, error) {
	if opponentID != nil && *opponentID == userID {
		return nil, ErrSelfChallenge
	}

	_, err := s.matches.FindOpen(ctx, channelID)
	if err == nil {
		return nil, ErrChannelBusy
	}
	if !errors.Is(err, repository.ErrMatchNotFound) {
		return nil, fmt.Errorf("failed to check channel: %w", err)
	}

	m, err := s.matches.Create(ctx, guildID, channelID, userID, opponentID, rated)
	if err != nil {
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}

	s.logger.Info().
		Int64("match_id", m.MatchID).
		Int64("channel_id", channelID).
		Int64("user_id", userID).
		Bool("rated", rated).
		Msg("invite created")

	return m, nil
}

// Accept starts the game from a pending invite. A targeted invite may
// only be accepted by its target; an open invite by anyone except the
// initiator. Colors are drawn at random when the game starts.
func (s *MatchService) Accept(ctx context.Context, channelID, userID int64) (*BoardUpdate, error) {
	invite, err := s.matches.FindInvite(ctx, channelID)
	if err != nil {
		if errors.Is(err, repository.ErrMatchNotFound) {
			return nil, ErrNoInvite
		}
		return nil, fmt.Errorf("failed to find invite: %w", err)
	}

	if userID == invite.UserID {
		return nil, ErrOwnInvite
	}
	if invite.IsTargeted() && *invite.OpponentID != userID {
		return nil, ErrNotInvited
	}

	whiteID, blackID, err := drawColors(invite.UserID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to draw colors: %w", err)
	}

	g := game.New(invite.MatchID, whiteID, blackID, invite.Rated)
	state, err := g.Encode()
	if err != nil {
		return nil, err
	}

	if _, err := s.matches.AcceptInvite(ctx, invite.MatchID, userID, state); err != nil {
		return nil, fmt.Errorf("failed to accept invite: %w", err)
	}

	s.logger.Info().
		Int64("match_id", invite.MatchID).
		Int64("white_id", whiteID).
		Int64("black_id", blackID).
		Msg("match started")

	return s.boardUpdate(g), nil
}

// Decline turns down a pending invite. A targeted invite may only be
// declined by its target; an open invite by anyone but the initiator.
func (s *MatchService) Decline(ctx context.Context, channelID, userID int64) (*model.Match, error) {
	invite, err := s.matches.FindInvite(ctx, channelID)
	if err != nil {
		if errors.Is(err, repository.ErrMatchNotFound) {
			return nil, ErrNoInvite
		}
		return nil, fmt.Errorf("failed to find invite: %w", err)
	}

	if userID == invite.UserID {
		return nil, ErrNotInvited
	}
	if invite.IsTargeted() && *invite.OpponentID != userID {
		return nil, ErrNotInvited
	}

	if err := s.matches.DeclineInvite(ctx, invite.MatchID); err != nil {
		return nil, fmt.Errorf("failed to decline invite: %w", err)
	}

	return invite, nil
}

// Cancel withdraws a pending invite. Only the initiator can cancel.
func (s *MatchService) Cancel(ctx context.Context, channelID, userID int64) (*model.Match, error) {
	invite, err := s.matches.FindInvite(ctx, channelID)
	if err != nil {
		if errors.Is(err, repository.ErrMatchNotFound) {
			return nil, ErrNoInvite
		}
		return nil, fmt.Errorf("failed to find invite: %w", err)
	}

	if userID != invite.UserID {
		return nil, ErrNotInitiator
	}

	if err := s.matches.CancelInvite(ctx, invite.MatchID); err != nil {
		return nil, fmt.Errorf("failed to cancel invite: %w", err)
	}

	return invite, nil
}

// Move plays a move in the channel's in-progress match. The move text
// may be coordinate or algebraic notation. A terminal position finishes
// the match and, for rated games, updates both players' counters.
func (s *MatchService) Move(ctx context.Context, channelID, userID int64, moveText string) (*BoardUpdate, error) {
	m, g, err := s.loadActive(ctx, channelID)
	if err != nil {
		return nil, err
	}

	if !m.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}
	if g.PlayerToMove() != userID {
		return nil, ErrNotYourTurn
	}

	mv, err := g.Board.ParseMove(moveText)
	if err != nil {
		return nil, err
	}
	san, err := g.Board.Apply(mv)
	if err != nil {
		return nil, err
	}
	g.LastMoveSAN = san

	state, err := g.Encode()
	if err != nil {
		return nil, err
	}

	update := s.boardUpdate(g)
	opponentID := m.OtherParticipant(userID)

	switch {
	case g.Board.IsCheckmate():
		update.Outcome = OutcomeCheckmate
		update.WinnerID = userID
		update.LoserID = opponentID
		if err := s.matches.RecordWin(ctx, m.MatchID, userID, opponentID, state); err != nil {
			return nil, fmt.Errorf("failed to record win: %w", err)
		}
		s.recordDecisive(ctx, m.GuildID, userID, opponentID, g.Rated)

	case g.Board.IsStalemate():
		update.Outcome = OutcomeStalemate
		if err := s.matches.RecordDraw(ctx, m.MatchID, state); err != nil {
			return nil, fmt.Errorf("failed to record draw: %w", err)
		}
		s.recordDraw(ctx, m.GuildID, userID, opponentID, g.Rated)

	case g.Board.IsAutoDraw():
		update.Outcome = OutcomeDraw
		if err := s.matches.RecordDraw(ctx, m.MatchID, state); err != nil {
			return nil, fmt.Errorf("failed to record draw: %w", err)
		}
		s.recordDraw(ctx, m.GuildID, userID, opponentID, g.Rated)

	default:
		if err := s.matches.SaveGameState(ctx, m.MatchID, state); err != nil {
			return nil, fmt.Errorf("failed to save game state: %w", err)
		}
	}

	if update.Outcome != OutcomeNone {
		s.logger.Info().
			Int64("match_id", m.MatchID).
			Int64("winner_id", update.WinnerID).
			Int("moves", update.MoveCount).
			Msg("match finished")
	}

	return update, nil
}

// Show renders the channel's in-progress match without changing it.
func (s *MatchService) Show(ctx context.Context, channelID int64) (*BoardUpdate, error) {
	_, g, err := s.loadActive(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return s.boardUpdate(g), nil
}

// Surrender resigns the in-progress match on behalf of a participant.
// The opponent is recorded as the winner.
func (s *MatchService) Surrender(ctx context.Context, channelID, userID int64) (*BoardUpdate, error) {
	m, g, err := s.loadActive(ctx, channelID)
	if err != nil {
		return nil, err
	}

	if !m.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}

	state, err := g.Encode()
	if err != nil {
		return nil, err
	}

	winnerID := m.OtherParticipant(userID)
	if err := s.matches.RecordSurrender(ctx, m.MatchID, winnerID, userID, state); err != nil {
		return nil, fmt.Errorf("failed to record surrender: %w", err)
	}
	s.recordDecisive(ctx, m.GuildID, winnerID, userID, g.Rated)

	update := s.boardUpdate(g)
	update.Outcome = OutcomeSurrender
	update.WinnerID = winnerID
	update.LoserID = userID

	s.logger.Info().
		Int64("match_id", m.MatchID).
		Int64("loser_id", userID).
		Msg("match surrendered")

	return update, nil
}

// Stats returns a user's counters in the guild. A user with no recorded
// results gets a zero record rather than an error.
func (s *MatchService) Stats(ctx context.Context, guildID, userID int64) (*model.UserStat, error) {
	stat, err := s.stats.GetByUser(ctx, guildID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrStatsNotFound) {
			return &model.UserStat{GuildID: guildID, UserID: userID}, nil
		}
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stat, nil
}

// Leaderboard returns the guild's top players by win ratio.
func (s *MatchService) Leaderboard(ctx context.Context, guildID int64, limit int) ([]*model.UserStat, error) {
	stats, err := s.stats.GetLeaderboard(ctx, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	return stats, nil
}

// loadActive fetches the channel's in-progress match and decodes its
// stored game.
func (s *MatchService) loadActive(ctx context.Context, channelID int64) (*model.Match, *game.Game, error) {
	m, err := s.matches.FindActive(ctx, channelID)
	if err != nil {
		if errors.Is(err, repository.ErrMatchNotFound) {
			return nil, nil, ErrNoMatch
		}
		return nil, nil, fmt.Errorf("failed to find match: %w", err)
	}
	if m.GameState == nil {
		return nil, nil, fmt.Errorf("match %d has no game state", m.MatchID)
	}

	g, err := game.Decode(*m.GameState)
	if err != nil {
		return nil, nil, fmt.Errorf("match %d: %w", m.MatchID, err)
	}

	return m, g, nil
}

func (s *MatchService) boardUpdate(g *game.Game) *BoardUpdate {
	return &BoardUpdate{
		MatchID:     g.MatchID,
		Rated:       g.Rated,
		WhiteID:     g.WhiteID,
		BlackID:     g.BlackID,
		ToMoveID:    g.PlayerToMove(),
		WhiteToMove: g.Board.WhiteToMove(),
		LastMoveSAN: g.LastMoveSAN,
		MoveCount:   g.Board.MoveCount(),
		Check:       g.Board.IsCheck(),
		BoardText:   g.Board.Text(),
		Movetext:    g.Board.Movetext(),
	}
}

// recordDecisive updates both players' counters after a decisive
// result. The match row is already final, so a counter failure is
// logged rather than surfaced.
func (s *MatchService) recordDecisive(ctx context.Context, guildID, winnerID, loserID int64, rated bool) {
	if !rated {
		return
	}
	if _, err := s.stats.RecordWin(ctx, guildID, winnerID); err != nil {
		s.logger.Error().Err(err).Int64("user_id", winnerID).Msg("failed to record win")
	}
	if _, err := s.stats.RecordLoss(ctx, guildID, loserID); err != nil {
		s.logger.Error().Err(err).Int64("user_id", loserID).Msg("failed to record loss")
	}
}

func (s *MatchService) recordDraw(ctx context.Context, guildID, a, b int64, rated bool) {
	if !rated {
		return
	}
	for _, userID := range []int64{a, b} {
		if _, err := s.stats.RecordDraw(ctx, guildID, userID); err != nil {
			s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to record draw")
		}
	}
}

// drawColors assigns sides by a fair coin flip from the system's
// cryptographic randomness source.
func drawColors(a, b int64) (whiteID, blackID int64, err error) {
	n, err := crand.Int(crand.Reader, big.NewInt(2))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read randomness: %w", err)
	}
	if n.Int64() == 0 {
		return a, b, nil
	}
	return b, a, nil
}
