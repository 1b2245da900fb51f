// Package game defines the persisted form of a chess game in progress:
// seat assignments plus the move history, serialized to JSON inside the
// match row. The board itself is never stored; it is rebuilt by
// replaying the history through the engine on every load.
package game

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"chess-match-bot/internal/engine"
)

// ErrDecode wraps any failure to restore a stored game state.
var ErrDecode = errors.New("decode game state")

// stateVersion is bumped whenever the stored shape changes.
const stateVersion = 1

// Game is a live match: who sits where, and the board reconstructed from
// the stored move history.
type Game struct {
	WhiteID     int64
	BlackID     int64
	MatchID     int64
	Rated       bool
	LastMoveSAN string
	Board       *engine.Board
}

type state struct {
	Version     int      `json:"version"`
	WhiteID     int64    `json:"white_id"`
	BlackID     int64    `json:"black_id"`
	MatchID     int64    `json:"match_id"`
	Rated       bool     `json:"rated"`
	LastMoveSAN string   `json:"last_move_san"`
	MovesUCI    []string `json:"moves_uci"`
}

// New starts a fresh game between the two seats.
func New(matchID, whiteID, blackID int64, rated bool) *Game {
	return &Game{
		WhiteID: whiteID,
		BlackID: blackID,
		MatchID: matchID,
		Rated:   rated,
		Board:   engine.NewBoard(),
	}
}

// PlayerToMove returns the user whose turn it is.
func (g *Game) PlayerToMove() int64 {
	if g.Board.WhiteToMove() {
		return g.WhiteID
	}
	return g.BlackID
}

// ColorOf names the side a participant plays.
func (g *Game) ColorOf(userID int64) string {
	if userID == g.WhiteID {
		return "white"
	}
	return "black"
}

// Encode serializes the game for storage.
func (g *Game) Encode() (string, error) {
	s := state{
		Version:     stateVersion,
		WhiteID:     g.WhiteID,
		BlackID:     g.BlackID,
		MatchID:     g.MatchID,
		Rated:       g.Rated,
		LastMoveSAN: g.LastMoveSAN,
		MovesUCI:    g.Board.MovesUCI(),
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode game state: %w", err)
	}
	return string(raw), nil
}

// Decode restores a game from its stored form, replaying the move
// history to rebuild the board. A malformed document, unknown fields,
// missing seats or an unreplayable history all fail with ErrDecode.
func Decode(raw string) (*Game, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()

	var s state
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if s.Version != stateVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrDecode, s.Version)
	}
	if s.WhiteID == 0 || s.BlackID == 0 {
		return nil, fmt.Errorf("%w: missing seat assignment", ErrDecode)
	}

	board, err := engine.Replay(s.MovesUCI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &Game{
		WhiteID:     s.WhiteID,
		BlackID:     s.BlackID,
		MatchID:     s.MatchID,
		Rated:       s.Rated,
		LastMoveSAN: s.LastMoveSAN,
		Board:       board,
	}, nil
}
