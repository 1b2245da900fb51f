// Package engine adapts the chess rules library to the capability set the
// match lifecycle needs: move parsing, legality checks, terminal-state
// predicates and game-record rendering. Everything position-related lives
// behind this package so the rest of the bot never imports the library
// directly.
package engine

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Move interpretation errors. ParseMove wraps these with the offending
// move text; callers classify with errors.Is.
var (
	ErrInvalidMove   = errors.New("invalid move notation")
	ErrIllegalMove   = errors.New("illegal move")
	ErrAmbiguousMove = errors.New("ambiguous move")
)

// Move is an opaque parsed move, valid only for the board that parsed it.
type Move = nchess.Move

// Board wraps a live game position together with its move history.
// It is always reconstructed by replaying the history from the start
// position, never restored from a derived snapshot.
type Board struct {
	game *nchess.Game
	ucis []string
	sans []string
}

// NewBoard returns a board at the standard start position.
func NewBoard() *Board {
	return &Board{game: nchess.NewGame()}
}

// Replay rebuilds a board by applying a stored UCI move history from the
// start position. Any move the rules library rejects fails the whole
// replay.
func Replay(movesUCI []string) (*Board, error) {
	b := NewBoard()
	for i, text := range movesUCI {
		mv, err := nchess.UCINotation{}.Decode(b.game.Position(), strings.ToLower(strings.TrimSpace(text)))
		if err != nil {
			return nil, fmt.Errorf("replay move %d (%q): %w", i+1, text, err)
		}
		if _, err := b.Apply(mv); err != nil {
			return nil, fmt.Errorf("replay move %d (%q): %w", i+1, text, err)
		}
	}
	return b, nil
}

// WhiteToMove reports whether it is white's turn.
func (b *Board) WhiteToMove() bool {
	return b.game.Position().Turn() == nchess.White
}

// ParseMove interprets text as a move in the current position. Coordinate
// (UCI) notation is tried first; if that fails to parse, algebraic (SAN)
// notation is tried relative to the position. Either way the parsed move
// is re-validated against the legal-move set before being returned, so a
// syntactically valid coordinate move that is illegal for the position is
// rejected rather than applied.
func (b *Board) ParseMove(text string) (*Move, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty move", ErrInvalidMove)
	}

	pos := b.game.Position()
	if mv, err := (nchess.UCINotation{}).Decode(pos, strings.ToLower(trimmed)); err == nil {
		if !b.isLegal(mv) {
			return nil, fmt.Errorf("%w: %s", ErrIllegalMove, trimmed)
		}
		return mv, nil
	}

	mv, err := (nchess.AlgebraicNotation{}).Decode(pos, trimmed)
	if err != nil {
		return nil, b.classifySANFailure(trimmed)
	}
	if !b.isLegal(mv) {
		return nil, fmt.Errorf("%w: %s", ErrIllegalMove, trimmed)
	}
	return mv, nil
}

// Apply plays a move and returns its SAN rendering. The SAN is encoded
// against the pre-move position, which is where check/mate suffixes come
// from.
func (b *Board) Apply(mv *Move) (string, error) {
	pos := b.game.Position()
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	uci := strings.ToLower(nchess.UCINotation{}.Encode(pos, mv))
	if err := b.game.Move(mv, nil); err != nil {
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	b.ucis = append(b.ucis, uci)
	b.sans = append(b.sans, san)
	return san, nil
}

// isLegal checks membership of mv in the legal-move set of the current
// position by UCI identity.
func (b *Board) isLegal(mv *Move) bool {
	target := mv.String()
	for _, legal := range b.game.ValidMoves() {
		if legal.String() == target {
			return true
		}
	}
	return false
}

// MovesUCI returns a copy of the UCI move history.
func (b *Board) MovesUCI() []string {
	return append([]string(nil), b.ucis...)
}

// MovesSAN returns a copy of the SAN move history.
func (b *Board) MovesSAN() []string {
	return append([]string(nil), b.sans...)
}

// MoveCount returns the number of half-moves played.
func (b *Board) MoveCount() int {
	return len(b.ucis)
}

// LegalMovesUCI returns the sorted UCI encodings of all legal moves in
// the current position.
func (b *Board) LegalMovesUCI() []string {
	var moves []string
	for _, mv := range b.game.ValidMoves() {
		moves = append(moves, mv.String())
	}
	sort.Strings(moves)
	return moves
}

// FEN returns the current position in FEN form.
func (b *Board) FEN() string {
	return b.game.FEN()
}

// IsCheck reports whether the side to move is in check. The SAN of the
// last applied move carries the check marker.
func (b *Board) IsCheck() bool {
	if len(b.sans) == 0 {
		return false
	}
	last := b.sans[len(b.sans)-1]
	return strings.HasSuffix(last, "+") || strings.HasSuffix(last, "#")
}

// IsCheckmate reports whether the game ended by checkmate.
func (b *Board) IsCheckmate() bool {
	return b.game.Outcome() != nchess.NoOutcome && b.game.Method() == nchess.Checkmate
}

// IsStalemate reports whether the game ended by stalemate.
func (b *Board) IsStalemate() bool {
	return b.game.Outcome() == nchess.Draw && b.game.Method() == nchess.Stalemate
}

// IsAutoDraw reports whether the game reached any automatic draw:
// stalemate, insufficient material, seventy-five-move rule or fivefold
// repetition. Draw offers are not supported, so this is the only draw
// path.
func (b *Board) IsAutoDraw() bool {
	return b.game.Outcome() == nchess.Draw
}

// Text renders the current position as a fixed-width text diagram.
func (b *Board) Text() string {
	return b.game.Position().Board().Draw()
}

// Movetext renders the full move history as numbered SAN movetext, the
// portable game-record form shown in chat.
func (b *Board) Movetext() string {
	var sb strings.Builder
	for i := 0; i < len(b.sans); i += 2 {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%d. %s", i/2+1, b.sans[i])
		if i+1 < len(b.sans) {
			sb.WriteString(" ")
			sb.WriteString(b.sans[i+1])
		}
	}
	return sb.String()
}

// sanShape matches a structurally valid SAN token after cleaning.
// Anything that fails this is invalid notation, not an illegal move.
var sanShape = regexp.MustCompile(`^(O-O(-O)?|[KQRBN]?[a-h]?[1-8]?x?[a-h][1-8](=[QRBN])?)$`)

// pieceMove captures disambiguation characters in a SAN piece move.
var pieceMove = regexp.MustCompile(`^([KQRBN])([a-h]?[1-8]?)(x?)([a-h][1-8])$`)

// classifySANFailure decides why a SAN string failed to decode: invalid
// syntax, ambiguous between several legal moves, or plain illegal.
func (b *Board) classifySANFailure(text string) error {
	clean := cleanSAN(text)
	if !sanShape.MatchString(clean) {
		return fmt.Errorf("%w: %s", ErrInvalidMove, text)
	}

	// Count legal moves the token could mean once disambiguation
	// characters are ignored. Two or more means the input was ambiguous;
	// otherwise the move simply is not available in this position.
	target := stripDisambiguation(clean)
	pos := b.game.Position()
	candidates := 0
	for _, legal := range b.game.ValidMoves() {
		mv, err := (nchess.UCINotation{}).Decode(pos, legal.String())
		if err != nil {
			continue
		}
		san := cleanSAN(nchess.AlgebraicNotation{}.Encode(pos, mv))
		if stripDisambiguation(san) == target {
			candidates++
		}
	}
	if candidates > 1 {
		return fmt.Errorf("%w: %s", ErrAmbiguousMove, text)
	}
	return fmt.Errorf("%w: %s", ErrIllegalMove, text)
}

// cleanSAN normalizes a SAN token: surrounding space, check/mate and
// annotation suffixes, and zero-form castling.
func cleanSAN(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "+#!?")
	s = strings.ReplaceAll(s, "0-0-0", "O-O-O")
	if !strings.Contains(s, "O-O-O") {
		s = strings.ReplaceAll(s, "0-0", "O-O")
	}
	return s
}

// stripDisambiguation removes the optional origin file/rank from a piece
// move so "Nbd2" and "Nd2" compare equal.
func stripDisambiguation(s string) string {
	m := pieceMove.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	return m[1] + m[3] + m[4]
}
