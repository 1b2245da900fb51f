package service

// Outcome classifies how a board update left the match.
type Outcome int

const (
	// OutcomeNone means the match is still in progress.
	OutcomeNone Outcome = iota
	// OutcomeCheckmate means the side that just moved won.
	OutcomeCheckmate
	// OutcomeStalemate means the side to move has no legal moves.
	OutcomeStalemate
	// OutcomeDraw covers the automatic draws other than stalemate:
	// insufficient material, the seventy-five-move rule and fivefold
	// repetition.
	OutcomeDraw
	// OutcomeSurrender means a participant resigned.
	OutcomeSurrender
)

// BoardUpdate describes the state of a match after an operation, with
// everything a handler needs to render the reply: seats, turn, the last
// move, any terminal outcome and the drawn board.
type BoardUpdate struct {
	MatchID     int64
	Rated       bool
	WhiteID     int64
	BlackID     int64
	ToMoveID    int64
	WhiteToMove bool
	LastMoveSAN string
	MoveCount   int
	Check       bool
	Outcome     Outcome
	WinnerID    int64
	LoserID     int64
	BoardText   string
	Movetext    string
}
