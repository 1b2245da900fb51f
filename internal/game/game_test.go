package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeDecode(t *testing.T) {
	g := New(42, 100, 200, true)
	mv, err := g.Board.ParseMove("e2e4")
	require.NoError(t, err)
	san, err := g.Board.Apply(mv)
	require.NoError(t, err)
	g.LastMoveSAN = san

	raw, err := g.Encode()
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.WhiteID)
	assert.Equal(t, int64(200), got.BlackID)
	assert.Equal(t, int64(42), got.MatchID)
	assert.True(t, got.Rated)
	assert.Equal(t, "e4", got.LastMoveSAN)
	assert.Equal(t, []string{"e2e4"}, got.Board.MovesUCI())
	assert.Equal(t, g.Board.FEN(), got.Board.FEN())
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "not json"},
		{"empty object", `{}`},
		{"unknown field", `{"version":1,"white_id":1,"black_id":2,"match_id":3,"rated":false,"last_move_san":"","moves_uci":[],"extra":true}`},
		{"wrong version", `{"version":9,"white_id":1,"black_id":2,"match_id":3,"rated":false,"last_move_san":"","moves_uci":[]}`},
		{"missing seat", `{"version":1,"white_id":0,"black_id":2,"match_id":3,"rated":false,"last_move_san":"","moves_uci":[]}`},
		{"bad history", `{"version":1,"white_id":1,"black_id":2,"match_id":3,"rated":false,"last_move_san":"","moves_uci":["e2e5"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestPlayerToMove(t *testing.T) {
	g := New(1, 100, 200, false)
	assert.Equal(t, int64(100), g.PlayerToMove())

	mv, err := g.Board.ParseMove("e4")
	require.NoError(t, err)
	_, err = g.Board.Apply(mv)
	require.NoError(t, err)
	assert.Equal(t, int64(200), g.PlayerToMove())
}

func TestColorOf(t *testing.T) {
	g := New(1, 100, 200, false)
	assert.Equal(t, "white", g.ColorOf(100))
	assert.Equal(t, "black", g.ColorOf(200))
}

func TestRoundTripRandomGames(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := New(
			rapid.Int64Range(1, 1<<40).Draw(t, "matchID"),
			rapid.Int64Range(1, 1<<40).Draw(t, "whiteID"),
			rapid.Int64Range(1, 1<<40).Draw(t, "blackID"),
			rapid.Bool().Draw(t, "rated"),
		)
		steps := rapid.IntRange(0, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			legal := g.Board.LegalMovesUCI()
			if len(legal) == 0 || g.Board.IsAutoDraw() {
				break
			}
			pick := rapid.IntRange(0, len(legal)-1).Draw(t, "pick")
			mv, err := g.Board.ParseMove(legal[pick])
			require.NoError(t, err)
			san, err := g.Board.Apply(mv)
			require.NoError(t, err)
			g.LastMoveSAN = san
		}

		raw, err := g.Encode()
		require.NoError(t, err)
		got, err := Decode(raw)
		require.NoError(t, err)

		assert.Equal(t, g.WhiteID, got.WhiteID)
		assert.Equal(t, g.BlackID, got.BlackID)
		assert.Equal(t, g.Rated, got.Rated)
		assert.Equal(t, g.LastMoveSAN, got.LastMoveSAN)
		assert.Equal(t, g.Board.FEN(), got.Board.FEN())
		assert.Equal(t, g.Board.MovesUCI(), got.Board.MovesUCI())
	})
}
