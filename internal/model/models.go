// Package model defines the data models for the chess match bot.
package model

import "time"

// Match statuses as persisted in the matches table.
const (
	StatusInvite      = "invite"
	StatusInProgress  = "in-progress"
	StatusDeclined    = "declined"
	StatusCancelled   = "cancelled"
	StatusStalemate   = "stalemate"
	StatusSurrendered = "surrendered"
	StatusWon         = "won"
)

// Match is the persistent record spanning a challenge's full lifecycle
// from invite to terminal outcome. UserID is the initiator; OpponentID is
// nil for an open invite until someone accepts.
type Match struct {
	MatchID    int64     `db:"match_id"`
	GuildID    int64     `db:"guild_id"`
	ChannelID  int64     `db:"channel_id"`
	GameState  *string   `db:"game_state"`
	UserID     int64     `db:"user_id"`
	OpponentID *int64    `db:"opponent_id"`
	WinnerID   *int64    `db:"winner_id"`
	LoserID    *int64    `db:"loser_id"`
	Status     string    `db:"status"`
	Rated      bool      `db:"rated"`
	CreatedAt  time.Time `db:"created_at"`
}

// IsTargeted reports whether the invite names a specific opponent.
func (m *Match) IsTargeted() bool {
	return m.OpponentID != nil
}

// IsParticipant reports whether userID is one of the two players.
func (m *Match) IsParticipant(userID int64) bool {
	if m.UserID == userID {
		return true
	}
	return m.OpponentID != nil && *m.OpponentID == userID
}

// OtherParticipant returns the participant that is not userID.
// Only meaningful once OpponentID is set.
func (m *Match) OtherParticipant(userID int64) int64 {
	if m.UserID == userID && m.OpponentID != nil {
		return *m.OpponentID
	}
	return m.UserID
}

// IsTerminal reports whether status permits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusDeclined, StatusCancelled, StatusStalemate, StatusSurrendered, StatusWon:
		return true
	}
	return false
}

// UserStat is one user's per-guild win/loss/draw record.
type UserStat struct {
	UserStatID int64   `db:"user_stat_id"`
	GuildID    int64   `db:"guild_id"`
	UserID     int64   `db:"user_id"`
	Wins       int     `db:"wins"`
	Losses     int     `db:"losses"`
	Draws      int     `db:"draws"`
	WinRatio   float64 `db:"win_ratio"`
}
