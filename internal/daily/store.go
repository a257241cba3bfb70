package daily

import (
	"context"
	"database/sql"
)

// Player identifies whoever plays a daily deck: an account or a guest cookie.
type Player struct {
	UserID string
	AnonID string
}

// LBRow is one entry of a daily leaderboard.
type LBRow struct {
	Player    string `json:"player"`
	Moves     int    `json:"moves"`
	Rating    int    `json:"rating"`
	ElapsedMs int64  `json:"elapsedMs"`
}

// Store answers daily questions from the games table.
type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Played reports whether p already completed the deck of date.
func (s *Store) Played(ctx context.Context, p Player, date string) (bool, error) {
	if p.UserID == "" && p.AnonID == "" {
		return false, nil
	}
	var cnt int
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(1) FROM games
        WHERE daily_date=? AND status='complete' AND (user_id=? OR anonymous_id=?)`,
		date, p.UserID, p.AnonID,
	).Scan(&cnt)
	return cnt > 0, err
}

// Leaderboard ranks the completed rounds of date: fewest moves, then
// fastest, then earliest finish.
func (s *Store) Leaderboard(ctx context.Context, date string, limit int) ([]LBRow, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT COALESCE(u.username, 'guest'), g.moves, g.rating, g.elapsed_ms
        FROM games g
        LEFT JOIN users u ON u.id = g.user_id
        WHERE g.daily_date=? AND g.status='complete'
        ORDER BY g.moves ASC, g.elapsed_ms ASC, g.finished_at ASC
        LIMIT ?`, date, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []LBRow{}
	for rows.Next() {
		var r LBRow
		if err := rows.Scan(&r.Player, &r.Moves, &r.Rating, &r.ElapsedMs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
