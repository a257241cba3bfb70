// internal/records/records.go
//
// SQLite persistence for dealt rounds.
// Responsibilities:
//   - Record a row when a round is dealt (status "playing").
//   - Mark it "complete" with final stats, or "abandoned" on restart/evict.
//   - Bump the owner's account stats in the same transaction on completion.
//   - Serve the leaderboard, per-user history and guest → account claims.

package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/robalobadob/concentration/internal/game"
)

// ErrNotFound is returned when no playing round matches an ID.
var ErrNotFound = errors.New("records: round not found")

// Status is the lifecycle state of a persisted round.
type Status string

const (
	StatusPlaying   Status = "playing"
	StatusComplete  Status = "complete"
	StatusAbandoned Status = "abandoned"
)

// DefaultLimit caps list queries when the caller passes limit <= 0.
const DefaultLimit = 20

// Record is one persisted round.
type Record struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"sessionId"`
	UserID     string     `json:"-"`
	AnonID     string     `json:"-"`
	Status     Status     `json:"status"`
	Moves      int        `json:"moves"`
	Rating     int        `json:"rating"`
	ElapsedMs  int64      `json:"elapsedMs"`
	DailyDate  string     `json:"dailyDate,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// LBRow is one leaderboard entry.
type LBRow struct {
	GameID     string    `json:"gameId"`
	Player     string    `json:"player"`
	Moves      int       `json:"moves"`
	Rating     int       `json:"rating"`
	ElapsedMs  int64     `json:"elapsedMs"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Store wraps the games table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore returns a Store on an already migrated database.
func NewStore(db *sql.DB) *Store { return &Store{db: db, now: time.Now} }

// Start inserts a playing row for a fresh round. Re-inserting an existing
// round ID is ignored.
func (s *Store) Start(ctx context.Context, r Record) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO games (id, session_id, user_id, anonymous_id, status, daily_date, started_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, nullable(r.UserID), nullable(r.AnonID), StatusPlaying, nullable(r.DailyDate), formatTime(r.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("start round %s: %w", r.ID, err)
	}
	return nil
}

// Finish stores the final stats of a playing round and, if it belongs to an
// account, bumps games played and personal bests.
func (s *Store) Finish(ctx context.Context, st game.Stats) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
        UPDATE games SET status=?, moves=?, rating=?, elapsed_ms=?, finished_at=?
        WHERE id=? AND status=?`,
		StatusComplete, st.Moves, st.Rating, st.ElapsedMs, formatTime(s.now()), st.RoundID, StatusPlaying,
	)
	if err != nil {
		return fmt.Errorf("finish round %s: %w", st.RoundID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish round %s: rows affected: %w", st.RoundID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, st.RoundID)
	}

	var userID sql.NullString
	if err := tx.QueryRowContext(ctx, `SELECT user_id FROM games WHERE id=?`, st.RoundID).Scan(&userID); err != nil {
		return fmt.Errorf("load owner: %w", err)
	}
	if userID.Valid {
		if err := bumpStats(ctx, tx, userID.String, st); err != nil {
			return fmt.Errorf("bump stats: %w", err)
		}
	}
	return tx.Commit()
}

// bumpStats increments games played and keeps the best moves/time.
func bumpStats(ctx context.Context, tx *sql.Tx, userID string, st game.Stats) error {
	_, err := tx.ExecContext(ctx, `
        UPDATE users SET
            games_played = games_played + 1,
            best_moves   = MIN(COALESCE(best_moves, ?), ?),
            best_ms      = MIN(COALESCE(best_ms, ?), ?)
        WHERE id=?`,
		st.Moves, st.Moves, st.ElapsedMs, st.ElapsedMs, userID,
	)
	return err
}

// Abandon marks a playing round as abandoned. Rounds that already finished
// are left alone.
func (s *Store) Abandon(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE games SET status=?, finished_at=? WHERE id=? AND status=?`,
		StatusAbandoned, formatTime(s.now()), id, StatusPlaying,
	)
	if err != nil {
		return fmt.Errorf("abandon round %s: %w", id, err)
	}
	return nil
}

// Get loads one round by ID.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+` WHERE id=?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// Leaderboard lists completed rounds: best rating first, then fewest moves,
// then fastest, then earliest.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]LBRow, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT g.id, COALESCE(u.username, 'guest'), g.moves, g.rating, g.elapsed_ms, g.finished_at
        FROM games g
        LEFT JOIN users u ON u.id = g.user_id
        WHERE g.status=?
        ORDER BY g.rating DESC, g.moves ASC, g.elapsed_ms ASC, g.finished_at ASC
        LIMIT ?`, StatusComplete, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]LBRow, 0, limit)
	for rows.Next() {
		var r LBRow
		var finished string
		if err := rows.Scan(&r.GameID, &r.Player, &r.Moves, &r.Rating, &r.ElapsedMs, &finished); err != nil {
			return nil, err
		}
		r.FinishedAt = parseTime(finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ForUser lists an account's most recent rounds.
func (s *Store) ForUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx, selectRecord+`
        WHERE user_id=? ORDER BY started_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ClaimAnon moves a guest's rounds onto an account after sign-in.
func (s *Store) ClaimAnon(ctx context.Context, anonID, userID string) (int64, error) {
	if anonID == "" || userID == "" {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE games SET user_id=?, anonymous_id=NULL WHERE anonymous_id=?`, userID, anonID)
	if err != nil {
		return 0, fmt.Errorf("claim anon rounds: %w", err)
	}
	return res.RowsAffected()
}

// ------------------------------- scanning ------------------------------------

const selectRecord = `
        SELECT id, session_id, COALESCE(user_id, ''), COALESCE(anonymous_id, ''), status,
               moves, rating, elapsed_ms, COALESCE(daily_date, ''), started_at, COALESCE(finished_at, '')
        FROM games`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var r Record
	var started, finished string
	if err := row.Scan(&r.ID, &r.SessionID, &r.UserID, &r.AnonID, &r.Status,
		&r.Moves, &r.Rating, &r.ElapsedMs, &r.DailyDate, &started, &finished); err != nil {
		return nil, err
	}
	r.StartedAt = parseTime(started)
	if finished != "" {
		t := parseTime(finished)
		r.FinishedAt = &t
	}
	return &r, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

// parseTime parses RFC3339 timestamps; on error returns zero time.
func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
