package records

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/concentration/internal/db"
	"github.com/robalobadob/concentration/internal/game"
)

func newStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	conn, err := db.OpenMigrated(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	s := NewStore(conn)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	return s, conn
}

func addUser(t *testing.T, conn *sql.DB, id, name string) {
	t.Helper()
	_, err := conn.Exec(`INSERT INTO users (id, username, password_hash, created_at) VALUES (?,?,?,?)`,
		id, name, "x", "2024-01-01T00:00:00Z")
	require.NoError(t, err)
}

func stats(id string, moves, rating int, ms int64) game.Stats {
	return game.Stats{RoundID: id, Moves: moves, Rating: rating, ElapsedMs: ms}
}

func TestStartAndFinish(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	require.NoError(t, s.Start(ctx, Record{ID: "r1", SessionID: "s1", AnonID: "anon"}))
	require.NoError(t, s.Start(ctx, Record{ID: "r1", SessionID: "s1"}), "duplicate start is ignored")

	r, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, StatusPlaying, r.Status)
	assert.Equal(t, "anon", r.AnonID)
	assert.Nil(t, r.FinishedAt)

	require.NoError(t, s.Finish(ctx, stats("r1", 12, 2, 65000)))
	r, err = s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, r.Status)
	assert.Equal(t, 12, r.Moves)
	assert.Equal(t, 2, r.Rating)
	assert.Equal(t, int64(65000), r.ElapsedMs)
	require.NotNil(t, r.FinishedAt)

	// a round finishes once
	assert.ErrorIs(t, s.Finish(ctx, stats("r1", 8, 3, 1)), ErrNotFound)
	assert.ErrorIs(t, s.Finish(ctx, stats("nope", 8, 3, 1)), ErrNotFound)
}

func TestFinishDatabaseErrorIsNotNotFound(t *testing.T) {
	ctx := context.Background()
	s, conn := newStore(t)
	require.NoError(t, s.Start(ctx, Record{ID: "r1", SessionID: "s1"}))
	require.NoError(t, conn.Close())

	err := s.Finish(ctx, stats("r1", 8, 3, 1))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestGetMissing(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAbandon(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.Start(ctx, Record{ID: "r1", SessionID: "s"}))
	require.NoError(t, s.Start(ctx, Record{ID: "r2", SessionID: "s"}))
	require.NoError(t, s.Finish(ctx, stats("r2", 8, 3, 1000)))

	require.NoError(t, s.Abandon(ctx, "r1"))
	require.NoError(t, s.Abandon(ctx, "r2"))

	r1, _ := s.Get(ctx, "r1")
	r2, _ := s.Get(ctx, "r2")
	assert.Equal(t, StatusAbandoned, r1.Status)
	assert.Equal(t, StatusComplete, r2.Status)
}

func TestLeaderboardOrdering(t *testing.T) {
	ctx := context.Background()
	s, conn := newStore(t)
	addUser(t, conn, "u1", "alice")

	rounds := []struct {
		id     string
		user   string
		moves  int
		rating int
		ms     int64
	}{
		{"slow", "", 8, 3, 90000},
		{"fast", "u1", 8, 3, 30000},
		{"more", "", 9, 3, 10000},
		{"two", "u1", 12, 2, 5000},
		{"one", "", 25, 1, 1000},
	}
	for _, r := range rounds {
		require.NoError(t, s.Start(ctx, Record{ID: r.id, SessionID: "s", UserID: r.user}))
		require.NoError(t, s.Finish(ctx, stats(r.id, r.moves, r.rating, r.ms)))
	}
	require.NoError(t, s.Start(ctx, Record{ID: "live", SessionID: "s"}))

	top, err := s.Leaderboard(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, len(top))
	for i, r := range top {
		ids[i] = r.GameID
	}
	assert.Equal(t, []string{"fast", "slow", "more", "two", "one"}, ids)
	assert.Equal(t, "alice", top[0].Player)
	assert.Equal(t, "guest", top[1].Player)
	assert.False(t, top[0].FinishedAt.IsZero())

	top, err = s.Leaderboard(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)
}

func TestFinishBumpsUserStats(t *testing.T) {
	ctx := context.Background()
	s, conn := newStore(t)
	addUser(t, conn, "u1", "alice")

	require.NoError(t, s.Start(ctx, Record{ID: "a", SessionID: "s", UserID: "u1"}))
	require.NoError(t, s.Finish(ctx, stats("a", 14, 2, 50000)))
	require.NoError(t, s.Start(ctx, Record{ID: "b", SessionID: "s", UserID: "u1"}))
	require.NoError(t, s.Finish(ctx, stats("b", 10, 2, 70000)))

	var played, bestMoves int
	var bestMs int64
	require.NoError(t, conn.QueryRow(`SELECT games_played, best_moves, best_ms FROM users WHERE id='u1'`).
		Scan(&played, &bestMoves, &bestMs))
	assert.Equal(t, 2, played)
	assert.Equal(t, 10, bestMoves)
	assert.Equal(t, int64(50000), bestMs)
}

func TestClaimAnonAndForUser(t *testing.T) {
	ctx := context.Background()
	s, conn := newStore(t)
	addUser(t, conn, "u1", "alice")

	require.NoError(t, s.Start(ctx, Record{ID: "g1", SessionID: "s", AnonID: "guest-1"}))
	require.NoError(t, s.Start(ctx, Record{ID: "g2", SessionID: "s", AnonID: "guest-1"}))
	require.NoError(t, s.Start(ctx, Record{ID: "other", SessionID: "s", AnonID: "guest-2"}))

	n, err := s.ClaimAnon(ctx, "guest-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.ClaimAnon(ctx, "", "u1")
	require.NoError(t, err)
	assert.Zero(t, n)

	mine, err := s.ForUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "g2", mine[0].ID, "newest first")
	assert.Equal(t, "u1", mine[0].UserID)
	assert.Empty(t, mine[0].AnonID)

	none, err := s.ForUser(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
