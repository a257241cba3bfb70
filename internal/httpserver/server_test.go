package httpserver

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/concentration/internal/config"
	"github.com/robalobadob/concentration/internal/db"
	"github.com/robalobadob/concentration/internal/game"
	"github.com/robalobadob/concentration/internal/game/gametest"
	"github.com/robalobadob/concentration/internal/records"
	"github.com/robalobadob/concentration/internal/store"
	"github.com/robalobadob/concentration/internal/symbols"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

type harness struct {
	t      *testing.T
	srv    *Server
	ts     *httptest.Server
	client *http.Client
	clock  *gametest.ManualClock
	db     *sql.DB
	store  store.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sqlDB, err := db.OpenMigrated(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	syms, err := symbols.Default()
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{Port: 5175, LogLevel: "info", ClientOrigin: "http://localhost:5173"},
		Auth:   config.AuthConfig{JWTSecret: "test_secret_0123456789", JWTExpiresDays: 1, CookieName: "memory_token"},
		Game:   config.GameConfig{SessionTTL: time.Hour, DailySalt: "test_salt"},
	}
	h := &harness{t: t, clock: gametest.NewManualClock(), db: sqlDB, store: store.NewMemoryStore()}
	h.srv = New(Options{
		Config:  cfg,
		Store:   h.store,
		DB:      sqlDB,
		Symbols: syms,
		Clock:   h.clock,
		Source:  gametest.IdentitySource{},
	})
	h.ts = httptest.NewServer(h.srv.Router())
	t.Cleanup(h.ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	h.client = &http.Client{Jar: jar}
	return h
}

// do sends a JSON request and decodes the response into out when non-nil.
func (h *harness) do(method, path string, body any, out any, header ...string) int {
	h.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.ts.URL+path, rd)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	res, err := h.client.Do(req)
	require.NoError(h.t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(h.t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func (h *harness) newGame() newGameRes {
	h.t.Helper()
	var res newGameRes
	require.Equal(h.t, http.StatusOK, h.do(http.MethodPost, "/game/new", nil, &res))
	require.NotEmpty(h.t, res.GameID)
	return res
}

func (h *harness) selectCard(id string, index int) selectRes {
	h.t.Helper()
	var res selectRes
	require.Equal(h.t, http.StatusOK, h.do(http.MethodPost, "/game/"+id+"/select", map[string]int{"index": index}, &res))
	return res
}

// playThrough matches every pair; the identity shuffle puts card i's twin at i+8.
func (h *harness) playThrough(id string) selectRes {
	h.t.Helper()
	var last selectRes
	for i := 0; i < symbols.PairCount; i++ {
		h.selectCard(id, i)
		last = h.selectCard(id, gametest.Pair(i))
	}
	return last
}

func (h *harness) record(roundID string) *records.Record {
	h.t.Helper()
	rec, err := records.NewStore(h.db).Get(context.Background(), roundID)
	require.NoError(h.t, err)
	return rec
}

func (h *harness) eventuallyStatus(roundID string, want records.Status) {
	h.t.Helper()
	st := records.NewStore(h.db)
	assert.Eventually(h.t, func() bool {
		rec, err := st.Get(context.Background(), roundID)
		return err == nil && rec.Status == want
	}, 2*time.Second, 10*time.Millisecond)
}

// ------------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	h := newHarness(t)
	var body map[string]bool
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/health", nil, &body))
	assert.True(t, body["ok"])
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	h := newHarness(t)
	var body map[string]string
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/nope", nil, &body))
	assert.Equal(t, "not_found", body["error"])
}

func TestNewGame(t *testing.T) {
	h := newHarness(t)
	res := h.newGame()

	st := res.State
	assert.Equal(t, res.GameID, st.ID)
	assert.Equal(t, game.PhaseReady, st.Phase)
	assert.Len(t, st.Cards, 2*symbols.PairCount)
	for _, c := range st.Cards {
		assert.Equal(t, game.CardHidden, c.State)
		assert.Empty(t, c.Symbol)
	}
	assert.Equal(t, 0, st.Moves)
	assert.Equal(t, 3, st.Rating)
	assert.Equal(t, "00:00:00", st.Elapsed)
	assert.Equal(t, "0 Moves", st.MovesLabel)
	assert.Equal(t, "★★★", st.Stars)

	rec := h.record(st.RoundID)
	assert.Equal(t, records.StatusPlaying, rec.Status)
	assert.Equal(t, res.GameID, rec.SessionID)
	assert.NotEmpty(t, rec.AnonID)
	assert.Empty(t, rec.UserID)
}

func TestGetGame(t *testing.T) {
	h := newHarness(t)
	g := h.newGame()

	var st stateRes
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/game/"+g.GameID, nil, &st, "Accept-Language", "pt-BR,pt;q=0.9"))
	assert.Equal(t, g.State.RoundID, st.RoundID)
	assert.Equal(t, "0 Jogadas", st.MovesLabel)
	assert.Equal(t, "pt-BR", st.Locale)

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/game/missing", nil, &body))
	assert.Equal(t, "game_not_found", body["error"])
}

func TestSelectErrors(t *testing.T) {
	h := newHarness(t)
	g := h.newGame()

	cases := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown game", "/game/missing/select", map[string]int{"index": 0}, http.StatusNotFound, "game_not_found"},
		{"missing index", "/game/" + g.GameID + "/select", map[string]string{}, http.StatusBadRequest, "invalid_index"},
		{"negative index", "/game/" + g.GameID + "/select", map[string]int{"index": -1}, http.StatusBadRequest, "invalid_index"},
		{"past the deck", "/game/" + g.GameID + "/select", map[string]int{"index": 16}, http.StatusBadRequest, "unknown_card"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var body map[string]string
			assert.Equal(t, tc.status, h.do(http.MethodPost, tc.path, tc.body, &body))
			assert.Equal(t, tc.code, body["error"])
		})
	}
}

func TestSelectMismatch(t *testing.T) {
	h := newHarness(t)
	g := h.newGame()

	first := h.selectCard(g.GameID, 0)
	assert.Equal(t, game.OutcomeOpened, first.Outcome)
	assert.NotEmpty(t, first.State.Cards[0].Symbol)

	second := h.selectCard(g.GameID, 1)
	assert.Equal(t, game.OutcomeMismatched, second.Outcome)
	assert.Equal(t, game.PhaseChecking, second.State.Phase)
	assert.Equal(t, 1, second.State.Moves)
	assert.Equal(t, "1 Move", second.State.MovesLabel)

	blocked := h.selectCard(g.GameID, 2)
	assert.Equal(t, game.OutcomeIgnored, blocked.Outcome)

	h.clock.Advance(game.MismatchDelay)

	var st stateRes
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/game/"+g.GameID, nil, &st))
	assert.Equal(t, game.PhaseReady, st.Phase)
	assert.Equal(t, game.CardHidden, st.Cards[0].State)
	assert.Equal(t, game.CardHidden, st.Cards[1].State)
}

func TestFullGameIsRecorded(t *testing.T) {
	h := newHarness(t)
	g := h.newGame()

	h.clock.Advance(75 * time.Second)
	last := h.playThrough(g.GameID)

	assert.Equal(t, game.OutcomeCompleted, last.Outcome)
	assert.Equal(t, game.PhaseComplete, last.State.Phase)
	require.NotNil(t, last.State.Stats)
	assert.Equal(t, 8, last.State.Stats.Moves)
	assert.Equal(t, 3, last.State.Stats.Rating)
	assert.Equal(t, "00:01:15", last.State.Stats.ElapsedLabel)

	h.eventuallyStatus(g.State.RoundID, records.StatusComplete)
	rec := h.record(g.State.RoundID)
	assert.Equal(t, 8, rec.Moves)
	assert.Equal(t, 3, rec.Rating)
	assert.Equal(t, int64(75000), rec.ElapsedMs)

	var lb leaderboardRes
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/leaderboard", nil, &lb))
	require.Len(t, lb.Top, 1)
	assert.Equal(t, g.State.RoundID, lb.Top[0].GameID)
	assert.Equal(t, "guest", lb.Top[0].Player)
}

func TestLeaderboardLimit(t *testing.T) {
	h := newHarness(t)
	for _, v := range []string{"0", "101", "abc"} {
		var body map[string]string
		assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/leaderboard?limit="+v, nil, &body), v)
	}
	var lb leaderboardRes
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/leaderboard?limit=5", nil, &lb))
	assert.Empty(t, lb.Top)
}

func TestRestartAbandonsRound(t *testing.T) {
	h := newHarness(t)
	g := h.newGame()
	h.selectCard(g.GameID, 0)
	h.selectCard(g.GameID, 1)

	var st stateRes
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/game/"+g.GameID+"/restart", nil, &st))
	assert.NotEqual(t, g.State.RoundID, st.RoundID)
	assert.Equal(t, 0, st.Moves)
	assert.Equal(t, game.PhaseReady, st.Phase)

	assert.Equal(t, records.StatusAbandoned, h.record(g.State.RoundID).Status)
	assert.Equal(t, records.StatusPlaying, h.record(st.RoundID).Status)

	// The old mismatch close must not touch the new deal.
	h.clock.Advance(game.MismatchDelay)
	first := h.selectCard(g.GameID, 0)
	assert.Equal(t, game.OutcomeOpened, first.Outcome)
}

func TestRestartAfterCompletionKeepsRecord(t *testing.T) {
	h := newHarness(t)
	g := h.newGame()
	h.playThrough(g.GameID)
	h.eventuallyStatus(g.State.RoundID, records.StatusComplete)

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/game/"+g.GameID+"/restart", nil, nil))
	assert.Equal(t, records.StatusComplete, h.record(g.State.RoundID).Status)
}

func TestConcurrentRestartsLeaveOnePlayingRound(t *testing.T) {
	h := newHarness(t)
	g := h.newGame()
	h.selectCard(g.GameID, 0)

	const n = 20
	var wg sync.WaitGroup
	statuses := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.client.Post(h.ts.URL+"/game/"+g.GameID+"/restart", "application/json", nil)
			if err != nil {
				statuses <- 0
				return
			}
			_ = res.Body.Close()
			statuses <- res.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)
	for code := range statuses {
		assert.Equal(t, http.StatusOK, code)
	}

	count := func(status records.Status) int {
		var c int
		require.NoError(t, h.db.QueryRow(
			`SELECT COUNT(*) FROM games WHERE session_id=? AND (?='' OR status=?)`,
			g.GameID, status, status).Scan(&c))
		return c
	}
	assert.Equal(t, n+1, count(""))
	assert.Equal(t, 1, count(records.StatusPlaying))
	assert.Equal(t, n, count(records.StatusAbandoned))

	var st stateRes
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/game/"+g.GameID, nil, &st))
	assert.Equal(t, records.StatusPlaying, h.record(st.RoundID).Status)
}

func TestDeleteAfterCompletionKeepsRecord(t *testing.T) {
	h := newHarness(t)
	g := h.newGame()
	h.playThrough(g.GameID)
	h.eventuallyStatus(g.State.RoundID, records.StatusComplete)

	require.Equal(t, http.StatusOK, h.do(http.MethodDelete, "/game/"+g.GameID, nil, nil))
	assert.Equal(t, records.StatusComplete, h.record(g.State.RoundID).Status)
}

func TestDeleteGame(t *testing.T) {
	h := newHarness(t)
	g := h.newGame()

	assert.Equal(t, http.StatusOK, h.do(http.MethodDelete, "/game/"+g.GameID, nil, nil))
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/game/"+g.GameID, nil, nil))
	assert.Equal(t, records.StatusAbandoned, h.record(g.State.RoundID).Status)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/game/"+g.GameID, nil, nil))
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	h := newHarness(t)
	g := h.newGame()

	h.srv.sweepOnce(context.Background(), time.Now().Add(time.Minute))

	_, err := h.store.Get(context.Background(), g.GameID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, records.StatusAbandoned, h.record(g.State.RoundID).Status)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)
	req, err := http.NewRequest(http.MethodOptions, h.ts.URL+"/game/new", nil)
	require.NoError(t, err)
	res, err := h.client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, "http://localhost:5173", res.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", res.Header.Get("Access-Control-Allow-Credentials"))
}

// ------------------------------ events ---------------------------------------

func dialEvents(t *testing.T, h *harness, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/game/" + id + "/events"
	conn, res, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = res.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	return conn
}

func TestEventStream(t *testing.T) {
	h := newHarness(t)
	g := h.newGame()
	conn := dialEvents(t, h, g.GameID)

	var hello stateMsg
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "state", hello.Kind)
	assert.Equal(t, g.State.RoundID, hello.State.RoundID)
	assert.Len(t, hello.State.Cards, 16)

	h.selectCard(g.GameID, 0)

	var ev eventMsg
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, game.EventCard, ev.Kind)
	require.NotNil(t, ev.Card)
	assert.Equal(t, 0, ev.Card.Index)
	assert.Equal(t, game.CardOpen, ev.Card.State)
	assert.Equal(t, "0 Moves", ev.MovesLabel)
	assert.Equal(t, "★★★", ev.Stars)

	h.clock.Advance(game.TickInterval)
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, game.EventTick, ev.Kind)
	assert.Equal(t, "00:00:01", ev.Elapsed)

	require.Equal(t, http.StatusOK, h.do(http.MethodDelete, "/game/"+g.GameID, nil, nil))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestEventStreamUnknownGame(t *testing.T) {
	h := newHarness(t)
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/game/missing/events"
	_, res, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestEventStreamRejectsForeignOrigin(t *testing.T) {
	h := newHarness(t)
	g := h.newGame()
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/game/" + g.GameID + "/events"
	_, res, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}
