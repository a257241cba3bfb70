// internal/httpserver/routes_daily.go
//
// HTTP routes for the "Daily Deck" mode.
// Exposes two endpoints under /daily:
//   - POST /daily/new         → start today's deck (creates or reuses a session)
//   - GET  /daily/leaderboard → top results for today (or ?date=YYYY-MM-DD)
//
// Everyone gets the same deal on a given UTC date (seeded from date + salt).
// Each player completes a date's deck once; play itself goes through the
// regular /game/{id} endpoints, which refuse to restart a daily session.

package httpserver

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/robalobadob/concentration/internal/daily"
	"github.com/robalobadob/concentration/internal/store"
)

// dailyServer wraps dependencies for /daily endpoints.
type dailyServer struct {
	srv      *Server
	store    *daily.Store
	salt     string
	sessions map[string]string // player|date → live session ID
	mu       sync.Mutex        // guards sessions
}

// mountDaily registers all /daily routes.
func (s *Server) mountDaily(r chi.Router) {
	dd := &dailyServer{
		srv:      s,
		store:    daily.NewStore(s.db),
		salt:     s.cfg.Game.DailySalt,
		sessions: make(map[string]string),
	}
	r.Route("/daily", func(r chi.Router) {
		r.Post("/new", dd.handleNew)
		r.Get("/leaderboard", dd.handleLeaderboard)
	})
}

// today returns the current date key on the server's clock.
func (d *dailyServer) today() string {
	if d.srv.clock != nil {
		return daily.DateKey(d.srv.clock.Now())
	}
	return daily.DateKey(time.Now())
}

// -----------------------------------------------------------------------------
// /daily/new

// dailyNewRes is returned by /daily/new. GameID and State are empty when the
// player already completed today's deck.
type dailyNewRes struct {
	GameID string    `json:"gameId"`
	Date   string    `json:"date"`
	Played bool      `json:"played"`
	State  *stateRes `json:"state,omitempty"`
}

// handleNew deals today's deck for the caller, or hands back the session
// they already have open.
func (d *dailyServer) handleNew(w http.ResponseWriter, r *http.Request) {
	e := d.srv.ownedEntry(w, r)
	date := d.today()
	player := daily.Player{UserID: e.UserID, AnonID: e.AnonID}

	played, err := d.store.Played(r.Context(), player, date)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("daily played check")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if played {
		writeJSON(w, http.StatusOK, dailyNewRes{Date: date, Played: true})
		return
	}

	key := player.UserID + "|" + player.AnonID + "|" + date
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forgetStaleLocked(date)

	if id, ok := d.sessions[key]; ok {
		if live, err := d.srv.store.Get(r.Context(), id); err == nil {
			st := render(r, live.Session.Snapshot())
			writeJSON(w, http.StatusOK, dailyNewRes{GameID: id, Date: date, State: &st})
			return
		} else if !errors.Is(err, store.ErrNotFound) {
			hlog.FromRequest(r).Error().Err(err).Msg("load daily session")
			writeError(w, http.StatusInternalServerError, "load_failed")
			return
		}
		delete(d.sessions, key)
	}

	e.DailyDate = date
	if err := d.srv.openSession(r, e, daily.Source(date, d.salt)); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("new daily session")
		writeError(w, http.StatusInternalServerError, "new_game_failed")
		return
	}
	d.sessions[key] = e.Session.ID()
	st := render(r, e.Session.Snapshot())
	writeJSON(w, http.StatusOK, dailyNewRes{GameID: e.Session.ID(), Date: date, State: &st})
}

// forgetStaleLocked drops session keys of earlier dates.
func (d *dailyServer) forgetStaleLocked(date string) {
	for k := range d.sessions {
		if !strings.HasSuffix(k, "|"+date) {
			delete(d.sessions, k)
		}
	}
}

// -----------------------------------------------------------------------------
// /daily/leaderboard

// dailyLBRes is returned by /daily/leaderboard.
type dailyLBRes struct {
	Date string        `json:"date"`
	Top  []daily.LBRow `json:"top"`
}

// handleLeaderboard returns the leaderboard for the given date (default today).
func (d *dailyServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	date := d.today()
	if q := r.URL.Query().Get("date"); q != "" {
		var err error
		if date, err = daily.ParseDate(q); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date")
			return
		}
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	rows, err := d.store.Leaderboard(r.Context(), date, limit)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("daily leaderboard")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, dailyLBRes{Date: date, Top: rows})
}
