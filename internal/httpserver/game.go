// internal/httpserver/game.go
//
// Game endpoints (optional auth; guests can play):
//   - POST   /game/new          deal a new session, record its first round
//   - GET    /game/{id}         current snapshot
//   - POST   /game/{id}/select  open a card
//   - POST   /game/{id}/restart abandon the current round and deal again
//   - DELETE /game/{id}         abandon the current round and drop the session
//
// Daily decks (routes_daily.go) run through the same endpoints.
//
// Every response carries the session snapshot plus localized labels picked
// from Accept-Language. Finished rounds are recorded by the hub's
// completion hook, off the request path.

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/concentration/internal/broadcast"
	"github.com/robalobadob/concentration/internal/display"
	"github.com/robalobadob/concentration/internal/game"
	"github.com/robalobadob/concentration/internal/records"
	"github.com/robalobadob/concentration/internal/shuffle"
	"github.com/robalobadob/concentration/internal/store"
)

// persistTimeout bounds background record writes.
const persistTimeout = 5 * time.Second

// mountGame registers the game routes on r.
func (s *Server) mountGame(r chi.Router) {
	r.Post("/game/new", s.handleNewGame)
	r.Get("/game/{id}", s.handleGetGame)
	r.Post("/game/{id}/select", s.handleSelect)
	r.Post("/game/{id}/restart", s.handleRestart)
	r.Delete("/game/{id}", s.handleDeleteGame)
}

// stateRes is a snapshot decorated with display labels.
type stateRes struct {
	game.State
	MovesLabel string `json:"movesLabel"`
	Stars      string `json:"stars"`
	Locale     string `json:"locale"`
}

func render(r *http.Request, st game.State) stateRes {
	l := display.For(r.Header.Get("Accept-Language"))
	return stateRes{State: st, MovesLabel: l.Moves(st.Moves), Stars: l.Stars(st.Rating), Locale: l.Locale()}
}

type newGameRes struct {
	GameID string   `json:"gameId"`
	State  stateRes `json:"state"`
}

// handleNewGame creates a session wired to a fresh hub, stores it and
// records its first round under the caller (user or anon cookie).
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	e := s.ownedEntry(w, r)
	if err := s.openSession(r, e, s.src); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("new session")
		writeError(w, http.StatusInternalServerError, "new_game_failed")
		return
	}
	writeJSON(w, http.StatusOK, newGameRes{GameID: e.Session.ID(), State: render(r, e.Session.Snapshot())})
}

// handleGetGame returns the current snapshot.
func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, render(r, e.Session.Snapshot()))
}

type selectReq struct {
	Index *int `json:"index" validate:"required,gte=0"`
}

type selectRes struct {
	Outcome game.Outcome `json:"outcome"`
	State   stateRes     `json:"state"`
}

// handleSelect opens one card. Selections the game ignores still return 200
// with outcome "ignored"; an index outside the deck is a 400.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectReq
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_index")
		return
	}
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	out, err := e.Session.Select(*req.Index)
	if errors.Is(err, game.ErrUnknownCard) {
		writeError(w, http.StatusBadRequest, "unknown_card")
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("select")
		writeError(w, http.StatusInternalServerError, "select_failed")
		return
	}
	writeJSON(w, http.StatusOK, selectRes{Outcome: out, State: render(r, e.Session.Snapshot())})
}

// handleRestart abandons the running round and deals a new one.
// Daily sessions have a single deal and cannot be restarted.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if e.DailyDate != "" {
		writeError(w, http.StatusConflict, "daily_no_restart")
		return
	}
	e.Rounds.Lock()
	defer e.Rounds.Unlock()
	prev, ok := e.Session.Restart()
	if !ok {
		writeError(w, http.StatusNotFound, "game_not_found")
		return
	}
	if !prev.Complete {
		s.abandon(r.Context(), prev.ID)
	}
	s.startRound(r, e)
	writeJSON(w, http.StatusOK, render(r, e.Session.Snapshot()))
}

// handleDeleteGame drops the session; unknown IDs are a 404.
func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(r.Context(), e.Session.ID()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("delete session")
		writeError(w, http.StatusInternalServerError, "delete_failed")
		return
	}
	s.abandonRound(r.Context(), e)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ------------------------------ helpers -------------------------------------

// ownedEntry starts an entry owned by the signed-in user or the guest cookie.
func (s *Server) ownedEntry(w http.ResponseWriter, r *http.Request) *store.Entry {
	e := &store.Entry{}
	if me := currentUser(r); me != nil {
		e.UserID = me.ID
	} else {
		e.AnonID = s.ensureAnonID(w, r)
	}
	return e
}

// openSession deals a session for e from src, stores it and records its
// first round.
func (s *Server) openSession(r *http.Request, e *store.Entry, src shuffle.Source) error {
	e.Hub = broadcast.New()
	e.Hub.OnComplete(s.finishRound)
	sess, err := game.New(game.Config{
		ID:      uuid.NewString(),
		Symbols: s.symbols,
		Clock:   s.clock,
		Source:  src,
		Sink:    e.Hub,
	})
	if err != nil {
		return err
	}
	e.Session = sess
	if err := s.store.Save(r.Context(), e); err != nil {
		sess.Close()
		return fmt.Errorf("save session: %w", err)
	}
	s.startRound(r, e)

	hlog.FromRequest(r).Info().
		Str("gameId", sess.ID()).
		Str("roundId", sess.RoundID()).
		Str("daily", e.DailyDate).
		Msg("new game")
	return nil
}

// lookup resolves {id} to a live session or writes a 404.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*store.Entry, bool) {
	e, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "game_not_found")
		return nil, false
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("load session")
		writeError(w, http.StatusInternalServerError, "load_failed")
		return nil, false
	}
	return e, true
}

// startRound records the session's current round (best effort).
func (s *Server) startRound(r *http.Request, e *store.Entry) {
	rec := records.Record{
		ID:        e.Session.RoundID(),
		SessionID: e.Session.ID(),
		UserID:    e.UserID,
		AnonID:    e.AnonID,
		DailyDate: e.DailyDate,
	}
	if err := s.records.Start(r.Context(), rec); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("roundId", rec.ID).Msg("record round start")
	}
}

// abandonRound marks the round of a closed session abandoned unless it
// already completed. The session must be closed first so no select can
// finish the round underneath.
func (s *Server) abandonRound(ctx context.Context, e *store.Entry) {
	e.Rounds.Lock()
	defer e.Rounds.Unlock()
	st := e.Session.Snapshot()
	if st.Phase == game.PhaseComplete {
		return
	}
	s.abandon(ctx, st.RoundID)
}

func (s *Server) abandon(ctx context.Context, roundID string) {
	if err := s.records.Abandon(ctx, roundID); err != nil {
		log.Warn().Err(err).Str("roundId", roundID).Msg("abandon round")
	}
}

// finishRound is the hub completion hook; it runs on its own goroutine.
func (s *Server) finishRound(st game.Stats) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.records.Finish(ctx, st); err != nil {
		log.Warn().Err(err).Str("roundId", st.RoundID).Msg("record round finish")
		return
	}
	log.Info().
		Str("roundId", st.RoundID).
		Int("moves", st.Moves).
		Int("rating", st.Rating).
		Str("elapsed", st.ElapsedLabel).
		Msg("round complete")
}
