// internal/httpserver/server.go
//
// HTTP server wiring for the concentration backend.
// Responsibilities:
//   - Router + middleware (request IDs, access log, panic recovery, CORS,
//     timeouts, JSON content type).
//   - Public endpoints: "/", "/health", "/leaderboard".
//   - Game endpoints (optional auth): mounted by mountGame (game.go).
//   - Live event stream over WebSocket: /game/{id}/events (events.go).
//   - Daily Deck endpoints (optional auth): mounted under /daily.
//   - Auth + profile endpoints: mounted by mountAuthRoutes (auth.go).
//   - Idle session sweeping.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - The WebSocket route sits outside the request timeout.

package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/concentration/internal/config"
	"github.com/robalobadob/concentration/internal/game"
	"github.com/robalobadob/concentration/internal/records"
	"github.com/robalobadob/concentration/internal/shuffle"
	"github.com/robalobadob/concentration/internal/store"
)

// requestTimeout bounds every handler except the event stream.
const requestTimeout = 10 * time.Second

// Options are the server's collaborators. Clock and Source may be nil.
type Options struct {
	Config  *config.Config
	Store   store.Store
	DB      *sql.DB
	Symbols []string
	Clock   game.Clock
	Source  shuffle.Source
}

// Server bundles router, live session store, records and DB handle.
type Server struct {
	r        *chi.Mux
	cfg      *config.Config
	store    store.Store
	db       *sql.DB
	records  *records.Store
	symbols  []string
	clock    game.Clock
	src      shuffle.Source
	validate *validator.Validate
}

// New constructs a Server, installs middleware, and registers routes.
func New(opts Options) *Server {
	s := &Server{
		r:        chi.NewRouter(),
		cfg:      opts.Config,
		store:    opts.Store,
		db:       opts.DB,
		records:  records.NewStore(opts.DB),
		symbols:  opts.Symbols,
		clock:    opts.Clock,
		src:      opts.Source,
		validate: validator.New(),
	}
	if err := s.validate.RegisterValidation("username", isUsername); err != nil {
		panic(err)
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID) // add X-Request-ID
	s.r.Use(chimw.RealIP)    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(hlog.NewHandler(log.Logger))
	s.r.Use(hlog.AccessHandler(accessLog))
	s.r.Use(chimw.Recoverer) // recover from panics
	s.r.Use(s.cors)          // credentials-friendly CORS

	// Live events: no timeout, the connection is long-lived.
	s.r.With(s.withOptionalAuth()).Get("/game/{id}/events", s.handleEvents)

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(requestTimeout))
		r.Use(jsonContentType)

		// --- diagnostics ---
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"service":"concentration","endpoints":["/health","POST /game/new","POST /game/{id}/select","POST /game/{id}/restart","GET /game/{id}/events","POST /daily/new","/daily/leaderboard","/leaderboard","/auth/*"]}`))
		})
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true}`))
		})

		// Game endpoints: OPTIONAL AUTH (guests can play)
		s.mountGame(r.With(s.withOptionalAuth()))

		// Daily Deck: OPTIONAL AUTH (one completed attempt per player and day)
		s.mountDaily(r.With(s.withOptionalAuth()))

		r.Get("/leaderboard", s.handleLeaderboard)

		// Auth + profile/stats
		s.mountAuthRoutes(r)

		// JSON 404 for easier debugging
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, "not_found")
		})
	})

	return s
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// Sweep evicts sessions idle longer than ttl every interval until ctx ends.
// Evicted sessions' current rounds are recorded as abandoned.
func (s *Server) Sweep(ctx context.Context, interval, ttl time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.sweepOnce(ctx, now.Add(-ttl))
		}
	}
}

func (s *Server) sweepOnce(ctx context.Context, before time.Time) {
	evicted, err := s.store.Prune(ctx, before)
	if err != nil {
		log.Warn().Err(err).Msg("prune sessions")
		return
	}
	for _, e := range evicted {
		s.abandonRound(ctx, e)
	}
	if len(evicted) > 0 {
		log.Info().Int("evicted", len(evicted)).Msg("pruned idle sessions")
	}
}

// ------------------------------ LEADERBOARD ---------------------------------

type leaderboardRes struct {
	Top []records.LBRow `json:"top"`
}

// handleLeaderboard returns the best completed rounds (?limit=1..100, default 20).
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	rows, err := s.records.Leaderboard(r.Context(), limit)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("leaderboard")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, leaderboardRes{Top: rows})
}

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the configured client origin.
func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.cfg.Server.ClientOrigin
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// accessLog writes one line per request.
func accessLog(r *http.Request, status, size int, d time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("reqId", chimw.GetReqID(r.Context())).
		Int("status", status).
		Int("size", size).
		Dur("duration", d).
		Msg("request")
}

// ------------------------------- small util --------------------------------

// parseLimit reads ?limit=1..100 (default records.DefaultLimit) or writes a 400.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return records.DefaultLimit, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 100 {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// decode reads a JSON body into v and validates its struct tags.
func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return s.validate.Struct(v)
}
