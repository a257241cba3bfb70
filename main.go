// main.go
//
// Entry point for the concentration game server.
// Startup order:
//   - .env (godotenv), then config.yaml + MEMORY_* env (config.Load).
//   - Logger level/format.
//   - Symbol set, SQLite database + migrations, live session store.
//   - HTTP server and the idle session sweeper; both stop on SIGINT/SIGTERM.

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/concentration/internal/config"
	"github.com/robalobadob/concentration/internal/db"
	"github.com/robalobadob/concentration/internal/httpserver"
	"github.com/robalobadob/concentration/internal/store"
	"github.com/robalobadob/concentration/internal/symbols"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default ./config.yaml if present)")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg.Server)

	syms, err := symbols.Load(cfg.Game.SymbolsFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.Game.SymbolsFile).Msg("failed to load symbols")
	}

	sqlDB, err := db.OpenMigrated(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("failed to open database")
	}
	defer sqlDB.Close()

	srv := httpserver.New(httpserver.Options{
		Config:  cfg,
		Store:   store.NewMemoryStore(),
		DB:      sqlDB,
		Symbols: syms,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go srv.Sweep(ctx, sweepInterval(cfg.Game.SessionTTL), cfg.Game.SessionTTL)

	hs := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Str("addr", hs.Addr).Str("db", cfg.Database.Path).Msg("starting concentration server")
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func setupLogger(sc config.ServerConfig) {
	if lvl, err := zerolog.ParseLevel(sc.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if sc.PrettyLogs {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// sweepInterval checks a few times per TTL, at most once a minute.
func sweepInterval(ttl time.Duration) time.Duration {
	if d := ttl / 4; d < time.Minute {
		return d
	}
	return time.Minute
}
