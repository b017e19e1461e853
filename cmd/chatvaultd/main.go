package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatvault/chatvault/internal/api"
	"github.com/chatvault/chatvault/internal/archive"
	"github.com/chatvault/chatvault/internal/config"
	"github.com/chatvault/chatvault/internal/health"
	"github.com/chatvault/chatvault/internal/platform/logger"
	"github.com/chatvault/chatvault/internal/store"
	"github.com/chatvault/chatvault/internal/store/postgres"
	"github.com/chatvault/chatvault/internal/store/sqlite"
)

func main() {
	archiveName := flag.String("archive", "main", "Name of the stored archive to serve")
	flag.Parse()

	log := logger.New("chatvaultd")

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(lvl)
	}

	log.Info().
		Str("store_driver", cfg.StoreDriver).
		Str("archive", *archiveName).
		Int("http_port", cfg.HTTPPort).
		Msg("Archive service starting")

	ctx := context.Background()

	var db *sql.DB
	switch cfg.StoreDriver {
	case "postgres":
		db, err = postgres.Open(cfg.PostgresDSN)
		if err == nil {
			err = postgres.EnsureSchema(ctx, db)
		}
	default:
		db, err = sqlite.Open(cfg.SQLitePath)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Store unavailable")
	}
	var st store.Store
	if cfg.StoreDriver == "postgres" {
		st = postgres.NewWithDB(db)
	} else {
		st = sqlite.NewWithDB(db)
	}

	a, err := loadOrCreate(ctx, st, *archiveName)
	if err != nil {
		log.Fatal().Err(err).Str("archive", *archiveName).Msg("Failed to load archive")
	}
	log.Info().Int("conversations", a.ConversationCount()).Msg("Archive loaded")

	pinger, _ := st.(store.HealthPinger)
	var ready api.Readiness
	if pinger != nil {
		checkCtx, stopChecks := context.WithCancel(ctx)
		defer stopChecks()
		storeCheck := health.NewStoreChecker(log, pinger)
		svc := health.NewService(log, storeCheck)
		go storeCheck.Start(checkCtx, 30*time.Second)
		go svc.Start(checkCtx, 30*time.Second)
		ready = svc
	}

	router, _ := api.NewRouter(a, pinger, ready)
	server := &http.Server{
		Addr:         cfg.GetHTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}

func loadOrCreate(ctx context.Context, st store.Store, name string) (*archive.Archive, error) {
	rows, err := st.Archives().List(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if r.Name == name {
			return store.LoadArchive(ctx, st, r.ID)
		}
	}
	if _, err := st.Archives().Create(ctx, name); err != nil {
		return nil, err
	}
	return archive.New(), nil
}
