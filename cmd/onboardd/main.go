// Package main provides the onboarding server entry point.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm/logger"

	"github.com/pouncehq/onboard/internal/config"
	"github.com/pouncehq/onboard/internal/extract"
	"github.com/pouncehq/onboard/internal/server"
	"github.com/pouncehq/onboard/internal/session"
	"github.com/pouncehq/onboard/internal/store"
	"github.com/pouncehq/onboard/internal/store/postgres"
	"github.com/pouncehq/onboard/internal/store/sqlite"
	"github.com/pouncehq/onboard/internal/watcher"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	envFile := flag.String("env-file", ".env", "Env file to load before reading configuration")
	debug := flag.Bool("debug", false, "Enable debug logging")
	pretty := flag.Bool("pretty", false, "Human-readable log output")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("file", *envFile).Msg("Failed to load env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	setupLogging(cfg, *debug, *pretty)

	st, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("Failed to open store")
	}
	defer st.Close()

	providerCfg, err := extract.LoadConfig(cfg.ProvidersConfig)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.ProvidersConfig).Msg("Failed to load provider config")
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	candidates, err := providerCfg.Candidates(httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build provider roster")
	}
	caller := extract.NewCaller(candidates, providerCfg.CallerOptions())

	engine := session.NewEngine(st, caller, extract.NewWindow(cfg.HistoryTokenBudget))
	svc := server.NewService(cfg, engine, Version)

	startProviderWatcher(cfg.ProvidersConfig, caller, httpClient)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(svc.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return svc.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
}

func setupLogging(cfg *config.Config, debug, pretty bool) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		gormLevel := logger.Silent
		if cfg.LogLevel == "debug" || cfg.LogLevel == "trace" {
			gormLevel = logger.Info
		}
		return postgres.Open(postgres.Config{DSN: cfg.DatabaseURL, LogLevel: gormLevel})
	default:
		return sqlite.Open(sqlite.Config{Path: cfg.SQLitePath, MaxConns: cfg.MaxConns})
	}
}

// startProviderWatcher hot-reloads the provider roster when the YAML file
// changes. A broken edit keeps the previous roster.
func startProviderWatcher(path string, caller *extract.Caller, httpClient *http.Client) {
	w, err := watcher.New(path, func() {
		cfg, err := extract.LoadConfig(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("Provider config reload failed, keeping current roster")
			return
		}
		candidates, err := cfg.Candidates(httpClient)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("Provider roster rebuild failed, keeping current roster")
			return
		}
		caller.Reload(candidates)
		log.Info().Int("providers", len(cfg.Providers)).Msg("Provider roster reloaded")
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create provider config watcher")
		return
	}
	if err := w.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start provider config watcher")
		return
	}
	log.Info().Str("path", path).Msg("Provider config watcher started")
}
