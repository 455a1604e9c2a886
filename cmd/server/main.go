/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the project controls server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Resolve configuration (defaults, config file, .env, PCE_* env, flags)
  2. Build the zerolog logger
  3. Initialize SQLite store
  4. Create report aggregator and cached collections
  5. Start the cache warmer
  6. Configure HTTP router and start server

COMMAND-LINE FLAGS:
  --config   Optional config file (YAML/JSON/TOML)
  --port     HTTP server port (default: 8080)
  --db       SQLite database path (default: ./data/project-controls.db)
             Use ":memory:" for in-memory database
  --log-level, --pretty

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests (server.shutdown_timeout)
  3. Stop the cache warmer
  4. Close database connection

EXAMPLES:
  ./server --db=":memory:" --pretty
  PCE_SERVER_PORT=3000 PCE_CACHE_TTL=30s ./server

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/warp/project-controls/api"
	"github.com/warp/project-controls/cache"
	"github.com/warp/project-controls/config"
	"github.com/warp/project-controls/report"
	"github.com/warp/project-controls/store/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var configFile string

	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Project controls API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "config file path")
	flags.Int("port", 8080, "HTTP server port")
	flags.String("db", "./data/project-controls.db", "SQLite database path")
	flags.String("log-level", "info", "log level")
	flags.Bool("pretty", false, "human readable logs")

	v.BindPFlag("server.port", flags.Lookup("port"))
	v.BindPFlag("db.path", flags.Lookup("db"))
	v.BindPFlag("log.level", flags.Lookup("log-level"))
	v.BindPFlag("log.pretty", flags.Lookup("pretty"))

	return cmd
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Log)

	// Initialize store
	if cfg.DB.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.Path), 0o755); err != nil {
			logger.Error().Err(err).Str("path", cfg.DB.Path).Msg("failed to create database directory")
			return err
		}
	}
	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.DB.Path).Msg("failed to initialize database")
		return err
	}
	defer store.Close()

	// Domain services
	reports := report.NewAggregator(store, report.WithLogger(logger))
	stores := cache.NewStores(store,
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithLogger(logger.With().Str("component", "cache").Logger()),
	)

	warmer := cache.NewWarmer(stores.All(), logger.With().Str("component", "warmer").Logger())
	warmer.Interval = cfg.Cache.WarmInterval
	warmer.Enabled = cfg.Cache.WarmInterval > 0
	warmer.Start()
	defer warmer.Stop()

	handler := api.NewHandler(store, reports, stores)
	router := api.NewRouter(handler, api.RouterOptions{
		Logger:         logger,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("db", cfg.DB.Path).
			Dur("cache_ttl", cfg.Cache.TTL).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErr:
		logger.Error().Err(err).Msg("server failed")
		return err
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
