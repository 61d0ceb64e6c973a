package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/incentive-engine/api"
	"github.com/warp/incentive-engine/approval"
	"github.com/warp/incentive-engine/config"
	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/logger"
	"github.com/warp/incentive-engine/metrics"
	"github.com/warp/incentive-engine/scheduler"
	"github.com/warp/incentive-engine/service"
	"github.com/warp/incentive-engine/store/rediscache"
	"github.com/warp/incentive-engine/store/sqlite"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const shutdownTimeout = 30 * time.Second

// overrides holds flag values that win over the loaded configuration.
type overrides struct {
	addr   string
	dbPath string
}

func (o overrides) apply(cfg *config.Config) {
	if o.addr != "" {
		cfg.Addr = o.addr
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
}

func newRootCmd() *cobra.Command {
	var o overrides

	root := &cobra.Command{
		Use:           "server",
		Short:         "Sales incentive engine",
		Long:          "Calculates sales incentives and routes them through multi-level approval",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), o)
		},
	}
	root.PersistentFlags().StringVar(&o.addr, "addr", "", "HTTP listen address (overrides addr)")
	root.PersistentFlags().StringVar(&o.dbPath, "db", "", "SQLite database path (overrides db_path)")

	root.AddCommand(serveCmd(&o), migrateCmd(&o), versionCmd())
	return root
}

func serveCmd(o *overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *o)
		},
	}
}

func migrateCmd(o *overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd.Context(), *o)
			if err != nil {
				return err
			}
			store, err := openStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()
			log.Info(cmd.Context(), "schema up to date", logger.String("db_path", cfg.DBPath))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "incentive-engine %s (commit %s, built %s)\n", version, commit, date)
			if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
				fmt.Fprintln(cmd.OutOrStdout(), bi.Main.Path, bi.GoVersion)
			}
		},
	}
}

// setup loads configuration and builds the process logger.
func setup(ctx context.Context, o overrides) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	return cfg, logger.New(logger.WithLevel(level)), nil
}

func openStore(dbPath string) (*sqlite.Store, error) {
	if !strings.Contains(dbPath, ":memory:") {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
	}
	return sqlite.New(dbPath)
}

func serve(ctx context.Context, o overrides) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := setup(ctx, o)
	if err != nil {
		return err
	}

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	var directory incentive.Directory = store
	if cfg.RedisAddr != "" {
		client, err := rediscache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		defer client.Close()
		directory = rediscache.New(store, client,
			rediscache.WithTTL(cfg.RedisTTL()),
			rediscache.WithLogger(log.Named("cache")))
		log.Info(ctx, "department cache enabled", logger.String("redis_addr", cfg.RedisAddr))
	}

	ac, err := cfg.Approval()
	if err != nil {
		return err
	}
	wf, err := approval.NewWorkflow(ac, directory, approval.WithLogger(log.Named("approval")))
	if err != nil {
		return err
	}

	m := metrics.NewManager()
	svc := service.New(directory, store, wf,
		service.WithLogger(log.Named("service")),
		service.WithRecorder(m),
		service.WithEventSink(incentive.MultiSink{service.LogSink(log.Named("events")), m}))

	h := api.NewHandler(svc, log.Named("api"))
	h.Currency = cfg.Currency

	if cfg.SweepEnabled {
		sweeper := scheduler.NewSweeper(svc,
			scheduler.WithInterval(cfg.SweepInterval()),
			scheduler.WithLogger(log.Named("sweeper")))
		sweeper.Start()
		defer sweeper.Stop()
		h.Sweeper = sweeper
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.NewRouter(h, api.WithMetrics(m, m.Handler())),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "server starting",
			logger.String("addr", cfg.Addr),
			logger.String("db_path", cfg.DBPath),
			logger.Any("sweep_enabled", cfg.SweepEnabled))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	case <-ctx.Done():
	}

	log.Info(ctx, "shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info(ctx, "server stopped")
	return nil
}
