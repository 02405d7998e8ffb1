// Command boardd runs the board upload service: it accepts files from draft
// sessions, serves them back, counts references from posts and sweeps uploads
// nobody kept.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rbaliyan/board"
	"github.com/rbaliyan/board/uploads"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:           "boardd",
		Short:         "Board upload service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ./boardd.yaml or /etc/board/boardd.yaml)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	addServeFlags(serve.Flags())

	var olderThan time.Duration
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Delete unreferenced uploads once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			if olderThan > 0 {
				cfg.Uploads.SweepAge = olderThan
			}
			return runSweep(cmd.Context(), cfg)
		},
	}
	addServeFlags(sweep.Flags())
	sweep.Flags().DurationVar(&olderThan, "older-than", 0, "grace period before an unreferenced upload is deleted")

	root.AddCommand(serve, sweep)
	return root
}

func newLogger(cfg *Config) *slog.Logger {
	level, _ := parseLevel(cfg.LogLevel)
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// service is a connected manager with the resources it owns.
type service struct {
	manager *uploads.Manager
	tel     *telemetry
	closers []closer
}

func openService(ctx context.Context, cfg *Config, logger *slog.Logger) (*service, error) {
	tel, err := setupTelemetry(cfg.Metrics)
	if err != nil {
		return nil, err
	}
	closers := []closer{tel.shutdown}

	files, fileClosers, err := openFileStore(ctx, cfg.Files, tel.provider, logger)
	if err != nil {
		closeAll(ctx, closers)
		return nil, fmt.Errorf("open file store: %w", err)
	}
	closers = append(closers, fileClosers...)

	records, recordClosers, err := openRecordStore(ctx, cfg.Records, logger)
	if err != nil {
		closeAll(ctx, closers)
		return nil, fmt.Errorf("open record store: %w", err)
	}
	closers = append(closers, recordClosers...)

	opts := []uploads.Option{
		uploads.WithLogger(logger),
		uploads.WithLimits(limitsFromConfig(cfg.Uploads)),
		uploads.WithPublicPrefix(cfg.Uploads.PublicPrefix),
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func(context.Context) error { return rdb.Close() })
		opts = append(opts, uploads.WithRedisClient(rdb))
	}

	m, err := uploads.NewManager(files, records, opts...)
	if err != nil {
		closeAll(ctx, closers)
		return nil, err
	}
	if err := m.Connect(ctx); err != nil {
		closeAll(ctx, closers)
		return nil, fmt.Errorf("connect upload manager: %w", err)
	}
	return &service{manager: m, tel: tel, closers: closers}, nil
}

func (s *service) Close(ctx context.Context) error {
	err := s.manager.Close(ctx)
	return errors.Join(err, closeAll(ctx, s.closers))
}

func limitsFromConfig(cfg UploadsConfig) board.Limits {
	l := board.Limits{MaxFileSize: cfg.MaxFileSize, MaxFiles: cfg.MaxFiles}
	for _, k := range cfg.AllowedKinds {
		l.AllowedKinds = append(l.AllowedKinds, board.MediaKind(k))
	}
	return l
}

func newRouter(svc *service, cfg *Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if svc.tel.handler != nil {
		r.Handle(cfg.Metrics.Path, svc.tel.handler)
	}
	svc.manager.RegisterHTTP(r)
	return r
}

func runServe(ctx context.Context, cfg *Config) error {
	logger := newLogger(cfg)
	svc, err := openService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := svc.Close(cctx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	if cfg.Uploads.SweepInterval > 0 {
		go sweepLoop(ctx, svc.manager, cfg.Uploads.SweepInterval, cfg.Uploads.SweepAge, logger)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newRouter(svc, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("upload service listening", "addr", cfg.Listen)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

func sweepLoop(ctx context.Context, m *uploads.Manager, every, olderThan time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := m.Sweep(ctx, olderThan)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("sweep failed", "error", err)
				continue
			}
			if res != nil && res.Failed > 0 {
				logger.Warn("some uploads could not be swept", "failed", res.Failed)
			}
		}
	}
}

func runSweep(ctx context.Context, cfg *Config) error {
	logger := newLogger(cfg)
	svc, err := openService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close(context.WithoutCancel(ctx))

	res, err := svc.manager.Sweep(ctx, cfg.Uploads.SweepAge)
	if err != nil {
		return err
	}
	logger.Info("sweep finished", "deleted", res.Deleted, "skipped", res.Skipped, "failed", res.Failed)
	return nil
}
