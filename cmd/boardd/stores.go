package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rbaliyan/board/store"
	"github.com/rbaliyan/board/store/cached"
	"github.com/rbaliyan/board/store/gcs"
	"github.com/rbaliyan/board/store/local"
	"github.com/rbaliyan/board/store/memory"
	mongostore "github.com/rbaliyan/board/store/mongo"
	otelstore "github.com/rbaliyan/board/store/otel"
	"github.com/rbaliyan/board/store/postgres"
	"github.com/rbaliyan/board/store/s3"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.opentelemetry.io/otel/metric"
)

// closer releases a resource opened at startup.
type closer func(ctx context.Context) error

func closeAll(ctx context.Context, closers []closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openFileStore builds the configured backend, optionally behind a disk cache,
// and wraps it with instrumentation.
func openFileStore(ctx context.Context, cfg FilesConfig, mp metric.MeterProvider, logger *slog.Logger) (store.FileStore, []closer, error) {
	var (
		backend store.FileStore
		closers []closer
	)

	switch cfg.Backend {
	case "local":
		st, err := local.New(cfg.Local.Dir, local.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		backend = st
		closers = append(closers, func(context.Context) error { return st.Close() })

	case "s3":
		opts := []s3.Option{
			s3.WithBucket(cfg.S3.Bucket),
			s3.WithPrefix(cfg.S3.Prefix),
			s3.WithLogger(logger),
		}
		if cfg.S3.Region != "" {
			opts = append(opts, s3.WithRegion(cfg.S3.Region))
		}
		if cfg.S3.Endpoint != "" {
			opts = append(opts, s3.WithEndpoint(cfg.S3.Endpoint, cfg.S3.PathStyle))
		}
		if cfg.S3.AccessKeyID != "" {
			opts = append(opts, s3.WithStaticCredentials(cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, ""))
		}
		if cfg.S3.RoleARN != "" {
			opts = append(opts, s3.WithAssumeRole(cfg.S3.RoleARN, cfg.S3.ExternalID))
		}
		st, err := s3.New(ctx, opts...)
		if err != nil {
			return nil, nil, err
		}
		backend = st

	case "gcs":
		opts := []gcs.Option{
			gcs.WithBucket(cfg.GCS.Bucket),
			gcs.WithPrefix(cfg.GCS.Prefix),
			gcs.WithLogger(logger),
		}
		if cfg.GCS.Endpoint != "" {
			opts = append(opts, gcs.WithEndpoint(cfg.GCS.Endpoint))
		}
		if cfg.GCS.CredentialsFile != "" {
			opts = append(opts, gcs.WithCredentialsFile(cfg.GCS.CredentialsFile))
		}
		st, err := gcs.New(ctx, opts...)
		if err != nil {
			return nil, nil, err
		}
		backend = st
		closers = append(closers, func(context.Context) error { return st.Close() })

	default:
		return nil, nil, fmt.Errorf("unknown file store %q", cfg.Backend)
	}

	if cfg.Cache.Enabled {
		c, err := cached.New(backend,
			cached.WithDir(cfg.Cache.Dir),
			cached.WithMaxSize(cfg.Cache.MaxSize),
			cached.WithTTL(cfg.Cache.TTL),
			cached.WithLogger(logger),
		)
		if err != nil {
			closeAll(ctx, closers)
			return nil, nil, fmt.Errorf("file cache: %w", err)
		}
		backend = c
		closers = append(closers, func(context.Context) error { return c.Close() })
	}

	instrumented, err := otelstore.New(backend, otelstore.WithMeterProvider(mp))
	if err != nil {
		closeAll(ctx, closers)
		return nil, nil, fmt.Errorf("instrument file store: %w", err)
	}
	logger.Info("file store ready", "backend", cfg.Backend, "cache", cfg.Cache.Enabled)
	return instrumented, closers, nil
}

// openRecordStore builds the configured record store. The manager connects it.
func openRecordStore(ctx context.Context, cfg RecordsConfig, logger *slog.Logger) (store.RecordStore, []closer, error) {
	switch cfg.Backend {
	case "memory":
		logger.Warn("using in-memory record store; uploads are forgotten on restart")
		return memory.NewRecords(), nil, nil

	case "postgres":
		st, err := postgres.Open(cfg.Postgres.DSN,
			postgres.WithTable(cfg.Postgres.Table),
			postgres.WithLogger(logger),
		)
		if err != nil {
			return nil, nil, err
		}
		return st, []closer{func(context.Context) error { return st.DB().Close() }}, nil

	case "mongo":
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		st := mongostore.New(client,
			mongostore.WithDatabase(cfg.Mongo.Database),
			mongostore.WithCollection(cfg.Mongo.Collection),
			mongostore.WithLogger(logger),
		)
		return st, []closer{client.Disconnect}, nil

	default:
		return nil, nil, fmt.Errorf("unknown record store %q", cfg.Backend)
	}
}
