// Package bootstrap builds the services from configuration. Both the API
// server and the one-shot sweep command start from here.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/sjperalta/interlock-api/internal/authority"
	"github.com/sjperalta/interlock-api/internal/config"
	"github.com/sjperalta/interlock-api/internal/database"
	"github.com/sjperalta/interlock-api/internal/events"
	"github.com/sjperalta/interlock-api/internal/jobs"
	"github.com/sjperalta/interlock-api/internal/lock"
	"github.com/sjperalta/interlock-api/internal/repository"
	"github.com/sjperalta/interlock-api/internal/repository/memstore"
	"github.com/sjperalta/interlock-api/internal/services"
	"github.com/sjperalta/interlock-api/internal/storage"
	"github.com/sjperalta/interlock-api/pkg/logger"
)

// Runtime is a wired set of services plus the connections behind them
type Runtime struct {
	Services *services.Services
	Repos    *repository.Repositories
	closers  []func()
}

// Close releases connections in reverse order of opening
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// Build connects every collaborator named by cfg. worker may be nil, in
// which case side effects run inline.
func Build(ctx context.Context, cfg *config.Config, worker *jobs.Worker) (*Runtime, error) {
	rt := &Runtime{}
	fail := func(err error) (*Runtime, error) {
		rt.Close()
		return nil, err
	}

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		rt.Repos = memstore.New().Repositories()
		logger.Warn("Using in-memory record store, data is lost on exit")
	default:
		db, err := database.Connect(cfg.DatabaseURL, cfg.Environment)
		if err != nil {
			return fail(err)
		}
		if sqlDB, err := db.DB(); err == nil {
			rt.closers = append(rt.closers, func() { _ = sqlDB.Close() })
		}
		if err := database.Migrate(db); err != nil {
			return fail(err)
		}
		rt.Repos = repository.NewRepositories(db)
		logger.Info("Connected to database")
	}

	var blobs storage.BlobStore
	switch cfg.StorageDriver {
	case config.StorageDriverS3:
		s3, err := storage.NewS3Storage(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize s3 storage: %w", err))
		}
		blobs = s3
		logger.Info("Initialized S3 storage", "bucket", cfg.S3Bucket)
	default:
		local, err := storage.NewLocalStorage(cfg.StoragePath)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize storage: %w", err))
		}
		blobs = local
		logger.Info("Initialized local storage", "path", cfg.StoragePath)
	}

	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.RedisURL != "" {
		client, err := database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fail(err)
		}
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		locker = lock.NewRedisLocker(client, "interlock:lock:", 0)
		logger.Info("Using Redis locks")
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATSURL != "" {
		natsPublisher, conn, err := events.Connect(cfg.NATSURL, "interlock")
		if err != nil {
			return fail(err)
		}
		rt.closers = append(rt.closers, func() { _ = conn.Drain() })
		publisher = natsPublisher
		logger.Info("Publishing events to NATS")
	}

	var licensing authority.LicensingAuthority
	if cfg.UseMockAuthority() {
		licensing = authority.NewMock()
		logger.Warn("AUTHORITY_URL not set, license actions go to the in-process mock")
	} else {
		licensing = authority.NewHTTPClient(cfg.AuthorityURL, cfg.AuthorityTimeout)
	}

	rt.Services = services.NewServices(services.Deps{
		Repos:     rt.Repos,
		Worker:    worker,
		Blobs:     blobs,
		Authority: licensing,
		Locker:    locker,
		Events:    publisher,
		Config:    cfg,
	})
	return rt, nil
}
