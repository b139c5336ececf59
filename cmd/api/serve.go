package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"deepdive/api/internal/app"
	"deepdive/api/internal/auth"
	"deepdive/api/internal/authpw"
	"deepdive/api/internal/blobstore"
	"deepdive/api/internal/catalog"
	"deepdive/api/internal/config"
	"deepdive/api/internal/content"
	"deepdive/api/internal/progress"
	"deepdive/api/internal/registry"
	"deepdive/api/internal/search"
	"deepdive/api/internal/session"
	"deepdive/api/internal/store"
	"deepdive/api/internal/theme"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func serve(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Load()
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	gate, err := authpw.NewGate(cfg.ViewerPasswordHash, cfg.AdminPasswordHash)
	if err != nil {
		return fmt.Errorf("password gate: %w", err)
	}

	st, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStorage()

	var meili *search.Meili
	var engine search.Engine
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log.Logger)
		defer meili.Close()
		engine = meili
	}
	searchService := search.NewService(engine, search.NewFallback(cat, st.contentLog), cat, log.With().Str("component", "search").Logger())

	resolver := newResolver(cfg, st, content.WithIndexer(searchService))

	if meili != nil && meili.Healthy() {
		go searchService.Reindex(context.WithoutCancel(ctx), st.contentLog)
	}

	checks := []app.ReadyCheck{
		{Name: "database", Ping: st.contentLog.Ping},
		{Name: "redis", Ping: func(ctx context.Context) error { return st.redis.Ping(ctx).Err() }},
	}
	if p, ok := st.backend.(pinger); ok {
		checks = append(checks, app.ReadyCheck{Name: "blobs", Ping: p.Ping})
	}

	service := app.New(app.Deps{
		Resolver:    resolver,
		Blobs:       st.blobs,
		History:     st.contentLog,
		Themes:      theme.NewService(st.configLog, log.With().Str("component", "theme").Logger()),
		Catalog:     cat,
		Progress:    progress.NewService(progress.NewRedisStore(st.redis), cat, log.With().Str("component", "progress").Logger()),
		Search:      searchService,
		Gate:        gate,
		Signer:      auth.NewSigner(cfg.TokenSecret, cfg.AccessTTL),
		Revocations: session.NewRevocations(st.redis),
		Checks:      checks,
		Logger:      log.Logger,
	})

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, log.With().Str("component", "http").Logger())
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("blob_backend", cfg.BlobBackend).Msg("deepdive API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// storage holds the connections and stores shared by serve and seed.
type storage struct {
	conn       *sql.DB
	redis      *redis.Client
	backend    blobstore.Backend
	contentLog *store.ContentLog
	configLog  *store.ConfigLog
	blobs      *blobstore.Store
	versions   *registry.Registry
}

func openStorage(ctx context.Context, cfg config.Config) (*storage, func(), error) {
	conn, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	if _, err := migrate(ctx, conn, cfg); err != nil {
		conn.Close()
		return nil, nil, err
	}

	redisClient, err := session.Connect(ctx, cfg.RedisURL)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("redis connection failed: %w", err)
	}

	backend, closeBackend, err := openBlobBackend(ctx, cfg)
	if err != nil {
		redisClient.Close()
		conn.Close()
		return nil, nil, err
	}

	configLog := store.NewConfigLog(conn)
	st := &storage{
		conn:       conn,
		redis:      redisClient,
		backend:    backend,
		contentLog: store.NewContentLog(conn),
		configLog:  configLog,
		blobs: blobstore.NewStore(backend,
			blobstore.WithChunkSize(cfg.ChunkSize),
			blobstore.WithLogger(log.With().Str("component", "blobstore").Logger()),
		),
		versions: registry.New(configLog, log.With().Str("component", "registry").Logger()),
	}
	return st, func() {
		closeBackend()
		redisClient.Close()
		conn.Close()
	}, nil
}

func newResolver(cfg config.Config, st *storage, opts ...content.Option) *content.Resolver {
	var backup content.BackupTier
	if cfg.BackupEnabled {
		backup = session.NewBackupStore(st.redis, cfg.BackupTTL)
	} else {
		log.Info().Msg("session backup tier disabled")
	}

	opts = append([]content.Option{content.WithLogger(log.With().Str("component", "resolver").Logger())}, opts...)
	if cfg.TopicLocks {
		opts = append(opts, content.WithTopicLocks())
	}
	return content.NewResolver(
		content.NewCache(cfg.MemoryCacheTTL, time.Now),
		st.blobs,
		backup,
		st.contentLog,
		st.versions,
		opts...,
	)
}

func openBlobBackend(ctx context.Context, cfg config.Config) (blobstore.Backend, func(), error) {
	switch cfg.BlobBackend {
	case "badger":
		backend, err := blobstore.OpenBadger(cfg.BadgerPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open badger: %w", err)
		}
		return backend, func() {
			if err := backend.Close(); err != nil {
				log.Warn().Err(err).Msg("close badger")
			}
		}, nil
	default:
		backend, err := blobstore.NewMinioBackend(ctx, blobstore.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect to minio: %w", err)
		}
		return backend, func() {}, nil
	}
}
