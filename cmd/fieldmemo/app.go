package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dharsanguruparan/fieldmemo/internal/ai"
	"github.com/dharsanguruparan/fieldmemo/internal/config"
	"github.com/dharsanguruparan/fieldmemo/internal/database"
	"github.com/dharsanguruparan/fieldmemo/internal/logger"
	"github.com/dharsanguruparan/fieldmemo/internal/pipeline"
	"github.com/dharsanguruparan/fieldmemo/internal/repository"
	"github.com/dharsanguruparan/fieldmemo/internal/s3storage"
	"github.com/dharsanguruparan/fieldmemo/internal/signing"
	"github.com/dharsanguruparan/fieldmemo/internal/storage"
)

// app holds the dependencies shared by the api, worker and process commands.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	store    *repository.Store
	blobs    storage.BlobStore
	media    *storage.MemoryStore
	signer   *signing.Signer
	pipeline *pipeline.Pipeline
}

func loadConfig() (*config.Config, error) {
	opts := []config.Option{config.WithEnvFile(envFile)}
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openDatabase connects and makes sure the schema exists.
func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

func newApp(ctx context.Context, service string) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.Log, service)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, db: db, store: repository.NewStore(db)}

	if cfg.S3.Enabled() {
		s3, err := s3storage.New(cfg)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init storage: %w", err)
		}
		if err := s3.EnsureBuckets(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ensure buckets: %w", err)
		}
		a.blobs = s3
	} else {
		a.signer = signing.NewSigner([]byte(cfg.SigningSecret))
		a.media = storage.NewMemoryStore(a.signer, cfg.PublicURL, cfg.SignedURLTTL)
		a.blobs = a.media
		log.Warn("no S3 endpoint configured, captures are kept in memory")
	}

	client, err := ai.NewOpenAI(cfg.OpenAI)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init openai: %w", err)
	}
	a.pipeline = pipeline.New(a.store, a.blobs, client, client,
		pipeline.WithLogger(log),
		pipeline.WithBuckets(pipeline.Buckets{
			VoiceMemos:       cfg.Buckets.VoiceMemos,
			InspectionPhotos: cfg.Buckets.InspectionPhotos,
		}),
	)
	return a, nil
}

var errSharedStoreRequired = errors.New("a shared blob store is required; set FIELDMEMO_S3_ENDPOINT")

func (a *app) Close() error {
	return a.db.Close()
}
