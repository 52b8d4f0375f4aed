package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/database/sqlstore"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
	"github.com/kozaktomas/face-attendance/internal/imagestore"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// defaultEmbeddingURL is used when EMBEDDING_URL is not set.
const defaultEmbeddingURL = "http://localhost:8000"

// app holds the wired services shared by the commands.
type app struct {
	cfg         *config.Config
	repo        database.Repository
	store       *enrollment.Store
	ledger      *attendance.Ledger
	enrollments *enrollment.Service
	attendance  *attendance.Service
	metrics     *metrics.Metrics
	redis       *redis.Client
}

// openRepository connects to the configured storage backend.
func openRepository(ctx context.Context, cfg *config.Config) (database.Repository, error) {
	switch strings.ToLower(cfg.Storage.Backend) {
	case "", config.BackendSQLite:
		fmt.Fprintf(os.Stderr, "Using SQLite backend (%s)\n", cfg.Storage.SQLitePath)
		return sqlstore.OpenSQLite(ctx, cfg.Storage.SQLitePath)
	case config.BackendPostgres:
		if cfg.Database.URL == "" {
			return nil, errors.New("DATABASE_URL environment variable is required for the postgres backend")
		}
		fmt.Fprintf(os.Stderr, "Connecting to PostgreSQL database...\n")
		return postgres.Open(ctx, &cfg.Database)
	case config.BackendMySQL:
		if cfg.Database.MySQLDSN == "" {
			return nil, errors.New("MYSQL_DSN environment variable is required for the mysql backend")
		}
		fmt.Fprintf(os.Stderr, "Connecting to MySQL database...\n")
		return sqlstore.OpenMySQL(ctx, &cfg.Database)
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q (expected sqlite, postgres or mysql)", cfg.Storage.Backend)
	}
}

// newExtractor builds the embedding client guarded by a circuit breaker.
func newExtractor(cfg *config.Config) embedding.Extractor {
	url := cfg.Embedding.URL
	if url == "" {
		url = defaultEmbeddingURL
	}
	client := embedding.NewClient(url,
		embedding.WithMinConfidence(cfg.Matching.DetectionConfidence),
		embedding.WithMaxAttempts(cfg.Matching.MaxRetryAttempts),
	)
	return embedding.NewBreakerExtractor(client, embedding.DefaultBreakerConfig())
}

// openApp wires storage, the enrollment store, the ledger and both services.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, repo: repo, metrics: metrics.New()}

	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context) error {
	cfg := a.cfg

	var storeOpts []enrollment.Option
	if cfg.Matching.HNSWEnabled {
		storeOpts = append(storeOpts, enrollment.WithHNSW(cfg.Matching.HNSWIndexPath))
	}
	store, err := enrollment.Open(ctx, a.repo, cfg.Matching.EmbeddingDim, storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to load enrollments: %w", err)
	}
	a.store = store
	fmt.Fprintf(os.Stderr, "Loaded %d enrollments (dimension %d)\n", store.Len(), store.Dim())

	ledgerOpts := []attendance.LedgerOption{
		attendance.WithCooldown(cfg.Attendance.Cooldown),
		attendance.WithLocation(cfg.Attendance.Location()),
	}
	if cfg.Redis.URL != "" {
		client, err := attendance.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.redis = client
		ledgerOpts = append(ledgerOpts, attendance.WithTracker(attendance.NewRedisCooldown(client, cfg.Attendance.Cooldown)))
		fmt.Fprintf(os.Stderr, "Sharing attendance cooldown through Redis\n")
	}
	ledger, err := attendance.OpenLedger(ctx, a.repo, ledgerOpts...)
	if err != nil {
		return fmt.Errorf("failed to load attendance events: %w", err)
	}
	a.ledger = ledger

	validator, err := enrollment.NewFieldValidator(cfg.Validation)
	if err != nil {
		return fmt.Errorf("invalid validation config: %w", err)
	}
	images, err := imagestore.New(cfg.Storage.FacesDir, imagestore.DefaultMaxImageSize)
	if err != nil {
		return fmt.Errorf("failed to prepare faces directory: %w", err)
	}
	extractor := newExtractor(cfg)

	a.enrollments = enrollment.NewService(store,
		enrollment.WithValidator(validator),
		enrollment.WithExtractor(extractor),
		enrollment.WithImages(images),
		enrollment.WithMetrics(a.metrics),
	)
	a.attendance = attendance.NewService(store, ledger, cfg.Matching.Threshold,
		attendance.WithExtractor(extractor),
		attendance.WithMetrics(a.metrics),
	)
	return nil
}

// Close saves the HNSW graph and releases connections.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.SaveIndex(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to save HNSW index: %v\n", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close Redis client: %v\n", err)
		}
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}
}
