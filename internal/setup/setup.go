// Package setup bootstraps the application: configuration, logging, storage,
// models, and the inference services, in dependency order.
package setup

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/rueidis"
	"github.com/unibazzar/ai-service/internal/database"
	"github.com/unibazzar/ai-service/internal/database/migrations"
	"github.com/unibazzar/ai-service/internal/database/types"
	"github.com/unibazzar/ai-service/internal/embed"
	"github.com/unibazzar/ai-service/internal/jobs"
	"github.com/unibazzar/ai-service/internal/model"
	"github.com/unibazzar/ai-service/internal/moderation"
	"github.com/unibazzar/ai-service/internal/recommend"
	"github.com/unibazzar/ai-service/internal/redis"
	"github.com/unibazzar/ai-service/internal/setup/config"
	"github.com/unibazzar/ai-service/internal/setup/telemetry"
	"github.com/unibazzar/ai-service/internal/vector"
	"github.com/unibazzar/ai-service/internal/worker/training"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// DefaultVectorDimension is used before any encoder artifact exists.
const DefaultVectorDimension = 128

// Index rebuild at startup streams embeddings in pages of this size.
const indexLoadBatchSize = 500

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config       *config.Config       // Application configuration
	Logger       *zap.Logger          // Main application logger
	DBLogger     *zap.Logger          // Database-specific logger
	DB           database.Client      // Database connection pool
	RedisManager *redis.Manager       // Redis connection manager
	StatusClient rueidis.Client       // Redis client for worker status reporting
	LogManager   *telemetry.Manager   // Log management system
	Models       *model.Manager       // Live model snapshots
	Index        *vector.Index        // In-memory listing vector index
	Tracker      *jobs.Tracker        // Training job state
	Runner       *jobs.Runner         // Asynchronous training executor
	Embed        *embed.Service       // Semantic search service
	Recommend    *recommend.Service   // Hybrid recommendation service
	Moderation   *moderation.Service  // Content moderation service
	Reembedder   *training.Reembedder // Re-embedding pipeline
	Retrainer    *training.Retrainer  // Collaborative retraining pipeline
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context, serviceType telemetry.ServiceType, logDir, workerType string) (*App, error) {
	// Load app configuration
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging system is initialized next to capture setup issues
	logManager := telemetry.NewManager(serviceType, logDir, &cfg.Common.Debug, workerType)

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		return nil, err
	}

	// Redis manager provides connection pools for the various subsystems
	redisManager := redis.NewManager(&cfg.Common.Redis, logger)

	// Initialize database with migration check
	db, err := checkAndRunMigrations(ctx, &cfg.Common.PostgreSQL, dbLogger)
	if err != nil {
		return nil, err
	}

	// Model artifacts may not exist before the first training run; the
	// process starts anyway and reports not-ready until they do.
	modelManager := model.NewManager(&cfg.Common.Models, logger)
	if err := modelManager.Load(); err != nil {
		logger.Warn("Starting without model artifacts", zap.Error(err))
	}

	// Rebuild the in-memory index from the stored embeddings
	index, err := buildIndex(ctx, db, modelManager, logger)
	if err != nil {
		return nil, err
	}

	// Training job state and locks live in their own Redis database
	jobsClient, err := redisManager.GetClient(redis.JobsDBIndex)
	if err != nil {
		return nil, err
	}

	tracker := jobs.NewTracker(jobsClient, logger)
	runner := jobs.NewRunner(tracker, jobsClient, logger)

	cacheClient, err := redisManager.GetClient(redis.CacheDBIndex)
	if err != nil {
		return nil, err
	}

	statsClient, err := redisManager.GetClient(redis.StatsDBIndex)
	if err != nil {
		return nil, err
	}

	statusClient, err := redisManager.GetClient(redis.WorkerStatusDBIndex)
	if err != nil {
		return nil, err
	}

	repo := db.Model()

	reembedder := training.NewReembedder(
		repo.Embedding(), modelManager, index, &cfg.Common.Models,
		cfg.Worker.BatchSizes.ReembedListings, logger)
	retrainer := training.NewRetrainer(
		repo.Interaction(), repo.Profile(), modelManager,
		&cfg.Common.Recommendation, &cfg.Common.Models,
		cfg.Worker.BatchSizes.TrainingInteractions, logger)

	embedService := embed.NewService(
		modelManager, repo.Embedding(), index, runner, tracker,
		cacheClient, reembedder.Run, logger)
	recommendService := recommend.NewService(
		modelManager, repo.Profile(), repo.Interaction(), index, runner, tracker,
		cfg.Common.Recommendation.CollaborativeWeight,
		cfg.Common.Recommendation.ProfileDecay,
		retrainer.Run, logger)

	statsCollector := moderation.NewStatsCollector(repo.Moderation(), statsClient, logger)
	moderationService := moderation.NewService(
		modelManager, &cfg.Common.Moderation, repo.Moderation(), statsCollector, logger)

	// Bundle all initialized components
	return &App{
		Config:       cfg,
		Logger:       logger,
		DBLogger:     dbLogger,
		DB:           db,
		RedisManager: redisManager,
		StatusClient: statusClient,
		LogManager:   logManager,
		Models:       modelManager,
		Index:        index,
		Tracker:      tracker,
		Runner:       runner,
		Embed:        embedService,
		Recommend:    recommendService,
		Moderation:   moderationService,
		Reembedder:   reembedder,
		Retrainer:    retrainer,
	}, nil
}

// Ready reports whether the process can serve inference traffic: models
// installed and the database reachable.
func (s *App) Ready(ctx context.Context) bool {
	return s.Models.Loaded() && s.DB.Ping(ctx) == nil
}

// Cleanup ensures graceful shutdown of all components in reverse
// initialization order. Logs but does not fail on cleanup errors to ensure
// all components get cleanup attempts.
func (s *App) Cleanup(_ context.Context) {
	// Flush the moderation audit queue before storage goes away
	s.Moderation.Close()

	s.Models.Cleanup()

	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	// Close database connections
	if err := s.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	// Close Redis connections last as other components might need them during cleanup
	s.RedisManager.Close()
}

// checkAndRunMigrations applies any pending database migrations.
func checkAndRunMigrations(ctx context.Context, cfg *config.PostgreSQL, dbLogger *zap.Logger) (database.Client, error) {
	db, err := database.NewConnection(cfg, dbLogger)
	if err != nil {
		return nil, err
	}

	migrator := migrate.NewMigrator(db.DB(), migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init migrations: %w", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if !group.IsZero() {
		dbLogger.Info("Applied database migrations", zap.String("group", group.String()))
	}

	return db, nil
}

// buildIndex loads every stored embedding into a fresh in-memory index.
// Vectors from older encoder generations are indexed as-is; the next
// re-embedding pass replaces them.
func buildIndex(
	ctx context.Context, db database.Client, models *model.Manager, logger *zap.Logger,
) (*vector.Index, error) {
	dimension := DefaultVectorDimension
	if encoder, err := models.Encoder(); err == nil {
		dimension = encoder.Dimension
	}

	index := vector.NewIndex(dimension)

	var (
		after   int64
		indexed int
		skipped int
	)

	for {
		page, err := db.Model().Embedding().GetAll(ctx, after, indexLoadBatchSize)
		if err != nil {
			return nil, err
		}

		if len(page) == 0 {
			break
		}

		for _, listing := range page {
			err := index.Upsert(vector.Entry{
				ListingID: listing.ListingID,
				CampusID:  listing.CampusID,
				OwnerID:   listing.OwnerID,
				Vector:    listing.Vector,
				Metadata: types.EmbeddingMetadata{
					Title:       listing.Title,
					Description: listing.Description,
					CampusID:    listing.CampusID,
					OwnerID:     listing.OwnerID,
					Price:       listing.Price,
					CreatedAt:   listing.CreatedAt,
				},
			})
			if err != nil {
				skipped++
				continue
			}

			indexed++
		}

		after = page[len(page)-1].ListingID
	}

	logger.Info("Rebuilt vector index",
		zap.Int("dimension", dimension),
		zap.Int("indexed", indexed),
		zap.Int("skipped", skipped))

	return index, nil
}
