package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/trucost-labs/trucost-engine/pkg/audit"
	"github.com/trucost-labs/trucost-engine/pkg/config"
	"github.com/trucost-labs/trucost-engine/pkg/database"
	"github.com/trucost-labs/trucost-engine/pkg/handlers"
	"github.com/trucost-labs/trucost-engine/pkg/logging"
	"github.com/trucost-labs/trucost-engine/pkg/middleware"
	"github.com/trucost-labs/trucost-engine/pkg/repositories"
	"github.com/trucost-labs/trucost-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	connStr := cfg.Database.ConnectionString()
	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("database", logging.SanitizeConnectionString(connStr)),
		zap.String("schema_prefix", cfg.Partitions.SchemaPrefix),
	)

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database",
			zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	// golang-migrate drives the central schema through database/sql; the
	// per-account schemas are managed at runtime by the partitioner.
	migrateDB, err := sql.Open("pgx", connStr)
	if err != nil {
		logger.Fatal("Failed to open migration connection",
			zap.String("error", logging.SanitizeError(err)))
	}
	if err := database.RunMigrations(migrateDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations",
			zap.String("error", logging.SanitizeError(err)))
	}
	_ = migrateDB.Close()

	accountRepo := repositories.NewAccountRepository(db)
	tagRepo := repositories.NewResourceTagRepository(db)
	recRepo := repositories.NewRecommendationRepository()

	trail := audit.NewTrail(logger)
	partitioner := services.NewTenantPartitioner(db, accountRepo, cfg.Partitions.SchemaPrefix, logger)
	accountService := services.NewAccountService(accountRepo, trail, logger)
	tagService := services.NewTagService(tagRepo, trail, logger)
	recService := services.NewRecommendationService(partitioner, recRepo, trail, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewAccountHandler(accountService, logger).RegisterRoutes(mux)
	handlers.NewTagHandler(tagService, logger).RegisterRoutes(mux)
	handlers.NewRecommendationHandler(recService, logger).RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting trucost-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version),
	)
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
