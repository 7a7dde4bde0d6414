package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pa-decision-orchestrator/internal/api"
	"github.com/pa-decision-orchestrator/internal/config"
	"github.com/pa-decision-orchestrator/internal/domain"
	"github.com/pa-decision-orchestrator/internal/evidence"
	"github.com/pa-decision-orchestrator/internal/memory"
	"github.com/pa-decision-orchestrator/internal/orchestrator"
	"github.com/pa-decision-orchestrator/internal/repository"
	"github.com/pa-decision-orchestrator/internal/service"
	"github.com/pa-decision-orchestrator/internal/synthesis"
	"github.com/pa-decision-orchestrator/internal/tasks"
	"github.com/pa-decision-orchestrator/pkg/external"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := newLogger(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
	}).Info("Starting PA decision orchestrator")

	// External clients.
	drugbank := external.NewDrugBankClient(cfg.DrugBank, logger)
	var fetcher service.MonographFetcher = drugbank
	var redisCache *external.CacheClient
	if cfg.Cache.Enabled {
		redisCache, err = external.NewCacheClient(cfg.Cache, logger)
		if err != nil {
			logger.WithError(err).Warn("Redis cache unavailable; continuing without shared cache")
		} else {
			fetcher = external.NewCachedFetcher(drugbank, redisCache, logger)
			defer redisCache.Close()
		}
	}

	// Document collection.
	var embedder memory.Embedder
	if cfg.Synthesis.GeminiAPIKey != "" && !cfg.Synthesis.UseMock {
		embedder, err = memory.NewGenAIEmbedder(context.Background(), cfg.Synthesis.GeminiAPIKey, "")
		if err != nil {
			logger.WithError(err).Warn("Embedding backend unavailable; using deterministic embedder")
			embedder = nil
		}
	}
	var store *memory.SQLiteStore
	if cfg.Memory.DBPath != "" {
		store, err = memory.NewSQLiteStore(cfg.Memory.DBPath)
		if err != nil {
			log.Fatalf("Failed to open document store: %v", err)
		}
	}
	collection, err := memory.NewCollection(logger, embedder, store, cfg.Memory.RecencyWeight)
	if err != nil {
		log.Fatalf("Failed to initialize document collection: %v", err)
	}
	defer collection.Close()

	// Specialist services.
	patients, err := service.NewPatientService(logger, cfg.Data.PatientFile, cfg.Data.MaskingEnabled)
	if err != nil {
		log.Fatalf("Failed to initialize patient service: %v", err)
	}
	policies, err := service.NewPolicyService(logger, cfg.Data.PolicyFile)
	if err != nil {
		log.Fatalf("Failed to initialize policy service: %v", err)
	}
	if redisCache != nil {
		policies.SetRemoteCache(redisCache)
	}
	drugs, err := service.NewDrugService(logger, cfg.Data.DrugCSVFile, fetcher, memory.NewMonographSink(collection))
	if err != nil {
		log.Fatalf("Failed to initialize drug service: %v", err)
	}
	guidelines := service.NewGuidelineService(logger)

	// Synthesis pipeline.
	primary, fallback := buildModels(context.Background(), cfg.Synthesis, logger)
	pipeline := synthesis.NewPipeline(logger, primary, fallback)

	// Optional decision persistence.
	var decisionStore repository.DecisionStore
	if cfg.Database.Enabled {
		dsn := configManager.GetDatabaseConnectionString()
		pg, err := repository.NewPostgresDecisionStoreFromURL(dsn)
		if err != nil {
			logger.WithError(err).Warn("Decision repository unavailable; continuing without persistence")
		} else {
			if runner, err := repository.NewMigrationRunner(pg.DB(), logger); err != nil {
				logger.WithError(err).Warn("Could not prepare migrations")
			} else {
				if err := runner.Up(); err != nil {
					logger.WithError(err).Warn("Migrations failed")
				}
				runner.Close()
			}
			decisionStore = pg
			defer pg.Close()
		}
	}

	orch := orchestrator.NewOrchestrator(logger, cfg.Orchestrator, orchestrator.Deps{
		Patients:   patients,
		Policies:   policies,
		Drugs:      drugs,
		Guidelines: guidelines,
		Engine:     evidence.NewEngine(logger),
		Pipeline:   pipeline,
		Collection: collection,
		Store:      decisionStore,
	})

	registry := tasks.NewRegistry(logger, cfg.Orchestrator.AgentID, cfg.Orchestrator.IncludeTracebacks, orch, tasks.Services{
		Patients: patients,
		Policies: policies,
		Drugs:    drugs,
	})

	server := api.NewServer(logger, *cfg, registry, orch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.WithField("signal", sig.String()).Info("Shutdown signal received")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	logger.Info("Server stopped")
}

func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	if cfg.Output != "" && cfg.Output != "stdout" {
		if f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			logger.SetOutput(f)
		}
	}
	return logger
}

// buildModels constructs the primary and fallback synthesis models. The mock
// path keeps the full pipeline exercisable without provider credentials.
func buildModels(ctx context.Context, cfg domain.SynthesisConfig, logger *logrus.Logger) (synthesis.Model, synthesis.Model) {
	if cfg.UseMock || cfg.GeminiAPIKey == "" {
		logger.Info("Synthesis running with mock models")
		return &synthesis.MockModel{ModelName: cfg.PrimaryModel}, &synthesis.MockModel{ModelName: cfg.FallbackModel}
	}

	primary, err := synthesis.NewGenAIModel(ctx, cfg.GeminiAPIKey, cfg.PrimaryModel)
	if err != nil {
		logger.WithError(err).Warn("Primary model unavailable; using mock")
		return &synthesis.MockModel{ModelName: cfg.PrimaryModel}, &synthesis.MockModel{ModelName: cfg.FallbackModel}
	}
	fallback, err := synthesis.NewGenAIModel(ctx, cfg.GeminiAPIKey, cfg.FallbackModel)
	if err != nil {
		logger.WithError(err).Warn("Fallback model unavailable")
		return synthesis.NewBreakerModel(primary, logger), nil
	}
	return synthesis.NewBreakerModel(primary, logger), synthesis.NewBreakerModel(fallback, logger)
}
