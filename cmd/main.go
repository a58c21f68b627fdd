package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/digvijay2003/contract-intelligence-api/internal/chunking"
	"github.com/digvijay2003/contract-intelligence-api/internal/clients/openai"
	"github.com/digvijay2003/contract-intelligence-api/internal/clients/pinecone"
	"github.com/digvijay2003/contract-intelligence-api/internal/clients/redis"
	"github.com/digvijay2003/contract-intelligence-api/internal/db"
	"github.com/digvijay2003/contract-intelligence-api/internal/handlers"
	"github.com/digvijay2003/contract-intelligence-api/internal/logger"
	"github.com/digvijay2003/contract-intelligence-api/internal/middleware"
	"github.com/digvijay2003/contract-intelligence-api/internal/observability/metrics"
	"github.com/digvijay2003/contract-intelligence-api/internal/repos"
	"github.com/digvijay2003/contract-intelligence-api/internal/resilience"
	"github.com/digvijay2003/contract-intelligence-api/internal/server"
	"github.com/digvijay2003/contract-intelligence-api/internal/services"
	"github.com/digvijay2003/contract-intelligence-api/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	chunkSize := utils.GetEnvAsInt("CHUNK_SIZE", 800, log)
	chunkOverlap := utils.GetEnvAsInt("CHUNK_OVERLAP", 100, log)
	topK := utils.GetEnvAsInt("TOP_K", 4, log)
	workerCount := utils.GetEnvAsInt("PIPELINE_WORKERS", 2, log)
	contextBudget := utils.GetEnvAsInt("EXTRACTION_CONTEXT_BUDGET", 24000, log)
	extractionTimeout := utils.GetEnvAsInt("EXTRACTION_TIMEOUT_SECONDS", 90, log)
	ruleConfigPath := utils.GetEnv("RULE_CATALOG_CONFIG", "", log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Metrics
	recorder := metrics.NewPrometheusRecorder("contract-intelligence-api")

	// Repos
	log.Info("Setting up Repos from main...")
	documentRepo := repos.NewDocumentRepo(thePG, log)
	documentChunkRepo := repos.NewDocumentChunkRepo(thePG, log)
	extractedFieldRepo := repos.NewExtractedFieldRepo(thePG, log)
	auditFindingRepo := repos.NewAuditFindingRepo(thePG, log)
	queryLogRepo := repos.NewQueryLogRepo(thePG, log)

	// Clients
	log.Info("Setting up Clients from main...")
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("Could not init OpenAI client", "error", err)
		os.Exit(1)
	}
	pineconeClient, err := pinecone.New(log, pinecone.Config{
		APIKey: utils.GetEnv("PINECONE_API_KEY", "", log),
	})
	if err != nil {
		log.Error("Could not init Pinecone client", "error", err)
		os.Exit(1)
	}
	vectorStore, err := pinecone.NewVectorStore(log, pineconeClient)
	if err != nil {
		log.Error("Could not init vector store", "error", err)
		os.Exit(1)
	}
	var counterStore services.CounterStore
	counterStore, err = redis.NewCounterStore(log)
	if err != nil {
		log.Warn("Redis unavailable, falling back to in-process rate limit counters", "error", err)
		counterStore = services.NewMemoryCounterStore()
	}

	// Services
	log.Info("Setting up Services from main...")
	executor := resilience.NewExecutor(resilience.DefaultConfig(), log)
	storageService, err := services.NewStorageService(log)
	if err != nil {
		log.Error("Could not init StorageService", "error", err)
		os.Exit(1)
	}
	chunker, err := chunking.NewChunker(chunkSize, chunkOverlap)
	if err != nil {
		log.Error("Invalid chunking parameters", "error", err)
		os.Exit(1)
	}
	extractionService := services.NewExtractionService(log, openaiClient, executor, contextBudget, time.Duration(extractionTimeout)*time.Second)

	catalog := services.DefaultCatalog()
	if ruleConfigPath != "" {
		catalogCfg, err := services.LoadCatalogConfig(ruleConfigPath)
		if err != nil {
			log.Warn("Could not load rule catalog config; using defaults", "path", ruleConfigPath, "error", err)
		} else {
			catalog.Apply(catalogCfg)
		}
	}
	auditService := services.NewAuditService(log, recorder, catalog)

	pipelineService := services.NewPipelineService(
		thePG,
		log,
		recorder,
		executor,
		storageService,
		chunker,
		openaiClient,
		vectorStore,
		extractionService,
		auditService,
		documentRepo,
		documentChunkRepo,
		extractedFieldRepo,
		auditFindingRepo,
	)
	if err = pipelineService.RecoverStranded(context.Background()); err != nil {
		log.Warn("Failed to recover stranded documents", "error", err)
	}
	pipelineService.StartWorkers(context.Background(), workerCount)

	retrievalService := services.NewRetrievalService(thePG, log, openaiClient, vectorStore, documentChunkRepo, documentRepo, topK)
	rateLimiter := services.NewRateLimiter(log, recorder, counterStore, services.DefaultLimits())

	// Handlers
	log.Info("Setting up handlers from main...")
	healthHandler := handlers.NewHealthHandler(log, thePG)
	documentHandler := handlers.NewDocumentHandler(log, pipelineService, documentRepo, documentChunkRepo, extractedFieldRepo, auditFindingRepo)
	queryHandler := handlers.NewQueryHandler(log, recorder, retrievalService, queryLogRepo)

	// Middleware
	log.Info("Setting up middleware from main...")
	metricsMiddleware := middleware.NewMetricsMiddleware(recorder)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(log, rateLimiter)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		HealthHandler:       healthHandler,
		DocumentHandler:     documentHandler,
		QueryHandler:        queryHandler,
		MetricsMiddleware:   metricsMiddleware,
		RateLimitMiddleware: rateLimitMiddleware,
		MetricsHTTPHandler:  recorder.Handler(),
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
