package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yungbote/conceptgraph-backend/internal/budget"
	"github.com/yungbote/conceptgraph-backend/internal/clients/openai"
	"github.com/yungbote/conceptgraph-backend/internal/clients/redis"
	"github.com/yungbote/conceptgraph-backend/internal/db"
	"github.com/yungbote/conceptgraph-backend/internal/dispatch"
	"github.com/yungbote/conceptgraph-backend/internal/extraction"
	"github.com/yungbote/conceptgraph-backend/internal/gatekeeper"
	"github.com/yungbote/conceptgraph-backend/internal/graph"
	httpserver "github.com/yungbote/conceptgraph-backend/internal/http"
	httpH "github.com/yungbote/conceptgraph-backend/internal/http/handlers"
	httpMW "github.com/yungbote/conceptgraph-backend/internal/http/middleware"
	"github.com/yungbote/conceptgraph-backend/internal/mining"
	"github.com/yungbote/conceptgraph-backend/internal/observability"
	"github.com/yungbote/conceptgraph-backend/internal/ontology"
	"github.com/yungbote/conceptgraph-backend/internal/pipeline"
	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
	"github.com/yungbote/conceptgraph-backend/internal/platform/envutil"
	"github.com/yungbote/conceptgraph-backend/internal/platform/neo4jdb"
	"github.com/yungbote/conceptgraph-backend/internal/repos"
	"github.com/yungbote/conceptgraph-backend/internal/segment"
	"github.com/yungbote/conceptgraph-backend/internal/vector"
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
	jwtSecretKey := envutil.Str("JWT_SECRET_KEY", "defaultsecret")
	serverAddress := envutil.Str("SERVER_ADDRESS", ":8080")

	// Metrics
	metrics := observability.Init(log)

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

	// Repos
	log.Info("Setting up Repos from main...")
	ontologyEntryRepo := repos.NewOntologyEntryRepo(thePG, log)
	callLogRepo := repos.NewInferenceCallLogRepo(thePG, log)

	// Redis quota counters (optional, ledger degrades to local counting)
	counterStore, err := redis.NewCounterStore(log)
	if err != nil {
		log.Warn("Redis counter store unavailable, ledger will count locally", "error", err)
		counterStore = nil
	}

	// Graph store: Neo4j when configured, in-memory otherwise
	graphStore := graph.Store(graph.NewMemoryStore())
	neo4jClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Warn("Neo4j init failed, using in-memory graph store", "error", err)
	} else if neo4jClient != nil {
		store, serr := graph.NewNeo4jStore(neo4jClient, log)
		if serr != nil {
			log.Warn("Neo4j store init failed, using in-memory graph store", "error", serr)
		} else {
			graphStore = store
		}
	}

	// Vector index (optional)
	vectorStore, err := vector.NewQdrantStore(log)
	if err != nil {
		log.Warn("Qdrant init failed, semantic indexing disabled", "error", err)
		vectorStore = nil
	}

	// Inference provider
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up Services from main...")
	ledger := budget.NewLedger(log, budget.ConfigFromEnv(), counterStore)
	dispatcher := dispatch.NewDispatcher(log, openaiClient, callLogRepo, dispatch.TierConfigsFromEnv())
	dispatcher.ReportMetrics(context.Background(), metrics, envutil.Duration("DISPATCH_METRICS_INTERVAL", 10*time.Second))
	router := extraction.NewRouter(log, extraction.ThresholdsFromEnv(), ledger, dispatcher, extraction.NewHeuristicExtractor())
	segmenter := segment.NewLocalSegmenter(log)
	miner := mining.NewMiner()

	ontologyService := ontology.NewService(log, ontologyEntryRepo, thePG, graphStore)
	canonicalizer := gatekeeper.NewCanonicalizer(log, ontologyEntryRepo, thePG, graphStore, gatekeeper.NewThresholdSelector())
	persister := gatekeeper.NewPersister(log, graphStore, ontologyService).
		WithVectorIndex(vectorStore, openaiClient)
	centrality := gatekeeper.NewCentralityScorer()
	roles := gatekeeper.NewRoleClassifier(log, openaiClient)
	gk := gatekeeper.NewGatekeeper(log, centrality, roles, canonicalizer, persister)

	orchestrator := pipeline.NewOrchestrator(log, ledger, segmenter, router, miner, gk, metrics)

	// Handlers
	log.Info("Setting up handlers from main...")
	documentHandler := httpH.NewDocumentHandler(log, orchestrator)
	ontologyHandler := httpH.NewOntologyHandler(log, ontologyService)
	dispatchHandler := httpH.NewDispatchHandler(log, dispatcher)
	healthHandler := httpH.NewHealthHandler()

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware := httpMW.NewAuthMiddleware(log, jwtSecretKey)

	// Router
	log.Info("Setting up router from main...")
	server := httpserver.NewServer(httpserver.RouterConfig{
		Log:             log,
		AuthMiddleware:  authMiddleware,
		Metrics:         metrics,
		DocumentHandler: documentHandler,
		OntologyHandler: ontologyHandler,
		DispatchHandler: dispatchHandler,
		HealthHandler:   healthHandler,
	})

	log.Info("Starting server", "address", serverAddress)
	if err := server.Run(serverAddress); err != nil {
		log.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}
