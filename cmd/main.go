package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/scoutline/scoutline-backend/internal/clients/openai"
	"github.com/scoutline/scoutline-backend/internal/clients/tavily"
	"github.com/scoutline/scoutline-backend/internal/config"
	"github.com/scoutline/scoutline-backend/internal/db"
	"github.com/scoutline/scoutline-backend/internal/graph"
	"github.com/scoutline/scoutline-backend/internal/graph/nodes"
	"github.com/scoutline/scoutline-backend/internal/handlers"
	"github.com/scoutline/scoutline-backend/internal/logger"
	"github.com/scoutline/scoutline-backend/internal/observability"
	"github.com/scoutline/scoutline-backend/internal/server"
	"github.com/scoutline/scoutline-backend/internal/services"
	"github.com/scoutline/scoutline-backend/internal/store"
	"github.com/scoutline/scoutline-backend/internal/types"
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

	// Config
	log.Info("Loading configuration from main...")
	cfg := config.Load(log)

	// Tracing
	shutdownTracing := observability.InitTracing(context.Background(), log, observability.Config{
		ServiceName: "scoutline",
		Environment: os.Getenv("ENVIRONMENT"),
		Version:     os.Getenv("SERVICE_VERSION"),
	})
	if shutdownTracing != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(ctx)
		}()
	}

	// Storage
	log.Info("Setting up job store from main...", "backend", cfg.StoreBackend)
	jobStore, ckptStore, err := buildStores(cfg, log)
	if err != nil {
		log.Fatal("Store init failed", "backend", cfg.StoreBackend, "error", err)
	}

	// Clients
	searchClient, err := tavily.NewClient(tavily.Config{APIKey: cfg.SearchAPIKey, BaseURL: cfg.SearchBaseURL}, log)
	if err != nil {
		log.Warn("Search client disabled", "error", err)
		searchClient = nil
	}
	llmClient, err := openai.NewClient(openai.Config{APIKey: cfg.LLMAPIKey, BaseURL: cfg.LLMBaseURL, Model: cfg.LLMModel}, log)
	if err != nil {
		log.Warn("LLM client disabled", "error", err)
		llmClient = nil
	}

	// Services
	log.Info("Setting up services from main...")
	jobState := services.NewJobStateService(jobStore, log)

	researchGraph := nodes.BuildResearchGraph(nodes.Deps{Search: searchClient, LLM: llmClient})
	emitter := graph.EmitterFunc(func(ctx context.Context, jobID uuid.UUID, ev types.Event) {
		_, _ = jobState.AppendEvent(ctx, jobID, ev)
	})
	engine, err := graph.NewEngine(researchGraph, ckptStore, emitter, log, cfg.RecursionLimit)
	if err != nil {
		log.Fatal("Engine init failed", "error", err)
	}

	research := services.NewResearchService(jobState, engine, log)
	stream := services.NewStreamPublisher(jobState, log, cfg.PollInterval)

	// Handlers
	log.Info("Setting up handlers from main...")
	researchHandler := handlers.NewResearchHandler(research, jobState, stream, log)

	// Router
	router := server.NewRouter(server.RouterConfig{
		ResearchHandler: researchHandler,
		CORSOrigins:     cfg.CORSOrigins,
	})

	log.Info("Server listening", "port", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Server failed", "error", err)
	}
}

// buildStores picks the persistence backend. memory is the default and needs
// nothing; sqlite/postgres share the gorm-backed store; redis keeps jobs,
// events and checkpoints in redis structures.
func buildStores(cfg config.Config, log *logger.Logger) (store.JobStore, store.CheckpointStore, error) {
	switch cfg.StoreBackend {
	case "", "memory":
		return store.NewMemoryStore(), store.NewMemoryCheckpointStore(), nil
	case "sqlite":
		svc, err := db.NewSqliteService(cfg.SqlitePath, log)
		if err != nil {
			return nil, nil, err
		}
		if err := svc.AutoMigrateAll(); err != nil {
			return nil, nil, err
		}
		gs := store.NewGormStore(svc.DB(), log)
		return gs, store.GormCheckpointStore{Store: gs}, nil
	case "postgres":
		svc, err := db.NewPostgresService(log)
		if err != nil {
			return nil, nil, err
		}
		if err := svc.AutoMigrateAll(); err != nil {
			return nil, nil, err
		}
		gs := store.NewGormStore(svc.DB(), log)
		return gs, store.GormCheckpointStore{Store: gs}, nil
	case "redis":
		rs, err := store.NewRedisStore(log)
		if err != nil {
			return nil, nil, err
		}
		return rs, store.RedisCheckpointStore{Store: rs}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
