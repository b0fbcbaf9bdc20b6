package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"classroom-backend/internal/diarize"
	"classroom-backend/internal/lessons"
	"classroom-backend/internal/notify"
	"classroom-backend/internal/pipeline"
	"classroom-backend/internal/prompts"
	"classroom-backend/internal/provider"
	"classroom-backend/internal/provider/deepgram"
	"classroom-backend/internal/provider/gemini"
	"classroom-backend/internal/provider/openai"
	"classroom-backend/internal/queue"
	"classroom-backend/internal/routing"
	"classroom-backend/internal/shared/config"
	"classroom-backend/internal/shared/server"
	"classroom-backend/internal/shared/storage/db"
	"classroom-backend/internal/shared/storage/object"
	localstore "classroom-backend/internal/shared/storage/object/local"
	s3store "classroom-backend/internal/shared/storage/object/s3"
)

// App holds the shared dependency graph for both the API and the worker.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Queue  queue.Client

	Registry     *provider.Registry
	RoutingStore *routing.ConfigStore
	LLMRouter    *routing.LLMRouter
	STTRouter    *routing.STTRouter

	LessonsRepo    lessons.Repo
	PromptsRepo    prompts.Repo
	LessonsService *lessons.Service
	PromptsService *prompts.Service
	Pipeline       lessons.PipelineRunner
	Diarizer       *diarize.Engine
	Notifier       notify.Notifier

	LessonHandler *lessons.Handler
	PromptHandler *prompts.Handler
}

// Build prepares shared dependencies and wires the HTTP router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	routingStore := routing.NewConfigStore(registry)
	routingStore.Load(cfg.RoutingConfig)
	if err := routingStore.Watch(cfg.RoutingConfig); err != nil {
		log.Printf("bootstrap: routing config watch disabled: %v", err)
	}

	app := &App{
		Config:       cfg,
		DB:           sqlDB,
		Store:        store,
		Queue:        queueClient,
		Registry:     registry,
		RoutingStore: routingStore,
		LLMRouter:    routing.NewLLMRouter(routingStore, registry, cfg.ProviderTimeout),
		STTRouter:    routing.NewSTTRouter(routingStore, registry, cfg.ProviderTimeout),
	}

	buildServices(app)

	app.Router = server.NewRouter(server.RouterDeps{
		LessonHandler: app.LessonHandler,
		PromptHandler: app.PromptHandler,
	})

	return app, nil
}

// Close tears down background work and connections.
func (a *App) Close() {
	if a.RoutingStore != nil {
		a.RoutingStore.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx)
}

func buildRegistry(cfg config.Config) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	if cfg.OpenAIAPIKey != "" {
		llm, err := openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			return nil, err
		}
		if err := registry.RegisterLLM(llm); err != nil {
			return nil, err
		}
		whisper, err := openai.NewWhisper(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, err
		}
		if err := registry.RegisterSTT(whisper); err != nil {
			return nil, err
		}
	}
	if cfg.GeminiAPIKey != "" {
		llm, err := gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		if err := registry.RegisterLLM(llm); err != nil {
			return nil, err
		}
	}
	if cfg.DeepgramAPIKey != "" {
		stt, err := deepgram.NewClient(cfg.DeepgramAPIKey)
		if err != nil {
			return nil, err
		}
		if err := registry.RegisterSTT(stt); err != nil {
			return nil, err
		}
	}

	if len(registry.LLMIDs()) == 0 {
		log.Printf("bootstrap: no LLM providers configured; analysis calls will fail")
	}
	return registry, nil
}

func buildServices(app *App) {
	if app.DB != nil {
		app.LessonsRepo = &lessons.PGRepo{DB: app.DB}
		app.PromptsRepo = &prompts.PGRepo{DB: app.DB}
	} else {
		app.LessonsRepo = lessons.NewMemoryRepo()
		app.PromptsRepo = prompts.NewMemoryRepo()
	}

	app.PromptsService = prompts.NewService(app.PromptsRepo)
	app.Pipeline = pipeline.NewOrchestrator(app.LessonsRepo, app.PromptsService, app.LLMRouter, app.Store)
	app.Diarizer = diarize.NewEngine(app.LLMRouter)

	app.LessonsService = &lessons.Service{
		Repo:     app.LessonsRepo,
		JobQueue: app.Queue,
		Runner:   app.Pipeline,
		Diarizer: app.Diarizer,
		Store:    app.Store,
	}
	if len(app.Registry.STTIDs()) > 0 {
		app.LessonsService.STT = app.STTRouter
	}

	if url := strings.TrimSpace(os.Getenv("NOTIFY_WEBHOOK_URL")); url != "" {
		app.Notifier = notify.NewWebhookNotifier(url)
	}

	app.LessonHandler = lessons.NewHandler(app.LessonsService)
	app.PromptHandler = prompts.NewHandler(app.PromptsService)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
