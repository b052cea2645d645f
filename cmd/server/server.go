package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	gormlogger "gorm.io/gorm/logger"

	"mailagent/internal/config"
	"mailagent/internal/domain/agent"
	"mailagent/internal/domain/tokenusage"
	"mailagent/internal/domain/tool"
	"mailagent/internal/infrastructure/auth"
	"mailagent/internal/infrastructure/crontab"
	"mailagent/internal/infrastructure/database"
	"mailagent/internal/infrastructure/llmprovider"
	"mailagent/internal/infrastructure/lock"
	"mailagent/internal/infrastructure/logger"
	"mailagent/internal/infrastructure/mailroom"
	"mailagent/internal/infrastructure/objectstore"
	"mailagent/internal/infrastructure/observability"
	"mailagent/internal/infrastructure/queue"
	"mailagent/internal/infrastructure/remotetools"
	conversationrepo "mailagent/internal/infrastructure/repository/conversation"
	usagerepo "mailagent/internal/infrastructure/repository/tokenusage"
	"mailagent/internal/infrastructure/search"
	"mailagent/internal/interfaces/httpserver"
	"mailagent/internal/webhook"
	"mailagent/internal/worker"
)

// @title Mail Agent API
// @version 1.0
// @description Webhook-driven email agent that answers conversations with model tool runs.
// @contact.name Mail Agent Team
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT access token. Format: Bearer <token>
type Application struct {
	httpServer *httpserver.HttpServer
	crontab    *crontab.Crontab
	log        zerolog.Logger
}

func NewApplication(httpServer *httpserver.HttpServer, cron *crontab.Crontab, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		crontab:    cron,
		log:        log,
	}
}

func (a *Application) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var eg errgroup.Group
	eg.Go(func() error {
		err := a.crontab.Run(runCtx)
		if err != nil {
			cancel()
		}
		return err
	})
	eg.Go(func() error {
		err := a.httpServer.Run(runCtx)
		if err != nil {
			cancel()
		}
		return err
	})
	return eg.Wait()
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	db, err := database.Connect(database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}

	if err := database.Migrate(ctx, db, log); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	authValidator, err := auth.NewValidator(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize auth validator")
	}

	conversationRepository := conversationrepo.NewRepository(db)
	usageRepository := usagerepo.NewRepository(db)

	pricing, err := pricingFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("parse model pricing")
	}
	usageService := tokenusage.NewService(usageRepository, pricing)

	llmClient := llmprovider.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	mailroomClient := mailroom.NewClient(cfg.MailroomAPIKey, cfg.MailroomBaseURL, log)

	registry := tool.NewRegistry()
	if err := registry.Register(mailroom.SendEmailTool(mailroomClient)); err != nil {
		log.Fatal().Err(err).Msg("register send email tool")
	}
	registerSearchTools(cfg, registry, log)
	registerRemoteTools(ctx, cfg, registry, log)

	var locker agent.Locker
	if cfg.RedisURL != "" {
		redisLocker, err := lock.NewRedisLocker(cfg.RedisURL, cfg.ConversationLockTTL, log)
		if err != nil {
			log.Fatal().Err(err).Msg("connect redis locker")
		}
		defer redisLocker.Close()
		locker = redisLocker
	} else {
		locker = lock.NewKeyedMutex()
	}

	store, err := objectstore.NewS3Store(ctx, objectstore.Config{
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		Endpoint:     cfg.S3Endpoint,
		AccessKeyID:  cfg.S3AccessKeyID,
		SecretKey:    cfg.S3SecretKey,
		UsePathStyle: cfg.S3UsePathStyle,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize object store")
	}

	notifier := webhook.NewHTTPService(cfg.RunWebhookURL, log)

	engine := agent.NewEngine(llmClient, registry, agent.EngineConfig{
		Mode:        agent.Mode(cfg.AgentMode),
		Model:       cfg.ChatModel,
		MaxCycles:   cfg.MaxResponseCycles,
		ToolTimeout: cfg.ToolTimeout,
	}, log)

	// The default prompt quotes the registry's tool names, so it is built
	// after every tool is registered.
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = agent.DefaultSystemPrompt(agent.Mode(cfg.AgentMode), registry.Names())
	}

	agentService := agent.NewService(
		conversationRepository,
		engine,
		locker,
		usageService,
		notifier,
		store,
		systemPrompt,
		log,
	)

	taskQueue := queue.NewPostgresQueue(db, log)
	workerPool := worker.NewPool(
		taskQueue,
		agentService,
		worker.Config{
			WorkerCount:  cfg.BackgroundWorkerCount,
			PollInterval: cfg.QueuePollInterval,
			TaskTimeout:  cfg.BackgroundTaskTimeout,
		},
		log,
	)

	workerPool.Start(ctx)
	defer func() {
		log.Info().Msg("stopping worker pool")
		workerPool.Stop()
	}()

	cron := crontab.NewCrontab(conversationRepository, taskQueue, cfg, log)
	httpServer := httpserver.New(cfg, log, agentService, usageService, taskQueue, db, store, authValidator)
	app := NewApplication(httpServer, cron, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func registerSearchTools(cfg *config.Config, registry *tool.Registry, log zerolog.Logger) {
	if !cfg.SearchEnabled {
		log.Info().Msg("web search tools disabled")
		return
	}

	searchClient, err := search.NewClient(search.Config{
		SerperAPIKey: cfg.SerperAPIKey,
		MaxResults:   cfg.SearchMaxResults,
		Timeout:      cfg.SearchTimeout,
		CacheSize:    cfg.SearchCacheSize,
		CacheTTL:     cfg.SearchCacheTTL,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize search client")
	}
	if err := registry.Register(search.SearchTool(searchClient)); err != nil {
		log.Fatal().Err(err).Msg("register search tool")
	}
	if err := registry.Register(search.FetchTool(searchClient)); err != nil {
		log.Fatal().Err(err).Msg("register fetch tool")
	}
}

func registerRemoteTools(ctx context.Context, cfg *config.Config, registry *tool.Registry, log zerolog.Logger) {
	if cfg.RemoteToolsURL == "" {
		return
	}

	client := remotetools.NewClient(cfg.RemoteToolsURL, cfg.ToolTimeout, log)
	if _, err := client.RegisterAll(ctx, registry); err != nil {
		log.Fatal().Err(err).Msg("register remote tools")
	}
}

func pricingFromConfig(cfg *config.Config) (tokenusage.Pricing, error) {
	prompt, err := decimal.NewFromString(cfg.PromptCostPerMTok)
	if err != nil {
		return tokenusage.Pricing{}, fmt.Errorf("parse PROMPT_COST_PER_MTOK: %w", err)
	}
	completion, err := decimal.NewFromString(cfg.CompletionCostPerMTok)
	if err != nil {
		return tokenusage.Pricing{}, fmt.Errorf("parse COMPLETION_COST_PER_MTOK: %w", err)
	}
	return tokenusage.Pricing{PromptPerMTok: prompt, CompletionPerMTok: completion}, nil
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
