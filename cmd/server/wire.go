//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"mailagent/internal/config"
	"mailagent/internal/domain/agent"
	"mailagent/internal/domain/conversation"
	"mailagent/internal/domain/llm"
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
	"mailagent/internal/infrastructure/queue"
	"mailagent/internal/infrastructure/remotetools"
	conversationrepo "mailagent/internal/infrastructure/repository/conversation"
	usagerepo "mailagent/internal/infrastructure/repository/tokenusage"
	"mailagent/internal/infrastructure/search"
	"mailagent/internal/interfaces/httpserver"
	"mailagent/internal/webhook"
)

var agentSet = wire.NewSet(
	conversationrepo.NewRepository,
	wire.Bind(new(conversation.Repository), new(*conversationrepo.Repository)),
	usagerepo.NewRepository,
	wire.Bind(new(tokenusage.Repository), new(*usagerepo.Repository)),
	newUsageService,
	newLLMClient,
	wire.Bind(new(llm.Provider), new(*llmprovider.Client)),
	newMailroomClient,
	newToolRegistry,
	newLocker,
	newObjectStore,
	newNotifier,
	wire.Bind(new(webhook.Service), new(*webhook.HTTPService)),
	newEngine,
	newAgentService,
	wire.Bind(new(agent.Service), new(*agent.ServiceImpl)),
	queue.NewPostgresQueue,
	wire.Bind(new(queue.JobQueue), new(*queue.PostgresQueue)),
	crontab.NewCrontab,
)

// BuildApplication demonstrates how to assemble the mail agent with Wire.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		newDatabaseConfig,
		newGormDB,
		newAuthValidator,
		agentSet,
		httpserver.New,
		NewApplication,
	)
	return nil, nil
}

func newDatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	}
}

func newGormDB(ctx context.Context, cfg database.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db, log); err != nil {
		return nil, err
	}
	return db, nil
}

func newAuthValidator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*auth.Validator, error) {
	return auth.NewValidator(ctx, cfg, log)
}

func newUsageService(cfg *config.Config, repo tokenusage.Repository) (*tokenusage.Service, error) {
	pricing, err := pricingFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return tokenusage.NewService(repo, pricing), nil
}

func newLLMClient(cfg *config.Config) *llmprovider.Client {
	return llmprovider.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
}

func newMailroomClient(cfg *config.Config, log zerolog.Logger) *mailroom.Client {
	return mailroom.NewClient(cfg.MailroomAPIKey, cfg.MailroomBaseURL, log)
}

func newToolRegistry(ctx context.Context, cfg *config.Config, mailroomClient *mailroom.Client, log zerolog.Logger) (*tool.Registry, error) {
	registry := tool.NewRegistry()
	if err := registry.Register(mailroom.SendEmailTool(mailroomClient)); err != nil {
		return nil, err
	}

	if cfg.SearchEnabled {
		searchClient, err := search.NewClient(search.Config{
			SerperAPIKey: cfg.SerperAPIKey,
			MaxResults:   cfg.SearchMaxResults,
			Timeout:      cfg.SearchTimeout,
			CacheSize:    cfg.SearchCacheSize,
			CacheTTL:     cfg.SearchCacheTTL,
		}, log)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(search.SearchTool(searchClient)); err != nil {
			return nil, err
		}
		if err := registry.Register(search.FetchTool(searchClient)); err != nil {
			return nil, err
		}
	}

	if cfg.RemoteToolsURL != "" {
		client := remotetools.NewClient(cfg.RemoteToolsURL, cfg.ToolTimeout, log)
		if _, err := client.RegisterAll(ctx, registry); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func newLocker(cfg *config.Config, log zerolog.Logger) (agent.Locker, error) {
	if cfg.RedisURL != "" {
		return lock.NewRedisLocker(cfg.RedisURL, cfg.ConversationLockTTL, log)
	}
	return lock.NewKeyedMutex(), nil
}

func newObjectStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*objectstore.S3Store, error) {
	return objectstore.NewS3Store(ctx, objectstore.Config{
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		Endpoint:     cfg.S3Endpoint,
		AccessKeyID:  cfg.S3AccessKeyID,
		SecretKey:    cfg.S3SecretKey,
		UsePathStyle: cfg.S3UsePathStyle,
	}, log)
}

func newNotifier(cfg *config.Config, log zerolog.Logger) *webhook.HTTPService {
	return webhook.NewHTTPService(cfg.RunWebhookURL, log)
}

func newEngine(cfg *config.Config, provider llm.Provider, registry *tool.Registry, log zerolog.Logger) *agent.Engine {
	return agent.NewEngine(provider, registry, agent.EngineConfig{
		Mode:        agent.Mode(cfg.AgentMode),
		Model:       cfg.ChatModel,
		MaxCycles:   cfg.MaxResponseCycles,
		ToolTimeout: cfg.ToolTimeout,
	}, log)
}

func newAgentService(
	cfg *config.Config,
	conversations conversation.Repository,
	engine *agent.Engine,
	locker agent.Locker,
	usage *tokenusage.Service,
	notifier webhook.Service,
	store *objectstore.S3Store,
	registry *tool.Registry,
	log zerolog.Logger,
) *agent.ServiceImpl {
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = agent.DefaultSystemPrompt(agent.Mode(cfg.AgentMode), registry.Names())
	}
	return agent.NewService(conversations, engine, locker, usage, notifier, store, systemPrompt, log)
}
