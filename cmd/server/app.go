package main

import (
	"context"
	"errors"
	"fmt"

	"hotel-rag-go/internal/config"
	"hotel-rag-go/internal/model"
	"hotel-rag-go/internal/pipeline"
	"hotel-rag-go/internal/repository"
	"hotel-rag-go/internal/service"
	"hotel-rag-go/pkg/database"
	"hotel-rag-go/pkg/embedding"
	"hotel-rag-go/pkg/es"
	"hotel-rag-go/pkg/kafka"
	"hotel-rag-go/pkg/llm"
	"hotel-rag-go/pkg/lock"
	"hotel-rag-go/pkg/log"
	"hotel-rag-go/pkg/metrics"
	"hotel-rag-go/pkg/storage"
	"hotel-rag-go/pkg/token"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// app 持有按配置初始化的全部组件。
type app struct {
	cfg *config.Config

	rdb      *redis.Client
	db       *gorm.DB
	esClient *elasticsearch.Client
	producer *kafka.Producer
	minio    *storage.MinIOImageStore

	metrics       *metrics.Metrics
	jwt           *token.JWTManager
	retriever     service.Retriever
	history       *service.HistoryService
	conversations repository.ConversationRepository
	chat          service.ChatService

	closers []func()
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp 初始化数据库、检索、模型客户端并组装 ChatService。
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg

	needRedis := cfg.History.Backend == "redis" || cfg.Chat.DistributedLock
	if needRedis {
		rdb, err := database.NewRedis(ctx, cfg.Database.Redis)
		if err != nil {
			return err
		}
		a.rdb = rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })
	}

	if cfg.Database.MySQL.Enabled {
		db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
		if err != nil {
			return err
		}
		if err := db.AutoMigrate(&model.Conversation{}); err != nil {
			return fmt.Errorf("迁移 conversations 表失败: %w", err)
		}
		a.db = db
		a.conversations = repository.NewConversationRepository(db)
	}

	if cfg.Search.Backend == "elasticsearch" || cfg.History.Backend == "elasticsearch" {
		client, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			return fmt.Errorf("初始化 Elasticsearch 客户端失败: %w", err)
		}
		a.esClient = client
	}

	if cfg.Auth.Enabled {
		a.jwt = token.NewJWTManager(cfg.Auth.Secret, cfg.Auth.AccessTokenExpireHours)
	}

	var embedder embedding.Client
	if cfg.Embedding.APIKey != "" {
		embedder = embedding.NewClient(cfg.Embedding)
	}
	retriever, err := newRetriever(ctx, cfg, a.esClient, embedder)
	if err != nil {
		return err
	}
	a.retriever = retriever

	historyRepo, err := a.newHistoryRepository()
	if err != nil {
		return err
	}
	if err := historyRepo.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("初始化会话历史存储失败: %w", err)
	}
	a.history = service.NewHistoryService(historyRepo, cfg.Prompt.HistorySystemMessage, cfg.History.TargetCount, cfg.History.ThresholdCount)

	deps := service.ChatDeps{
		Retriever: retriever,
		History:   a.history,
		Images:    storage.InlineImageStore{},
		Metrics:   a.metrics,
	}
	if cfg.MinIO.Enabled {
		store, err := storage.NewMinIOImageStore(ctx, cfg.MinIO)
		if err != nil {
			return err
		}
		a.minio = store
		deps.Images = store
	}
	if cfg.Kafka.Enabled {
		a.producer = kafka.NewProducer(cfg.Kafka)
		a.closers = append(a.closers, func() { _ = a.producer.Close() })
		deps.Publisher = a.producer
	}
	if cfg.Chat.DistributedLock {
		deps.Locker = lock.NewRedisLocker(a.rdb, cfg.Chat.LockTTL)
	}

	llmClient := llm.NewClient(cfg.LLM)
	deps.Rewriter = service.NewRewriter(llmClient, service.RewriterConfig{
		Model:          cfg.LLM.Models.Rewrite,
		VisionModel:    cfg.LLM.Models.Vision,
		Directive:      cfg.Prompt.StandaloneQuestion,
		ImageDirective: cfg.Prompt.ImageQuestion,
		Params:         llm.DefaultParams(cfg.LLM.Generation, cfg.LLM.Generation.RewriteMaxTokens),
	})

	var tools *service.ToolRegistry
	if cfg.Chat.ToolsEnabled {
		tools, err = service.NewToolRegistry(service.HotelSearchTool(retriever, cfg.Search.TopK))
		if err != nil {
			return err
		}
	}
	deps.Responder = service.NewResponder(llmClient, tools, service.ResponderConfig{
		Model:         cfg.LLM.Models.Answer,
		Directive:     cfg.Prompt.ChatWithContext,
		Params:        llm.DefaultParams(cfg.LLM.Generation, cfg.LLM.Generation.AnswerMaxTokens),
		MaxToolRounds: cfg.Chat.MaxToolRounds,
		Buffer:        cfg.Chat.RelayBuffer,
	}, a.metrics)

	a.chat = service.NewChatService(deps, service.ChatOptions{
		CallTimeout:           cfg.Chat.CallTimeout,
		StreamTimeout:         cfg.Chat.StreamTimeout,
		TopK:                  cfg.Search.TopK,
		SemanticConfiguration: cfg.Search.SemanticConfiguration,
	})
	return nil
}

func newRetriever(ctx context.Context, cfg *config.Config, client *elasticsearch.Client, embedder embedding.Client) (service.Retriever, error) {
	if cfg.Search.Backend == "bleve" {
		if cfg.Search.SeedFile == "" {
			return nil, errors.New("search.backend=bleve 需要配置 search.seed_file")
		}
		build := func(ctx context.Context) (service.Retriever, error) {
			raws, err := service.LoadSeedFile(cfg.Search.SeedFile)
			if err != nil {
				return nil, err
			}
			return service.NewLocalSearchService(ctx, raws, embedder, cfg.Search.TopK)
		}
		local, err := build(ctx)
		if err != nil || !cfg.Search.WatchSeed {
			return local, err
		}
		reloadable := service.NewReloadableRetriever(local)
		if err := service.WatchSeedFile(ctx, cfg.Search.SeedFile, reloadable, build); err != nil {
			return nil, err
		}
		return reloadable, nil
	}
	return service.NewSearchService(client, embedder, cfg.Search), nil
}

func (a *app) newHistoryRepository() (repository.HistoryRepository, error) {
	switch a.cfg.History.Backend {
	case "redis":
		return repository.NewRedisHistoryRepository(a.rdb, a.cfg.History.TTL), nil
	case "elasticsearch":
		return repository.NewESHistoryRepository(a.esClient, a.cfg.History.CollectionName), nil
	case "memory":
		log.Warnf("会话历史仅保存在内存中，重启后丢失")
		return repository.NewMemoryHistoryRepository(), nil
	}
	return nil, fmt.Errorf("history.backend 不支持: %q", a.cfg.History.Backend)
}

// newConsumer 创建归档消费者，需要 MySQL 和 Redis。
func (a *app) newConsumer(ctx context.Context) (*kafka.Consumer, error) {
	if a.conversations == nil {
		return nil, errors.New("归档需要启用 database.mysql")
	}
	if a.rdb == nil {
		rdb, err := database.NewRedis(ctx, a.cfg.Database.Redis)
		if err != nil {
			return nil, err
		}
		a.rdb = rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })
	}
	return kafka.NewConsumer(a.cfg.Kafka, kafka.RedisAttempts{RDB: a.rdb}, pipeline.NewArchiver(a.conversations)), nil
}
