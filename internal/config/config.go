// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Search        SearchConfig        `mapstructure:"search"`
	History       HistoryConfig       `mapstructure:"history"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Chat          ChatConfig          `mapstructure:"chat"`
	Prompt        PromptConfig        `mapstructure:"prompt"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置，仅对话归档使用。
type MySQLConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 存储 JWT 相关的配置。
type AuthConfig struct {
	Enabled                bool   `mapstructure:"enabled"`
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 连接配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	APIKey    string `mapstructure:"api_key"`
}

// SearchConfig 存储酒店检索相关的配置。
type SearchConfig struct {
	Backend               string `mapstructure:"backend"` // elasticsearch | bleve
	IndexName             string `mapstructure:"index_name"`
	TextField             string `mapstructure:"text_field"`
	VectorField           string `mapstructure:"vector_field"`
	EmbeddingModelID      string `mapstructure:"embedding_model_id"`
	SemanticConfiguration string `mapstructure:"semantic_configuration"`
	TopK                  int    `mapstructure:"top_k"`
	NumCandidates         int    `mapstructure:"num_candidates"`
	SeedFile              string `mapstructure:"seed_file"`
	WatchSeed             bool   `mapstructure:"watch_seed"`
}

// HistoryConfig 存储会话历史持久化的配置。
type HistoryConfig struct {
	Backend        string        `mapstructure:"backend"` // redis | elasticsearch | memory
	CollectionName string        `mapstructure:"collection_name"`
	TTL            time.Duration `mapstructure:"ttl"`
	TargetCount    int           `mapstructure:"target_count"`
	ThresholdCount int           `mapstructure:"threshold_count"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig 存储大语言模型相关的配置。
// APIVersion 非空时按 Azure OpenAI 的部署路径调用。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	APIVersion string              `mapstructure:"api_version"`
	Timeout    time.Duration       `mapstructure:"timeout"`
	Models     LLMModelsConfig     `mapstructure:"models"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMModelsConfig 为不同调用点指定模型（或 Azure 部署名）。
type LLMModelsConfig struct {
	Rewrite string `mapstructure:"rewrite"`
	Vision  string `mapstructure:"vision"`
	Answer  string `mapstructure:"answer"`
}

// LLMGenerationConfig 配置生成相关参数。
type LLMGenerationConfig struct {
	Temperature      float64 `mapstructure:"temperature"`
	TopP             float64 `mapstructure:"top_p"`
	RewriteMaxTokens int     `mapstructure:"rewrite_max_tokens"`
	AnswerMaxTokens  int     `mapstructure:"answer_max_tokens"`
}

// ChatConfig 配置编排流程本身。
type ChatConfig struct {
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	StreamTimeout   time.Duration `mapstructure:"stream_timeout"`
	MaxToolRounds   int           `mapstructure:"max_tool_rounds"`
	ToolsEnabled    bool          `mapstructure:"tools_enabled"`
	RelayBuffer     int           `mapstructure:"relay_buffer"`
	DistributedLock bool          `mapstructure:"distributed_lock"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	MaxImageBytes   int64         `mapstructure:"max_image_bytes"`
}

// turnCallSteps 是一轮中受 CallTimeout 约束的调用数：加载历史、保存图片、改写、检索、保存历史。
const turnCallSteps = 5

// MaxTurnDuration 返回一轮在超时约束下的最长耗时，任一超时未配置时返回 0（无上限）。
func (c ChatConfig) MaxTurnDuration() time.Duration {
	if c.CallTimeout <= 0 || c.StreamTimeout <= 0 {
		return 0
	}
	return turnCallSteps*c.CallTimeout + c.StreamTimeout
}

// PromptConfig 配置各个系统提示，可通过环境变量覆盖。
type PromptConfig struct {
	HistorySystemMessage string `mapstructure:"history_system_message"`
	StandaloneQuestion   string `mapstructure:"standalone_question"`
	ImageQuestion        string `mapstructure:"image_question"`
	ChatWithContext      string `mapstructure:"chat_with_context"`
}

// envAliases 兼容部署环境里已有的变量名。
var envAliases = map[string][]string{
	"llm.base_url":                  {"LLM_BASE_URL", "AZURE_OPENAI_ENDPOINT"},
	"llm.api_key":                   {"LLM_API_KEY", "AZURE_OPENAI_API_KEY"},
	"llm.api_version":               {"LLM_API_VERSION", "OPENAI_API_VERSION"},
	"elasticsearch.addresses":       {"ELASTICSEARCH_ADDRESSES", "AZURE_AI_SEARCH_ENDPOINT"},
	"search.index_name":             {"SEARCH_INDEX_NAME", "INDEX_NAME"},
	"search.semantic_configuration": {"SEARCH_SEMANTIC_CONFIGURATION", "SEMANTIC_CONFIGURATION_NAME"},
	"prompt.standalone_question":    {"PROMPT_STANDALONE_QUESTION", "STANDALONE_QUESTION_SYSTEM_MESSAGE"},
	"prompt.chat_with_context":      {"PROMPT_CHAT_WITH_CONTEXT", "CHAT_WITH_CONTEXT_SYSTEM_MESSAGE"},
	"prompt.history_system_message": {"PROMPT_HISTORY_SYSTEM_MESSAGE", "HISTORY_SYSTEM_MESSAGE"},
}

// Load 从指定路径读取 YAML 配置（路径为空时只使用默认值与环境变量）并解析为 Config。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查互相依赖的配置项。
func (c *Config) Validate() error {
	switch c.Search.Backend {
	case "elasticsearch", "bleve":
	default:
		return fmt.Errorf("search.backend 不支持: %q", c.Search.Backend)
	}
	switch c.History.Backend {
	case "redis", "elasticsearch", "memory":
	default:
		return fmt.Errorf("history.backend 不支持: %q", c.History.Backend)
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		return errors.New("auth.enabled 需要配置 auth.secret")
	}
	if c.Chat.MaxToolRounds <= 0 {
		return errors.New("chat.max_tool_rounds 必须大于 0")
	}
	if c.Chat.DistributedLock {
		// 锁在轮次结束前过期会让同一会话的两个轮次并发执行
		maxTurn := c.Chat.MaxTurnDuration()
		if maxTurn == 0 {
			return errors.New("chat.distributed_lock 需要同时配置 chat.call_timeout 和 chat.stream_timeout")
		}
		if c.Chat.LockTTL < maxTurn {
			return fmt.Errorf("chat.lock_ttl (%s) 小于一轮的最长耗时 %s", c.Chat.LockTTL, maxTurn)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")

	// 开关类的键也需要默认值，AutomaticEnv 只对已知的键生效
	v.SetDefault("database.mysql.enabled", false)
	v.SetDefault("database.mysql.dsn", "")
	v.SetDefault("database.redis.addr", "localhost:6379")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.access_token_expire_hours", 24)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.api_key", "")
	v.SetDefault("search.embedding_model_id", "")
	v.SetDefault("search.semantic_configuration", "")
	v.SetDefault("search.seed_file", "")
	v.SetDefault("search.watch_seed", false)
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.dimensions", 0)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.api_version", "")
	v.SetDefault("chat.distributed_lock", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "")

	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "chat-turns")
	v.SetDefault("kafka.group_id", "hotel-rag-archiver")

	v.SetDefault("elasticsearch.addresses", "http://localhost:9200")

	v.SetDefault("search.backend", "elasticsearch")
	v.SetDefault("search.index_name", "hotels")
	v.SetDefault("search.text_field", "chunk")
	v.SetDefault("search.vector_field", "text_vector")
	v.SetDefault("search.top_k", 10)
	v.SetDefault("search.num_candidates", 50)

	v.SetDefault("history.backend", "redis")
	v.SetDefault("history.collection_name", "chat-history")
	v.SetDefault("history.ttl", 7*24*time.Hour)
	v.SetDefault("history.target_count", 30)
	v.SetDefault("history.threshold_count", 30)

	v.SetDefault("minio.bucket_name", "chat-images")

	v.SetDefault("embedding.model", "text-embedding-3-small")

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.timeout", 5*time.Minute)
	v.SetDefault("llm.models.rewrite", "gpt-4o-mini")
	v.SetDefault("llm.models.vision", "gpt-4o")
	v.SetDefault("llm.models.answer", "gpt-4o")
	v.SetDefault("llm.generation.temperature", 0.7)
	v.SetDefault("llm.generation.top_p", 0.95)
	v.SetDefault("llm.generation.rewrite_max_tokens", 800)
	v.SetDefault("llm.generation.answer_max_tokens", 1000)

	v.SetDefault("chat.call_timeout", 30*time.Second)
	v.SetDefault("chat.stream_timeout", 3*time.Minute)
	v.SetDefault("chat.max_tool_rounds", 5)
	v.SetDefault("chat.tools_enabled", true)
	v.SetDefault("chat.relay_buffer", 64)
	v.SetDefault("chat.lock_ttl", 10*time.Minute)
	v.SetDefault("chat.max_image_bytes", 10<<20)

	v.SetDefault("prompt.history_system_message", DefaultHistorySystemMessage)
	v.SetDefault("prompt.standalone_question", DefaultStandaloneQuestion)
	v.SetDefault("prompt.image_question", DefaultImageQuestion)
	v.SetDefault("prompt.chat_with_context", DefaultChatWithContext)
}
