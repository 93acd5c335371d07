package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Redis        RedisConfig
	SQLite       SQLiteConfig
	Vector       VectorConfig
	Embedding    EmbeddingConfig
	Search       SearchConfig
	Context      ContextConfig
	Recommend    RecommendConfig
	Conversation ConversationConfig
	Market       MarketConfig
	Logging      LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type SQLiteConfig struct {
	Path string
}

type VectorConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
	IndexType      string
}

type EmbeddingConfig struct {
	APIKey     string
	Model      string
	Dimensions int
	Normalize  bool
	TimeoutSec int
	CacheTTL   time.Duration
}

type SearchConfig struct {
	SimilarityThreshold float64
	MaxResults          int
	SearchType          string
	MMRDiversity        float64
	CacheTTL            time.Duration
}

type ContextConfig struct {
	ChunkSize        int
	SourceTimeoutSec int
	CacheTTL         time.Duration
}

type RecommendConfig struct {
	InterestWeight   float64
	ExperienceWeight float64
	PopularityWeight float64
	FreshnessWeight  float64
	EngagementWeight float64
	MinScore         float64
	EngagementDays   int
	CacheTTL         time.Duration
}

type ConversationConfig struct {
	ContextWindow int
	SummaryLength int
	CacheTTL      time.Duration
}

type MarketConfig struct {
	QuoteEndpoint string
	NewsLimit     int
	TimeoutSec    int
	CacheTTL      time.Duration
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/investx")

	viper.SetEnvPrefix("INVESTX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate enforces cross-field invariants that viper cannot express.
func (c *Config) Validate() error {
	sum := c.Recommend.InterestWeight +
		c.Recommend.ExperienceWeight +
		c.Recommend.PopularityWeight +
		c.Recommend.FreshnessWeight +
		c.Recommend.EngagementWeight
	if diff := sum - 1.0; diff > 1e-9 || diff < -1e-9 {
		return fmt.Errorf("recommendation weights must sum to 1.0, got %v", sum)
	}

	if c.Search.SimilarityThreshold < 0 || c.Search.SimilarityThreshold > 1 {
		return fmt.Errorf("search similarity threshold must be in [0,1], got %v", c.Search.SimilarityThreshold)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("sqlite.path", "./data/investx.db")

	viper.SetDefault("vector.endpoint", "localhost:19530")
	viper.SetDefault("vector.collectionName", "educational_content")
	viper.SetDefault("vector.vectorDim", 384)
	viper.SetDefault("vector.indexType", "IVF_FLAT")

	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dimensions", 384)
	viper.SetDefault("embedding.normalize", true)
	viper.SetDefault("embedding.timeoutSec", 15)
	viper.SetDefault("embedding.cacheTTL", 24*time.Hour)

	viper.SetDefault("search.similarityThreshold", 0.7)
	viper.SetDefault("search.maxResults", 5)
	viper.SetDefault("search.searchType", "similarity")
	viper.SetDefault("search.mmrDiversity", 0.3)
	viper.SetDefault("search.cacheTTL", time.Hour)

	viper.SetDefault("context.chunkSize", 1000)
	viper.SetDefault("context.sourceTimeoutSec", 10)
	viper.SetDefault("context.cacheTTL", 30*time.Minute)

	viper.SetDefault("recommend.interestWeight", 0.30)
	viper.SetDefault("recommend.experienceWeight", 0.25)
	viper.SetDefault("recommend.popularityWeight", 0.20)
	viper.SetDefault("recommend.freshnessWeight", 0.15)
	viper.SetDefault("recommend.engagementWeight", 0.10)
	viper.SetDefault("recommend.minScore", 0.3)
	viper.SetDefault("recommend.engagementDays", 30)
	viper.SetDefault("recommend.cacheTTL", time.Hour)

	viper.SetDefault("conversation.contextWindow", 10)
	viper.SetDefault("conversation.summaryLength", 200)
	viper.SetDefault("conversation.cacheTTL", time.Hour)

	viper.SetDefault("market.quoteEndpoint", "")
	viper.SetDefault("market.newsLimit", 10)
	viper.SetDefault("market.timeoutSec", 10)
	viper.SetDefault("market.cacheTTL", time.Hour)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
