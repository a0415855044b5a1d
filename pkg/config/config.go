package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Profile   ProfileConfig
	Plot      PlotConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	LLM       LLMConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type StorageConfig struct {
	DatasetDir string
	ProfileDir string
	PlotDir    string
}

type ProfileConfig struct {
	ChunkRows       int
	SketchEpsilon   float64
	TopK            int
	LabelColumn     string
	TypeTolerance   float64
	ProgressBatches int
}

type PlotConfig struct {
	DefaultBins      int
	DefaultSample    int
	MaxPerClass      int
	StaticPathPrefix string
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int
}

type LLMConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type RateLimitConfig struct {
	MaxRequestsPerMinute int
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
	viper.AddConfigPath("/etc/eda-agent")

	viper.SetEnvPrefix("EDA_AGENT")
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

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.readTimeout", 300)
	viper.SetDefault("server.writeTimeout", 300)
	viper.SetDefault("server.bodyLimit", 512*1024*1024)

	viper.SetDefault("storage.datasetDir", "./storage/datasets")
	viper.SetDefault("storage.profileDir", "./storage/profiles")
	viper.SetDefault("storage.plotDir", "./storage/plots")

	viper.SetDefault("profile.chunkRows", 50000)
	viper.SetDefault("profile.sketchEpsilon", 0.01)
	viper.SetDefault("profile.topK", 20)
	viper.SetDefault("profile.labelColumn", "Class")
	viper.SetDefault("profile.typeTolerance", 0.02)
	viper.SetDefault("profile.progressBatches", 2)

	viper.SetDefault("plot.defaultBins", 50)
	viper.SetDefault("plot.defaultSample", 20000)
	viper.SetDefault("plot.maxPerClass", 5000)
	viper.SetDefault("plot.staticPathPrefix", "/static")

	viper.SetDefault("sqlite.path", "./data/eda.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlSec", 3600)

	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.1)
	viper.SetDefault("llm.maxTokens", 1024)
	viper.SetDefault("llm.timeoutSec", 60)

	viper.SetDefault("ratelimit.maxRequestsPerMinute", 120)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
