package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	OpenRouter OpenRouterConfig `mapstructure:"openrouter"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Stream     StreamConfig     `mapstructure:"stream"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

type OpenRouterConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type QueueConfig struct {
	BrokerURL   string `mapstructure:"broker_url"`
	Name        string `mapstructure:"name"`
	Concurrency int    `mapstructure:"concurrency"`
}

// CacheConfig 缓存生命周期配置。
// TTL 是生成完成后的缓存保留时间，InFlightTTL 是生成进行中的保护性过期时间，
// 两者用途不同，不要合并。
type CacheConfig struct {
	TTL         time.Duration `mapstructure:"ttl"`
	InFlightTTL time.Duration `mapstructure:"in_flight_ttl"`
}

type StreamConfig struct {
	BlockTimeout      time.Duration `mapstructure:"block_timeout"`
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	ClaimTTL          time.Duration `mapstructure:"claim_ttl"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var cfg *Config

func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("CHAT")

	// 配置文件中缺失的键使用默认值
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "0s")
	viper.SetDefault("server.max_header_bytes", 1<<20)
	viper.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	viper.SetDefault("openrouter.model", "z-ai/glm-4.5-air:free")
	viper.SetDefault("openrouter.timeout", "120s")
	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("queue.broker_url", "redis://localhost:6379/1")
	viper.SetDefault("queue.name", "default")
	viper.SetDefault("queue.concurrency", 4)
	viper.SetDefault("cache.ttl", "900s")
	viper.SetDefault("cache.in_flight_ttl", "3600s")
	viper.SetDefault("stream.block_timeout", "5s")
	viper.SetDefault("stream.inactivity_timeout", "60s")
	viper.SetDefault("stream.retry_backoff", "200ms")
	viper.SetDefault("stream.claim_ttl", "30s")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	// 配置文件优先，如果配置文件中没有设置，则使用环境变量
	if cfg.OpenRouter.APIKey == "" {
		if apiKey := os.Getenv("OPENROUTER_API_KEY"); apiKey != "" {
			cfg.OpenRouter.APIKey = apiKey
		}
	}

	return cfg, nil
}

func Get() *Config {
	return cfg
}
