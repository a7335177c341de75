package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	Redis     RedisConfig
	Log       LogConfig
	Providers []ProviderConfig
	Reviewer  ReviewerConfig
	Pipeline  PipelineConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// KafkaConfig holds Kafka/Redpanda configuration
type KafkaConfig struct {
	Brokers       []string
	EventsTopic   string
	OutcomesTopic string
	ConsumerGroup string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	TTL      time.Duration
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
}

// Provider kinds understood by providers.Build
const (
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
	KindGemini    = "gemini"
)

// ProviderConfig describes one opinion source
type ProviderConfig struct {
	Name    string
	Kind    string
	APIKey  string
	Model   string
	BaseURL string
}

// Enabled reports whether the provider has credentials
func (p ProviderConfig) Enabled() bool {
	return p.APIKey != ""
}

// ReviewerConfig holds the reviewer agent endpoint
type ReviewerConfig struct {
	BaseURL string
	Token   string
	Name    string
	Timeout time.Duration
}

// Enabled reports whether a reviewer endpoint is configured
func (r ReviewerConfig) Enabled() bool {
	return r.BaseURL != ""
}

// PipelineConfig holds pick generation settings
type PipelineConfig struct {
	ProviderTimeout  time.Duration
	TopPickCount     int
	ConsensusWindow  time.Duration
	Schedule         string
	RequestsPerSec   int
	MaxRetryDuration time.Duration
	RunOnStart       bool
}

// Load reads configuration from environment variables, after loading a
// .env file when one is present
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8081"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "postgres"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "oracle"),
			Password: getEnv("DB_PASSWORD", "oracle"),
			DBName:   getEnv("DB_NAME", "market_oracle"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Brokers:       parseBrokers(getEnv("KAFKA_BROKERS", "localhost:19092")),
			EventsTopic:   getEnv("KAFKA_EVENTS_TOPIC", "oracle.events"),
			OutcomesTopic: getEnv("KAFKA_OUTCOMES_TOPIC", "predictions.outcomes"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "market-oracle"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnvDuration("REDIS_TTL", 24*time.Hour),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Providers: []ProviderConfig{
			{
				Name:   "GPT-4",
				Kind:   KindOpenAI,
				APIKey: os.Getenv("OPENAI_API_KEY"),
				Model:  getEnv("OPENAI_MODEL", "gpt-4"),
			},
			{
				Name:   "Claude",
				Kind:   KindAnthropic,
				APIKey: os.Getenv("ANTHROPIC_API_KEY"),
				Model:  getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-latest"),
			},
			{
				Name:   "Gemini",
				Kind:   KindGemini,
				APIKey: os.Getenv("GEMINI_API_KEY"),
				Model:  getEnv("GEMINI_MODEL", "gemini-1.5-pro"),
			},
			{
				Name:    "Perplexity",
				Kind:    KindOpenAI,
				APIKey:  os.Getenv("PERPLEXITY_API_KEY"),
				Model:   getEnv("PERPLEXITY_MODEL", "sonar-pro"),
				BaseURL: getEnv("PERPLEXITY_BASE_URL", "https://api.perplexity.ai"),
			},
		},
		Reviewer: ReviewerConfig{
			BaseURL: strings.TrimRight(os.Getenv("REVIEWER_BASE_URL"), "/"),
			Token:   os.Getenv("REVIEWER_TOKEN"),
			Name:    getEnv("REVIEWER_NAME", "Javari"),
			Timeout: getEnvDuration("REVIEWER_TIMEOUT", 120*time.Second),
		},
		Pipeline: PipelineConfig{
			ProviderTimeout:  getEnvDuration("PROVIDER_TIMEOUT", 90*time.Second),
			TopPickCount:     getEnvInt("TOP_PICK_COUNT", 5),
			ConsensusWindow:  getEnvDuration("CONSENSUS_WINDOW", 24*time.Hour),
			Schedule:         getEnv("PICKS_SCHEDULE", "0 30 13 * * MON-FRI"),
			RequestsPerSec:   getEnvInt("PROVIDER_REQUESTS_PER_SEC", 2),
			MaxRetryDuration: getEnvDuration("PROVIDER_MAX_RETRY", 30*time.Second),
			RunOnStart:       getEnvBool("PICKS_RUN_ON_START", false),
		},
	}
}

// EnabledProviders returns the providers with credentials, in declaration order
func (c *Config) EnabledProviders() []ProviderConfig {
	enabled := make([]ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		if p.Enabled() {
			enabled = append(enabled, p)
		}
	}
	return enabled
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// parseBrokers splits a comma-separated broker list
func parseBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Address returns the Redis address in host:port format
func (r *RedisConfig) Address() string {
	return r.Host + ":" + r.Port
}
