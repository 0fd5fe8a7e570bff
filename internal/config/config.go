package config

import (
	"os"
	"strconv"
	"time"

	"github.com/Ljo9000/skupi/internal/cache"
	"github.com/Ljo9000/skupi/internal/database"
	"github.com/Ljo9000/skupi/internal/external"
	"github.com/Ljo9000/skupi/internal/messaging"
	"github.com/Ljo9000/skupi/internal/notify"
)

// Config holds the full application configuration
type Config struct {
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	BaseURL        string
	SweepSecret    string
	RequestTimeout time.Duration

	Database      database.Config
	Redis         cache.Config
	NATS          messaging.Config
	Elasticsearch ElasticsearchConfig
	Gateway       external.GatewayConfig
	Notify        notify.Config
	Sweeper       SweeperConfig
}

// SweeperConfig controls the deadline sweep runner
type SweeperConfig struct {
	Interval time.Duration
	Batch    int
}

// ElasticsearchConfig holds connection settings for the event search index
type ElasticsearchConfig struct {
	URL        string
	Index      string
	Username   string
	Password   string
	MaxRetries int
	Timeout    time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		BaseURL:        getEnv("BASE_URL", "https://skupi.app"),
		SweepSecret:    getEnv("SWEEP_SECRET", ""),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,

		Database: database.Config{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "skupi"),
			Password:           getEnv("DB_PASSWORD", "skupi123"),
			DBName:             getEnv("DB_NAME", "skupi"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
		},

		Redis: cache.Config{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			EventTTL: getEnvDuration("REDIS_EVENT_TTL", 5*time.Second),
		},

		NATS: messaging.Config{
			URL:       getEnv("NATS_URL", "nats://localhost:4222"),
			ClusterID: getEnv("NATS_CLUSTER_ID", "skupi"),
			ClientID:  getEnv("NATS_CLIENT_ID", "skupi-api"),
		},

		Elasticsearch: ElasticsearchConfig{
			URL:        getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Index:      getEnv("ELASTICSEARCH_INDEX", "events"),
			Username:   os.Getenv("ELASTICSEARCH_USERNAME"),
			Password:   os.Getenv("ELASTICSEARCH_PASSWORD"),
			MaxRetries: getEnvInt("ELASTICSEARCH_MAX_RETRIES", 3),
			Timeout:    getEnvDuration("ELASTICSEARCH_TIMEOUT", 30*time.Second),
		},

		Gateway: external.GatewayConfig{
			BaseURL:       getEnv("GATEWAY_URL", "https://gateway.skupi.app"),
			AccountID:     getEnv("GATEWAY_ACCOUNT_ID", ""),
			Secret:        getEnv("GATEWAY_SECRET", ""),
			WebhookSecret: getEnv("GATEWAY_WEBHOOK_SECRET", ""),
			Timeout:       time.Duration(getEnvInt("GATEWAY_TIMEOUT_SEC", 30)) * time.Second,
		},

		Notify: notify.Config{
			EmailBaseURL:     getEnv("EMAIL_API_URL", "https://api.resend.com"),
			EmailAPIKey:      getEnv("EMAIL_API_KEY", ""),
			EmailFrom:        getEnv("EMAIL_FROM", "skupi. <noreply@skupi.app>"),
			MessengerBaseURL: os.Getenv("MESSENGER_API_URL"),
			MessengerAPIKey:  os.Getenv("MESSENGER_API_KEY"),
			WhatsAppSender:   os.Getenv("MESSENGER_WA_SENDER"),
			WhatsAppTemplate: getEnv("MESSENGER_WA_TEMPLATE", "spot_available"),
			ViberSender:      getEnv("MESSENGER_VIBER_SENDER", "skupi."),
			BaseURL:          getEnv("BASE_URL", "https://skupi.app"),
			Timeout:          time.Duration(getEnvInt("NOTIFY_TIMEOUT_SEC", 10)) * time.Second,
		},

		Sweeper: SweeperConfig{
			Interval: getEnvDuration("SWEEP_INTERVAL", 60*time.Second),
			Batch:    getEnvInt("SWEEP_BATCH", 100),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
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
