package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
// It follows the 12-factor app methodology by prioritizing environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Engine   EngineConfig
}

type ServerConfig struct {
	Port        string
	Environment string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
}

type EngineConfig struct {
	// ReconcileInterval bounds how long a tally can stay stale after a
	// dropped notification.
	ReconcileInterval time.Duration
	// PresenceAckTimeout is how long to wait for the channel-subscribed
	// acknowledgment before reporting the viewer count as stale.
	PresenceAckTimeout time.Duration
	// PresenceTTL expires presence entries whose owner stopped heartbeating.
	PresenceTTL time.Duration
	FeedPageSize int
}

// LoadConfig loads configuration from environment variables.
// Defaults can be set here if needed.
func LoadConfig() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			Environment: getEnv("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "pollpulse"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret"),
		},
		Engine: EngineConfig{
			ReconcileInterval:  getEnvAsDuration("ENGINE_RECONCILE_INTERVAL", 30*time.Second),
			PresenceAckTimeout: getEnvAsDuration("PRESENCE_ACK_TIMEOUT", 5*time.Second),
			PresenceTTL:        getEnvAsDuration("PRESENCE_TTL", 5*time.Minute),
			FeedPageSize:       getEnvAsInt("FEED_PAGE_SIZE", 12),
		},
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
