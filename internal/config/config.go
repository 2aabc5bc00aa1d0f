package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Mongo  MongoConfig
	Server ServerConfig
	JWT    JWTConfig
	Client ClientConfig
	Feed   FeedConfig
	Redis  RedisConfig
	Log    LogConfig
}

type MongoConfig struct {
	URI      string
	Database string
}

type ServerConfig struct {
	Port         string
	HealthPort   string
	RateLimitRPM int
	TLSCert      string
	TLSKey       string
	RequireTLS   bool
}

type JWTConfig struct {
	Secret    string
	Keys      map[string]string // kid -> secret, from JWT_KEYS
	ActiveKid string
	TTL       time.Duration
}

type ClientConfig struct {
	AuthAddr    string
	SessionFile string
	OpTimeout   time.Duration
}

type FeedConfig struct {
	Backend string // "mongo" or "redis"
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LogConfig struct {
	Level string
	File  string
}

const (
	FeedMongo = "mongo"
	FeedRedis = "redis"
)

// Load reads the environment (and an optional .env file) into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	keys, err := parseKeys(getEnv("JWT_KEYS", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Mongo: MongoConfig{
			URI:      getEnv("MONGODB_URI", ""),
			Database: getEnv("MONGODB_DATABASE", "chat_db"),
		},
		Server: ServerConfig{
			Port:         getEnv("PORT", "50051"),
			HealthPort:   getEnv("HEALTH_PORT", "8080"),
			RateLimitRPM: getEnvAsInt("RATE_LIMIT_RPM", 10),
			TLSCert:      getEnv("TLS_CERT", ""),
			TLSKey:       getEnv("TLS_KEY", ""),
			RequireTLS:   getEnv("REQUIRE_TLS", "") == "true",
		},
		JWT: JWTConfig{
			Secret:    getEnv("JWT_SECRET", ""),
			Keys:      keys,
			ActiveKid: getEnv("JWT_ACTIVE_KID", ""),
			TTL:       getEnvAsDuration("JWT_TTL", 24*time.Hour),
		},
		Client: ClientConfig{
			AuthAddr:    getEnv("AUTH_ADDR", "localhost:50051"),
			SessionFile: getEnv("SESSION_FILE", defaultSessionFile()),
			OpTimeout:   getEnvAsDuration("OP_TIMEOUT", 10*time.Second),
		},
		Feed: FeedConfig{
			Backend: strings.ToLower(getEnv("FEED_BACKEND", FeedMongo)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", "monochat.log"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Mongo.URI == "" {
		return fmt.Errorf("MONGODB_URI must be set")
	}
	if c.Feed.Backend != FeedMongo && c.Feed.Backend != FeedRedis {
		return fmt.Errorf("FEED_BACKEND must be %q or %q, got %q", FeedMongo, FeedRedis, c.Feed.Backend)
	}
	if c.Client.OpTimeout <= 0 {
		return fmt.Errorf("OP_TIMEOUT must be positive")
	}
	return nil
}

// ValidateAPI checks the settings only the auth service needs.
func (c *Config) ValidateAPI() error {
	if len(c.JWT.Keys) == 0 && c.JWT.Secret == "" {
		return fmt.Errorf("either JWT_SECRET or JWT_KEYS must be set")
	}
	if len(c.JWT.Keys) > 0 {
		if _, ok := c.JWT.Keys[c.JWT.ActiveKid]; !ok {
			return fmt.Errorf("JWT_ACTIVE_KID %q is not present in JWT_KEYS", c.JWT.ActiveKid)
		}
	}
	if c.Server.RequireTLS && (c.Server.TLSCert == "" || c.Server.TLSKey == "") {
		return fmt.Errorf("REQUIRE_TLS is true but TLS_CERT/TLS_KEY are not configured")
	}
	return nil
}

// parseKeys parses "kid:secret,kid2:secret2".
func parseKeys(raw string) (map[string]string, error) {
	keys := map[string]string{}
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid JWT_KEYS entry: %s", p)
		}
		keys[parts[0]] = parts[1]
	}
	return keys, nil
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "session.json"
	}
	return filepath.Join(home, ".config", "monochat", "session.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
