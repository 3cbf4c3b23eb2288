package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Archive   ArchiveConfig
	RateLimit RateLimitConfig
	Session   SessionConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port           string
	Host           string
	Environment    string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

type StoreConfig struct {
	// Backend is one of memory, mongo or redis.
	Backend string
	Timeout time.Duration
}

type MongoDBConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Prefix   string
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// SessionConfig tunes realtime connections.
type SessionConfig struct {
	LoadOnCreate    bool
	InitialContent  string
	DefaultTitle    string
	SendBuffer      int
	MaxMessageBytes int64
	EventRPS        float64
	EventBurst      int
}

type LogConfig struct {
	Level  string
	Format string
}

const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
	BackendRedis  = "redis"
)

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5020")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("SERVER_READ_TIMEOUT", 30)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("STORE_BACKEND", BackendMemory)
	v.SetDefault("STORE_TIMEOUT", 5)
	v.SetDefault("MONGODB_DATABASE", "gogotex")
	v.SetDefault("MONGODB_COLLECTION", "documents")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "doc:")
	v.SetDefault("MINIO_BUCKET", "gogotex-snapshots")
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("COLLAB_INITIAL_CONTENT", `{"ops":[]}`)
	v.SetDefault("COLLAB_DEFAULT_TITLE", "Untitled Document")
	v.SetDefault("COLLAB_SEND_BUFFER", 256)
	v.SetDefault("COLLAB_MAX_MESSAGE_BYTES", 1<<20)
	v.SetDefault("COLLAB_EVENT_RPS", 50)
	v.SetDefault("COLLAB_EVENT_BURST", 100)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Host:           v.GetString("SERVER_HOST"),
			Environment:    v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:    time.Duration(v.GetInt("SERVER_READ_TIMEOUT")) * time.Second,
			WriteTimeout:   time.Duration(v.GetInt("SERVER_WRITE_TIMEOUT")) * time.Second,
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(strings.TrimSpace(v.GetString("STORE_BACKEND"))),
			Timeout: time.Duration(v.GetInt("STORE_TIMEOUT")) * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:        v.GetString("MONGODB_URI"),
			Database:   v.GetString("MONGODB_DATABASE"),
			Collection: v.GetString("MONGODB_COLLECTION"),
			Timeout:    time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Prefix:   v.GetString("REDIS_PREFIX"),
		},
		Archive: ArchiveConfig{
			Enabled:   v.GetBool("ARCHIVE_ENABLED"),
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Session: SessionConfig{
			LoadOnCreate:    v.GetBool("COLLAB_LOAD_ON_CREATE"),
			InitialContent:  v.GetString("COLLAB_INITIAL_CONTENT"),
			DefaultTitle:    v.GetString("COLLAB_DEFAULT_TITLE"),
			SendBuffer:      v.GetInt("COLLAB_SEND_BUFFER"),
			MaxMessageBytes: v.GetInt64("COLLAB_MAX_MESSAGE_BYTES"),
			EventRPS:        v.GetFloat64("COLLAB_EVENT_RPS"),
			EventBurst:      v.GetInt("COLLAB_EVENT_BURST"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendMongo:
		if c.MongoDB.URI == "" {
			return fmt.Errorf("STORE_BACKEND=mongo requires MONGODB_URI")
		}
	case BackendRedis:
		if c.Redis.Host == "" {
			return fmt.Errorf("STORE_BACKEND=redis requires REDIS_HOST")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}
	if c.Archive.Enabled && c.Archive.Endpoint == "" {
		return fmt.Errorf("ARCHIVE_ENABLED requires MINIO_ENDPOINT")
	}
	if c.Session.SendBuffer <= 0 {
		return fmt.Errorf("COLLAB_SEND_BUFFER must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
