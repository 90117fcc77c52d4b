package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/Skotchmaster/laundry_pos/internal/api"
	"github.com/Skotchmaster/laundry_pos/internal/events"
	"github.com/Skotchmaster/laundry_pos/internal/scheduler"
	pkgconfig "github.com/Skotchmaster/laundry_pos/pkg/config"
)

// Session store kinds.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

type Client struct {
	APIURL      string
	HTTPTimeout time.Duration
	LogLevel    string
	WarningLead time.Duration

	SessionStore  string
	SessionDBPath string
	DatabaseURL   string

	RedisAddr   string
	RedisDB     int
	RedisPrefix string

	KafkaBrokers []string
	KafkaTopic   string
}

type Backend struct {
	Addr        string
	DatabaseURL string
	SQLitePath  string
	LogLevel    string

	JWTSecret     []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	AdminUsername string
	AdminPassword string
	AdminRole     string
}

func loadDotEnv() {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Notice: .env file not loaded: %v. Using system environment variables", err)
	}
}

func LoadClient() (*Client, error) {
	loadDotEnv()

	cfg := &Client{
		APIURL:        pkgconfig.EnvDefault("LAUNDRY_API_URL", api.DefaultBaseURL),
		HTTPTimeout:   pkgconfig.EnvDurationDefault("HTTP_TIMEOUT", 30*time.Second),
		LogLevel:      pkgconfig.EnvDefault("LOG_LEVEL", "info"),
		WarningLead:   pkgconfig.EnvDurationDefault("WARNING_LEAD", scheduler.DefaultLead),
		SessionStore:  pkgconfig.EnvDefault("SESSION_STORE", StoreSQLite),
		SessionDBPath: pkgconfig.EnvDefault("SESSION_DB_PATH", defaultSessionPath()),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     pkgconfig.EnvDefault("REDIS_ADDR", "127.0.0.1:6379"),
		RedisDB:       pkgconfig.EnvIntDefault("REDIS_DB", 0),
		RedisPrefix:   pkgconfig.EnvDefault("REDIS_PREFIX", "laundry:session:"),
		KafkaBrokers:  pkgconfig.CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:    pkgconfig.EnvDefault("KAFKA_TOPIC", events.DefaultTopic),
	}

	switch cfg.SessionStore {
	case StoreSQLite, StoreRedis, StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("SESSION_STORE=postgres requires DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("unknown SESSION_STORE %q", cfg.SessionStore)
	}
	return cfg, nil
}

// LoadBackend exits when the signing secrets are missing.
func LoadBackend() *Backend {
	loadDotEnv()

	cfg := &Backend{
		Addr:          pkgconfig.EnvDefault("BACKEND_ADDR", "127.0.0.1:8000"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SQLitePath:    pkgconfig.EnvDefault("SQLITE_PATH", "mockbackend.db"),
		LogLevel:      pkgconfig.EnvDefault("LOG_LEVEL", "info"),
		JWTSecret:     []byte(os.Getenv("JWT_SECRET")),
		RefreshSecret: []byte(os.Getenv("REFRESH_SECRET")),
		AccessTTL:     pkgconfig.EnvDurationDefault("ACCESS_TTL", 5*time.Minute),
		RefreshTTL:    pkgconfig.EnvDurationDefault("REFRESH_TTL", 24*time.Hour),
		AdminUsername: pkgconfig.EnvDefault("ADMIN_USERNAME", "admin"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		AdminRole:     pkgconfig.EnvDefault("ADMIN_ROLE", "admin"),
	}

	pkgconfig.MustNonEmptyBytes(cfg.JWTSecret, "JWT_SECRET")
	pkgconfig.MustNonEmptyBytes(cfg.RefreshSecret, "REFRESH_SECRET")
	return cfg
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "laundry_session.db"
	}
	return filepath.Join(dir, "laundry_pos", "session.db")
}
