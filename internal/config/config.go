package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type PostgresConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type CatalogConfig struct {
	Host     string
	User     string
	Password string
	// DistributorsTTL ограничивает частоту обращений за списком поставщиков.
	DistributorsTTL time.Duration
}

type Config struct {
	App struct {
		Port   string
		APIKey string
		// AdminIDs — идентификаторы чатов с правами администратора.
		AdminIDs []string
		// ManagerChatID — операционный канал для уведомлений о заказах.
		ManagerChatID string
		// OutboundURL — куда транспорт доставляет исходящие ответы.
		OutboundURL string
	}
	Postgres   PostgresConfig
	Redis      RedisConfig
	Catalog    CatalogConfig
	SessionTTL time.Duration
	// SettingsCacheTTL — TTL кэша настроек в Redis.
	SettingsCacheTTL time.Duration
}

// NewConfig загружает .env (если есть) и собирает конфигурацию из окружения.
func NewConfig() (*Config, error) {
	if path := os.Getenv("ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("config: failed to load %s: %w", path, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{}
	cfg.App.Port = getEnv("APP_PORT", "8804")
	cfg.App.APIKey = os.Getenv("API_KEY")
	cfg.App.ManagerChatID = os.Getenv("MANAGER_CHAT_ID")
	cfg.App.OutboundURL = os.Getenv("OUTBOUND_URL")
	for _, id := range strings.Split(os.Getenv("ADMIN_IDS"), ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			cfg.App.AdminIDs = append(cfg.App.AdminIDs, id)
		}
	}

	var err error
	if cfg.Postgres.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	cfg.Postgres.Port = getEnv("DB_PORT", "5432")
	if cfg.Postgres.User, err = requireEnv("DB_USER"); err != nil {
		return nil, err
	}
	if cfg.Postgres.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Postgres.DBName, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}
	cfg.Postgres.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Postgres.MigrationsPath = getEnv("DB_MIGRATIONS_PATH", "migrations")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "127.0.0.1:6379")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	if cfg.Catalog.Host, err = requireEnv("ABCP_HOST"); err != nil {
		return nil, err
	}
	if cfg.Catalog.User, err = requireEnv("ABCP_USER"); err != nil {
		return nil, err
	}
	if cfg.Catalog.Password, err = requireEnv("ABCP_PASS"); err != nil {
		return nil, err
	}
	cfg.Catalog.DistributorsTTL = time.Duration(getEnvInt("DISTRIBUTORS_CACHE_TTL", 600)) * time.Second

	cfg.SessionTTL = time.Duration(getEnvInt("SESSION_TTL", 86400)) * time.Second
	cfg.SettingsCacheTTL = time.Duration(getEnvInt("SETTINGS_CACHE_TTL", 90)) * time.Second

	return cfg, nil
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func requireEnv(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("config: %s is required", name)
	}
	return v, nil
}
