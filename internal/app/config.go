package app

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/yungbote/quillgate/internal/modules/narrative/generation"
	"github.com/yungbote/quillgate/internal/platform/envutil"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

type Config struct {
	LogMode     string
	ServiceName string
	Environment string
	Version     string

	DBDriver   string `validate:"oneof=postgres sqlite"`
	SQLitePath string

	// RedisAddr switches the chapter lock to Redis when set.
	RedisAddr      string
	ChapterLockTTL time.Duration `validate:"min=0"`

	MetricsAddr      string
	RedisMetricsPoll time.Duration `validate:"min=0"`

	HTTPAddr string

	// ContextFile is a YAML narrative context document or chapter map.
	ContextFile string

	Generation generation.Config
}

var configValidate = validator.New()

func LoadConfig() (Config, error) {
	gen, err := generation.ConfigFromEnv()
	if err != nil {
		return Config{}, fmt.Errorf("generation config: %w", err)
	}
	cfg := Config{
		LogMode:          envutil.String("LOG_MODE", "development"),
		ServiceName:      envutil.String("SERVICE_NAME", "quillgate"),
		Environment:      envutil.String("ENVIRONMENT", "local"),
		Version:          envutil.String("APP_VERSION", "dev"),
		DBDriver:         envutil.String("DB_DRIVER", DBDriverPostgres),
		SQLitePath:       envutil.String("SQLITE_PATH", "quillgate.db"),
		RedisAddr:        envutil.String("REDIS_ADDR", ""),
		ChapterLockTTL:   envutil.Duration("CHAPTER_LOCK_TTL", 30*time.Second),
		MetricsAddr:      envutil.String("METRICS_ADDR", ":9090"),
		RedisMetricsPoll: envutil.Duration("REDIS_METRICS_POLL", 15*time.Second),
		HTTPAddr:         envutil.String("HTTP_ADDR", ":8080"),
		ContextFile:      envutil.String("NARRATIVE_CONTEXT_FILE", ""),
		Generation:       gen,
	}
	if err := configValidate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
