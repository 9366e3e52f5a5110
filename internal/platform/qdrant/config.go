package qdrant

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/yungbote/quillgate/internal/platform/envutil"
)

type Config struct {
	URL        string
	Collection string
	VectorDim  int
}

// Enabled reports whether a vector index was configured at all.
func (c Config) Enabled() bool { return strings.TrimSpace(c.URL) != "" }

type ConfigErrorCode string

const (
	ConfigErrorInvalidURL        ConfigErrorCode = "invalid_url"
	ConfigErrorMissingCollection ConfigErrorCode = "missing_collection"
	ConfigErrorInvalidVectorDim  ConfigErrorCode = "invalid_vector_dim"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid qdrant config"
	}
	switch e.Code {
	case ConfigErrorInvalidURL:
		return fmt.Sprintf("invalid QDRANT_URL=%q; expected absolute URL like http://qdrant:6333", e.Value)
	case ConfigErrorMissingCollection:
		return "QDRANT_COLLECTION is required"
	case ConfigErrorInvalidVectorDim:
		return fmt.Sprintf("invalid QDRANT_VECTOR_DIM=%q; expected positive integer", e.Value)
	default:
		return "invalid qdrant config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func IsConfigError(err error, code ConfigErrorCode) bool {
	var ce *ConfigError
	return errors.As(err, &ce) && ce.Code == code
}

// ResolveConfigFromEnv returns a disabled config when QDRANT_URL is unset.
func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		URL:        envutil.String("QDRANT_URL", ""),
		Collection: envutil.String("QDRANT_COLLECTION", "chapter_versions"),
	}
	if !cfg.Enabled() {
		return Config{}, nil
	}
	rawDim := strings.TrimSpace(os.Getenv("QDRANT_VECTOR_DIM"))
	if rawDim == "" {
		rawDim = "1536"
	}
	dim, err := strconv.Atoi(rawDim)
	if err != nil {
		return Config{}, &ConfigError{Code: ConfigErrorInvalidVectorDim, Value: rawDim, Cause: err}
	}
	cfg.VectorDim = dim
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	parsed, err := url.Parse(cfg.URL)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return &ConfigError{Code: ConfigErrorInvalidURL, Value: cfg.URL, Cause: err}
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return &ConfigError{Code: ConfigErrorMissingCollection}
	}
	if cfg.VectorDim <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidVectorDim, Value: strconv.Itoa(cfg.VectorDim)}
	}
	return nil
}
