package generation

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/yungbote/quillgate/internal/platform/envutil"
)

var validate = validator.New()

// MaxFanOut bounds candidates per fan-out round, whatever the caller asks for.
const MaxFanOut = 16

type Config struct {
	// MaxAttempts caps drafts in retry mode, the first draft included.
	MaxAttempts int           `validate:"min=1,max=20"`
	Timeout     time.Duration `validate:"min=0"`
	// Temperature < 0 leaves the provider default.
	Temperature float64 `validate:"lte=2"`
	// FanOut is the number of candidates per round in fan-out mode.
	FanOut            int `validate:"min=1,max=16"`
	FanOutConcurrency int `validate:"min=1,max=16"`
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		Timeout:           120 * time.Second,
		Temperature:       0.7,
		FanOut:            1,
		FanOutConcurrency: 4,
	}
}

func ConfigFromEnv() (Config, error) {
	def := DefaultConfig()
	cfg := Config{
		MaxAttempts:       envutil.Int("GENERATION_MAX_ATTEMPTS", def.MaxAttempts),
		Timeout:           envutil.Duration("GENERATION_TIMEOUT", def.Timeout),
		Temperature:       envutil.Float("GENERATION_TEMPERATURE", def.Temperature),
		FanOut:            envutil.Int("GENERATION_FANOUT", def.FanOut),
		FanOutConcurrency: envutil.Int("GENERATION_FANOUT_CONCURRENCY", def.FanOutConcurrency),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("generation config: %w", err)
	}
	return nil
}

func (c Config) temperature() *float64 {
	if c.Temperature < 0 {
		return nil
	}
	t := c.Temperature
	return &t
}
