package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/ykvlv/medreminder-bot/internal/domain"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken     string        `envconfig:"BOT_TOKEN" required:"true"`
	DBPath       string        `envconfig:"DB_PATH" default:"./data/medreminder.db"`
	DefaultTZ    string        `envconfig:"DEFAULT_TZ" default:"Europe/Moscow"` // assigned to new users
	ClockTZ      string        `envconfig:"CLOCK_TZ" default:"Europe/Moscow"`   // reference clock for HH:MM matching
	TickInterval time.Duration `envconfig:"TICK_INTERVAL" default:"1m"`
	SnoozeDelay  time.Duration `envconfig:"SNOOZE_DELAY" default:"15m"`
	WizardTTL    time.Duration `envconfig:"WIZARD_TTL" default:"24h"` // idle drafts expire
	SendRate     float64       `envconfig:"SEND_RATE" default:"25"`   // messages per second
	SendBurst    int           `envconfig:"SEND_BURST" default:"5"`
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"info"`  // debug|info|warn|error
	HTTPAddr     string        `envconfig:"HTTP_ADDR" default:":8080"` // healthz, metrics
}

// Load reads envFiles (".env" when none are given) into the environment and
// then environment variables into Config. Missing env files are ignored;
// variables already set take precedence over file values.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values envconfig cannot.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return errors.New("BOT_TOKEN is empty")
	}
	if _, err := domain.ValidateTZ(c.DefaultTZ); err != nil {
		return fmt.Errorf("DEFAULT_TZ: %w", err)
	}
	if _, err := domain.ValidateTZ(c.ClockTZ); err != nil {
		return fmt.Errorf("CLOCK_TZ: %w", err)
	}
	// A coarser tick would step over whole minutes and miss HH:MM slots.
	if c.TickInterval <= 0 || c.TickInterval > time.Minute {
		return fmt.Errorf("TICK_INTERVAL must be in (0, 1m], got %s", c.TickInterval)
	}
	if c.SnoozeDelay < time.Minute {
		return fmt.Errorf("SNOOZE_DELAY must be at least 1m, got %s", c.SnoozeDelay)
	}
	if c.WizardTTL <= 0 {
		return fmt.Errorf("WIZARD_TTL must be positive, got %s", c.WizardTTL)
	}
	if c.SendRate < 0 || c.SendBurst < 1 {
		return fmt.Errorf("invalid send limit %v/s burst %d", c.SendRate, c.SendBurst)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown LOG_LEVEL %q", c.LogLevel)
	}
	return nil
}

// ClockLocation is the zone HH:MM schedule times are matched in.
func (c Config) ClockLocation() *time.Location {
	loc, err := time.LoadLocation(c.ClockTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}
