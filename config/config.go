// Package config loads server settings from the environment.
//
// Precedence, lowest first: defaults, a .env file in the working
// directory, process environment, command-line flags (applied in main).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // POS_REPORT_TZ must resolve in minimal images

	"github.com/joho/godotenv"

	"github.com/warp/khata-engine/pos"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

type Config struct {
	HTTPPort      int
	DBPath        string
	Store         string
	LogLevel      string
	LogFormat     string
	SeedScenario  string
	AlertInterval time.Duration
	ReportTZ      string
	Policy        pos.Policy
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		HTTPPort:      8080,
		DBPath:        "pos.db",
		Store:         StoreSQLite,
		LogLevel:      "info",
		LogFormat:     "json",
		AlertInterval: 15 * time.Minute,
		ReportTZ:      "UTC",
	}
}

// Load reads .env (if present) and the POS_* environment variables.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()
	p := parser{getenv: getenv}

	cfg.HTTPPort = p.integer("POS_HTTP_PORT", cfg.HTTPPort)
	cfg.DBPath = p.str("POS_DB_PATH", cfg.DBPath)
	cfg.Store = strings.ToLower(p.str("POS_STORE", cfg.Store))
	cfg.LogLevel = strings.ToLower(p.str("POS_LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(p.str("POS_LOG_FORMAT", cfg.LogFormat))
	cfg.SeedScenario = p.str("POS_SEED_SCENARIO", cfg.SeedScenario)
	cfg.AlertInterval = p.duration("POS_ALERT_INTERVAL", cfg.AlertInterval)
	cfg.ReportTZ = p.str("POS_REPORT_TZ", cfg.ReportTZ)
	cfg.Policy.EnforceCreditLimit = p.boolean("POS_ENFORCE_CREDIT_LIMIT", false)
	cfg.Policy.RejectOverpayment = p.boolean("POS_REJECT_OVERPAYMENT", false)
	cfg.Policy.RequireFullPayment = p.boolean("POS_REQUIRE_FULL_PAYMENT", false)

	if p.err != nil {
		return Config{}, p.err
	}
	return cfg, cfg.Validate()
}

// Validate checks values that parsing alone cannot.
func (c Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port %d", c.HTTPPort)
	}
	switch c.Store {
	case StoreSQLite:
		if strings.TrimSpace(c.DBPath) == "" {
			return errors.New("db path is required for the sqlite store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, StoreSQLite, StoreMemory)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.AlertInterval < 0 {
		return fmt.Errorf("alert interval must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves ReportTZ.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ReportTZ)
	if err != nil {
		return nil, fmt.Errorf("invalid report time zone %q: %w", c.ReportTZ, err)
	}
	return loc, nil
}

// parser reads typed values and keeps the first failure.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}
