package config

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/storyworld-balancer/pkg/balance"
	"github.com/jwebster45206/storyworld-balancer/pkg/episode"
	"github.com/jwebster45206/storyworld-balancer/pkg/rehearsal"
	"github.com/jwebster45206/storyworld-balancer/pkg/tuner"
)

// Config is the process configuration: environment variables plus the
// optional balance file named by BALANCER_CONFIG
type Config struct {
	Environment string
	LogLevel    slog.Level
	RedisURL    string // empty disables the stats cache
	HistoryDSN  string // empty disables session history
	ConfigPath  string
	WorkerID    string
	Balance     BalanceConfig
}

// BalanceConfig holds the run parameters of a balance session
type BalanceConfig struct {
	RunCount      int           `yaml:"run_count"`
	MaxIterations int           `yaml:"max_iterations"`
	Seed          int64         `yaml:"seed"`
	StepCeiling   int           `yaml:"step_ceiling"`
	Workers       int           `yaml:"workers"`
	StrictScripts bool          `yaml:"strict_scripts"`
	LateSpools    []string      `yaml:"late_spools"`
	Targets       balance.Rules `yaml:"targets"`
	Factors       tuner.Factors `yaml:"factors"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

// Defaults returns the stock balance parameters
func Defaults() BalanceConfig {
	session := tuner.DefaultConfig()
	return BalanceConfig{
		RunCount:      session.RunCount,
		MaxIterations: session.MaxIterations,
		Seed:          session.Seed,
		StepCeiling:   episode.DefaultStepCeiling,
		Workers:       runtime.NumCPU(),
		Targets:       session.Rules,
		Factors:       session.Factors,
		CacheTTL:      24 * time.Hour,
	}
}

// Load reads the environment and, when BALANCER_CONFIG is set, the balance
// file it names
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),
		RedisURL:    getEnv("REDIS_URL", ""),
		HistoryDSN:  getEnv("HISTORY_DSN", ""),
		ConfigPath:  getEnv("BALANCER_CONFIG", ""),
		WorkerID:    getEnv("WORKER_ID", ""),
		Balance:     Defaults(),
	}
	if cfg.ConfigPath != "" {
		b, err := LoadBalanceFile(cfg.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg.Balance = b
	}
	return cfg, nil
}

// LoadBalanceFile overlays the YAML file at path on the defaults
func LoadBalanceFile(path string) (BalanceConfig, error) {
	b := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return b, fmt.Errorf("loading balance config: %w", err)
	}
	if err := yaml.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("loading balance config: %w", err)
	}
	if err := b.Validate(); err != nil {
		return b, fmt.Errorf("loading balance config: %w", err)
	}
	return b, nil
}

// Validate checks the parameters are usable
func (b BalanceConfig) Validate() error {
	if b.StepCeiling <= 0 {
		return fmt.Errorf("step_ceiling must be positive, got %d", b.StepCeiling)
	}
	if b.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", b.Workers)
	}
	if b.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must not be negative, got %s", b.CacheTTL)
	}
	for i, s := range b.LateSpools {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("late_spools entry %d is empty", i)
		}
	}
	return b.Session().Validate()
}

// Session returns the tuner session parameters
func (b BalanceConfig) Session() tuner.Config {
	return tuner.Config{
		RunCount:      b.RunCount,
		MaxIterations: b.MaxIterations,
		Seed:          b.Seed,
		Rules:         b.Targets,
		Factors:       b.Factors,
	}
}

// Episode returns the per-episode options
func (b BalanceConfig) Episode() episode.Options {
	return episode.Options{
		StepCeiling: b.StepCeiling,
		Strict:      b.StrictScripts,
		LateSpools:  b.LateSpools,
	}
}

// Rehearsal returns the rehearsal options
func (b BalanceConfig) Rehearsal(logger *slog.Logger) rehearsal.Options {
	return rehearsal.Options{
		Workers: b.Workers,
		Episode: b.Episode(),
		Logger:  logger,
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
