package config

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds everything both binaries read at startup. Values come from an
// optional YAML file (CONFIG_FILE) and are then overridden by the environment.
type Config struct {
	Port           string   `yaml:"port"`
	Env            string   `yaml:"env"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	LogLevel       string   `yaml:"log_level"`

	Store struct {
		Backend       string        `yaml:"backend"`
		LobbyTTL      time.Duration `yaml:"lobby_ttl"`
		Retries       int           `yaml:"mutation_retries"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"store"`

	Redis struct {
		Addr         string `yaml:"addr"`
		Password     string `yaml:"password"`
		DB           int    `yaml:"db"`
		ResultsQueue string `yaml:"results_queue"`
	} `yaml:"redis"`

	Session struct {
		TTL time.Duration `yaml:"ttl"`
		// Key is a base64 ed25519 seed shared by every server instance.
		Key string `yaml:"key"`
	} `yaml:"session"`

	Historian struct {
		DatabaseURL string        `yaml:"database_url"`
		BatchSize   int           `yaml:"batch_size"`
		FlushDelay  time.Duration `yaml:"flush_delay"`
	} `yaml:"historian"`
}

// Default returns the built-in configuration.
func Default() *Config {
	c := &Config{
		Port:           "8080",
		Env:            "dev",
		AllowedOrigins: []string{"*"},
		LogLevel:       "info",
	}
	c.Store.Backend = BackendMemory
	c.Store.LobbyTTL = 24 * time.Hour
	c.Store.Retries = 8
	c.Store.SweepInterval = time.Minute
	c.Redis.Addr = "localhost:6379"
	c.Redis.ResultsQueue = "trivia_results"
	c.Session.TTL = 24 * time.Hour
	c.Historian.BatchSize = 20
	c.Historian.FlushDelay = 500 * time.Millisecond
	return c
}

// Load builds the configuration from defaults, then CONFIG_FILE if set, then
// the environment.
func Load() (*Config, error) {
	c := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := c.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.Env = getEnv("TRIVIA_ENV", c.Env)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}

	c.Store.Backend = strings.ToLower(getEnv("STORE_BACKEND", c.Store.Backend))
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.ResultsQueue = getEnv("RESULTS_QUEUE", c.Redis.ResultsQueue)
	c.Historian.DatabaseURL = getEnv("DATABASE_URL", c.Historian.DatabaseURL)
	c.Session.Key = getEnv("SESSION_KEY", c.Session.Key)

	var err error
	if c.Redis.DB, err = getEnvInt("REDIS_DB", c.Redis.DB); err != nil {
		return err
	}
	if c.Store.Retries, err = getEnvInt("MUTATION_RETRIES", c.Store.Retries); err != nil {
		return err
	}
	if c.Historian.BatchSize, err = getEnvInt("HISTORIAN_BATCH_SIZE", c.Historian.BatchSize); err != nil {
		return err
	}
	flushMs, err := getEnvInt("HISTORIAN_FLUSH_MS", int(c.Historian.FlushDelay/time.Millisecond))
	if err != nil {
		return err
	}
	c.Historian.FlushDelay = time.Duration(flushMs) * time.Millisecond

	if c.Store.LobbyTTL, err = getEnvDuration("LOBBY_TTL", c.Store.LobbyTTL); err != nil {
		return err
	}
	if c.Store.SweepInterval, err = getEnvDuration("SWEEP_INTERVAL", c.Store.SweepInterval); err != nil {
		return err
	}
	if c.Session.TTL, err = getEnvDuration("SESSION_TTL", c.Session.TTL); err != nil {
		return err
	}
	return nil
}

// Validate rejects configurations the binaries cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if c.Store.LobbyTTL <= 0 {
		errs = append(errs, errors.New("lobby TTL must be positive"))
	}
	if c.Store.Retries < 0 {
		errs = append(errs, errors.New("mutation retries must not be negative"))
	}
	if c.Store.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep interval must be positive"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session TTL must be positive"))
	}
	if _, err := c.SessionKey(); err != nil {
		errs = append(errs, err)
	} else if c.Session.Key == "" && c.Store.Backend == BackendRedis && c.IsProduction() {
		errs = append(errs, errors.New("SESSION_KEY is required with the redis backend in production"))
	}
	if c.Historian.BatchSize <= 0 {
		errs = append(errs, errors.New("historian batch size must be positive"))
	}
	if c.Historian.FlushDelay <= 0 {
		errs = append(errs, errors.New("historian flush delay must be positive"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	return errors.Join(errs...)
}

// SessionKey decodes the shared session signing key. It returns nil when no
// key is configured.
func (c *Config) SessionKey() (ed25519.PrivateKey, error) {
	if c.Session.Key == "" {
		return nil, nil
	}
	seed, err := base64.StdEncoding.DecodeString(c.Session.Key)
	if err != nil {
		return nil, fmt.Errorf("SESSION_KEY: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("SESSION_KEY: want a %d-byte seed, got %d bytes", ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// IsProduction reports whether TRIVIA_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
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
