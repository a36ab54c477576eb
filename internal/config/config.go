// Package config loads the service configuration: defaults, then an
// optional YAML file, then environment variables (a .env file is honored).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/affective-thought-kernel/internal/kernel"
	"github.com/affective-thought-kernel/internal/llm"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Journal backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	// JWTSecret enables bearer-token auth on the API when set.
	JWTSecret string `yaml:"jwt_secret"`
	// FeedAddr enables the newline-delimited JSON TCP feed when set.
	FeedAddr         string `yaml:"feed_addr"`
	FeedIncludeChars bool   `yaml:"feed_include_chars"`
}

// RedisConfig is optional. When Address is set the client backs the repeat
// guard, and the journal too if its backend is redis.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type NATSConfig struct {
	// URL of the NATS server. Empty disables publishing.
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	IncludeChars  bool   `yaml:"include_chars"`
}

type LLMConfig struct {
	Enabled bool             `yaml:"enabled"`
	Ollama  llm.OllamaConfig `yaml:"ollama"`
}

type JournalStoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	Key     string `yaml:"key"`
}

// Config is the complete service configuration.
type Config struct {
	Server  ServerConfig       `yaml:"server"`
	Redis   RedisConfig        `yaml:"redis"`
	NATS    NATSConfig         `yaml:"nats"`
	LLM     LLMConfig          `yaml:"llm"`
	Journal JournalStoreConfig `yaml:"journal_store"`
	Kernel  kernel.Config      `yaml:"kernel"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":9000",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		NATS: NATSConfig{
			SubjectPrefix: "thoughts",
		},
		LLM: LLMConfig{
			Enabled: true,
			Ollama:  llm.DefaultOllamaConfig(),
		},
		Journal: JournalStoreConfig{
			Backend: BackendFile,
			Path:    "data/journal.json",
			Key:     "thought:journal",
		},
		Kernel: kernel.DefaultConfig(),
	}
}

// LoadDotEnv loads .env files into the environment. Variables already set
// win. A missing file is reported but harmless.
func LoadDotEnv(files ...string) error {
	return godotenv.Load(files...)
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	c.Server.Addr = getEnv("HTTP_ADDR", c.Server.Addr)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}

	c.Server.JWTSecret = getEnv("JWT_SECRET", c.Server.JWTSecret)
	c.Server.FeedAddr = getEnv("FEED_ADDR", c.Server.FeedAddr)

	c.Redis.Address = getEnv("REDIS_URL", c.Redis.Address)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.LLM.Ollama.BaseURL = getEnv("OLLAMA_URL", c.LLM.Ollama.BaseURL)
	c.LLM.Ollama.Model = getEnv("OLLAMA_MODEL", c.LLM.Ollama.Model)
	c.Journal.Backend = getEnv("JOURNAL_BACKEND", c.Journal.Backend)
	c.Journal.Path = getEnv("JOURNAL_PATH", c.Journal.Path)
	c.Journal.Key = getEnv("JOURNAL_REDIS_KEY", c.Journal.Key)

	var err error
	if c.Redis.DB, err = getEnvInt("REDIS_DB", c.Redis.DB); err != nil {
		return err
	}
	if c.Kernel.Generator.MaxTokens, err = getEnvInt("LLM_MAX_TOKENS", c.Kernel.Generator.MaxTokens); err != nil {
		return err
	}
	if c.LLM.Enabled, err = getEnvBool("LLM_ENABLED", c.LLM.Enabled); err != nil {
		return err
	}
	if c.Kernel.Thought.Enabled, err = getEnvBool("THOUGHTS_ENABLED", c.Kernel.Thought.Enabled); err != nil {
		return err
	}
	if c.Server.FeedIncludeChars, err = getEnvBool("FEED_INCLUDE_CHARS", c.Server.FeedIncludeChars); err != nil {
		return err
	}
	return nil
}

// RedisEnabled reports whether a Redis client should be built.
func (c Config) RedisEnabled() bool {
	return c.Redis.Address != ""
}

// Validate reports the first problem found.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is empty", ErrInvalid)
	}
	if c.Server.JWTSecret != "" && len(c.Server.JWTSecret) < 32 {
		return fmt.Errorf("%w: server.jwt_secret must be at least 32 bytes", ErrInvalid)
	}
	switch c.Journal.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Journal.Path == "" {
			return fmt.Errorf("%w: journal_store.path is required for the file backend", ErrInvalid)
		}
	case BackendRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("%w: redis.address is required for the redis backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown journal backend %q", ErrInvalid, c.Journal.Backend)
	}
	if c.LLM.Enabled && c.LLM.Ollama.BaseURL == "" {
		return fmt.Errorf("%w: llm.ollama.base_url is empty", ErrInvalid)
	}
	if c.Kernel.Journal.MaxThoughts < 0 || c.Kernel.Journal.EvictCount < 0 {
		return fmt.Errorf("%w: journal limits must not be negative", ErrInvalid)
	}
	if err := c.Kernel.Thought.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, key, v)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
