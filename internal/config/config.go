package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the pipeline needs at startup. Values come from a
// YAML file with environment-variable overrides for the secrets.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Postgres PostgresConfig `yaml:"postgres"`
	Neo4j    Neo4jConfig    `yaml:"neo4j"`
	Redis    RedisConfig    `yaml:"redis"`
	Server   ServerConfig   `yaml:"server"`
	Executor ExecutorConfig `yaml:"executor"`

	// PromptsDir contains the prompt template files. A missing template is
	// a startup failure, not a per-case one.
	PromptsDir string `yaml:"prompts_dir"`
	LogLevel   string `yaml:"log_level"`
}

// Duration accepts "10m" style values in YAML, which the stock
// time.Duration does not.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type EngineConfig struct {
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	Model   string   `yaml:"model"`
	Timeout Duration `yaml:"timeout"`
}

type PostgresConfig struct {
	URL string `yaml:"url"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type RedisConfig struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	TTL      Duration `yaml:"ttl"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type ExecutorConfig struct {
	Parallelism int `yaml:"parallelism"`
}

// Load reads the config file and applies env overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Engine.BaseURL = getEnv("RXAUDIT_ENGINE_BASE_URL", cfg.Engine.BaseURL)
	cfg.Engine.APIKey = getEnv("RXAUDIT_ENGINE_API_KEY", cfg.Engine.APIKey)
	cfg.Engine.Model = getEnv("RXAUDIT_ENGINE_MODEL", cfg.Engine.Model)
	cfg.Postgres.URL = getEnv("DATABASE_URL", cfg.Postgres.URL)
	cfg.Neo4j.URI = getEnv("NEO4J_URI", cfg.Neo4j.URI)
	cfg.Neo4j.Password = getEnv("NEO4J_PASSWORD", cfg.Neo4j.Password)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)

	if cfg.Engine.Timeout == 0 {
		cfg.Engine.Timeout = Duration(10 * time.Minute)
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = Duration(24 * time.Hour)
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":" + getEnv("PORT", "8080")
	}
	if cfg.Executor.Parallelism <= 0 {
		cfg.Executor.Parallelism = 4
	}
	if cfg.PromptsDir == "" {
		cfg.PromptsDir = "prompts"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.Engine.BaseURL == "" {
		return nil, fmt.Errorf("config %s: engine.base_url is required", path)
	}
	if cfg.Engine.Model == "" {
		return nil, fmt.Errorf("config %s: engine.model is required", path)
	}

	return cfg, nil
}

// LoadPrompt reads one prompt template from the prompts directory.
func (c *Config) LoadPrompt(name string) (string, error) {
	path := filepath.Join(c.PromptsDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt template %s: %w", path, err)
	}
	return string(data), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
