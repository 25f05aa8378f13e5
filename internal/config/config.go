package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Narrator NarratorConfig `yaml:"narrator"`
	Renderer RendererConfig `yaml:"renderer"`
	Game     GameConfig     `yaml:"game"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	MySQL MySQLConfig `yaml:"mysql"`
	Redis RedisConfig `yaml:"redis"`
}

type MySQLConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type NarratorConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type RendererConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	Workers  int           `yaml:"workers"`
	CacheDir string        `yaml:"cache_dir"`
	Enabled  bool          `yaml:"enabled"`
}

type GameConfig struct {
	// FreeDailyLimit caps new adventures per anonymous IP per calendar day.
	FreeDailyLimit int `yaml:"free_daily_limit"`
	// FreeTurnCap caps turns per adventure for anonymous/free play.
	FreeTurnCap int `yaml:"free_turn_cap"`
	// ListCap limits how many adventures a non-premium owner can list.
	ListCap int `yaml:"list_cap"`
	// SingleActive enforces one active adventure per free owner.
	SingleActive bool `yaml:"single_active"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	// Apply environment variable overrides
	if apiKey := os.Getenv("NARRATOR_API_KEY"); apiKey != "" {
		cfg.Narrator.APIKey = apiKey
	}
	if baseURL := os.Getenv("NARRATOR_BASE_URL"); baseURL != "" {
		cfg.Narrator.BaseURL = baseURL
	}
	if pw := os.Getenv("MYSQL_PASSWORD"); pw != "" {
		cfg.Database.MySQL.Password = pw
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Database.Redis.Password = pw
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 180 * time.Second
	}
	if c.Narrator.Model == "" {
		c.Narrator.Model = "gpt-4o"
	}
	if c.Narrator.MaxTokens == 0 {
		c.Narrator.MaxTokens = 1200
	}
	if c.Narrator.Timeout == 0 {
		c.Narrator.Timeout = 120 * time.Second
	}
	if c.Renderer.Workers == 0 {
		c.Renderer.Workers = 2
	}
	if c.Renderer.CacheDir == "" {
		c.Renderer.CacheDir = "./data/scene_cache"
	}
	if c.Game.FreeDailyLimit == 0 {
		c.Game.FreeDailyLimit = 3
	}
	if c.Game.FreeTurnCap == 0 {
		c.Game.FreeTurnCap = 10
	}
	if c.Game.ListCap == 0 {
		c.Game.ListCap = 10
	}
}
