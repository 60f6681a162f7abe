package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Search    SearchConfig    `yaml:"search"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Store     StoreConfig     `yaml:"store"`
	NATS      NATSConfig      `yaml:"nats"`
	Crew      CrewConfig      `yaml:"crew"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
}

type LLMConfig struct {
	Provider   string        `yaml:"provider"` // openai, anthropic, gemini
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type SearchConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Count   int           `yaml:"count"`
	Timeout time.Duration `yaml:"timeout"`
}

type FetchConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxBytes    int64         `yaml:"max_bytes"`
	Concurrency int           `yaml:"concurrency"`
	UserAgent   string        `yaml:"user_agent"`
}

type ArtifactsConfig struct {
	Root string `yaml:"root"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

type CrewConfig struct {
	// MaxRevisions caps revisions per task; 0 means unlimited.
	MaxRevisions int `yaml:"max_revisions"`
	// RunTimeout bounds a whole run; 0 means no bound.
	RunTimeout time.Duration `yaml:"run_timeout"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

var defaultModels = map[string]string{
	"openai":    "gpt-4o-mini",
	"anthropic": "claude-3-5-sonnet-latest",
	"gemini":    "gemini-1.5-flash",
}

var providerKeys = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GOOGLE_API_KEY",
}

func defaults() Config {
	return Config{
		LLM: LLMConfig{
			Provider:   "openai",
			Timeout:    2 * time.Minute,
			MaxRetries: 2,
		},
		Search: SearchConfig{
			BaseURL: "https://api.search.brave.com/res/v1/web/search",
			Count:   5,
			Timeout: 30 * time.Second,
		},
		Fetch: FetchConfig{
			Timeout:     30 * time.Second,
			MaxBytes:    5 << 20,
			Concurrency: 4,
			UserAgent:   "agentcrew/1.0",
		},
		Artifacts: ArtifactsConfig{
			Root: ".",
		},
		Store: StoreConfig{
			Path: "data/agentcrew.db",
		},
		NATS: NATSConfig{
			Enabled: true,
			Port:    4222,
			DataDir: "data/nats",
		},
		Scheduler: SchedulerConfig{
			PollInterval: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Path returns the config file location.
func Path() string {
	if p := os.Getenv("AGENTCREW_CONFIG"); p != "" {
		return p
	}
	return "config/agentcrew.yaml"
}

// Load reads the config file, then applies environment overrides. Values
// from a .env file (AGENTCREW_ENV_FILE, default .env) are used where the
// process environment has none.
func Load() (*Config, error) {
	cfg := defaults()

	env, err := loadEnv()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(Path())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		expanded := os.Expand(string(data), env.get)
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg, env)
	resolveLLM(&cfg.LLM, env)

	return &cfg, nil
}

type envSource struct {
	file map[string]string
}

func loadEnv() (envSource, error) {
	path := os.Getenv("AGENTCREW_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	file, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return envSource{}, nil
		}
		return envSource{}, fmt.Errorf("read env file %s: %w", path, err)
	}
	return envSource{file: file}, nil
}

func (e envSource) get(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return e.file[key]
}

func applyEnv(cfg *Config, env envSource) {
	if v := env.get("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = strings.ToLower(v)
	}
	if v := env.get("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := env.get("OPENAI_MODEL"); v != "" && cfg.LLM.Provider == "openai" {
		cfg.LLM.Model = v
	}
	if v := env.get("OPENAI_BASE_URL"); v != "" && cfg.LLM.Provider == "openai" {
		cfg.LLM.BaseURL = v
	}
	if v := env.get("BRAVE_API_KEY"); v != "" {
		cfg.Search.APIKey = v
	}
	if v := env.get("AGENTCREW_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := env.get("AGENTCREW_OUTPUT_DIR"); v != "" {
		cfg.Artifacts.Root = v
	}
	if v := env.get("AGENTCREW_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := env.get("AGENTCREW_NATS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.NATS.Enabled = b
		}
	}
	if v := env.get("AGENTCREW_MAX_REVISIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Crew.MaxRevisions = n
		}
	}
	if v := env.get("AGENTCREW_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// resolveLLM fills the API key and model from provider-specific defaults.
func resolveLLM(c *LLMConfig, env envSource) {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.APIKey == "" {
		if key, ok := providerKeys[c.Provider]; ok {
			c.APIKey = env.get(key)
		}
	}
	if c.Model == "" {
		c.Model = defaultModels[c.Provider]
	}
}
