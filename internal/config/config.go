package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scoutline/scoutline-backend/internal/logger"
	"github.com/scoutline/scoutline-backend/internal/utils"
)

// Config is the full runtime configuration. Values come from an optional YAML
// file (CONFIG_FILE) with environment variables layered on top, so a bare
// container can still be configured entirely from env.
type Config struct {
	Port    string `yaml:"port"`
	LogMode string `yaml:"log_mode"`

	// memory | sqlite | postgres | redis
	StoreBackend string `yaml:"store_backend"`
	SqlitePath   string `yaml:"sqlite_path"`

	RecursionLimit int           `yaml:"recursion_limit"`
	PollInterval   time.Duration `yaml:"poll_interval"`

	SearchAPIKey  string `yaml:"search_api_key"`
	SearchBaseURL string `yaml:"search_base_url"`
	LLMAPIKey     string `yaml:"llm_api_key"`
	LLMBaseURL    string `yaml:"llm_base_url"`
	LLMModel      string `yaml:"llm_model"`

	CORSOrigins []string `yaml:"cors_origins"`
}

func defaults() Config {
	return Config{
		Port:           "8000",
		LogMode:        "development",
		StoreBackend:   "memory",
		SqlitePath:     "scoutline.db",
		RecursionLimit: 50,
		PollInterval:   2 * time.Second,
		SearchBaseURL:  "https://api.tavily.com",
		LLMBaseURL:     "https://api.openai.com/v1",
		LLMModel:       "gpt-4o",
		CORSOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
	}
}

func Load(log *logger.Logger) Config {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warn("Could not read config file, continuing with defaults", "path", path, "error", err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Warn("Could not parse config file, continuing with defaults", "path", path, "error", err)
		} else {
			log.Info("Loaded config file", "path", path)
		}
	}

	cfg.Port = utils.GetEnv("PORT", cfg.Port, log)
	cfg.LogMode = utils.GetEnv("LOG_MODE", cfg.LogMode, log)
	cfg.StoreBackend = strings.ToLower(utils.GetEnv("STORE_BACKEND", cfg.StoreBackend, log))
	cfg.SqlitePath = utils.GetEnv("SQLITE_PATH", cfg.SqlitePath, log)
	cfg.RecursionLimit = utils.GetEnvAsInt("RECURSION_LIMIT", cfg.RecursionLimit, log)
	cfg.PollInterval = utils.GetEnvAsDuration("STREAM_POLL_INTERVAL", cfg.PollInterval, log)
	cfg.SearchAPIKey = utils.GetEnv("TAVILY_API_KEY", cfg.SearchAPIKey, log)
	cfg.SearchBaseURL = utils.GetEnv("TAVILY_BASE_URL", cfg.SearchBaseURL, log)
	cfg.LLMAPIKey = utils.GetEnv("OPENAI_API_KEY", cfg.LLMAPIKey, log)
	cfg.LLMBaseURL = utils.GetEnv("OPENAI_BASE_URL", cfg.LLMBaseURL, log)
	cfg.LLMModel = utils.GetEnv("OPENAI_MODEL", cfg.LLMModel, log)
	if origins := utils.GetEnv("CORS_ORIGINS", "", log); origins != "" {
		parts := strings.Split(origins, ",")
		cfg.CORSOrigins = cfg.CORSOrigins[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, p)
			}
		}
	}

	if cfg.RecursionLimit <= 0 {
		cfg.RecursionLimit = defaults().RecursionLimit
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults().PollInterval
	}
	return cfg
}
