package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	// ProjectConfigFile is the name of the project-level config file.
	ProjectConfigFile = "sitechat.yaml"
	// UserConfigDir is the directory for user-level config.
	UserConfigDir = ".config/sitechat"
	// UserConfigFile is the name of the user-level config file.
	UserConfigFile = "config.yaml"
)

// Loader handles configuration loading with layered precedence.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a new configuration loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/sitechat/config.yaml)
// 3. Project config (sitechat.yaml in current or parent directories)
// 4. Environment variables (including a .env file when present)
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	userConfigPath := l.userConfigPath()
	if userConfig, err := LoadFromFile(userConfigPath); err == nil {
		l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
		config.Merge(userConfig)
	} else if !errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
	}

	projectConfigPath := l.findProjectConfig()
	if projectConfigPath != "" {
		if projectConfig, err := LoadFromFile(projectConfigPath); err == nil {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
			config.Merge(projectConfig)
		} else {
			l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		}
	} else {
		l.logger.Debug("No project config found")
	}

	l.applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't
// exist.
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()

	if _, err := os.Stat(userConfigPath); err == nil {
		return nil
	}

	config := DefaultConfig()
	if err := config.SaveToFile(userConfigPath); err != nil {
		return err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return nil
}

// applyEnv overlays environment variables. A .env file in the working
// directory is loaded first without overriding the real environment.
func (l *Loader) applyEnv(config *Config) {
	if err := godotenv.Load(); err == nil {
		l.logger.Debug("Loaded .env file")
	}

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("SITECHAT_START_URL", &config.Crawl.StartURL)
	setString("SITECHAT_ADDR", &config.Server.Addr)
	setString("LLM_PROVIDER", &config.LLM.Provider)
	setString("OLLAMA_API_URL", &config.LLM.Ollama.URL)
	setString("OLLAMA_MODEL", &config.LLM.Ollama.Model)
	setString("OPENAI_API_URL", &config.LLM.OpenAI.URL)
	setString("OPENAI_MODEL", &config.LLM.OpenAI.Model)
	setString("EMBEDDING_API_URL", &config.Embedding.BaseURL)
	setString("EMBEDDING_MODEL", &config.Embedding.Model)
	setString("STORE_TYPE", &config.Store.Type)
	setString("QDRANT_URL", &config.Store.Qdrant.URL)
	setString("QDRANT_API_KEY", &config.Store.Qdrant.APIKey)
	setString("QDRANT_COLLECTION", &config.Store.Qdrant.Collection)
}

// userConfigPath returns the path to the user config file.
func (l *Loader) userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for sitechat.yaml in current and parent
// directories.
func (l *Loader) findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
