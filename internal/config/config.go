// Package config loads studydesk settings: defaults, then an optional YAML
// file, then .env and the process environment. Flags are applied by the
// caller on top.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/csheth/studydesk/internal/logger"
)

// Config is the merged runtime configuration.
type Config struct {
	// Store is a store DSN: memory:, file:<path>, sqlite:<path> or postgres://...
	Store     string    `yaml:"store"`
	CacheDir  string    `yaml:"cache_dir"`
	AltScreen bool      `yaml:"alt_screen"`
	LLM       LLMConfig `yaml:"llm"`
	Log       LogConfig `yaml:"log"`
}

// LLMConfig picks the model backend.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Endpoint string `yaml:"endpoint"`
	// APIKey is read from the environment only.
	APIKey string `yaml:"-"`
}

// LogConfig mirrors logger.LogConfig in the file format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

// Logger converts to the logger's configuration.
func (l LogConfig) Logger() logger.LogConfig {
	return logger.LogConfig{Output: l.Output, Level: l.Level, FilePath: l.File}
}

// Dir is ~/.studydesk, falling back to the working directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".studydesk"
	}
	return filepath.Join(home, ".studydesk")
}

// DefaultPath is the config file read when no path is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Store:     "file:" + filepath.Join(Dir(), "library.json"),
		AltScreen: true,
		LLM:       LLMConfig{Provider: "ollama"},
		Log:       LogConfig{Level: "info", Output: "file"},
	}
}

// Load builds the configuration. An explicit path must exist; the default
// path is optional. dotenv files are loaded into the environment without
// overriding variables that are already set.
func Load(path string, dotenv ...string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := cfg.mergeFile(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	if len(dotenv) == 0 {
		dotenv = []string{".env"}
	}
	for _, p := range dotenv {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", p, err)
		}
	}
	cfg.mergeEnv()
	return cfg, cfg.Validate()
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() {
	setFromEnv(&c.Store, "STUDYDESK_STORE")
	setFromEnv(&c.CacheDir, "STUDYDESK_CACHE_DIR")
	setFromEnv(&c.LLM.Provider, "STUDYDESK_LLM_PROVIDER")
	setFromEnv(&c.LLM.APIKey, "OPENAI_API_KEY")
	setFromEnv(&c.Log.Level, "STUDYDESK_LOG_LEVEL")
	setFromEnv(&c.Log.Output, "STUDYDESK_LOG_OUTPUT")
	setFromEnv(&c.Log.File, "STUDYDESK_LOG_FILE")
	switch c.LLM.Provider {
	case "ollama":
		setFromEnv(&c.LLM.Endpoint, "OLLAMA_HOST")
		setFromEnv(&c.LLM.Model, "OLLAMA_MODEL")
	case "openai":
		setFromEnv(&c.LLM.Endpoint, "OPENAI_BASE_URL")
		setFromEnv(&c.LLM.Model, "OPENAI_MODEL")
	}
}

func setFromEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate rejects values the rest of the program cannot act on.
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("llm.provider must be ollama or openai, got %q", c.LLM.Provider)
	}
	switch c.Log.Output {
	case "", "file", "stderr", "discard":
	default:
		return fmt.Errorf("log.output must be file, stderr or discard, got %q", c.Log.Output)
	}
	if strings.TrimSpace(c.Store) == "" {
		return errors.New("store must not be empty")
	}
	return nil
}
