// Package config provides configuration loading and structs for the Sakuin
// server: storage paths, embedder settings, ensemble tuning, and the
// project declarations.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tsukimori/sakuin/internal/backend"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Ensemble  EnsembleConfig  `yaml:"ensemble"`
	Projects  []ProjectConfig `yaml:"projects"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the model database and per-project index
// directories.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	IndexDir     string `yaml:"index_dir"`
}

// EmbeddingConfig holds ONNX embedder settings. An empty ModelPath leaves
// the embedder unconfigured; backends that need it report themselves
// unavailable instead of failing startup.
type EmbeddingConfig struct {
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// EnsembleConfig holds result fusion tuning.
type EnsembleConfig struct {
	MaxConcurrency   int     `yaml:"max_concurrency"`
	DefaultLimit     int     `yaml:"default_limit"`
	MaxLimit         int     `yaml:"max_limit"`
	DefaultThreshold float64 `yaml:"default_threshold"`
	TimeoutSeconds   int     `yaml:"timeout_seconds"`
}

// ProjectConfig declares one indexing project.
type ProjectConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Language string `yaml:"language"`
	// Vocabulary is the path to the project's subject vocabulary TSV.
	Vocabulary string `yaml:"vocabulary"`
	// Analyzer selects the token analyzer; defaults to "simple".
	Analyzer string `yaml:"analyzer"`
	// Transform is an optional input transform chain, e.g. "limit(5000)".
	Transform string           `yaml:"transform"`
	Backends  []backend.Config `yaml:"backends"`
}

// Load reads and parses the config file at path, expands paths, and
// applies defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexDir = expandPath(cfg.Storage.IndexDir, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Projects {
		if cfg.Projects[i].Vocabulary != "" {
			cfg.Projects[i].Vocabulary = expandPath(cfg.Projects[i].Vocabulary, configDir)
		}
	}

	return &cfg, nil
}

// Validate rejects configurations that would only fail later at suggest
// time: duplicate project identifiers, projects without backends, and
// backend declarations missing an id or kind.
func Validate(cfg *Config) error {
	seen := make(map[string]bool)
	for _, p := range cfg.Projects {
		if p.ID == "" {
			return fmt.Errorf("project without id")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate project id %q", p.ID)
		}
		seen[p.ID] = true
		if len(p.Backends) == 0 {
			return fmt.Errorf("project %q declares no backends", p.ID)
		}
		backends := make(map[string]bool)
		for _, b := range p.Backends {
			if b.ID == "" || b.Kind == "" {
				return fmt.Errorf("project %q: backend needs both id and kind", p.ID)
			}
			if backends[b.ID] {
				return fmt.Errorf("project %q: duplicate backend id %q", p.ID, b.ID)
			}
			backends[b.ID] = true
		}
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
