package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
projects:
  - id: "archaeology"
    name: "Archaeology"
    vocabulary: "./vocab.tsv"
    backends:
      - id: "tf1"
        kind: "tfidf"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if len(cfg.Projects) != 1 {
		t.Fatalf("projects: got %d", len(cfg.Projects))
	}
	p := cfg.Projects[0]
	if p.Analyzer != "simple" {
		t.Errorf("analyzer should default to simple, got %q", p.Analyzer)
	}
	if p.Backends[0].Weight != 1 {
		t.Errorf("backend weight should default to 1, got %f", p.Backends[0].Weight)
	}
	wantVocab := filepath.Join(filepath.Dir(path), "vocab.tsv")
	if p.Vocabulary != wantVocab {
		t.Errorf("vocabulary = %s, want %s", p.Vocabulary, wantVocab)
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "./data/db/models.db"
  index_dir: "./data/indices"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Dir(path)
	wantDB := filepath.Join(dir, "data", "db", "models.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	wantIdx := filepath.Join(dir, "data", "indices")
	if cfg.Storage.IndexDir != wantIdx {
		t.Errorf("index_dir = %s, want %s", cfg.Storage.IndexDir, wantIdx)
	}
}

func TestLoad_rejectsDuplicateProjects(t *testing.T) {
	path := writeConfig(t, `
projects:
  - id: "p1"
    backends:
      - id: "tf1"
        kind: "tfidf"
  - id: "p1"
    backends:
      - id: "tf1"
        kind: "tfidf"
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "duplicate project") {
		t.Errorf("expected duplicate project error, got %v", err)
	}
}

func TestLoad_rejectsProjectWithoutBackends(t *testing.T) {
	path := writeConfig(t, `
projects:
  - id: "p1"
`)
	if _, err := Load(path); err == nil {
		t.Error("expected an error for a backend-less project")
	}
}

func TestLoad_rejectsBackendWithoutKind(t *testing.T) {
	path := writeConfig(t, `
projects:
  - id: "p1"
    backends:
      - id: "tf1"
`)
	if _, err := Load(path); err == nil {
		t.Error("expected an error for a kind-less backend")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Ensemble.DefaultLimit != 10 {
		t.Errorf("default limit: got %d", cfg.Ensemble.DefaultLimit)
	}
	if cfg.Ensemble.MaxLimit != 100 {
		t.Errorf("default max limit: got %d", cfg.Ensemble.MaxLimit)
	}
	if cfg.Ensemble.DefaultThreshold != 0 {
		t.Errorf("default threshold should be 0, got %f", cfg.Ensemble.DefaultThreshold)
	}
	if cfg.Ensemble.TimeoutSeconds != 30 {
		t.Errorf("default timeout: got %d", cfg.Ensemble.TimeoutSeconds)
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("default embedding dimensions: got %d", cfg.Embedding.Dimensions)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}
