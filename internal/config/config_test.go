package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DOCQA_CONFIG", "")

	path, err := Load("", slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ExplicitMissing(t *testing.T) {
	t.Parallel()
	_, err := Load("/nonexistent/path/config.yaml", slog.Default())
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist for a missing --config file, got %v", err)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: azure
  max_tokens: 8192
  temperature: 0.3
  azure:
    endpoint: https://my-resource.openai.azure.com
    deployment: gpt-4o
    api_version: "2025-04-01-preview"
embedding:
  provider: ollama
  model: nomic-embed-text
qdrant:
  enabled: true
  host: qdrant.internal
  port: 6334
  collection: my-docs
server:
  port: 9090
  api_key: s3cret
client:
  server: http://docqa.internal:9090
ingestion:
  chunk_size: 800
  chunk_overlap: 100
  max_files: 3
  document_timeout: 5m
retrieval:
  top_k: 4
  context_budget: 2000
  search_timeout: 3s
store:
  db_path: /var/lib/docqa/status.db
logging:
  level: debug
  format: text
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Clear env vars that the YAML should set.
	envKeys := []string{
		"MODEL_PROVIDER", "MODEL_MAX_TOKENS", "MODEL_TEMPERATURE",
		"AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_DEPLOYMENT", "AZURE_OPENAI_API_VERSION",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL",
		"QDRANT_ENABLED", "QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION",
		"DOCQA_PORT", "DOCQA_API_KEY", "DOCQA_SERVER",
		"DOCQA_CHUNK_SIZE", "DOCQA_CHUNK_OVERLAP", "DOCQA_MAX_FILES", "DOCQA_DOCUMENT_TIMEOUT",
		"DOCQA_TOP_K", "DOCQA_CONTEXT_BUDGET", "DOCQA_SEARCH_TIMEOUT", "DOCQA_STATUS_DB",
		"LOG_LEVEL", "LOG_FORMAT",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":           "azure",
		"MODEL_MAX_TOKENS":         "8192",
		"AZURE_OPENAI_ENDPOINT":    "https://my-resource.openai.azure.com",
		"AZURE_OPENAI_DEPLOYMENT":  "gpt-4o",
		"AZURE_OPENAI_API_VERSION": "2025-04-01-preview",
		"EMBEDDING_PROVIDER":       "ollama",
		"EMBEDDING_MODEL":          "nomic-embed-text",
		"QDRANT_ENABLED":           "true",
		"QDRANT_HOST":              "qdrant.internal",
		"QDRANT_PORT":              "6334",
		"QDRANT_COLLECTION":        "my-docs",
		"DOCQA_PORT":               "9090",
		"DOCQA_API_KEY":            "s3cret",
		"DOCQA_SERVER":             "http://docqa.internal:9090",
		"DOCQA_CHUNK_SIZE":         "800",
		"DOCQA_CHUNK_OVERLAP":      "100",
		"DOCQA_MAX_FILES":          "3",
		"DOCQA_DOCUMENT_TIMEOUT":   "5m",
		"DOCQA_TOP_K":              "4",
		"DOCQA_CONTEXT_BUDGET":     "2000",
		"DOCQA_SEARCH_TIMEOUT":     "3s",
		"DOCQA_STATUS_DB":          "/var/lib/docqa/status.db",
		"LOG_LEVEL":                "debug",
		"LOG_FORMAT":               "text",
	}
	for k, want := range checks {
		got := os.Getenv(k)
		if got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: ollama
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Set env var BEFORE loading; it should NOT be overwritten.
	t.Setenv("MODEL_PROVIDER", "azure")

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("MODEL_PROVIDER"); got != "azure" {
		t.Errorf("MODEL_PROVIDER: expected env override %q, got %q", "azure", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestFormatValue(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   any
		want string
	}{
		{float32(0.2), "0.2"},
		{float32(0.3), "0.3"},
		{float32(1.0), "1"},
		{42, "42"},
		{true, "true"},
		{"5m", "5m"},
	}
	for _, tt := range tests {
		if got := formatValue(reflect.ValueOf(tt.in)); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveConfigPath_EnvVar(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "docqa.yaml")
	if err := os.WriteFile(cfgPath, []byte("logging:\n  level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOCQA_CONFIG", cfgPath)

	got, err := resolveConfigPath("")
	if err != nil || got != cfgPath {
		t.Errorf("resolveConfigPath: got %q, %v, want %q", got, err, cfgPath)
	}
}

func TestResolveConfigPath_EnvVarMissingFallsThrough(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DOCQA_CONFIG", "/nonexistent/docqa.yaml")
	got, err := resolveConfigPath("")
	if err != nil || got != "" {
		t.Errorf("resolveConfigPath: got %q, %v, want no file", got, err)
	}
}

func TestLoad_SkipsZeroValues(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	content := []byte(`
qdrant:
  enabled: false
ingestion:
  chunk_overlap: 0
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"QDRANT_ENABLED", "DOCQA_CHUNK_OVERLAP"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for _, k := range []string{"QDRANT_ENABLED", "DOCQA_CHUNK_OVERLAP"} {
		if v, ok := os.LookupEnv(k); ok {
			t.Errorf("%s: expected unset, got %q", k, v)
		}
	}
}

func TestEnvKeys(t *testing.T) {
	t.Parallel()
	keys := EnvKeys()
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			t.Errorf("%s is bound to more than one field", k)
		}
		seen[k] = true
	}
	for _, want := range []string{"MODEL_PROVIDER", "QDRANT_ENABLED", "DOCQA_TOP_K", "DOCQA_STATUS_DB", "LANGFUSE_HOST"} {
		if !seen[want] {
			t.Errorf("EnvKeys() missing %s", want)
		}
	}
}

func TestBindings_OmitsZeroValues(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	cfg.Retrieval.TopK = 7
	cfg.Model.Temperature = 0.5
	got := bindings(cfg)
	want := []binding{{"MODEL_TEMPERATURE", "0.5"}, {"DOCQA_TOP_K", "7"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("bindings() = %+v, want %+v", got, want)
	}
}
