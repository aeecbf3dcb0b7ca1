package commands

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/54b3r/docqa-go/internal/splitter"
)

func TestRootCmd_Subcommands(t *testing.T) {
	t.Parallel()
	root := NewRootCmd()
	want := []string{"serve", "ingest", "ask", "list", "delete", "status", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	cmd := NewVersionCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out.String(), "docqa dev") {
		t.Errorf("unexpected version output %q", out.String())
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "DOCQA_TEST_FROM_FILE=file\nDOCQA_TEST_ALREADY_SET=file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOCQA_TEST_ALREADY_SET", "env")
	t.Setenv("DOCQA_TEST_FROM_FILE", "")
	os.Unsetenv("DOCQA_TEST_FROM_FILE")

	if err := loadEnvFile(path, true); err != nil {
		t.Fatalf("loadEnvFile: %v", err)
	}
	if got := os.Getenv("DOCQA_TEST_FROM_FILE"); got != "file" {
		t.Errorf("DOCQA_TEST_FROM_FILE: got %q, want file", got)
	}
	if got := os.Getenv("DOCQA_TEST_ALREADY_SET"); got != "env" {
		t.Errorf("DOCQA_TEST_ALREADY_SET: existing env must win, got %q", got)
	}
}

func TestLoadEnvFile_Missing(t *testing.T) {
	t.Parallel()
	missing := filepath.Join(t.TempDir(), "nope.env")
	if err := loadEnvFile(missing, false); err != nil {
		t.Errorf("missing default file should be ignored, got %v", err)
	}
	if err := loadEnvFile(missing, true); err == nil {
		t.Error("missing explicit file should be an error")
	}
}

func TestIngestionConfigFromEnv(t *testing.T) {
	t.Setenv("DOCQA_MAX_FILES", "3")
	t.Setenv("DOCQA_MAX_FILE_SIZE_MB", "2")
	t.Setenv("DOCQA_CHUNK_SIZE", "500")
	t.Setenv("DOCQA_CHUNK_OVERLAP", "")
	t.Setenv("DOCQA_DOCUMENT_TIMEOUT", "90s")
	t.Setenv("DOCQA_EMBED_BATCH_SIZE", "not-a-number")

	cfg := ingestionConfigFromEnv()
	if cfg.MaxFiles != 3 {
		t.Errorf("MaxFiles: got %d, want 3", cfg.MaxFiles)
	}
	if cfg.MaxFileSize != 2<<20 {
		t.Errorf("MaxFileSize: got %d, want %d", cfg.MaxFileSize, 2<<20)
	}
	if cfg.Splitter.ChunkSize != 500 || cfg.Splitter.ChunkOverlap != 100 {
		t.Errorf("Splitter: got %+v, want size 500 overlap 100", cfg.Splitter)
	}
	if err := cfg.Splitter.Validate(); err != nil {
		t.Errorf("splitter config invalid: %v", err)
	}
	if cfg.DocumentTimeout != 90*time.Second {
		t.Errorf("DocumentTimeout: got %v, want 90s", cfg.DocumentTimeout)
	}
	if cfg.EmbedBatchSize != 0 {
		t.Errorf("EmbedBatchSize: unparseable value should leave the default, got %d", cfg.EmbedBatchSize)
	}
}

func TestIngestionConfigFromEnv_Unset(t *testing.T) {
	t.Setenv("DOCQA_CHUNK_SIZE", "")
	cfg := ingestionConfigFromEnv()
	if cfg.Splitter.ChunkSize != 0 {
		t.Errorf("unset chunk size should leave the pipeline default, got %d", cfg.Splitter.ChunkSize)
	}
	if splitter.DefaultChunkSize <= 0 {
		t.Fatal("splitter default must be positive")
	}
}

func TestRetrieverConfigFromEnv(t *testing.T) {
	t.Setenv("DOCQA_TOP_K", "5")
	t.Setenv("DOCQA_CONTEXT_BUDGET", "1500")
	t.Setenv("DOCQA_SEARCH_TIMEOUT", "2s")

	cfg := retrieverConfigFromEnv()
	if cfg.TopK != 5 || cfg.ContextBudget != 1500 || cfg.SearchTimeout != 2*time.Second {
		t.Errorf("unexpected retriever config %+v", cfg)
	}
}

func TestStatusDBPath(t *testing.T) {
	log := slog.New(slog.DiscardHandler)

	t.Setenv("DOCQA_STATUS_DB", "")
	if got := statusDBPath(log); got != memoryDB {
		t.Errorf("unset: got %q, want in-memory store", got)
	}

	t.Setenv("DOCQA_STATUS_DB", "/var/lib/docqa/status.db")
	if got := statusDBPath(log); got != "/var/lib/docqa/status.db" {
		t.Errorf("explicit path: got %q", got)
	}

	t.Setenv("HOME", t.TempDir())
	t.Setenv("DOCQA_STATUS_DB", "default")
	if got := statusDBPath(log); filepath.Base(got) != "status.db" || filepath.Base(filepath.Dir(got)) != ".docqa" {
		t.Errorf("default: got %q, want ~/.docqa/status.db", got)
	}
}

func TestReadUploads(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}

	uploads, err := readUploads([]string{path})
	if err != nil {
		t.Fatalf("readUploads: %v", err)
	}
	if len(uploads) != 1 || uploads[0].Name != "notes.txt" || string(uploads[0].Data) != "hello" {
		t.Errorf("unexpected uploads %+v", uploads)
	}

	if _, err := readUploads([]string{filepath.Join(dir, "missing.txt")}); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestStatusCmd_RequiresOneTarget(t *testing.T) {
	t.Parallel()
	cmd := NewStatusCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Error("expected an error with neither a document nor --task")
	}
}
