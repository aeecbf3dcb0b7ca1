package tracing

import "testing"

func TestConfigFromEnv_Disabled(t *testing.T) {
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk-test")
	t.Setenv("LANGFUSE_SECRET_KEY", "")

	if cfg := configFromEnv(); cfg != nil {
		t.Fatalf("expected nil config with a missing secret key, got %+v", cfg)
	}
	if h, flush, ok := Setup(); ok || h != nil || flush != nil {
		t.Fatal("Setup should be a no-op without both keys")
	}
}

func TestConfigFromEnv_DefaultsHost(t *testing.T) {
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk-test")
	t.Setenv("LANGFUSE_SECRET_KEY", "sk-test")
	t.Setenv("LANGFUSE_HOST", "")

	cfg := configFromEnv()
	if cfg == nil {
		t.Fatal("expected config")
	}
	if cfg.Host != defaultHost {
		t.Errorf("Host: got %q, want %q", cfg.Host, defaultHost)
	}
	if cfg.Name != traceName {
		t.Errorf("Name: got %q, want %q", cfg.Name, traceName)
	}
}
