package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseConfig(t *testing.T) {
	t.Setenv("JOBBOARD_TEST_API", "https://api.example.com/api")

	data := []byte(`
current-context: staging
contexts:
  staging:
    api:
      base_url: ${JOBBOARD_TEST_API}
      stream_path: /events
      timeout: 45s
    web:
      base_url: https://example.com
    notifications:
      max_recent: 50
    rendering:
      theme: dark
`)

	config, err := parseConfig(data)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	ctx, err := config.GetCurrentContext()
	if err != nil {
		t.Fatalf("GetCurrentContext: %v", err)
	}
	if ctx.API.BaseURL != "https://api.example.com/api" {
		t.Errorf("expected env expansion, got %q", ctx.API.BaseURL)
	}
	if ctx.Timeout() != 45*time.Second {
		t.Errorf("expected 45s timeout, got %v", ctx.Timeout())
	}
	if ctx.StreamPath() != "/events" {
		t.Errorf("expected /events, got %q", ctx.StreamPath())
	}
	if ctx.MaxRecent() != 50 {
		t.Errorf("expected max recent 50, got %d", ctx.MaxRecent())
	}
	if ctx.Theme() != "dark" {
		t.Errorf("expected dark theme, got %q", ctx.Theme())
	}
}

func TestContextDefaults(t *testing.T) {
	ctx := &Context{}
	if ctx.Timeout() != defaultTimeout {
		t.Errorf("expected default timeout, got %v", ctx.Timeout())
	}
	if ctx.StreamPath() != defaultStreamPath {
		t.Errorf("expected default stream path, got %q", ctx.StreamPath())
	}
	if ctx.MaxRecent() != 20 {
		t.Errorf("expected default max recent 20, got %d", ctx.MaxRecent())
	}
	if ctx.Theme() != "auto" {
		t.Errorf("expected auto theme, got %q", ctx.Theme())
	}
	if err := ctx.Validate(); err == nil {
		t.Error("expected validation error without base URL")
	}
}

func TestConfigContexts(t *testing.T) {
	config := DefaultConfig()

	if err := config.SetCurrentContext("missing"); err == nil {
		t.Error("expected error switching to unknown context")
	}
	if err := config.DeleteContext("dev"); err == nil {
		t.Error("expected error deleting current context")
	}
	if err := config.SetCurrentContext("prod"); err != nil {
		t.Fatalf("SetCurrentContext: %v", err)
	}
	if err := config.DeleteContext("dev"); err != nil {
		t.Fatalf("DeleteContext: %v", err)
	}
	if _, err := config.GetContext("dev"); err == nil {
		t.Error("expected dev to be gone")
	}
}

func TestLoadConfig_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(configEnvVar, path)

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if config.CurrentContext != "dev" {
		t.Errorf("expected dev context, got %q", config.CurrentContext)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}

	// Round trip keeps durations readable
	again, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if again.Contexts["dev"].Timeout() != defaultTimeout {
		t.Errorf("timeout did not survive round trip: %v", again.Contexts["dev"].Timeout())
	}
}
