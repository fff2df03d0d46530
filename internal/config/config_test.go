package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, runtime, err := Load(writeConfig(t, "app:\n  name: dealscout\n"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Scanner.Interval != 10*time.Minute {
		t.Fatalf("scanner interval = %s, want 10m", cfg.Scanner.Interval)
	}
	if cfg.Scanner.SampleLimit != 50 {
		t.Fatalf("sample limit = %d, want 50", cfg.Scanner.SampleLimit)
	}
	if cfg.Ebay.Mode != "auto" {
		t.Fatalf("ebay mode = %q, want auto", cfg.Ebay.Mode)
	}
	if runtime.EbayMode() != "auto" {
		t.Fatalf("runtime mode = %q, want auto", runtime.EbayMode())
	}
	if runtime.FacebookEnabled() {
		t.Fatal("facebook should default to disabled")
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, runtime, err := Load(writeConfig(t, `
ebay:
  mode: scrape
  request_timeout: 5s
scanner:
  interval: 2m
  auto_start: true
marketplaces:
  facebook_enabled: true
`))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Ebay.Mode != "scrape" || cfg.Ebay.RequestTimeout != 5*time.Second {
		t.Fatalf("ebay config not applied: %+v", cfg.Ebay)
	}
	if cfg.Scanner.Interval != 2*time.Minute || !cfg.Scanner.AutoStart {
		t.Fatalf("scanner config not applied: %+v", cfg.Scanner)
	}
	if runtime.EbayMode() != "scrape" || !runtime.FacebookEnabled() {
		t.Fatal("runtime view does not reflect the loaded file")
	}
}

func TestLoadRejectsBadMode(t *testing.T) {
	if _, _, err := Load(writeConfig(t, "ebay:\n  mode: psychic\n")); err == nil {
		t.Fatal("invalid ebay.mode should fail validation")
	}
}

func TestLoadRejectsTelegramWithoutCredentials(t *testing.T) {
	if _, _, err := Load(writeConfig(t, "alerting:\n  telegram:\n    enabled: true\n")); err == nil {
		t.Fatal("telegram enabled without credentials should fail validation")
	}
}

func TestRuntimeSetters(t *testing.T) {
	_, runtime, err := Load(writeConfig(t, "app:\n  name: dealscout\n"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	runtime.SetEbayMode("api")
	runtime.SetFacebookEnabled(true)

	if runtime.EbayMode() != "api" || !runtime.FacebookEnabled() {
		t.Fatal("runtime setters did not take effect")
	}
}
