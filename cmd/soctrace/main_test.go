package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// chdir changes the working directory for the duration of the test.
// Equivalent to t.Chdir, which requires Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("restore wd: %v", err)
		}
	})
}

func TestLoadConfigMissingDefaultUsesDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := loadConfigOrDefaults("")
	if err != nil {
		t.Fatalf("missing default config must fall back to defaults, got %v", err)
	}
	if cfg.SOCTrace.Logs.Dir != "logs" {
		t.Fatalf("defaults not applied, got log dir %q", cfg.SOCTrace.Logs.Dir)
	}
	if cfg.SOCTrace.Detection.BruteForce.Window != 5*time.Minute {
		t.Fatalf("defaults not applied, got window %v", cfg.SOCTrace.Detection.BruteForce.Window)
	}
}

func TestLoadConfigMalformedDefaultFileFails(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, "soctrace.yml"), []byte("soctrace: [broken"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := loadConfigOrDefaults(""); err == nil {
		t.Fatalf("malformed default config must not be silently ignored")
	}
}

func TestLoadConfigExplicitMissingFileFails(t *testing.T) {
	if _, err := loadConfigOrDefaults(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatalf("explicit config path must fail when the file is missing")
	}
}

func TestLoadConfigExplicitFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soctrace.yml")
	content := "soctrace:\n  logs:\n    dir: /var/log/ingest\n  detection:\n    brute_force:\n      threshold: 5\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfigOrDefaults(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SOCTrace.Logs.Dir != "/var/log/ingest" {
		t.Fatalf("explicit config not applied, got log dir %q", cfg.SOCTrace.Logs.Dir)
	}
	if cfg.SOCTrace.Detection.BruteForce.Threshold != 5 {
		t.Fatalf("explicit config not applied, got threshold %d", cfg.SOCTrace.Detection.BruteForce.Threshold)
	}
	if cfg.SOCTrace.Detection.BruteForce.Window != 5*time.Minute {
		t.Fatalf("unset fields must still default, got window %v", cfg.SOCTrace.Detection.BruteForce.Window)
	}
}
