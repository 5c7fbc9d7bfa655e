package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFallsBackToDefaultsWithoutConfigFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ux0Root != "ux0:" {
		t.Errorf("Ux0Root = %q, want %q", cfg.Ux0Root, "ux0:")
	}
	if cfg.HTTP.RetryAttempts != 5 {
		t.Errorf("HTTP.RetryAttempts = %d, want 5", cfg.HTTP.RetryAttempts)
	}
	if cfg.Download.HeadBufferSize != 4*1024*1024 {
		t.Errorf("Download.HeadBufferSize = %d, want 4MiB", cfg.Download.HeadBufferSize)
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	contents := `
temp_root: /data/pkgj-tmp
ux0_root: /mnt/ux0
psp_partition: /mnt/uma0
log_level: debug
http:
  retry_attempts: 9
download:
  progress_interval: 250ms
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(contents), 0644); err != nil {
		t.Fatalf("writing config.yaml: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TempRoot != "/data/pkgj-tmp" {
		t.Errorf("TempRoot = %q, want /data/pkgj-tmp", cfg.TempRoot)
	}
	if cfg.Ux0Root != "/mnt/ux0" {
		t.Errorf("Ux0Root = %q, want /mnt/ux0", cfg.Ux0Root)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.HTTP.RetryAttempts != 9 {
		t.Errorf("HTTP.RetryAttempts = %d, want 9", cfg.HTTP.RetryAttempts)
	}
	if cfg.Download.ProgressInterval != 250*time.Millisecond {
		t.Errorf("Download.ProgressInterval = %v, want 250ms", cfg.Download.ProgressInterval)
	}
	// Keys not present in the file should still carry their defaults.
	if cfg.Download.HeadBufferSize != 4*1024*1024 {
		t.Errorf("Download.HeadBufferSize = %d, want default 4MiB", cfg.Download.HeadBufferSize)
	}
}

func TestLoadAppliesEnvOverride(t *testing.T) {
	t.Setenv("PKGJ_UX0_ROOT", "/mnt/override")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ux0Root != "/mnt/override" {
		t.Errorf("Ux0Root = %q, want env override /mnt/override", cfg.Ux0Root)
	}
}
