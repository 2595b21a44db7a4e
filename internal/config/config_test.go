package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"wilayah/internal/bps"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Workers != 8 || cfg.MaxRetries != 3 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	levels := cfg.ParsedLevels()
	if len(levels) != 4 || levels[0] != bps.LevelProvinsi || levels[3] != bps.LevelDesa {
		t.Fatalf("default levels: %v", levels)
	}
	if cfg.Timeout() != 30*time.Second || cfg.Delay() != 250*time.Millisecond {
		t.Fatalf("duration accessors: %v %v", cfg.Timeout(), cfg.Delay())
	}
}

func TestFromYAMLOverrides(t *testing.T) {
	cfg, err := FromYAML([]byte("workers: 2\nlevels: provinsi,kabupaten\non_error: abort\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Workers != 2 {
		t.Fatalf("workers: %d", cfg.Workers)
	}
	if len(cfg.ParsedLevels()) != 2 {
		t.Fatalf("levels: %v", cfg.ParsedLevels())
	}
	if cfg.OnError != "abort" {
		t.Fatalf("on_error: %s", cfg.OnError)
	}
	// Untouched fields keep defaults.
	if cfg.BaseURL != bps.DefaultBaseURL {
		t.Fatalf("base_url default lost: %s", cfg.BaseURL)
	}
}

func TestFromYAMLRejectsInvalid(t *testing.T) {
	cases := []string{
		"workers: 0\n",
		"levels: planet\n",
		"on_error: retry\n",
		"max_retries: 0\n",
		"timeout_seconds: 0\n",
		"delay_ms: -1\n",
		"base_url: \"\"\n",
		":: not yaml",
	}
	for _, tc := range cases {
		if _, err := FromYAML([]byte(tc)); err == nil {
			t.Fatalf("expected error for %q", tc)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("missing file must yield defaults: %v", err)
	}
	if cfg.Workers != Default().Workers {
		t.Fatalf("not defaults: %+v", cfg)
	}

	if err := os.WriteFile(filepath.Join(dir, "wilayah.yml"), []byte("workers: 3\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Workers != 3 {
		t.Fatalf("file not loaded: %+v", cfg)
	}
}
