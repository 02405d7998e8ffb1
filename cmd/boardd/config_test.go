package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rbaliyan/board"
	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "boardd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig("", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Listen != ":8080" || cfg.Files.Backend != "local" || cfg.Records.Backend != "memory" {
			t.Errorf("unexpected defaults %+v", cfg)
		}
		if cfg.Uploads.MaxFileSize != 10*1024*1024 || cfg.Uploads.MaxFiles != 10 {
			t.Errorf("unexpected upload limits %+v", cfg.Uploads)
		}
		if cfg.Uploads.SweepAge != 24*time.Hour {
			t.Errorf("expected 24h sweep age, got %v", cfg.Uploads.SweepAge)
		}
	})

	t.Run("file", func(t *testing.T) {
		path := writeConfig(t, `
listen: ":9000"
uploads:
  max_files: 3
  allowed_kinds: [image, video]
  sweep_interval: 30m
files:
  backend: s3
  s3:
    bucket: board-uploads
    region: eu-west-1
records:
  backend: postgres
  postgres:
    dsn: postgres://localhost/board
`)
		cfg, err := loadConfig(path, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Listen != ":9000" || cfg.Uploads.MaxFiles != 3 {
			t.Errorf("unexpected config %+v", cfg)
		}
		if cfg.Uploads.SweepInterval != 30*time.Minute {
			t.Errorf("expected 30m, got %v", cfg.Uploads.SweepInterval)
		}
		if len(cfg.Uploads.AllowedKinds) != 2 {
			t.Errorf("expected 2 kinds, got %v", cfg.Uploads.AllowedKinds)
		}
		if cfg.Files.S3.Bucket != "board-uploads" || cfg.Files.S3.Prefix != "uploads" {
			t.Errorf("unexpected s3 config %+v", cfg.Files.S3)
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, "listen: \":9000\"\n")
		t.Setenv("BOARD_LISTEN", ":7000")
		t.Setenv("BOARD_REDIS_ADDR", "localhost:6379")
		cfg, err := loadConfig(path, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Listen != ":7000" {
			t.Errorf("expected env listen, got %q", cfg.Listen)
		}
		if cfg.Redis.Addr != "localhost:6379" {
			t.Errorf("expected env redis addr, got %q", cfg.Redis.Addr)
		}
	})

	t.Run("flags override environment", func(t *testing.T) {
		t.Setenv("BOARD_LISTEN", ":7000")
		fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
		addServeFlags(fs)
		if err := fs.Parse([]string{"--listen", ":6000", "--max-files", "4"}); err != nil {
			t.Fatalf("parse flags: %v", err)
		}
		cfg, err := loadConfig("", fs)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Listen != ":6000" || cfg.Uploads.MaxFiles != 4 {
			t.Errorf("expected flag values, got listen=%q max_files=%d", cfg.Listen, cfg.Uploads.MaxFiles)
		}
	})

	t.Run("missing explicit file", func(t *testing.T) {
		if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			LogLevel: "info",
			Files:    FilesConfig{Backend: "local", Local: LocalConfig{Dir: "/tmp/x"}},
			Records:  RecordsConfig{Backend: "memory"},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"unknown file backend", func(c *Config) { c.Files.Backend = "ftp" }, false},
		{"s3 without bucket", func(c *Config) { c.Files.Backend = "s3" }, false},
		{"gcs without bucket", func(c *Config) { c.Files.Backend = "gcs" }, false},
		{"postgres without dsn", func(c *Config) { c.Records.Backend = "postgres" }, false},
		{"mongo without uri", func(c *Config) { c.Records.Backend = "mongo" }, false},
		{"unknown record backend", func(c *Config) { c.Records.Backend = "sqlite" }, false},
		{"negative limit", func(c *Config) { c.Uploads.MaxFiles = -1 }, false},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLimitsFromConfig(t *testing.T) {
	l := limitsFromConfig(UploadsConfig{MaxFileSize: 5, MaxFiles: 2, AllowedKinds: []string{"image"}})
	if l.MaxFileSize != 5 || l.MaxFiles != 2 {
		t.Errorf("unexpected limits %+v", l)
	}
	if len(l.AllowedKinds) != 1 || l.AllowedKinds[0] != board.KindImage {
		t.Errorf("unexpected kinds %v", l.AllowedKinds)
	}
}

func TestRouter(t *testing.T) {
	ctx := context.Background()
	cfg, err := loadConfig("", nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Metrics.Enabled = false
	cfg.Files.Local.Dir = t.TempDir()

	svc, err := openService(ctx, cfg, newLogger(cfg))
	if err != nil {
		t.Fatalf("open service: %v", err)
	}
	defer svc.Close(ctx)

	srv := httptest.NewServer(newRouter(svc, cfg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("unexpected healthz response %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(srv.URL + "/uploads/missing.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}
