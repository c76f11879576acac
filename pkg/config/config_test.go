package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hutch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
store:
  dir: /tmp/hutch-test
  engine: bolt
  sync_writes: true
log:
  level: debug
  json: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Dir != "/tmp/hutch-test" {
		t.Errorf("Dir = %q", cfg.Store.Dir)
	}
	if cfg.Store.Engine != "bolt" {
		t.Errorf("Engine = %q", cfg.Store.Engine)
	}
	if !cfg.Store.SyncWrites {
		t.Error("SyncWrites = false")
	}
	if cfg.Log.Level != "debug" || !cfg.Log.JSON {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `store: {}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Engine != "" || cfg.Store.Dir != "" {
		t.Errorf("unexpected defaults: %+v", cfg.Store)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Level = %q, want info", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{
			name:    "unknown engine",
			content: "store:\n  engine: rocksdb\n",
			wantErr: true,
		},
		{
			name:    "bolt without dir",
			content: "store:\n  engine: bolt\n",
			wantErr: true,
		},
		{
			name:    "bad log level",
			content: "log:\n  level: loud\n",
			wantErr: true,
		},
		{
			name:    "memory without dir is fine",
			content: "store:\n  engine: memory\n",
			wantErr: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
