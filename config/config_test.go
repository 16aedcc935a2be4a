package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.DataDir != "data" {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, "data")
	}
	if cfg.HistoryLimit != 3600 {
		t.Errorf("HistoryLimit = %v, want 3600", cfg.HistoryLimit)
	}
	if cfg.PublicAddr != ":8080" {
		t.Errorf("PublicAddr = %q, want %q", cfg.PublicAddr, ":8080")
	}
	if cfg.PrivateAddr != "127.0.0.1:8081" {
		t.Errorf("PrivateAddr = %q, want %q", cfg.PrivateAddr, "127.0.0.1:8081")
	}
	if cfg.SnapshotInterval.Duration() != 60*time.Second {
		t.Errorf("SnapshotInterval = %v, want 60s", cfg.SnapshotInterval.Duration())
	}
	if cfg.SnapshotThreshold != 4096 {
		t.Errorf("SnapshotThreshold = %v, want 4096", cfg.SnapshotThreshold)
	}
	if cfg.SubscriberBuffer != 64 {
		t.Errorf("SubscriberBuffer = %v, want 64", cfg.SubscriberBuffer)
	}
}

func TestParse_FullConfig(t *testing.T) {
	yaml := `
data_dir: /var/lib/swec
history_limit: 100
public_addr: ":9090"
private_addr: "127.0.0.1:9091"
snapshot_interval: 5m
snapshot_threshold: 128
subscriber_buffer: 16
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.DataDir != "/var/lib/swec" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.HistoryLimit != 100 {
		t.Errorf("HistoryLimit = %v, want 100", cfg.HistoryLimit)
	}
	if cfg.SnapshotInterval.Duration() != 5*time.Minute {
		t.Errorf("SnapshotInterval = %v, want 5m", cfg.SnapshotInterval.Duration())
	}
	if cfg.SnapshotThreshold != 128 {
		t.Errorf("SnapshotThreshold = %v, want 128", cfg.SnapshotThreshold)
	}
	if cfg.SubscriberBuffer != 16 {
		t.Errorf("SubscriberBuffer = %v, want 16", cfg.SubscriberBuffer)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad yaml", "data_dir: [", "parse YAML"},
		{"bad duration", "snapshot_interval: fast", "invalid duration"},
		{"tiny interval", "snapshot_interval: 100ms", "at least 1s"},
		{"negative history", "history_limit: -1", "history_limit"},
		{"negative threshold", "snapshot_threshold: -5", "snapshot_threshold"},
		{"negative buffer", "subscriber_buffer: -1", "subscriber_buffer"},
		{"same addrs", "public_addr: \":8080\"\nprivate_addr: \":8080\"", "must differ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() did not error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("SWEC_TEST_DIR", "/srv/swec")

	cfg, err := Parse([]byte("data_dir: ${SWEC_TEST_DIR}/state"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.DataDir != "/srv/swec/state" {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, "/srv/swec/state")
	}

	cfg, err = Parse([]byte("public_addr: \"${SWEC_TEST_UNSET_ADDR:-:7070}\""))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.PublicAddr != ":7070" {
		t.Errorf("PublicAddr = %q, want default-expanded :7070", cfg.PublicAddr)
	}

	if _, err := Parse([]byte("data_dir: ${SWEC_TEST_MISSING_VAR}")); err == nil {
		t.Error("Parse() with unset variable and no default did not error")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swec.yaml")
	if err := os.WriteFile(path, []byte("public_addr: \":9999\""), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.PublicAddr != ":9999" {
		t.Errorf("PublicAddr = %q, want :9999", cfg.PublicAddr)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of missing file did not error")
	}
}
