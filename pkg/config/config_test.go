package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"

	"tristate-ledger/internal/testutil"
)

func TestLoadConfigDefault(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir("../.."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	if _, err := Load(""); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if AppConfig.Store.SnapshotInterval != 100 {
		t.Fatalf("unexpected snapshot interval: %d", AppConfig.Store.SnapshotInterval)
	}
	if AppConfig.Engine.ClockSkewToleranceMS != 5000 {
		t.Fatalf("unexpected clock skew tolerance: %d", AppConfig.Engine.ClockSkewToleranceMS)
	}
}

func TestLoadConfigOverride(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir("../.."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	if _, err := Load("production"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if AppConfig.Store.SnapshotInterval != 500 {
		t.Fatalf("expected snapshot interval 500, got %d", AppConfig.Store.SnapshotInterval)
	}
	if AppConfig.Logging.Level != "warn" {
		t.Fatalf("expected logging level override to warn")
	}
	// unmerged fields retain the default configuration's values.
	if AppConfig.Store.Dir != "./data" {
		t.Fatalf("expected store dir to still be ./data, got %s", AppConfig.Store.Dir)
	}
}

func TestLoadConfigSandbox(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	if err := os.Mkdir(sb.Path("config"), 0700); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	data := []byte("store:\n  dir: /tmp/sandbox-boxes\n  snapshot_interval: 7\n")
	if err := sb.WriteFile("config/default.yaml", data, 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	if _, err := Load(""); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if AppConfig.Store.Dir != "/tmp/sandbox-boxes" {
		t.Fatalf("expected store dir /tmp/sandbox-boxes, got %s", AppConfig.Store.Dir)
	}
	if AppConfig.Store.SnapshotInterval != 7 {
		t.Fatalf("expected snapshot interval 7, got %d", AppConfig.Store.SnapshotInterval)
	}
}
