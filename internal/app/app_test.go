package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/autotab/api/internal/config"
	"github.com/autotab/api/internal/eventbus"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		SQLitePath:     filepath.Join(dir, "autotab.db"),
		OutputDir:      filepath.Join(dir, "outputs"),
		ManifestSecret: "secret",
		TestRatio:      0.25,
		Folds:          3,
		Seed:           42,
		ModelCacheSize: 2,
		RedisURL:       "redis://localhost:1/0",
		NATSURL:        "nats://localhost:1",
	}
}

func TestNewWithSQLiteFallbacks(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), zap.NewNop(), Options{Offline: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if a.Orchestrator == nil || a.Files == nil || a.Cache == nil {
		t.Fatal("Expected orchestrator, files and cache to be wired")
	}
	if _, ok := a.publisher.(eventbus.Nop); !ok {
		t.Errorf("Expected the no-op publisher offline, got %T", a.publisher)
	}

	deps := a.HealthDeps()
	if deps["database"] == nil {
		t.Error("Expected the database to be probed")
	}
	if deps["redis"] != nil || deps["nats"] != nil {
		t.Errorf("Expected redis and nats to be unconfigured offline, got %v", deps)
	}
	if err := deps["database"].Ping(context.Background()); err != nil {
		t.Errorf("database ping failed: %v", err)
	}
}

func TestNewRejectsBadOutputDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutputDir = filepath.Join(cfg.SQLitePath, "outputs")
	if _, err := New(context.Background(), cfg, zap.NewNop(), Options{Offline: true}); err == nil {
		t.Fatal("Expected an error when the output dir cannot be created")
	}
}
