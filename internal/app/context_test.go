package app

import (
	"context"
	"os"
	"testing"

	"caseline/internal/config"
	"caseline/internal/migrate"
)

func TestOpenSeedsServicesFromConfig(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()
	latest, err := migrate.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if a.SchemaVersion != latest {
		t.Fatalf("expected schema version %d, got %d", latest, a.SchemaVersion)
	}
	items, err := a.Engine.ListServices(context.Background())
	if err != nil {
		t.Fatalf("list services: %v", err)
	}
	if len(items) != len(config.Default().Services) {
		t.Fatalf("expected %d services, got %d", len(config.Default().Services), len(items))
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(config.Path(dir), []byte("case:\n  code_prefix: x\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Open(context.Background(), dir, false); err == nil {
		t.Fatalf("expected invalid config to fail")
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger("debug", true); err != nil {
		t.Fatalf("debug logger: %v", err)
	}
	if _, err := NewLogger("loud", false); err == nil {
		t.Fatalf("expected unknown level to fail")
	}
}
