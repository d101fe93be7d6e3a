package app

import (
	"context"
	"strings"
	"testing"

	"github.com/suPer8Hu/canvas-platform/internal/config"
)

func TestProviders(t *testing.T) {
	names := Providers(config.Config{}).Names()
	if strings.Join(names, ",") != "gemini,ollama,openrouter" {
		t.Fatalf("unexpected providers: %v", names)
	}
}

func TestGateway(t *testing.T) {
	cfg := config.Config{AIProvider: "ollama", AIModel: "llama3:latest", OllamaBaseURL: "http://localhost:11434"}
	gw, err := Gateway(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	if gw.Name() != "ollama" {
		t.Fatalf("unexpected gateway name %q", gw.Name())
	}

	if _, err := Gateway(context.Background(), config.Config{AIProvider: "gemini"}, nil); err == nil {
		t.Fatalf("expected an error without an api key")
	}
	if _, err := Gateway(context.Background(), config.Config{AIProvider: "nope"}, nil); err == nil {
		t.Fatalf("expected an error for an unknown provider")
	}
}

func TestDatabase(t *testing.T) {
	gdb, err := Database(config.Config{DBDriver: "sqlite", DBDSN: "file:app_test?mode=memory&cache=shared"})
	if err != nil {
		t.Fatalf("database: %v", err)
	}
	if !gdb.Migrator().HasTable("turn_jobs") {
		t.Fatalf("migrations did not run")
	}
}
