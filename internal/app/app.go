// Package app wires configuration into the services shared by the api and
// worker binaries.
package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/suPer8Hu/canvas-platform/internal/ai"
	"github.com/suPer8Hu/canvas-platform/internal/config"
	"github.com/suPer8Hu/canvas-platform/internal/db"
	"github.com/suPer8Hu/canvas-platform/internal/metrics"
)

// Providers registers every supported model backend.
func Providers(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register("gemini", func(_ context.Context, model string) (ai.Provider, error) {
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is not set")
		}
		return ai.NewGeminiProvider(cfg.GeminiBaseURL, cfg.GeminiAPIKey, model), nil
	})
	reg.Register("ollama", func(_ context.Context, model string) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, model), nil
	})
	reg.Register("openrouter", func(_ context.Context, model string) (ai.Provider, error) {
		if cfg.OpenRouterAPIKey == "" {
			return nil, fmt.Errorf("OPENROUTER_API_KEY is not set")
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, model, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})
	return reg
}

// Gateway builds the configured provider once and wraps it.
func Gateway(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*ai.Gateway, error) {
	p, err := Providers(cfg).Get(ctx, cfg.AIProvider, cfg.AIModel)
	if err != nil {
		return nil, err
	}
	return ai.NewGateway(cfg.AIProvider, p,
		ai.WithTimeout(cfg.AITimeout),
		ai.WithPromptPrefix(cfg.AIPromptPrefix),
		ai.WithObserver(m),
	), nil
}

// Database connects and migrates.
func Database(cfg config.Config) (*gorm.DB, error) {
	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.DBDriver, err)
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return gdb, nil
}
