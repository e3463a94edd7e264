package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/sprint-planner-api/internal/config"
	"github.com/phrazzld/sprint-planner-api/internal/generation"
	"github.com/phrazzld/sprint-planner-api/internal/platform/gemini"
	"github.com/phrazzld/sprint-planner-api/internal/platform/openai"
)

// newGenerator builds the generation provider named in cfg.
func newGenerator(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (generation.Generator, error) {
	switch cfg.Provider {
	case "dummy":
		return generation.NewDummyGenerator(), nil
	case "gemini":
		g, err := gemini.NewGeminiGenerator(ctx, logger, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gemini generator: %w", err)
		}
		return g, nil
	case "openai":
		g, err := openai.NewGenerator(logger, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai generator: %w", err)
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", cfg.Provider)
	}
}
