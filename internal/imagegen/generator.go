// Package imagegen turns scene prompts into PNG images.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/emaki/internal/config"
	"go.uber.org/zap"
)

// ErrGeneration wraps every provider-side failure so callers can map it to a gateway error.
var ErrGeneration = errors.New("image generation failed")

// Generator produces an encoded image for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// Prompt builds the generation prompt for a scene in the given style.
func Prompt(style, scene string) string {
	return fmt.Sprintf("Make a %s image of %s", strings.TrimSpace(style), strings.TrimSpace(scene))
}

// New creates the generator selected by cfg.Provider.
func New(cfg *config.ImageConfig, logger *zap.Logger) (Generator, error) {
	switch cfg.Provider {
	case config.ImageProviderTogether, "":
		return NewTogetherGenerator(cfg, logger)
	case config.ImageProviderPlaceholder:
		return NewPlaceholderGenerator(cfg.Width, cfg.Height), nil
	default:
		return nil, fmt.Errorf("unknown image provider: %s", cfg.Provider)
	}
}
