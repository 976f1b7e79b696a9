package imagegen

import (
	"bytes"
	"context"
	"crypto/sha256"
	"image"
	"image/color"
	"image/png"
)

// PlaceholderGenerator renders a flat-colour PNG whose colour is derived from the prompt.
// The same prompt always yields the same bytes.
type PlaceholderGenerator struct {
	width  int
	height int
}

// NewPlaceholderGenerator returns a generator for images of the given size. Non-positive sizes fall back to 64x48.
func NewPlaceholderGenerator(width, height int) *PlaceholderGenerator {
	if width <= 0 {
		width = 64
	}
	if height <= 0 {
		height = 48
	}
	return &PlaceholderGenerator{width: width, height: height}
}

// Generate encodes the placeholder image for prompt.
func (g *PlaceholderGenerator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(prompt))
	fill := color.RGBA{R: sum[0], G: sum[1], B: sum[2], A: 0xff}

	img := image.NewRGBA(image.Rect(0, 0, g.width, g.height))
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
