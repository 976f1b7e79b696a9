package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/hyperjump/emaki/internal/config"
	"github.com/hyperjump/emaki/pkg/utils"
	"go.uber.org/zap"
)

// TogetherGenerator calls the Together AI images endpoint and returns the decoded PNG.
type TogetherGenerator struct {
	client   *retryablehttp.Client
	endpoint string
	model    string
	apiKey   string
	width    int
	height   int
	steps    int
	logger   *zap.Logger
}

type generationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Steps          int    `json:"steps"`
	N              int    `json:"n"`
	ResponseFormat string `json:"response_format"`
}

type generationResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// NewTogetherGenerator creates a generator for cfg.Endpoint. The API key is read from cfg.APIKeyEnv.
func NewTogetherGenerator(cfg *config.ImageConfig, logger *zap.Logger) (*TogetherGenerator, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("image endpoint is required for the together provider")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("image model is required for the together provider")
	}
	return &TogetherGenerator{
		client:   utils.NewRetryClient(cfg.Timeout(), cfg.MaxRetries, logger),
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		apiKey:   cfg.APIKey(),
		width:    cfg.Width,
		height:   cfg.Height,
		steps:    cfg.Steps,
		logger:   logger,
	}, nil
}

// Generate requests a single image for prompt.
func (g *TogetherGenerator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	body, err := json.Marshal(generationRequest{
		Model:          g.model,
		Prompt:         prompt,
		Width:          g.width,
		Height:         g.height,
		Steps:          g.steps,
		N:              1,
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/v1/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: provider returned %d: %s", ErrGeneration, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var decoded generationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrGeneration, err)
	}
	if len(decoded.Data) == 0 || decoded.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("%w: response contained no image", ErrGeneration)
	}
	img, err := base64.StdEncoding.DecodeString(decoded.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrGeneration, err)
	}
	if g.logger != nil {
		g.logger.Debug("generated image", zap.String("model", g.model), zap.Int("bytes", len(img)))
	}
	return img, nil
}
