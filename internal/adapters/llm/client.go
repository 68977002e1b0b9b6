// Package llm provides the opinion providers that score a rubric: an
// OpenAI-compatible judge, the multimodal image describer used by the vision
// inspector, and a deterministic offline judge.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

// Config configures the OpenAI-compatible endpoint.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	VisionModel string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
}

// DefaultModel is used when no model is configured.
const DefaultModel = "openai/gpt-4o-mini"

func (c Config) model() string {
	if c.Model == "" {
		return DefaultModel
	}
	return c.Model
}

func (c Config) visionModel() string {
	if c.VisionModel == "" {
		return c.model()
	}
	return c.VisionModel
}

func newClient(cfg Config) (*openai.Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, core.ErrConfiguration("llm.api_key", "an API key is required for the openai provider (or use --offline)")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	return openai.NewClientWithConfig(oc), nil
}

// classifyError converts client errors to domain errors so the stage
// controller knows which failures are worth another attempt.
func classifyError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.ErrTimeout(op + " timed out").WithCause(err)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusTooManyRequests:
		return core.ErrRateLimit(op + " was rate limited").WithCause(err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return core.ErrValidation(core.CodeLLMRejected, op+": endpoint rejected the credentials").WithCause(err)
	case status >= 400 && status < 500:
		return core.ErrValidation(core.CodeLLMRejected, fmt.Sprintf("%s: request rejected with status %d", op, status)).WithCause(err)
	case status >= 500:
		return core.ErrExecution(core.CodeLLMFailed, fmt.Sprintf("%s: endpoint returned status %d", op, status)).WithCause(err)
	case status == 0 && apiErr == nil && reqErr == nil:
		return core.ErrNetwork(op + " failed: " + err.Error()).WithCause(err)
	default:
		return core.ErrExecution(core.CodeLLMFailed, op+" failed").WithCause(err)
	}
}

// firstContent returns the first choice's text.
func firstContent(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", core.ErrExecution(core.CodeLLMFailed, "endpoint returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
