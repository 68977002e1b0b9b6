package llm

import (
	"context"
	"encoding/base64"

	"github.com/sashabaranov/go-openai"

	"github.com/hugo-lorenzo-mato/tribunal/internal/adapters/detective"
	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/logging"
	"github.com/hugo-lorenzo-mato/tribunal/internal/service"
)

// VisionDescriber sends one image at a time to a multimodal chat model.
type VisionDescriber struct {
	client    *openai.Client
	model     string
	maxTokens int
	concepts  []string
	prompts   *service.PromptRenderer
	logger    *logging.Logger
}

// VisionOption configures the describer.
type VisionOption func(*VisionDescriber)

// WithVisionConcepts lists concepts the model should look for in diagrams.
func WithVisionConcepts(concepts ...string) VisionOption {
	return func(v *VisionDescriber) {
		v.concepts = concepts
	}
}

// WithVisionLogger sets the logger.
func WithVisionLogger(l *logging.Logger) VisionOption {
	return func(v *VisionDescriber) {
		v.logger = l
	}
}

// NewVisionDescriber creates the image describer. It uses VisionModel, or
// Model when no vision model is configured.
func NewVisionDescriber(cfg Config, prompts *service.PromptRenderer, opts ...VisionOption) (*VisionDescriber, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	if prompts == nil {
		if prompts, err = service.NewPromptRenderer(); err != nil {
			return nil, err
		}
	}
	v := &VisionDescriber{
		client:    client,
		model:     cfg.visionModel(),
		maxTokens: cfg.MaxTokens,
		prompts:   prompts,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// DescribeImage implements detective.ImageDescriber.
func (v *VisionDescriber) DescribeImage(ctx context.Context, req detective.ImageRequest) (detective.ImageFinding, error) {
	prompt, err := v.prompts.RenderVision(service.VisionPromptParams{
		Image:       req.Name,
		Instruction: req.Instruction,
		Concepts:    v.concepts,
	})
	if err != nil {
		return detective.ImageFinding{}, err
	}

	v.logger.Debug("describing image", "image", req.Name, "model", v.model, "bytes", len(req.Data))
	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: v.model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    DataURL(req.MimeType, req.Data),
					Detail: openai.ImageURLDetailAuto,
				}},
			},
		}},
		MaxTokens:      v.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return detective.ImageFinding{}, classifyError("vision "+req.Name, err)
	}
	content, err := firstContent(resp)
	if err != nil {
		return detective.ImageFinding{}, err
	}

	var finding detective.ImageFinding
	if err := ParseJSON(content, &finding); err != nil {
		return detective.ImageFinding{}, core.ErrExecution(core.CodeParseFailed, "vision response for "+req.Name+" is not JSON").WithCause(err)
	}
	finding.Confidence = max(0, min(100, finding.Confidence))
	finding.Description = v.logger.Sanitize(finding.Description)
	return finding, nil
}

// DataURL encodes an image as a base64 data URL.
func DataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
