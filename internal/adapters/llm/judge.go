package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/logging"
	"github.com/hugo-lorenzo-mato/tribunal/internal/service"
)

const judgeSystemPrompt = "You are a judge on a software audit tribunal. You reply with JSON only."

// Judge is an opinion provider backed by an OpenAI-compatible chat endpoint.
// Each call renders the persona's prompt over the evidence snapshot and asks
// for a JSON object of opinions.
type Judge struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	prompts     *service.PromptRenderer
	logger      *logging.Logger
}

// JudgeOption configures a Judge.
type JudgeOption func(*Judge)

// WithJudgeLogger sets the logger.
func WithJudgeLogger(l *logging.Logger) JudgeOption {
	return func(j *Judge) {
		j.logger = l
	}
}

// NewJudge creates the chat-completion opinion provider.
func NewJudge(cfg Config, prompts *service.PromptRenderer, opts ...JudgeOption) (*Judge, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	if prompts == nil {
		if prompts, err = service.NewPromptRenderer(); err != nil {
			return nil, err
		}
	}
	j := &Judge{
		client:      client,
		model:       cfg.model(),
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
		prompts:     prompts,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Name implements core.OpinionProvider.
func (j *Judge) Name() string { return ProviderOpenAI }

// Deliberate implements core.OpinionProvider.
func (j *Judge) Deliberate(ctx context.Context, evidence core.EvidenceSnapshot, persona core.Persona) ([]core.Opinion, error) {
	params := service.NewJudgePromptParams(persona, j.prompts.PersonaText(persona.Description), evidence)
	prompt, err := j.prompts.RenderJudge(params)
	if err != nil {
		return nil, err
	}

	logger := j.logger.WithWorker(persona.Judge)
	logger.Debug("requesting opinions", "model", j.model, "dimensions", len(persona.Dimensions), "evidence", evidence.Len())

	resp, err := j.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: j.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: judgeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:    j.temperature,
		MaxTokens:      j.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return nil, classifyError("judge "+persona.Judge, err)
	}
	content, err := firstContent(resp)
	if err != nil {
		return nil, err
	}
	logger.Debug("received opinions", "finish_reason", resp.Choices[0].FinishReason, "tokens", resp.Usage.TotalTokens)

	opinions, err := DecodeOpinions(persona.Judge, content)
	if err != nil {
		return nil, err
	}
	for i := range opinions {
		opinions[i].Rationale = logger.Sanitize(opinions[i].Rationale)
	}
	return opinions, nil
}

// opinionPayload is one opinion as the model writes it.
type opinionPayload struct {
	DimensionID      string      `json:"dimension_id"`
	Score            json.Number `json:"score"`
	Rationale        string      `json:"rationale"`
	CitedEvidenceIDs []string    `json:"cited_evidence_ids"`
}

// DecodeOpinions parses a model response into opinions signed by judge. It
// accepts {"opinions": [...]} or a bare array. Fractional scores are rounded;
// range checks are left to synthesis.
func DecodeOpinions(judge, content string) ([]core.Opinion, error) {
	var wrapped struct {
		Opinions []opinionPayload `json:"opinions"`
	}
	var payloads []opinionPayload
	if err := ParseJSON(content, &wrapped); err == nil && wrapped.Opinions != nil {
		payloads = wrapped.Opinions
	} else if err := ParseJSON(content, &payloads); err != nil {
		return nil, core.ErrOpinionValidation(judge, "response is not a JSON opinion list")
	}

	opinions := make([]core.Opinion, 0, len(payloads))
	for _, p := range payloads {
		score, err := p.Score.Int64()
		if err != nil {
			f, ferr := p.Score.Float64()
			if ferr != nil {
				return nil, core.ErrOpinionValidation(judge, "score for "+p.DimensionID+" is not a number")
			}
			// The scale is discrete: 7.0 is a 7, 7.5 is no score at all.
			if f != math.Trunc(f) {
				return nil, core.ErrOpinionValidation(judge,
					fmt.Sprintf("score %s for %s is not a whole number", p.Score, p.DimensionID))
			}
			score = int64(f)
		}
		opinions = append(opinions, core.Opinion{
			Judge:            judge,
			DimensionID:      strings.TrimSpace(p.DimensionID),
			Score:            int(score),
			Rationale:        strings.TrimSpace(p.Rationale),
			CitedEvidenceIDs: p.CitedEvidenceIDs,
		})
	}
	return opinions, nil
}
