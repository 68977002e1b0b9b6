package llm

import (
	"github.com/hugo-lorenzo-mato/tribunal/internal/config"
	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/logging"
	"github.com/hugo-lorenzo-mato/tribunal/internal/service"
)

// Provider names accepted by judges.provider and by a rubric judge's provider field.
const (
	ProviderOpenAI    = "openai"
	ProviderHeuristic = "heuristic"
)

// ConfigFromSettings maps the llm configuration section.
func ConfigFromSettings(c config.LLMConfig) Config {
	return Config{
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		Model:       c.Model,
		VisionModel: c.VisionModel,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	}
}

// Providers is the set of opinion providers a run can bind judges to.
type Providers struct {
	// ByName holds every available provider.
	ByName map[string]core.OpinionProvider
	// Default is the name judges without an explicit provider use.
	Default string
}

// NewProviders builds the opinion providers. The heuristic judge is always
// available; the OpenAI judge is added when an API key is configured. Offline
// runs bind every judge to the heuristic judge, including judges that name
// the openai provider in the rubric.
func NewProviders(cfg Config, defaultProvider string, offline bool, prompts *service.PromptRenderer, logger *logging.Logger) (*Providers, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Providers{
		ByName:  map[string]core.OpinionProvider{ProviderHeuristic: NewHeuristicJudge()},
		Default: defaultProvider,
	}
	if p.Default == "" {
		p.Default = ProviderOpenAI
	}
	if offline {
		p.Default = ProviderHeuristic
		p.ByName[ProviderOpenAI] = p.ByName[ProviderHeuristic]
		return p, nil
	}

	if p.Default != ProviderOpenAI && p.Default != ProviderHeuristic {
		return nil, core.ErrConfiguration("judges.provider", "unknown provider "+p.Default)
	}

	if cfg.APIKey != "" || p.Default == ProviderOpenAI {
		judge, err := NewJudge(cfg, prompts, WithJudgeLogger(logger))
		if err != nil {
			return nil, err
		}
		p.ByName[ProviderOpenAI] = judge
	}
	return p, nil
}

// DefaultProvider returns the provider judges fall back to.
func (p *Providers) DefaultProvider() core.OpinionProvider {
	return p.ByName[p.Default]
}
