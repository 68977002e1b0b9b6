package workflow

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/service"
)

// DefaultProvider is the registry key used for judges that do not name a provider.
const DefaultProvider = "default"

var opinionValidate = validator.New()

// Deliberator turns the rubric's judges into opinion-stage workers.
type Deliberator struct {
	rubric    *core.Rubric
	providers map[string]core.OpinionProvider
	retry     *service.RetryPolicy
	limiter   *service.RateLimiter
	limiters  *service.RateLimiterRegistry
}

// DeliberatorOption configures a deliberator.
type DeliberatorOption func(*Deliberator)

// WithJudgeRetry sets the per-judge timeout and retry bound.
func WithJudgeRetry(p *service.RetryPolicy) DeliberatorOption {
	return func(d *Deliberator) {
		d.retry = p
	}
}

// WithJudgeLimiter paces every judge call through a shared limiter.
func WithJudgeLimiter(l *service.RateLimiter) DeliberatorOption {
	return func(d *Deliberator) {
		d.limiter = l
	}
}

// WithJudgeLimiters paces judge calls per backend: judges whose providers
// share a Name share a bucket. It takes precedence over WithJudgeLimiter.
func WithJudgeLimiters(reg *service.RateLimiterRegistry) DeliberatorOption {
	return func(d *Deliberator) {
		d.limiters = reg
	}
}

// NewDeliberator binds every rubric judge to a provider. A judge's Provider
// field selects the registry entry; judges without one use DefaultProvider.
func NewDeliberator(rubric *core.Rubric, providers map[string]core.OpinionProvider, opts ...DeliberatorOption) (*Deliberator, error) {
	d := &Deliberator{
		rubric:    rubric,
		providers: providers,
		retry:     service.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(d)
	}
	for _, j := range rubric.Judges {
		if _, err := d.providerFor(j); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Deliberator) providerFor(j core.Judge) (core.OpinionProvider, error) {
	key := j.Provider
	if key == "" {
		key = DefaultProvider
	}
	p, ok := d.providers[key]
	if !ok || p == nil {
		return nil, core.ErrConfiguration("judges."+j.Name+".provider", fmt.Sprintf("no opinion provider registered as %q", key))
	}
	return p, nil
}

// Persona builds the deliberation input for one judge.
func (d *Deliberator) Persona(j core.Judge) core.Persona {
	return core.Persona{
		Judge:       j.Name,
		Description: j.Persona,
		Dimensions:  d.rubric.Dimensions,
	}
}

// Workers returns one opinion-stage worker per judge, in rubric order.
func (d *Deliberator) Workers() []Worker[core.EvidenceSnapshot, core.Opinion] {
	workers := make([]Worker[core.EvidenceSnapshot, core.Opinion], 0, len(d.rubric.Judges))
	for _, j := range d.rubric.Judges {
		provider, _ := d.providerFor(j)
		persona := d.Persona(j)
		limiter := d.limiterFor(provider)
		workers = append(workers, Worker[core.EvidenceSnapshot, core.Opinion]{
			Name:  j.Name,
			Retry: d.retry,
			Run: func(ctx context.Context, evidence core.EvidenceSnapshot) ([]core.Opinion, error) {
				return d.deliberate(ctx, provider, limiter, persona, evidence)
			},
		})
	}
	return workers
}

func (d *Deliberator) limiterFor(provider core.OpinionProvider) *service.RateLimiter {
	if d.limiters != nil {
		return d.limiters.Get(provider.Name())
	}
	return d.limiter
}

func (d *Deliberator) deliberate(ctx context.Context, provider core.OpinionProvider, limiter *service.RateLimiter, persona core.Persona, evidence core.EvidenceSnapshot) ([]core.Opinion, error) {
	if limiter != nil {
		if err := limiter.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}
	opinions, err := provider.Deliberate(ctx, evidence, persona)
	if err != nil {
		return nil, err
	}
	if err := d.checkStructure(persona.Judge, opinions); err != nil {
		return nil, err
	}
	return opinions, nil
}

// checkStructure rejects batches that cannot be attributed: a missing or
// foreign judge name, or an unknown dimension. Score range and citations are
// left to synthesis, which discards such opinions with a penalty event.
func (d *Deliberator) checkStructure(judge string, opinions []core.Opinion) error {
	if len(opinions) == 0 {
		return core.ErrOpinionValidation(judge, "no opinions returned")
	}
	for i, o := range opinions {
		if err := opinionValidate.Struct(o); err != nil {
			return core.ErrOpinionValidation(judge, fmt.Sprintf("opinion %d: %v", i, err))
		}
		if o.Judge != judge {
			return core.ErrOpinionValidation(judge, fmt.Sprintf("opinion %d is signed by %q", i, o.Judge))
		}
		if _, ok := d.rubric.Dimension(o.DimensionID); !ok {
			return core.ErrOpinionValidation(judge, fmt.Sprintf("opinion %d scores unknown dimension %q", i, o.DimensionID))
		}
	}
	return nil
}
