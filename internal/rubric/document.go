package rubric

// Document is the on-disk rubric shape. It is decoded from YAML and resolved
// into a core.Rubric by Load.
type Document struct {
	Name               string         `yaml:"name" validate:"required"`
	Version            string         `yaml:"version"`
	Scale              *ScaleDoc      `yaml:"scale"`
	DissentThreshold   *float64       `yaml:"dissent_threshold" validate:"omitempty,gte=0"`
	RequiredCategories []string       `yaml:"required_categories" validate:"dive,required"`
	Gate               GateDoc        `yaml:"gate"`
	Judges             []JudgeDoc     `yaml:"judges" validate:"required,min=1,dive"`
	Dimensions         []DimensionDoc `yaml:"dimensions" validate:"required,min=1,dive"`
}

// ScaleDoc declares a discrete score range.
type ScaleDoc struct {
	Min int `yaml:"min"`
	Max int `yaml:"max" validate:"gtfield=Min"`
}

// GateDoc declares the evidence aggregator thresholds.
type GateDoc struct {
	CompletenessThreshold *float64 `yaml:"completeness_threshold" validate:"omitempty,gte=0,lte=1"`
	FailureTolerance      *float64 `yaml:"failure_tolerance" validate:"omitempty,gte=0,lte=1"`
}

// JudgeDoc declares one judge.
type JudgeDoc struct {
	Name     string `yaml:"name" validate:"required,ident"`
	Persona  string `yaml:"persona"`
	Provider string `yaml:"provider"`
}

// DimensionDoc declares one rubric dimension.
type DimensionDoc struct {
	ID                 string             `yaml:"id" validate:"required,ident"`
	Name               string             `yaml:"name"`
	Scale              *ScaleDoc          `yaml:"scale"`
	Weight             *float64           `yaml:"weight" validate:"omitempty,gt=0"`
	JudgeWeights       map[string]float64 `yaml:"judge_weights"`
	DissentThreshold   *float64           `yaml:"dissent_threshold" validate:"omitempty,gte=0"`
	EvidenceCategories []string           `yaml:"evidence_categories" validate:"required,min=1,dive,required"`
	TargetArtifact     string             `yaml:"target_artifact"`
	Instruction        string             `yaml:"instruction"`
	Levels             []int              `yaml:"levels"`
	Rules              []RuleDoc          `yaml:"rules" validate:"dive"`
}

// RuleDoc declares a synthesis rule.
type RuleDoc struct {
	ID          string         `yaml:"id" validate:"required"`
	Priority    int            `yaml:"priority"`
	Description string         `yaml:"description"`
	When        PredicateDoc   `yaml:"when"`
	Then        ConsequenceDoc `yaml:"then"`
}

// PredicateDoc is the YAML form of core.Predicate.
type PredicateDoc struct {
	Kind     string         `yaml:"kind" validate:"required"`
	Category string         `yaml:"category"`
	Finding  string         `yaml:"finding"`
	Judge    string         `yaml:"judge"`
	Value    *float64       `yaml:"value"`
	Of       []PredicateDoc `yaml:"of"`
}

// ConsequenceDoc is the YAML form of core.Consequence.
type ConsequenceDoc struct {
	Kind  string   `yaml:"kind" validate:"required,oneof=cap penalize flag"`
	Value *float64 `yaml:"value"`
	Label string   `yaml:"label"`
}
