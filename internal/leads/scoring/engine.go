package scoring

import (
	"context"
	"math"
	"time"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/platform/ai/textgen"
	"leadflow_backend/platform/cache"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Category thresholds for the reported score category.
const (
	hotCategoryMin  = 75
	warmCategoryMin = 50
)

// Input carries the lead signals the engine reads.
type Input struct {
	TenantID            uuid.UUID
	LeadID              uuid.UUID
	Message             string
	ResponseLatency     *time.Duration
	InteractionCount    int
	HasVerifiedChannel  bool
	TemperatureOverride string
}

type Options struct {
	IncludeModelScore bool
	CampaignContext   string
	// Gate is consulted on a model cache miss before the generator is called.
	Gate ModelGate
}

type Breakdown struct {
	Deterministic    int         `json:"deterministic"`
	DeterministicMax int         `json:"deterministicMax"`
	Rules            []Rule      `json:"rules"`
	Model            *ModelScore `json:"model,omitempty"`
	ModelSkipped     string      `json:"modelSkipped,omitempty"`
	Explanations     []string    `json:"explanations"`
}

type Result struct {
	Score     int         `json:"score"`
	Category  domain.Tier `json:"category"`
	Tier      domain.Tier `json:"tier"`
	Breakdown Breakdown   `json:"breakdown"`
}

// CategoryForScore maps a total score to its category: HOT >= 75, WARM >= 50.
func CategoryForScore(score int) domain.Tier {
	switch {
	case score >= hotCategoryMin:
		return domain.TierHot
	case score >= warmCategoryMin:
		return domain.TierWarm
	default:
		return domain.TierCold
	}
}

// Engine computes lead scores. It holds no per-lead state.
type Engine struct {
	gen      textgen.Generator
	cache    cache.Cache
	settings config.ScoringSettings
	words    intentWords
	log      *logger.Logger
}

// NewEngine builds an engine. gen and c may be nil: without a generator the
// model sub-score is always the fallback, without a cache nothing is memoized.
func NewEngine(gen textgen.Generator, c cache.Cache, settings config.ScoringSettings, log *logger.Logger) *Engine {
	if settings.ModelTimeout <= 0 {
		settings.ModelTimeout = config.DefaultGovernance().Scoring.ModelTimeout
	}
	return &Engine{
		gen:      gen,
		cache:    c,
		settings: settings,
		words:    intentWords{high: settings.HighIntentWords, medium: settings.MediumIntentWords},
		log:      log,
	}
}

// Score never fails: model problems degrade to the fixed fallback.
func (e *Engine) Score(ctx context.Context, in Input, opts Options) Result {
	rules := evaluateRules(in, e.words)

	b := Breakdown{
		DeterministicMax: deterministicMax,
		Rules:            rules,
		Explanations:     make([]string, 0, len(rules)+1),
	}
	for _, r := range rules {
		b.Deterministic += r.Points
		if r.Points > 0 {
			b.Explanations = append(b.Explanations, r.Explanation)
		}
	}

	points, scale := b.Deterministic, deterministicScale
	if opts.IncludeModelScore {
		ms, skipped := e.modelScore(ctx, in, opts)
		if skipped != "" {
			b.ModelSkipped = skipped
			b.Explanations = append(b.Explanations, "model score skipped: "+skipped)
		} else {
			b.Model = &ms
			points += ms.Score
			scale += ms.MaxScore
			b.Explanations = append(b.Explanations, "model: "+ms.Explanation)
		}
	}

	total := int(math.Round(100 * float64(points) / float64(scale)))
	total = max(0, min(100, total))
	return Result{
		Score:     total,
		Category:  CategoryForScore(total),
		Tier:      domain.TierForScore(total),
		Breakdown: b,
	}
}
