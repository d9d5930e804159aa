package scoring

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/platform/ai/textgen"
	"leadflow_backend/platform/cache"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	reply string
	err   error
	block bool
	calls atomic.Int32
}

func (g *fakeGenerator) Generate(ctx context.Context, _ string, _ textgen.Options) (string, error) {
	g.calls.Add(1)
	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return g.reply, g.err
}

type denyGate struct{ reason string }

func (d denyGate) AllowModel(context.Context, uuid.UUID, uuid.UUID) (bool, string) {
	return false, d.reason
}

func testSettings() config.ScoringSettings {
	return config.DefaultGovernance().Scoring
}

func newEngine(gen textgen.Generator, c cache.Cache) *Engine {
	return NewEngine(gen, c, testSettings(), logger.New("test"))
}

func hotScenario() Input {
	latency := 20 * time.Minute
	return Input{
		TenantID:            uuid.New(),
		LeadID:              uuid.New(),
		Message:             "I want to buy now, what's the price?",
		ResponseLatency:     &latency,
		InteractionCount:    4,
		HasVerifiedChannel:  true,
		TemperatureOverride: "HOT",
	}
}

func TestDeterministicScoreIsStable(t *testing.T) {
	e := newEngine(nil, nil)
	in := hotScenario()

	first := e.Score(context.Background(), in, Options{})
	second := e.Score(context.Background(), in, Options{})

	assert.Equal(t, first, second)
	assert.Nil(t, first.Breakdown.Model)
	assert.Len(t, first.Breakdown.Rules, 6)
	assert.NotEmpty(t, first.Breakdown.Explanations)
}

func TestHotScenarioDeterministicBreakdown(t *testing.T) {
	e := newEngine(nil, nil)
	res := e.Score(context.Background(), hotScenario(), Options{})

	points := map[string]int{}
	for _, r := range res.Breakdown.Rules {
		points[r.Signal] = r.Points
	}
	assert.Equal(t, 15, points["response_latency"])
	assert.Equal(t, 20, points["buying_intent"])
	assert.Equal(t, 10, points["engagement"])
	assert.Equal(t, 4, points["message_detail"])
	assert.Equal(t, 10, points["verified_channel"])
	assert.Equal(t, 20, points["temperature_override"])
	assert.Equal(t, 79, res.Breakdown.Deterministic)
	assert.GreaterOrEqual(t, res.Breakdown.Deterministic, 65)
	assert.Equal(t, domain.TierHot, res.Tier)
}

func TestHotScenarioStaysHotWithAnyModelScore(t *testing.T) {
	for _, modelScore := range []string{"0", "7", "15", "30"} {
		gen := &fakeGenerator{reply: `{"score": ` + modelScore + `, "explanation": "ok"}`}
		e := newEngine(gen, nil)

		res := e.Score(context.Background(), hotScenario(), Options{IncludeModelScore: true})
		require.NotNil(t, res.Breakdown.Model)
		assert.Equal(t, domain.TierHot, res.Tier, "model score %s", modelScore)
		assert.GreaterOrEqual(t, res.Score, 61)
	}
}

func TestMinimalLeadIsCold(t *testing.T) {
	e := newEngine(nil, nil)
	res := e.Score(context.Background(), Input{LeadID: uuid.New()}, Options{})

	assert.Equal(t, 10, res.Breakdown.Deterministic)
	assert.Equal(t, 10, res.Score)
	assert.Equal(t, domain.TierCold, res.Category)
	assert.Equal(t, domain.TierCold, res.Tier)
	assert.Equal(t, []string{"no manual temperature set"}, res.Breakdown.Explanations)
}

func TestRulePointsAreScaledAgainstHundred(t *testing.T) {
	e := newEngine(nil, nil)
	res := e.Score(context.Background(), hotScenario(), Options{})

	assert.Equal(t, 90, res.Breakdown.DeterministicMax)
	assert.Equal(t, 79, res.Breakdown.Deterministic)
	assert.Equal(t, 79, res.Score)

	gen := &fakeGenerator{reply: `{"score": 30, "explanation": "ready to buy"}`}
	withModel := newEngine(gen, nil).Score(context.Background(), hotScenario(), Options{IncludeModelScore: true})
	assert.Equal(t, 84, withModel.Score) // round(100 * (79+30) / 130)
}

func TestCategoryThresholds(t *testing.T) {
	assert.Equal(t, domain.TierHot, CategoryForScore(80))
	assert.Equal(t, domain.TierHot, CategoryForScore(75))
	assert.Equal(t, domain.TierWarm, CategoryForScore(55))
	assert.Equal(t, domain.TierWarm, CategoryForScore(50))
	assert.Equal(t, domain.TierCold, CategoryForScore(10))
}

func TestModelErrorFallsBack(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("provider down")}
	e := newEngine(gen, nil)

	res := e.Score(context.Background(), hotScenario(), Options{IncludeModelScore: true})
	require.NotNil(t, res.Breakdown.Model)
	assert.Equal(t, fallbackModelScore(), *res.Breakdown.Model)
	assert.Equal(t, 72, res.Score) // round(100 * (79+15) / 130)
}

func TestModelTimeoutFallsBack(t *testing.T) {
	gen := &fakeGenerator{block: true}
	settings := testSettings()
	settings.ModelTimeout = 20 * time.Millisecond
	e := NewEngine(gen, nil, settings, logger.New("test"))

	start := time.Now()
	res := e.Score(context.Background(), hotScenario(), Options{IncludeModelScore: true})
	require.NotNil(t, res.Breakdown.Model)
	assert.True(t, res.Breakdown.Model.Fallback)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestUnparseableModelReplyFallsBack(t *testing.T) {
	e := newEngine(&fakeGenerator{reply: "I think this lead is great"}, nil)
	res := e.Score(context.Background(), hotScenario(), Options{IncludeModelScore: true})
	require.NotNil(t, res.Breakdown.Model)
	assert.True(t, res.Breakdown.Model.Fallback)
}

func TestParseModelReplyClamps(t *testing.T) {
	ms, err := parseModelReply("Sure! {\"score\": 45, \"explanation\": \"very keen\"}")
	require.NoError(t, err)
	assert.Equal(t, 30, ms.Score)
	assert.Equal(t, "very keen", ms.Explanation)

	ms, err = parseModelReply(`{"score": -3}`)
	require.NoError(t, err)
	assert.Equal(t, 0, ms.Score)

	_, err = parseModelReply("no json here")
	assert.Error(t, err)
}

func TestGateDenialSkipsModel(t *testing.T) {
	gen := &fakeGenerator{reply: `{"score": 30}`}
	e := newEngine(gen, nil)

	res := e.Score(context.Background(), hotScenario(), Options{IncludeModelScore: true, Gate: denyGate{reason: "tenant_paused"}})
	assert.Nil(t, res.Breakdown.Model)
	assert.Equal(t, "tenant_paused", res.Breakdown.ModelSkipped)
	assert.Equal(t, 79, res.Score)
	assert.Equal(t, int32(0), gen.calls.Load())
}

func TestModelScoreIsCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	gen := &fakeGenerator{reply: `{"score": 21, "explanation": "asked for pricing"}`}
	e := newEngine(gen, cache.New(client, "scoring"))
	in := hotScenario()

	first := e.Score(context.Background(), in, Options{IncludeModelScore: true})
	second := e.Score(context.Background(), in, Options{IncludeModelScore: true})

	assert.Equal(t, int32(1), gen.calls.Load())
	require.NotNil(t, second.Breakdown.Model)
	assert.True(t, second.Breakdown.Model.Cached)
	assert.Equal(t, first.Score, second.Score)

	in.Message = "Actually, can you send a quote for two units?"
	_ = e.Score(context.Background(), in, Options{IncludeModelScore: true})
	assert.Equal(t, int32(2), gen.calls.Load())
}

func TestIntentKeywordsCountDistinctWholeWords(t *testing.T) {
	words := intentWords{high: []string{"buy", "price"}, medium: []string{"quote"}}

	r := scoreIntent("Buying? No. But the PRICE, the price and a quote please", words)
	assert.Equal(t, 12, r.Points) // price once (8) + quote (4); "buying" is not "buy"
}
