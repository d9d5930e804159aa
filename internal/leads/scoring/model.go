package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"leadflow_backend/platform/ai/textgen"
	"leadflow_backend/platform/metrics"

	"github.com/google/uuid"
)

const (
	modelMaxScore = 30

	modelPromptTemplate = `You are qualifying an inbound sales lead.
Rate how ready this lead is to buy on a scale from 0 to %d.
Reply with JSON only, no prose: {"score": <integer>, "explanation": "<one short sentence>"}

Campaign context: %s

Lead message:
"""
%s
"""`
)

// ModelScore is the model-generated sub-score.
type ModelScore struct {
	Score       int    `json:"score"`
	MaxScore    int    `json:"maxScore"`
	Explanation string `json:"explanation"`
	Fallback    bool   `json:"fallback,omitempty"`
	Cached      bool   `json:"cached,omitempty"`
}

func fallbackModelScore() ModelScore {
	return ModelScore{Score: 15, MaxScore: modelMaxScore, Explanation: "unavailable", Fallback: true}
}

// ModelGate decides whether a model call may be paid for. A false result
// carries the reason the model sub-score was skipped.
type ModelGate interface {
	AllowModel(ctx context.Context, tenantID, leadID uuid.UUID) (bool, string)
}

var errNoJSON = errors.New("model reply contains no JSON object")

type modelReply struct {
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

// modelScore returns the sub-score, or a non-empty skip reason when the gate
// refused the call. Failures of the generator never surface.
func (e *Engine) modelScore(ctx context.Context, in Input, opts Options) (ModelScore, string) {
	key := modelCacheKey(in, opts.CampaignContext)
	if e.cache != nil {
		var cached ModelScore
		if ok, err := e.cache.Get(ctx, key, &cached); err == nil && ok {
			cached.Cached = true
			return cached, ""
		} else if err != nil {
			e.log.BestEffortFailure("scoring_cache_get", err, "lead_id", in.LeadID.String())
		}
	}

	if e.gen == nil {
		metrics.ModelScoreFallbacks.Inc()
		return fallbackModelScore(), ""
	}

	if opts.Gate != nil {
		if ok, reason := opts.Gate.AllowModel(ctx, in.TenantID, in.LeadID); !ok {
			return ModelScore{}, reason
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.settings.ModelTimeout)
	defer cancel()

	campaign := strings.TrimSpace(opts.CampaignContext)
	if campaign == "" {
		campaign = "none"
	}
	prompt := fmt.Sprintf(modelPromptTemplate, modelMaxScore, campaign, strings.TrimSpace(in.Message))
	text, err := e.gen.Generate(callCtx, prompt, textgen.Options{MaxTokens: 200, Temperature: 0.2})
	if err != nil {
		metrics.ModelScoreFallbacks.Inc()
		e.log.Warn("model sub-score unavailable, using fallback", "lead_id", in.LeadID.String(), "error", err)
		return fallbackModelScore(), ""
	}

	ms, err := parseModelReply(text)
	if err != nil {
		metrics.ModelScoreFallbacks.Inc()
		e.log.Warn("model sub-score unparseable, using fallback", "lead_id", in.LeadID.String(), "error", err)
		return fallbackModelScore(), ""
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, key, ms, e.settings.ModelCacheTTL); err != nil {
			e.log.BestEffortFailure("scoring_cache_set", err, "lead_id", in.LeadID.String())
		}
	}
	return ms, ""
}

func parseModelReply(text string) (ModelScore, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ModelScore{}, errNoJSON
	}
	var reply modelReply
	if err := json.Unmarshal([]byte(text[start:end+1]), &reply); err != nil {
		return ModelScore{}, err
	}
	score := int(math.Round(reply.Score))
	score = max(0, min(modelMaxScore, score))
	explanation := strings.TrimSpace(reply.Explanation)
	if explanation == "" {
		explanation = "model assessment"
	}
	return ModelScore{Score: score, MaxScore: modelMaxScore, Explanation: explanation}, nil
}

func modelCacheKey(in Input, campaign string) string {
	sum := sha256.Sum256([]byte(in.Message + "\x00" + campaign))
	return "model:" + in.LeadID.String() + ":" + hex.EncodeToString(sum[:8])
}
