package scoring

import (
	"fmt"
	"strings"
	"time"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/platform/sanitize"
)

// Signal maxima. They sum to deterministicMax.
const (
	maxLatencyPoints    = 15
	maxIntentPoints     = 20
	maxEngagementPoints = 15
	maxDetailPoints     = 10
	maxChannelPoints    = 10
	maxOverridePoints   = 20

	deterministicMax = maxLatencyPoints + maxIntentPoints + maxEngagementPoints + maxDetailPoints + maxChannelPoints + maxOverridePoints

	// deterministicScale is the denominator for rule points, not deterministicMax.
	deterministicScale = 100

	highIntentWeight   = 8
	mediumIntentWeight = 4
)

// Rule is one evaluated deterministic signal.
type Rule struct {
	Signal      string `json:"signal"`
	Points      int    `json:"points"`
	MaxPoints   int    `json:"maxPoints"`
	Explanation string `json:"explanation"`
}

type intentWords struct {
	high   []string
	medium []string
}

func evaluateRules(in Input, words intentWords) []Rule {
	return []Rule{
		scoreLatency(in.ResponseLatency),
		scoreIntent(in.Message, words),
		scoreEngagement(in.InteractionCount),
		scoreDetail(in.Message),
		scoreChannel(in.HasVerifiedChannel),
		scoreOverride(in.TemperatureOverride),
	}
}

func scoreLatency(latency *time.Duration) Rule {
	r := Rule{Signal: "response_latency", MaxPoints: maxLatencyPoints}
	switch {
	case latency == nil:
		r.Explanation = "no response latency recorded"
	case *latency < time.Hour:
		r.Points = 15
		r.Explanation = "responded within 1 hour"
	case *latency < 4*time.Hour:
		r.Points = 10
		r.Explanation = "responded within 4 hours"
	case *latency < 24*time.Hour:
		r.Points = 5
		r.Explanation = "responded within 24 hours"
	default:
		r.Explanation = "responded after more than 24 hours"
	}
	return r
}

func scoreIntent(message string, words intentWords) Rule {
	r := Rule{Signal: "buying_intent", MaxPoints: maxIntentPoints}
	high := sanitize.MatchPhrases(message, words.high)
	medium := sanitize.MatchPhrases(message, words.medium)
	r.Points = min(maxIntentPoints, highIntentWeight*len(high)+mediumIntentWeight*len(medium))

	switch {
	case len(high) == 0 && len(medium) == 0:
		r.Explanation = "no buying-intent keywords"
	default:
		r.Explanation = fmt.Sprintf("buying-intent keywords: %s", strings.Join(append(high, medium...), ", "))
	}
	return r
}

func scoreEngagement(interactions int) Rule {
	r := Rule{Signal: "engagement", MaxPoints: maxEngagementPoints}
	switch {
	case interactions >= 5:
		r.Points = 15
	case interactions >= 3:
		r.Points = 10
	case interactions >= 1:
		r.Points = 5
	}
	r.Explanation = fmt.Sprintf("%d prior interactions", max(interactions, 0))
	return r
}

func scoreDetail(message string) Rule {
	r := Rule{Signal: "message_detail", MaxPoints: maxDetailPoints}
	words := len(strings.Fields(message))
	switch {
	case words > 50:
		r.Points = 10
	case words > 20:
		r.Points = 7
	case words > 5:
		r.Points = 4
	}
	r.Explanation = fmt.Sprintf("message has %d words", words)
	return r
}

func scoreChannel(verified bool) Rule {
	r := Rule{Signal: "verified_channel", MaxPoints: maxChannelPoints, Explanation: "no verified messaging channel"}
	if verified {
		r.Points = maxChannelPoints
		r.Explanation = "reachable on a verified messaging channel"
	}
	return r
}

func scoreOverride(override string) Rule {
	r := Rule{Signal: "temperature_override", MaxPoints: maxOverridePoints}
	tier, ok := domain.ParseTier(override)
	if !ok {
		r.Points = 10
		r.Explanation = "no manual temperature set"
		return r
	}
	switch tier {
	case domain.TierHot:
		r.Points = 20
	case domain.TierWarm:
		r.Points = 13
	case domain.TierCold:
		r.Points = 5
	}
	r.Explanation = fmt.Sprintf("manually marked %s", tier)
	return r
}
