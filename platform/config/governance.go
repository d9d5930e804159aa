package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Governance holds the thresholds used by the lead lifecycle engines.
// Zero values in an overlay file keep the defaults.
type Governance struct {
	Scoring    ScoringSettings    `yaml:"scoring"`
	Escalation EscalationSettings `yaml:"escalation"`
	Leakage    LeakageSettings    `yaml:"leakage"`
	Abuse      AbuseSettings      `yaml:"abuse"`
	SLA        SLASettings        `yaml:"sla"`
}

type ScoringSettings struct {
	ModelTimeout      time.Duration `yaml:"model_timeout"`
	ModelCacheTTL     time.Duration `yaml:"model_cache_ttl"`
	HighIntentWords   []string      `yaml:"high_intent_words"`
	MediumIntentWords []string      `yaml:"medium_intent_words"`
	BatchConcurrency  int           `yaml:"batch_concurrency"`
}

type EscalationSettings struct {
	MinConfidence     float64  `yaml:"min_confidence"`
	DealSizeThreshold float64  `yaml:"deal_size_threshold"`
	MaxObjections     int      `yaml:"max_objections"`
	UrgencyPhrases    []string `yaml:"urgency_phrases"`
	SensitiveKeywords []string `yaml:"sensitive_keywords"`
}

type LeakageSettings struct {
	Interval       time.Duration `yaml:"interval"`
	StaleAfter     time.Duration `yaml:"stale_after"`
	Cooldown       time.Duration `yaml:"cooldown"`
	BatchSize      int           `yaml:"batch_size"`
	ReengageTokens int64         `yaml:"reengage_tokens"`
}

type AbuseSettings struct {
	Interval            time.Duration `yaml:"interval"`
	SpendMultiplier     float64       `yaml:"spend_multiplier"`
	LeadMultiplier      float64       `yaml:"lead_multiplier"`
	APIFailureThreshold int64         `yaml:"api_failure_threshold"`
	PauseTTL            time.Duration `yaml:"pause_ttl"`
}

type SLASettings struct {
	Interval time.Duration `yaml:"interval"`
}

// DefaultGovernance returns the production defaults.
func DefaultGovernance() Governance {
	return Governance{
		Scoring: ScoringSettings{
			ModelTimeout:      8 * time.Second,
			ModelCacheTTL:     time.Hour,
			HighIntentWords:   []string{"buy", "now", "price", "purchase", "order", "today", "pricing", "cost"},
			MediumIntentWords: []string{"interested", "quote", "demo", "info", "details", "available", "compare", "options"},
			BatchConcurrency:  4,
		},
		Escalation: EscalationSettings{
			MinConfidence:     0.6,
			DealSizeThreshold: 50000,
			MaxObjections:     3,
			UrgencyPhrases:    []string{"urgent", "asap", "immediately", "right now", "emergency", "cancel my", "speak to a manager"},
			SensitiveKeywords: []string{"lawyer", "legal", "lawsuit", "attorney", "medical", "doctor", "diagnosis", "bank", "loan", "mortgage", "investment", "competitor", "switching to", "cheaper elsewhere"},
		},
		Leakage: LeakageSettings{
			Interval:       5 * time.Minute,
			StaleAfter:     30 * time.Minute,
			Cooldown:       2 * time.Hour,
			BatchSize:      200,
			ReengageTokens: 2,
		},
		Abuse: AbuseSettings{
			Interval:            10 * time.Minute,
			SpendMultiplier:     10,
			LeadMultiplier:      20,
			APIFailureThreshold: 100,
			PauseTTL:            time.Hour,
		},
		SLA: SLASettings{
			Interval: time.Minute,
		},
	}
}

// MergeFile overlays non-zero values from a YAML file onto g.
func (g *Governance) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var overlay Governance
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	g.merge(overlay)
	return nil
}

func (g *Governance) merge(o Governance) {
	setDuration(&g.Scoring.ModelTimeout, o.Scoring.ModelTimeout)
	setDuration(&g.Scoring.ModelCacheTTL, o.Scoring.ModelCacheTTL)
	setStrings(&g.Scoring.HighIntentWords, o.Scoring.HighIntentWords)
	setStrings(&g.Scoring.MediumIntentWords, o.Scoring.MediumIntentWords)
	if o.Scoring.BatchConcurrency > 0 {
		g.Scoring.BatchConcurrency = o.Scoring.BatchConcurrency
	}

	if o.Escalation.MinConfidence > 0 {
		g.Escalation.MinConfidence = o.Escalation.MinConfidence
	}
	if o.Escalation.DealSizeThreshold > 0 {
		g.Escalation.DealSizeThreshold = o.Escalation.DealSizeThreshold
	}
	if o.Escalation.MaxObjections > 0 {
		g.Escalation.MaxObjections = o.Escalation.MaxObjections
	}
	setStrings(&g.Escalation.UrgencyPhrases, o.Escalation.UrgencyPhrases)
	setStrings(&g.Escalation.SensitiveKeywords, o.Escalation.SensitiveKeywords)

	setDuration(&g.Leakage.Interval, o.Leakage.Interval)
	setDuration(&g.Leakage.StaleAfter, o.Leakage.StaleAfter)
	setDuration(&g.Leakage.Cooldown, o.Leakage.Cooldown)
	if o.Leakage.BatchSize > 0 {
		g.Leakage.BatchSize = o.Leakage.BatchSize
	}
	if o.Leakage.ReengageTokens > 0 {
		g.Leakage.ReengageTokens = o.Leakage.ReengageTokens
	}

	setDuration(&g.Abuse.Interval, o.Abuse.Interval)
	setDuration(&g.Abuse.PauseTTL, o.Abuse.PauseTTL)
	if o.Abuse.SpendMultiplier > 0 {
		g.Abuse.SpendMultiplier = o.Abuse.SpendMultiplier
	}
	if o.Abuse.LeadMultiplier > 0 {
		g.Abuse.LeadMultiplier = o.Abuse.LeadMultiplier
	}
	if o.Abuse.APIFailureThreshold > 0 {
		g.Abuse.APIFailureThreshold = o.Abuse.APIFailureThreshold
	}

	setDuration(&g.SLA.Interval, o.SLA.Interval)
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func setStrings(dst *[]string, v []string) {
	if len(v) > 0 {
		*dst = v
	}
}
