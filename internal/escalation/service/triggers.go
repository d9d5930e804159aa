package service

import (
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/sanitize"
)

// Trigger names recorded on escalation records.
const (
	TriggerLowConfidence      = "low_confidence"
	TriggerHighValueDeal      = "high_value_deal"
	TriggerUrgencyLanguage    = "urgency_language"
	TriggerSensitiveTopic     = "sensitive_topic"
	TriggerObjectionThreshold = "objection_threshold"
	TriggerLeakageDetected    = "leakage_detected"
)

// Signals is the conversation context an escalation check runs against.
// Nil pointers mean the signal is unknown and cannot fire.
type Signals struct {
	Confidence     *float64
	DealSize       *float64
	Message        string
	ObjectionCount int
}

// Evaluate returns every trigger that fires for s, in a stable order.
func Evaluate(settings config.EscalationSettings, s Signals) []string {
	triggers := make([]string, 0, 5)
	if s.Confidence != nil && *s.Confidence < settings.MinConfidence {
		triggers = append(triggers, TriggerLowConfidence)
	}
	if s.DealSize != nil && *s.DealSize >= settings.DealSizeThreshold {
		triggers = append(triggers, TriggerHighValueDeal)
	}
	if len(sanitize.MatchPhrases(s.Message, settings.UrgencyPhrases)) > 0 {
		triggers = append(triggers, TriggerUrgencyLanguage)
	}
	if len(sanitize.MatchPhrases(s.Message, settings.SensitiveKeywords)) > 0 {
		triggers = append(triggers, TriggerSensitiveTopic)
	}
	if settings.MaxObjections > 0 && s.ObjectionCount >= settings.MaxObjections {
		triggers = append(triggers, TriggerObjectionThreshold)
	}
	return triggers
}
