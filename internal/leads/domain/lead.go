// Package domain provides core business rules for the leads bounded context.
package domain

import "strings"

// Tier is the lead temperature derived from its score.
type Tier string

const (
	TierHot  Tier = "HOT"
	TierWarm Tier = "WARM"
	TierCold Tier = "COLD"
)

const (
	hotTierMin  = 61
	warmTierMin = 31
)

// TierForScore classifies a 0-100 score: HOT >= 61, WARM 31-60, COLD <= 30.
func TierForScore(score int) Tier {
	switch {
	case score >= hotTierMin:
		return TierHot
	case score >= warmTierMin:
		return TierWarm
	default:
		return TierCold
	}
}

// ParseTier accepts any casing and reports false for unknown values.
func ParseTier(v string) (Tier, bool) {
	switch Tier(strings.ToUpper(strings.TrimSpace(v))) {
	case TierHot:
		return TierHot, true
	case TierWarm:
		return TierWarm, true
	case TierCold:
		return TierCold, true
	}
	return "", false
}

// Priority is the routing priority stamped on an assignment.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityUrgent   Priority = "urgent"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Lead statuses. Terminal statuses are set by the surrounding CRUD code.
const (
	StatusActive    = "active"
	StatusClosed    = "closed"
	StatusConverted = "converted"
	StatusLost      = "lost"
)

var terminalStatuses = map[string]bool{
	StatusClosed:    true,
	StatusConverted: true,
	StatusLost:      true,
}

// IsTerminalStatus reports whether no automated action may touch the lead.
func IsTerminalStatus(status string) bool {
	return terminalStatuses[strings.ToLower(strings.TrimSpace(status))]
}

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)
