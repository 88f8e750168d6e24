package entity

import (
	"time"
)

// Severity represents how serious a finding is
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from low (1) to critical (4); unknown values rank 0
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// IsHighRisk checks if the severity warrants escalation
func (s Severity) IsHighRisk() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// Recommendations returns the handling advice for an address at this severity
func (s Severity) Recommendations() []string {
	switch s {
	case SeverityCritical:
		return []string{"IMMEDIATE ACTION REQUIRED: Do not transact with this address", "Escalate for investigation"}
	case SeverityHigh:
		return []string{"Enhanced due diligence required", "Monitor closely"}
	case SeverityMedium:
		return []string{"Standard due diligence recommended"}
	default:
		return []string{"Standard monitoring sufficient"}
	}
}

// AddressRiskAssessment summarises the patterns touching one address
type AddressRiskAssessment struct {
	Address         string        `json:"address"`
	OverallRisk     Severity      `json:"overall_risk"`
	Score           float64       `json:"score"`
	RiskFactors     []string      `json:"risk_factors"`
	PatternTypes    []PatternType `json:"pattern_types"`
	Recommendations []string      `json:"recommendations"`
	FirstActivity   time.Time     `json:"first_activity"`
	LastActivity    time.Time     `json:"last_activity"`
	TotalSent       float64       `json:"total_sent"`
	TotalReceived   float64       `json:"total_received"`
}
