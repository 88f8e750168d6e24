package entity

// PatternType identifies the heuristic that produced a suspicious pattern
type PatternType string

const (
	PatternTypeRoundAmounts   PatternType = "round_amounts"
	PatternTypeRapidTransfers PatternType = "rapid_transfers"
	PatternTypeCircularFlow   PatternType = "circular_flow"
	PatternTypeLayering       PatternType = "layering"
	PatternTypeMixerUsage     PatternType = "mixer_usage"
	PatternTypeHighVelocity   PatternType = "high_velocity"
)

// SuspiciousPattern is one detector hit over the whole transaction set.
// Transactions is a capped sample; AffectedAddresses is exhaustive.
type SuspiciousPattern struct {
	Type              PatternType            `json:"type"`
	Severity          Severity               `json:"severity"`
	Score             float64                `json:"score"` // 0 - 100
	AffectedAddresses []string               `json:"affected_addresses"`
	Transactions      []Transaction          `json:"transactions"`
	Description       string                 `json:"description"`
	Metadata          map[string]interface{} `json:"metadata"`
}

// Affects reports whether address is among the affected addresses
func (p SuspiciousPattern) Affects(address string) bool {
	for _, a := range p.AffectedAddresses {
		if a == address {
			return true
		}
	}
	return false
}
