package analytics

import (
	"crypto-flow-forensics/internal/domain/entity"
)

// AssessAddressRisk rolls the patterns affecting address up into a single
// assessment. The overall risk is the most severe affecting pattern, the
// score its highest score; with no affecting pattern the address is low risk.
func AssessAddressRisk(idx *Index, address string, patterns []entity.SuspiciousPattern) entity.AddressRiskAssessment {
	assessment := entity.AddressRiskAssessment{
		Address:       address,
		OverallRisk:   entity.SeverityLow,
		RiskFactors:   []string{},
		PatternTypes:  []entity.PatternType{},
		TotalSent:     idx.TotalOutflow(address),
		TotalReceived: idx.TotalInflow(address),
	}

	for _, p := range patterns {
		if !p.Affects(address) {
			continue
		}
		if p.Severity.Rank() > assessment.OverallRisk.Rank() {
			assessment.OverallRisk = p.Severity
		}
		if p.Score > assessment.Score {
			assessment.Score = p.Score
		}
		assessment.RiskFactors = append(assessment.RiskFactors, p.Description)
		assessment.PatternTypes = append(assessment.PatternTypes, p.Type)
	}
	assessment.Recommendations = assessment.OverallRisk.Recommendations()

	for _, txs := range [][]entity.Transaction{idx.Outgoing(address), idx.Incoming(address)} {
		for _, tx := range txs {
			if assessment.FirstActivity.IsZero() || tx.Timestamp.Before(assessment.FirstActivity) {
				assessment.FirstActivity = tx.Timestamp
			}
			if tx.Timestamp.After(assessment.LastActivity) {
				assessment.LastActivity = tx.Timestamp
			}
		}
	}

	return assessment
}
