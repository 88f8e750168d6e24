package entity

// AddressFeatures is the behavioural fingerprint of one address
type AddressFeatures struct {
	Address               string   `json:"address"`
	AvgTransactionSize    float64  `json:"avg_transaction_size"` // Mean outgoing amount
	PeakActivityHour      int      `json:"peak_activity_hour"`   // Most frequent UTC hour of outgoing transfers
	PrimaryCounterparties []string `json:"primary_counterparties"`
	RoundAmountRatio      float64  `json:"round_amount_ratio"`
	TxCount               int      `json:"tx_count"` // Sent + received
	TotalSent             float64  `json:"total_sent"`
	TotalReceived         float64  `json:"total_received"`
}

// AddressCluster groups addresses with similar behaviour (always two or more)
type AddressCluster struct {
	ClusterID        string          `json:"cluster_id"`
	Addresses        []string        `json:"addresses"`
	CommonBehavior   string          `json:"common_behavior"`
	TotalVolume      float64         `json:"total_volume"`
	TransactionCount int             `json:"transaction_count"`
	ConfidenceScore  float64         `json:"confidence_score"` // 0.0 - 1.0
	Features         AddressFeatures `json:"features"`
}
