package entity

// TaintPath is the tainted amount that survived along one address sequence
type TaintPath struct {
	Path       []string `json:"path"`
	Amount     float64  `json:"amount"`
	Percentage float64  `json:"percentage"`
}

// TaintFlow reports how much of a source's funds reached a target
type TaintFlow struct {
	Source          string      `json:"source"`
	Target          string      `json:"target"`
	TotalTainted    float64     `json:"total_tainted"`
	TaintPercentage float64     `json:"taint_percentage"`
	TargetInflow    float64     `json:"target_inflow"`
	PathsAnalyzed   int         `json:"paths_analyzed"`
	Paths           []TaintPath `json:"paths"`
}
