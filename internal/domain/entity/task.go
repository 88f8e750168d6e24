package entity

import (
	"encoding/json"
)

// TaskType names an analysis operation that can be run by a worker
type TaskType string

const (
	TaskTypeDeepTrace      TaskType = "deep_trace"
	TaskTypeFindPaths      TaskType = "find_paths"
	TaskTypeTaint          TaskType = "taint"
	TaskTypeDetectPatterns TaskType = "detect_patterns"
	TaskTypeCluster        TaskType = "cluster"
	TaskTypeAssessRisk     TaskType = "assess_risk"
	TaskTypeFullReport     TaskType = "full_report"
)

// TaskStatus is the outcome of a task
type TaskStatus string

const (
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusError   TaskStatus = "error"
)

// TaskRequest is the message sent to an analysis worker
type TaskRequest struct {
	TaskType  TaskType        `json:"task_type"`
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload"`
}

// TaskResponse is the worker's reply; exactly one of Data or Error is set
type TaskResponse struct {
	Status    TaskStatus      `json:"status"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Dataset selects the transactions a task runs on. Inline transactions win;
// otherwise the transfers around Address are loaded from the ledger, or the
// transfers inside TimeWindow when no address is given.
type Dataset struct {
	Transactions []Transaction `json:"transactions,omitempty"`
	Address      string        `json:"address,omitempty"`
	Chain        string        `json:"chain,omitempty"`
	TokenFilter  string        `json:"token_filter,omitempty"`
	Hops         int           `json:"hops,omitempty"`
	TimeWindow   *TimeWindow   `json:"time_window,omitempty"`
}

// DeepTracePayload is the payload of a deep_trace task
type DeepTracePayload struct {
	Dataset Dataset         `json:"dataset"`
	Config  DeepTraceConfig `json:"config"`
}

// FindPathsPayload is the payload of a find_paths task
type FindPathsPayload struct {
	Dataset Dataset          `json:"dataset"`
	Config  PathFinderConfig `json:"config"`
}

// TaintPayload is the payload of a taint task
type TaintPayload struct {
	Dataset Dataset `json:"dataset"`
	Source  string  `json:"source"`
	Target  string  `json:"target"`
	MaxHops int     `json:"max_hops"`
}

// DatasetPayload is the payload of detect_patterns and cluster tasks
type DatasetPayload struct {
	Dataset Dataset `json:"dataset"`
}

// AssessRiskPayload is the payload of an assess_risk task
type AssessRiskPayload struct {
	Dataset Dataset `json:"dataset"`
	Address string  `json:"address"`
}

// FullReportPayload is the payload of a full_report task. Target is optional;
// when set the report includes paths and taint from Address to Target.
type FullReportPayload struct {
	Dataset   Dataset        `json:"dataset"`
	Address   string         `json:"address"`
	Target    string         `json:"target,omitempty"`
	Direction TraceDirection `json:"direction,omitempty"`
	MaxDepth  int            `json:"max_depth,omitempty"`
}

// FullReport bundles every analysis for one address
type FullReport struct {
	Address  string                `json:"address"`
	Trace    *DeepTraceResult      `json:"trace"`
	Patterns []SuspiciousPattern   `json:"patterns"`
	Clusters []AddressCluster      `json:"clusters"`
	Risk     AddressRiskAssessment `json:"risk"`
	Paths    *PathFinderResult     `json:"paths,omitempty"`
	Taint    *TaintFlow            `json:"taint,omitempty"`
}
