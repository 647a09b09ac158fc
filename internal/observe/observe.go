package observe

import (
	"time"
)

// AttemptRecord is one entry of a request's attempt log.
type AttemptRecord struct {
	Provider string        `json:"provider"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ScoreBreakdown mirrors the router's weighted score components.
type ScoreBreakdown struct {
	Quality    float64 `json:"quality"`
	Latency    float64 `json:"latency"`
	Load       float64 `json:"load"`
	Preference float64 `json:"preference"`
}

// Decision describes how one request was routed. Chosen is empty when
// every candidate failed.
type Decision struct {
	RequestID  string          `json:"request_id"`
	Capability string          `json:"capability"`
	Chosen     string          `json:"chosen,omitempty"`
	Score      float64         `json:"score"`
	Breakdown  ScoreBreakdown  `json:"breakdown"`
	Attempts   []AttemptRecord `json:"attempts"`
	Skipped    []string        `json:"skipped,omitempty"`
	Duration   time.Duration   `json:"duration"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Hook receives one Decision per request. Implementations must not block;
// the coordinator calls it on the request path.
type Hook interface {
	RecordDecision(Decision)
}

// NopHook discards every decision.
type NopHook struct{}

func (NopHook) RecordDecision(Decision) {}
