package model

import "time"

// AbandonmentStatus classifies how likely the visitor has left
type AbandonmentStatus string

const (
	EngagementActive    AbandonmentStatus = "active"
	EngagementAtRisk    AbandonmentStatus = "at_risk"
	EngagementHighRisk  AbandonmentStatus = "high_risk"
	EngagementAbandoned AbandonmentStatus = "abandoned"
)

// Rank orders statuses by severity
func (s AbandonmentStatus) Rank() int {
	switch s {
	case EngagementAtRisk:
		return 1
	case EngagementHighRisk:
		return 2
	case EngagementAbandoned:
		return 3
	default:
		return 0
	}
}

// EngagementState tracks visitor activity for abandonment detection
type EngagementState struct {
	AbandonmentRisk      float64           `json:"abandonmentRisk" bson:"abandonmentRisk"`
	AbandonmentStatus    AbandonmentStatus `json:"abandonmentStatus" bson:"abandonmentStatus"`
	LastActivity         time.Time         `json:"lastActivity" bson:"lastActivity"`
	StepStartedAt        time.Time         `json:"stepStartedAt" bson:"stepStartedAt"`
	TimeOnStep           float64           `json:"timeOnStep" bson:"timeOnStep"` // Seconds
	HesitationIndicators int               `json:"hesitationIndicators" bson:"hesitationIndicators"`
}

// AbandonmentCheck is the result of one inactivity check
type AbandonmentCheck struct {
	Status         AbandonmentStatus `json:"status"`
	Risk           float64           `json:"risk"`
	Terminal       bool              `json:"terminal"`
	MinutesIdle    float64           `json:"minutesIdle"`
	EscalatedBands int               `json:"escalatedBands"`
}
