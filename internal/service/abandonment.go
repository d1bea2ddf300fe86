package service

import (
	"math"
	"time"

	"leadflow/internal/model"
)

// Inactivity bands, in minutes
const (
	activeMaxMinutes   = 3.0
	atRiskMaxMinutes   = 8.0
	highRiskMaxMinutes = 14.0

	activeBaseRisk = 0.25
)

// AbandonmentMonitor classifies visitor inactivity. It has no background timer:
// checks run at the start of each inbound request and during sweeps.
type AbandonmentMonitor struct {
	now func() time.Time
}

// NewAbandonmentMonitor creates a new monitor. A nil clock uses time.Now.
func NewAbandonmentMonitor(now func() time.Time) *AbandonmentMonitor {
	if now == nil {
		now = time.Now
	}
	return &AbandonmentMonitor{now: now}
}

// Now returns the monitor's current time
func (m *AbandonmentMonitor) Now() time.Time {
	return m.now()
}

// Check maps the time since lastActivity to a risk band
func (m *AbandonmentMonitor) Check(lastActivity, now time.Time) model.AbandonmentCheck {
	minutes := now.Sub(lastActivity).Minutes()
	if minutes < 0 {
		minutes = 0
	}

	check := model.AbandonmentCheck{MinutesIdle: minutes}
	switch {
	case minutes <= activeMaxMinutes:
		check.Status = model.EngagementActive
		check.Risk = activeBaseRisk + (minutes/activeMaxMinutes)*0.10
	case minutes <= atRiskMaxMinutes:
		check.Status = model.EngagementAtRisk
		check.Risk = 0.55 + 0.03*(minutes-activeMaxMinutes)
	case minutes <= highRiskMaxMinutes:
		check.Status = model.EngagementHighRisk
		check.Risk = 0.75 + 0.025*(minutes-atRiskMaxMinutes)
	default:
		check.Status = model.EngagementAbandoned
		check.Risk = math.Min(1.0, 0.90+0.01*(minutes-highRiskMaxMinutes))
		check.Terminal = true
	}
	check.Risk = roundRisk(check.Risk)
	return check
}

// Apply runs a check against the session's engagement state. The status only
// escalates here. De-escalation happens through Reset when a response arrives.
func (m *AbandonmentMonitor) Apply(session *model.Session, now time.Time) (model.AbandonmentCheck, error) {
	if err := session.EnsureMutable(); err != nil {
		return model.AbandonmentCheck{}, err
	}

	state := &session.Engagement
	check := m.Check(state.LastActivity, now)

	previous := state.AbandonmentStatus
	if previous == "" {
		previous = model.EngagementActive
	}
	if check.Status.Rank() > previous.Rank() {
		check.EscalatedBands = check.Status.Rank() - previous.Rank()
		state.HesitationIndicators += check.EscalatedBands
		state.AbandonmentStatus = check.Status
	} else {
		check.Status = previous
		check.Terminal = previous == model.EngagementAbandoned
	}
	if check.Risk > state.AbandonmentRisk {
		state.AbandonmentRisk = check.Risk
	}
	check.Risk = state.AbandonmentRisk

	if !state.StepStartedAt.IsZero() {
		state.TimeOnStep = now.Sub(state.StepStartedAt).Seconds()
	}
	return check, nil
}

// Reset returns the engagement state to the active band after a response
func (m *AbandonmentMonitor) Reset(state *model.EngagementState, now time.Time) {
	state.AbandonmentStatus = model.EngagementActive
	state.AbandonmentRisk = activeBaseRisk
	state.HesitationIndicators = 0
	state.LastActivity = now
	state.StepStartedAt = now
	state.TimeOnStep = 0
}

func roundRisk(r float64) float64 {
	return math.Round(r*1000) / 1000
}
