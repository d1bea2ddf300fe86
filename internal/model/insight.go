package model

// FunnelEvent names a counter of the per-form conversion funnel
type FunnelEvent string

const (
	FunnelStarted     FunnelEvent = "started"
	FunnelSteps       FunnelEvent = "steps"
	FunnelQualified   FunnelEvent = "qualified"
	FunnelUnqualified FunnelEvent = "unqualified"
	FunnelAbandoned   FunnelEvent = "abandoned"
)

// FunnelEventFor maps a completion type to its funnel counter
func FunnelEventFor(t CompletionType) FunnelEvent {
	switch t {
	case CompletionQualified:
		return FunnelQualified
	case CompletionAbandoned:
		return FunnelAbandoned
	default:
		return FunnelUnqualified
	}
}

// FormFunnel aggregates session counts for a form
type FormFunnel struct {
	FormID      string `json:"form_id"`
	Started     int64  `json:"started"`
	Steps       int64  `json:"steps"`
	Qualified   int64  `json:"qualified"`
	Unqualified int64  `json:"unqualified"`
	Abandoned   int64  `json:"abandoned"`
}

// LeadEntry is one row of a client's lead board
type LeadEntry struct {
	SessionID string `json:"session_id"`
	Score     int    `json:"score"`
	Rank      int    `json:"rank"`
}
