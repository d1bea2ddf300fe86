package service

// Broadcaster interface for WebSocket broadcasting (avoids import cycle)
type Broadcaster interface {
	BroadcastToClient(clientID string, msgType string, payload interface{})
}

// Lead feed message types
const (
	EventLeadCompleted = "lead_completed"
	EventLeadProgress  = "lead_progress"
)

// LeadEvent is the payload pushed to a client's lead feed
type LeadEvent struct {
	SessionID      string `json:"session_id"`
	FormID         string `json:"form_id"`
	Step           int    `json:"step"`
	Score          int    `json:"score"`
	LeadStatus     string `json:"lead_status"`
	CompletionType string `json:"completion_type,omitempty"`
	Message        string `json:"message,omitempty"`
}
