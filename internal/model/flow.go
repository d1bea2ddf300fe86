package model

// StartRequest is the body of POST /v1/sessions/start
type StartRequest struct {
	FormID   string            `json:"form_id"`
	ClientID string            `json:"client_id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// StepRequest is the body of POST /v1/sessions/step
type StepRequest struct {
	SessionID string            `json:"session_id"`
	Responses []PendingResponse `json:"responses"`
}

// Progress summarizes how far the visitor got
type Progress struct {
	Answered int `json:"answered"`
	Total    int `json:"total"`
	Percent  int `json:"percent"`
}

// Completion is the terminal payload of a session
type Completion struct {
	CompletionType    CompletionType `json:"completion_type"`
	LeadStatus        LeadStatus     `json:"lead_status"`
	FinalScore        int            `json:"final_score"`
	CompletionMessage string         `json:"completion_message"`
}

// StepResult is returned by start and step
type StepResult struct {
	SessionID  string            `json:"session_id"`
	Token      string            `json:"token,omitempty"` // Only on start
	Step       int               `json:"step"`
	Questions  []QuestionView    `json:"questions"`
	Headline   string            `json:"headline,omitempty"`
	Motivation string            `json:"motivation,omitempty"`
	Progress   Progress          `json:"progress"`
	Completed  bool              `json:"completed"`
	Rejected   []ValidationError `json:"rejected,omitempty"`

	// Terminal fields, inlined once the session completes
	*Completion
}

// Snapshot is the status view returned by GET /v1/sessions/{id}
type Snapshot struct {
	SessionID         string            `json:"session_id"`
	FormID            string            `json:"form_id"`
	Step              int               `json:"step"`
	Score             int               `json:"score"`
	LeadStatus        LeadStatus        `json:"lead_status"`
	Completed         bool              `json:"completed"`
	CompletionType    CompletionType    `json:"completion_type,omitempty"`
	AbandonmentStatus AbandonmentStatus `json:"abandonment_status"`
	AbandonmentRisk   float64           `json:"abandonment_risk"`
	Progress          Progress          `json:"progress"`
}
