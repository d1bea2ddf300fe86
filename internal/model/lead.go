package model

// LeadStatus is the qualification verdict
type LeadStatus string

const (
	LeadUnknown LeadStatus = "unknown"
	LeadMaybe   LeadStatus = "maybe"
	LeadYes     LeadStatus = "yes"
	LeadNo      LeadStatus = "no"
)

// Resolved reports whether the verdict can be routed to completion
func (s LeadStatus) Resolved() bool {
	return s == LeadYes || s == LeadMaybe || s == LeadNo
}

// LeadIntelligence is derived from the responses and rubrics, recomputed after every batch
type LeadIntelligence struct {
	CurrentScore       int        `json:"currentScore" bson:"currentScore"` // Signed running total
	FinalScore         int        `json:"finalScore" bson:"finalScore"`     // max(0, CurrentScore), display only
	ScoreHistory       []int      `json:"scoreHistory" bson:"scoreHistory"`
	Status             LeadStatus `json:"status" bson:"status"`
	Reasoning          string     `json:"reasoning,omitempty" bson:"reasoning,omitempty"`
	RiskFactors        []string   `json:"riskFactors" bson:"riskFactors"`
	PositiveIndicators []string   `json:"positiveIndicators" bson:"positiveIndicators"`
	MinQuestionsMet    bool       `json:"minQuestionsMet" bson:"minQuestionsMet"`
	CriticalFailure    bool       `json:"criticalFailure" bson:"criticalFailure"`
}

// ScoreResult is the output of one scoring pass
type ScoreResult struct {
	Score              int        `json:"score"` // Clamped at zero
	Total              int        `json:"total"` // Signed
	History            []int      `json:"history"`
	Status             LeadStatus `json:"status"`
	Reasoning          string     `json:"reasoning"`
	RiskFactors        []string   `json:"riskFactors"`
	PositiveIndicators []string   `json:"positiveIndicators"`
	MinQuestionsMet    bool       `json:"minQuestionsMet"`
	CriticalFailure    bool       `json:"criticalFailure"`
	Fallback           bool       `json:"fallback"` // Neutral result after a scoring error
}

// Intelligence converts a score result into the session sub-structure
func (r ScoreResult) Intelligence() LeadIntelligence {
	return LeadIntelligence{
		CurrentScore:       r.Total,
		FinalScore:         r.Score,
		ScoreHistory:       r.History,
		Status:             r.Status,
		Reasoning:          r.Reasoning,
		RiskFactors:        r.RiskFactors,
		PositiveIndicators: r.PositiveIndicators,
		MinQuestionsMet:    r.MinQuestionsMet,
		CriticalFailure:    r.CriticalFailure,
	}
}
