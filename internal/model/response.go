package model

import "time"

// Response is one answered question. Append-only once accepted.
type Response struct {
	SessionID    string    `json:"sessionId" bson:"sessionId"`
	QuestionID   string    `json:"questionId" bson:"questionId"`
	Answer       string    `json:"answer" bson:"answer"`
	Timestamp    time.Time `json:"timestamp" bson:"timestamp"`
	Step         int       `json:"step" bson:"step"`
	ScoreAwarded int       `json:"scoreAwarded" bson:"scoreAwarded"`
}

// PendingResponse is a visitor-submitted answer that has not been validated yet
type PendingResponse struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// ValidationError describes a pending response that was rejected
type ValidationError struct {
	QuestionID string `json:"question_id,omitempty"`
	Reason     string `json:"reason"`
}

func (e ValidationError) Error() string {
	if e.QuestionID == "" {
		return e.Reason
	}
	return e.QuestionID + ": " + e.Reason
}
