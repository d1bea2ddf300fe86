package model

import (
	"errors"
	"time"
)

// ErrSessionCompleted is returned when a completed session would be mutated
var ErrSessionCompleted = errors.New("session already completed")

// CompletionType is the terminal classification of a session
type CompletionType string

const (
	CompletionNone        CompletionType = ""
	CompletionQualified   CompletionType = "qualified"
	CompletionUnqualified CompletionType = "unqualified"
	CompletionAbandoned   CompletionType = "abandoned"
)

// Session is one visitor's qualification attempt
type Session struct {
	ID                string            `json:"id" bson:"_id"`
	FormID            string            `json:"formId" bson:"formId"`
	ClientID          string            `json:"clientId" bson:"clientId"`
	Step              int               `json:"step" bson:"step"`
	StartedAt         time.Time         `json:"startedAt" bson:"startedAt"`
	LastUpdated       time.Time         `json:"lastUpdated" bson:"lastUpdated"`
	Completed         bool              `json:"completed" bson:"completed"`
	CompletionType    CompletionType    `json:"completionType,omitempty" bson:"completionType,omitempty"`
	CompletionMessage string            `json:"completionMessage,omitempty" bson:"completionMessage,omitempty"`
	CompletedAt       *time.Time        `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	AskedQuestionIDs  []string          `json:"askedQuestionIds" bson:"askedQuestionIds"`
	CurrentQuestions  []string          `json:"currentQuestions" bson:"currentQuestions"` // Presented in the latest step
	CurrentPhrasings  map[string]string `json:"currentPhrasings,omitempty" bson:"currentPhrasings,omitempty"`
	Responses         []Response        `json:"responses" bson:"responses"`
	Lead              LeadIntelligence  `json:"lead" bson:"lead"`
	Engagement        EngagementState   `json:"engagement" bson:"engagement"`
	Metadata          map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
	Version           int64             `json:"version" bson:"version"` // Optimistic concurrency guard
}

// EnsureMutable rejects mutation of a terminal session
func (s *Session) EnsureMutable() error {
	if s.Completed {
		return ErrSessionCompleted
	}
	return nil
}

// HasAsked reports whether a question was already presented
func (s *Session) HasAsked(questionID string) bool {
	for _, id := range s.AskedQuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

// MarkAsked records presented questions, ignoring ids that were already asked.
// Rephrased texts are kept so the step can be presented again as shown.
func (s *Session) MarkAsked(questions []Question) {
	current := make([]string, 0, len(questions))
	s.CurrentPhrasings = nil
	for _, q := range questions {
		current = append(current, q.ID)
		if q.RephrasedText != "" {
			if s.CurrentPhrasings == nil {
				s.CurrentPhrasings = make(map[string]string, len(questions))
			}
			s.CurrentPhrasings[q.ID] = q.RephrasedText
		}
		if !s.HasAsked(q.ID) {
			s.AskedQuestionIDs = append(s.AskedQuestionIDs, q.ID)
		}
	}
	s.CurrentQuestions = current
}

// HasAnswered reports whether a response for the question was accepted
func (s *Session) HasAnswered(questionID string) bool {
	for _, r := range s.Responses {
		if r.QuestionID == questionID {
			return true
		}
	}
	return false
}

// Answer returns the accepted answer for a question
func (s *Session) Answer(questionID string) (string, bool) {
	for _, r := range s.Responses {
		if r.QuestionID == questionID {
			return r.Answer, true
		}
	}
	return "", false
}

// Finish marks the session terminal
func (s *Session) Finish(completionType CompletionType, message string, now time.Time) error {
	if err := s.EnsureMutable(); err != nil {
		return err
	}
	s.Completed = true
	s.CompletionType = completionType
	s.CompletionMessage = message
	s.CompletedAt = &now
	s.LastUpdated = now
	s.CurrentQuestions = nil
	s.CurrentPhrasings = nil
	return nil
}

// Clone returns a deep copy safe to hand to background work
func (s *Session) Clone() *Session {
	c := *s
	c.AskedQuestionIDs = append([]string(nil), s.AskedQuestionIDs...)
	c.CurrentQuestions = append([]string(nil), s.CurrentQuestions...)
	c.Responses = append([]Response(nil), s.Responses...)
	c.Lead.ScoreHistory = append([]int(nil), s.Lead.ScoreHistory...)
	c.Lead.RiskFactors = append([]string(nil), s.Lead.RiskFactors...)
	c.Lead.PositiveIndicators = append([]string(nil), s.Lead.PositiveIndicators...)
	c.Metadata = copyStrings(s.Metadata)
	c.CurrentPhrasings = copyStrings(s.CurrentPhrasings)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func copyStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Outcome is the completion record written exactly once per session
type Outcome struct {
	SessionID      string         `json:"sessionId" bson:"_id"`
	FormID         string         `json:"formId" bson:"formId"`
	ClientID       string         `json:"clientId" bson:"clientId"`
	CompletionType CompletionType `json:"completionType" bson:"completionType"`
	LeadStatus     LeadStatus     `json:"leadStatus" bson:"leadStatus"`
	FinalScore     int            `json:"finalScore" bson:"finalScore"`
	Message        string         `json:"message" bson:"message"`
	CompletedAt    time.Time      `json:"completedAt" bson:"completedAt"`
}

// OutcomeFor builds the completion record of a finished session
func OutcomeFor(s *Session) *Outcome {
	completedAt := s.LastUpdated
	if s.CompletedAt != nil {
		completedAt = *s.CompletedAt
	}
	return &Outcome{
		SessionID:      s.ID,
		FormID:         s.FormID,
		ClientID:       s.ClientID,
		CompletionType: s.CompletionType,
		LeadStatus:     s.Lead.Status,
		FinalScore:     s.Lead.FinalScore,
		Message:        s.CompletionMessage,
		CompletedAt:    completedAt,
	}
}
