package service

import (
	"context"
	"fmt"
	"strings"

	"leadflow/internal/model"
)

// TextGenerator produces visitor-facing copy. Calls may fail or time out;
// callers always have a deterministic fallback.
type TextGenerator interface {
	Rephrase(ctx context.Context, questions []model.Question, rc RephraseContext) ([]string, error)
	ComposeClosing(ctx context.Context, cc ClosingContext) (string, error)
}

// AnswerContext is one answered question handed to the generator
type AnswerContext struct {
	QuestionID string         `json:"question_id"`
	Question   string         `json:"question"`
	Category   model.Category `json:"category"`
	Answer     string         `json:"answer"`
}

// RephraseContext describes the conversation so far
type RephraseContext struct {
	BusinessName string          `json:"business_name"`
	FormTitle    string          `json:"form_title"`
	Step         int             `json:"step"`
	Answers      []AnswerContext `json:"answers"`
}

// ClosingContext personalizes the closing message of a qualified lead
type ClosingContext struct {
	BusinessName string           `json:"business_name"`
	FormTitle    string           `json:"form_title"`
	LeadStatus   model.LeadStatus `json:"lead_status"`
	FinalScore   int              `json:"final_score"`
	VisitorName  string           `json:"visitor_name,omitempty"`
	Answers      []AnswerContext  `json:"answers"`
}

// StaticGenerator returns the deterministic fallback copy. It is used when no
// generation backend is configured.
type StaticGenerator struct{}

func (StaticGenerator) Rephrase(_ context.Context, questions []model.Question, _ RephraseContext) ([]string, error) {
	return FallbackRephrase(questions), nil
}

func (StaticGenerator) ComposeClosing(_ context.Context, cc ClosingContext) (string, error) {
	return PersonalizedClosing(cc), nil
}

const maxClosingDetails = 2

// PersonalizedClosing builds a closing line from the visitor's qualification
// and service answers. With no such answers it is FallbackClosing.
func PersonalizedClosing(cc ClosingContext) string {
	var details []string
	for _, cat := range []model.Category{model.CategoryQualification, model.CategoryService} {
		for _, a := range cc.Answers {
			if len(details) == maxClosingDetails {
				break
			}
			if a.Category == cat && strings.TrimSpace(a.Answer) != "" {
				details = append(details, strings.TrimSpace(a.Answer))
			}
		}
	}
	if len(details) == 0 {
		return FallbackClosing(cc)
	}

	business := cc.BusinessName
	if business == "" {
		business = "The team"
	}
	greeting := "Thanks"
	if cc.VisitorName != "" {
		greeting = "Thanks, " + cc.VisitorName
	}
	return fmt.Sprintf("%s! %s has what it needs (%s) and someone will be in touch shortly about next steps.",
		greeting, business, strings.Join(details, "; "))
}

// FallbackRephrase returns the original question texts
func FallbackRephrase(questions []model.Question) []string {
	out := make([]string, len(questions))
	for i, q := range questions {
		out[i] = q.Text
	}
	return out
}

// FallbackClosing is the short generic acknowledgment for qualified leads
func FallbackClosing(cc ClosingContext) string {
	business := cc.BusinessName
	if business == "" {
		business = "us"
	}
	greeting := "Thank you"
	if cc.VisitorName != "" {
		greeting = "Thank you, " + cc.VisitorName
	}
	return fmt.Sprintf("%s! Your details have been sent to %s and someone will be in touch shortly.", greeting, business)
}

// UnqualifiedMessage is the generic thank-you for leads that were not a fit
func UnqualifiedMessage(businessName string) string {
	if businessName == "" {
		return "Thank you for taking the time to answer our questions. Unfortunately we are not able to help with this request right now."
	}
	return fmt.Sprintf("Thank you for taking the time to answer our questions. Unfortunately %s is not able to help with this request right now.", businessName)
}

const abandonedMessage = "This session ended due to inactivity."

// BuildAnswerContext pairs each accepted response with its catalog question
func BuildAnswerContext(session *model.Session, catalog map[string]model.Question) []AnswerContext {
	out := make([]AnswerContext, 0, len(session.Responses))
	for _, r := range session.Responses {
		q := catalog[r.QuestionID]
		out = append(out, AnswerContext{
			QuestionID: r.QuestionID,
			Question:   q.Text,
			Category:   q.GroupKey(),
			Answer:     r.Answer,
		})
	}
	return out
}

// visitorName guesses the visitor's name from contact answers
func visitorName(answers []AnswerContext) string {
	for _, a := range answers {
		if a.Category != model.CategoryContact {
			continue
		}
		text := strings.ToLower(a.Question + " " + a.QuestionID)
		if strings.Contains(text, "name") && !strings.Contains(text, "business") {
			return strings.TrimSpace(a.Answer)
		}
	}
	return ""
}
