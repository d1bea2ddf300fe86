package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadflow/internal/model"
)

var qualifiedAnswers = map[string]string{
	"name":       "Alex",
	"email":      "alex@example.com",
	"location":   "Somerville, MA",
	"breed":      "German Shepherd",
	"vaccinated": "Yes, up to date",
	"frequency":  "3 times/week",
	"notes":      "He loves squirrels",
}

func withAnswer(answers map[string]string, qid, value string) map[string]string {
	out := make(map[string]string, len(answers))
	for k, v := range answers {
		out[k] = v
	}
	out[qid] = value
	return out
}

func TestScoreQualifiedLead(t *testing.T) {
	form := dogForm()
	scorer := NewLeadScorer(discardLogger(), nil)

	responses := responsesFor("s1", qualifiedAnswers, "location", "breed", "vaccinated", "frequency")
	result := scorer.Score(responses, form.Catalog(), form.Rules)

	assert.Equal(t, 90, result.Total)
	assert.Equal(t, 90, result.Score)
	assert.Equal(t, model.LeadYes, result.Status)
	assert.Equal(t, []int{20, 45, 70, 90}, result.History)
	assert.True(t, result.MinQuestionsMet)
	assert.False(t, result.CriticalFailure)
	assert.Empty(t, result.RiskFactors)
	assert.Equal(t, []string{"breed=shepherd", "frequency=week", "location=somerville", "vaccinated=yes"}, result.PositiveIndicators)
}

func TestScoreCriticalFailure(t *testing.T) {
	form := dogForm()
	scorer := NewLeadScorer(discardLogger(), nil)

	answers := withAnswer(qualifiedAnswers, "vaccinated", "No")
	result := scorer.Score(responsesFor("s1", answers, "location", "breed", "vaccinated", "frequency"), form.Catalog(), form.Rules)

	assert.Equal(t, model.LeadNo, result.Status)
	assert.True(t, result.CriticalFailure)
	assert.Equal(t, 65, result.Total)
	assert.Equal(t, []string{"critical:vaccinated=no"}, result.RiskFactors)
	assert.Contains(t, result.Reasoning, "vaccinated")
}

func TestScoreCriticalFailureBeforeMinQuestions(t *testing.T) {
	form := dogForm()
	scorer := NewLeadScorer(discardLogger(), nil)

	result := scorer.Score(responsesFor("s1", map[string]string{"vaccinated": "not vaccinated"}, "vaccinated"), form.Catalog(), form.Rules)

	assert.Equal(t, model.LeadNo, result.Status)
	assert.False(t, result.MinQuestionsMet)
}

func TestScoreUnknownBelowMinQuestions(t *testing.T) {
	form := dogForm()
	scorer := NewLeadScorer(discardLogger(), nil)

	result := scorer.Score(responsesFor("s1", qualifiedAnswers, "location", "breed"), form.Catalog(), form.Rules)

	assert.Equal(t, model.LeadUnknown, result.Status)
	assert.Equal(t, 45, result.Total)
	assert.False(t, result.MinQuestionsMet)
}

func TestScoreThresholds(t *testing.T) {
	form := dogForm()
	scorer := NewLeadScorer(discardLogger(), nil)

	tests := []struct {
		name    string
		answers map[string]string
		total   int
		status  model.LeadStatus
	}{
		{"maybe between thresholds", qualifiedAnswers, 65, model.LeadMaybe},
		{"no at disqualify threshold", map[string]string{
			"location": "Mars", "breed": "Mars", "frequency": "Mars", "notes": "Mars",
		}, 15, model.LeadNo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := scorer.Score(responsesFor("s1", tt.answers, "location", "breed", "frequency", "notes"), form.Catalog(), form.Rules)
			assert.Equal(t, tt.total, result.Total)
			assert.Equal(t, tt.status, result.Status)
			assert.True(t, result.MinQuestionsMet)
		})
	}
}

func TestScoreClampsNegativeTotal(t *testing.T) {
	catalog := map[string]model.Question{
		"days": {ID: "days", Text: "Which days?", ScoringRubric: "-30 if weekends"},
	}
	scorer := NewLeadScorer(discardLogger(), nil)

	result := scorer.Score(responsesFor("s1", map[string]string{"days": "weekends only"}, "days"), catalog, model.BusinessRules{})

	assert.Equal(t, -30, result.Total)
	assert.Equal(t, 0, result.Score)
	assert.True(t, result.MinQuestionsMet, "min questions is capped at the catalog size")
	assert.Equal(t, model.LeadNo, result.Status)
	assert.Equal(t, []string{"days=weekends"}, result.RiskFactors)
}

func TestScoreIsDeterministic(t *testing.T) {
	form := dogForm()
	scorer := NewLeadScorer(discardLogger(), nil)
	responses := responsesFor("s1", qualifiedAnswers, "frequency", "location", "notes", "breed", "vaccinated")

	first := scorer.Score(responses, form.Catalog(), form.Rules)
	second := scorer.Score(responses, form.Catalog(), form.Rules)
	assert.Equal(t, first, second)
}

func TestScoreTotalIsSumOfAwardedPoints(t *testing.T) {
	form := dogForm()
	catalog := form.Catalog()
	scorer := NewLeadScorer(discardLogger(), nil)

	answers := withAnswer(qualifiedAnswers, "location", "out of state")
	responses := responsesFor("s1", answers, "name", "location", "breed", "frequency", "notes")

	sum := 0
	for _, r := range responses {
		m, err := AwardPoints(catalog[r.QuestionID], r.Answer, model.DefaultBusinessRules().DefaultPoints)
		require.NoError(t, err)
		sum += m.Points
	}
	result := scorer.Score(responses, catalog, form.Rules)
	assert.Equal(t, sum, result.Total)
	assert.Equal(t, 35, result.Total)
}

func TestScoreNeutralFallbackOnBadRubric(t *testing.T) {
	catalog := map[string]model.Question{
		"q1": {ID: "q1", Text: "Budget?", ScoringRubric: "+lots if rich"},
	}
	scorer := NewLeadScorer(discardLogger(), nil)

	result := scorer.Score(responsesFor("s1", map[string]string{"q1": "rich"}, "q1"), catalog, model.BusinessRules{})

	assert.True(t, result.Fallback)
	assert.Equal(t, 50, result.Score)
	assert.Equal(t, model.LeadUnknown, result.Status)
	assert.Contains(t, result.Reasoning, "scoring unavailable")
}

func TestScoreHonorsExplicitZeroRules(t *testing.T) {
	catalog := map[string]model.Question{
		"budget": {ID: "budget", Text: "Budget?", ScoringRubric: "+10 if over 500"},
		"notes":  {ID: "notes", Text: "Notes?", ScoringRubric: "Tell us anything; +15 if referral"},
	}
	scorer := NewLeadScorer(discardLogger(), nil)
	rules := model.BusinessRules{QualifyScore: 60, DisqualifyScore: 0, MinQuestions: 1, DefaultPoints: 0}

	result := scorer.Score(responsesFor("s1", map[string]string{"budget": "over 500"}, "budget"), catalog, rules)
	assert.Equal(t, 10, result.Total)
	assert.Equal(t, model.LeadMaybe, result.Status, "a disqualify score of zero is kept")

	result = scorer.Score(responsesFor("s1", map[string]string{"notes": "found you online"}, "notes"), catalog, rules)
	assert.Equal(t, 0, result.Total, "default points of zero are kept")
	assert.Equal(t, model.LeadNo, result.Status)

	result = scorer.Score(nil, catalog, model.BusinessRules{QualifyScore: 60, MinQuestions: 0})
	assert.True(t, result.MinQuestionsMet)
}
