package service

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"leadflow/internal/model"
)

const neutralFallbackScore = 50

// LeadScorer recomputes lead intelligence from the full response sequence.
// It keeps no state between calls, so scoring the same responses twice
// always yields the same result.
type LeadScorer struct {
	logger  *slog.Logger
	metrics *Metrics
}

// NewLeadScorer creates a new lead scorer
func NewLeadScorer(logger *slog.Logger, metrics *Metrics) *LeadScorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeadScorer{logger: logger, metrics: metrics}
}

// Score applies each question's rubric to the responses and classifies the lead
func (s *LeadScorer) Score(responses []model.Response, catalog map[string]model.Question, rules model.BusinessRules) model.ScoreResult {
	rules = rules.Effective()

	total := 0
	history := make([]int, 0, len(responses))
	risks := map[string]struct{}{}
	positives := map[string]struct{}{}
	var criticalOn []string

	for _, r := range responses {
		q, ok := catalog[r.QuestionID]
		if !ok {
			history = append(history, total)
			continue
		}

		match, err := AwardPoints(q, r.Answer, rules.DefaultPoints)
		if err != nil {
			s.logger.Error("scoring failed, using neutral result", "question_id", q.ID, "error", err)
			s.metrics.ScoringFallback()
			return neutralResult(err)
		}

		total += match.Points
		history = append(history, total)

		switch {
		case match.Critical:
			criticalOn = append(criticalOn, q.ID)
			risks[fmt.Sprintf("critical:%s=%s", q.ID, match.Keyword)] = struct{}{}
		case match.Points < 0:
			risks[fmt.Sprintf("%s=%s", q.ID, match.Keyword)] = struct{}{}
		case match.Matched && match.Points > 0:
			positives[fmt.Sprintf("%s=%s", q.ID, match.Keyword)] = struct{}{}
		}
	}

	minQuestions := rules.MinQuestions
	if len(catalog) < minQuestions {
		minQuestions = len(catalog)
	}
	minMet := len(responses) >= minQuestions

	result := model.ScoreResult{
		Score:              max(0, total),
		Total:              total,
		History:            history,
		RiskFactors:        sortedSet(risks),
		PositiveIndicators: sortedSet(positives),
		MinQuestionsMet:    minMet,
		CriticalFailure:    len(criticalOn) > 0,
	}

	switch {
	case result.CriticalFailure:
		result.Status = model.LeadNo
		result.Reasoning = "critical requirement failed: " + strings.Join(criticalOn, ", ")
	case !minMet:
		result.Status = model.LeadUnknown
		result.Reasoning = fmt.Sprintf("%d of %d required answers collected", len(responses), minQuestions)
	case total >= rules.QualifyScore:
		result.Status = model.LeadYes
		result.Reasoning = fmt.Sprintf("score %d reached qualify threshold %d", total, rules.QualifyScore)
	case total <= rules.DisqualifyScore:
		result.Status = model.LeadNo
		result.Reasoning = fmt.Sprintf("score %d at or below disqualify threshold %d", total, rules.DisqualifyScore)
	default:
		result.Status = model.LeadMaybe
		result.Reasoning = fmt.Sprintf("score %d between thresholds", total)
	}
	return result
}

func neutralResult(err error) model.ScoreResult {
	return model.ScoreResult{
		Score:              neutralFallbackScore,
		Total:              neutralFallbackScore,
		History:            []int{},
		Status:             model.LeadUnknown,
		Reasoning:          "scoring unavailable: " + err.Error(),
		RiskFactors:        []string{},
		PositiveIndicators: []string{},
		Fallback:           true,
	}
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
