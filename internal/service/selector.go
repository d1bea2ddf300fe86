package service

import (
	"context"
	"log/slog"
	"time"

	"leadflow/internal/model"
)

const (
	maxQuestionsPerStep = 3
	relatedPerStep      = 2

	// Tough questions wait until rapport is built
	toughMinStep      = 2
	toughMinResponses = 4

	contactMinResponses = 3

	defaultTextGenTimeout = 4 * time.Second
)

// QuestionSelector picks the next unasked questions for a step
type QuestionSelector struct {
	generator TextGenerator
	timeout   time.Duration
	rephrase  bool
	logger    *slog.Logger
	metrics   *Metrics
}

// NewQuestionSelector creates a new question selector. A nil generator disables rephrasing.
func NewQuestionSelector(generator TextGenerator, timeout time.Duration, rephrase bool, logger *slog.Logger, metrics *Metrics) *QuestionSelector {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultTextGenTimeout
	}
	return &QuestionSelector{
		generator: generator,
		timeout:   timeout,
		rephrase:  rephrase && generator != nil,
		logger:    logger,
		metrics:   metrics,
	}
}

// Pick returns up to three unasked questions. It returns nothing only when
// every catalog question has been asked.
func (s *QuestionSelector) Pick(available []model.Question, askedIDs []string, step, responseCount int) []model.Question {
	asked := make(map[string]bool, len(askedIDs))
	for _, id := range askedIDs {
		asked[id] = true
	}

	remaining := make([]model.Question, 0, len(available))
	for _, q := range available {
		if asked[q.ID] {
			continue
		}
		// Duplicate ids in a catalog are presented once
		asked[q.ID] = true
		remaining = append(remaining, q)
	}
	if len(remaining) == 0 {
		return nil
	}

	candidates := remaining
	if step < toughMinStep || responseCount < toughMinResponses {
		candidates = preferSubset(candidates, func(q model.Question) bool { return !IsTough(q) })
	}
	if responseCount < contactMinResponses {
		candidates = preferSubset(candidates, func(q model.Question) bool { return q.GroupKey() != model.CategoryContact })
	}

	groups, order := groupByCategory(candidates)
	primary := order[0]
	for _, cat := range order[1:] {
		if len(groups[cat]) > len(groups[primary]) {
			primary = cat
		}
	}

	selected := make([]model.Question, 0, maxQuestionsPerStep)
	taken := map[string]bool{}
	take := func(q model.Question) {
		selected = append(selected, q)
		taken[q.ID] = true
	}

	for _, q := range groups[primary] {
		if len(selected) == relatedPerStep {
			break
		}
		take(q)
	}
	for _, cat := range order {
		for _, q := range groups[cat] {
			if len(selected) >= relatedPerStep {
				break
			}
			if !taken[q.ID] {
				take(q)
			}
		}
	}

	// The third slot goes to a required question only
	for _, q := range candidates {
		if len(selected) >= maxQuestionsPerStep {
			break
		}
		if q.IsRequired && !taken[q.ID] {
			take(q)
		}
	}
	return selected
}

// Select picks the next questions and rephrases them. Rephrasing never blocks
// selection: on any generator failure the original texts are used.
func (s *QuestionSelector) Select(ctx context.Context, available []model.Question, askedIDs []string, step, responseCount int, rc RephraseContext) []model.Question {
	selected := s.Pick(available, askedIDs, step, responseCount)
	if len(selected) == 0 || !s.rephrase {
		return selected
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	texts, err := s.generator.Rephrase(genCtx, selected, rc)
	if err != nil {
		s.logger.Warn("rephrase failed, using original text", "step", step, "error", err)
		s.metrics.TextGenFallback("rephrase")
		return selected
	}
	if len(texts) != len(selected) {
		s.logger.Warn("rephrase count mismatch, using original text", "step", step, "want", len(selected), "got", len(texts))
		s.metrics.TextGenFallback("rephrase")
		return selected
	}

	for i := range selected {
		if texts[i] != "" {
			selected[i].RephrasedText = texts[i]
		}
	}
	return selected
}

func preferSubset(questions []model.Question, keep func(model.Question) bool) []model.Question {
	subset := make([]model.Question, 0, len(questions))
	for _, q := range questions {
		if keep(q) {
			subset = append(subset, q)
		}
	}
	if len(subset) == 0 {
		return questions
	}
	return subset
}

// groupByCategory keeps catalog order inside groups and orders groups by first appearance
func groupByCategory(questions []model.Question) (map[model.Category][]model.Question, []model.Category) {
	groups := make(map[model.Category][]model.Question)
	var order []model.Category
	for _, q := range questions {
		cat := q.GroupKey()
		if _, ok := groups[cat]; !ok {
			order = append(order, cat)
		}
		groups[cat] = append(groups[cat], q)
	}
	return groups, order
}
