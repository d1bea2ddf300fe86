package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"leadflow/internal/model"
)

// Rubric grammar, one clause per line or per ';':
//
//	+20 if somerville, cambridge or boston
//	-10 if weekends only
//	fail if no, not vaccinated
//	default 5
//
// Anything else is free-text description and is ignored when scoring.
// Scoring clauses are tried in order and the first match wins. Critical
// clauses ("fail if" / "critical if") are checked before scoring clauses.
// A short critical keyword ("no") only counts as the answer's first word,
// so "Yes, no issues" does not fail "fail if no".

// RubricClause is one parsed rule
type RubricClause struct {
	Points   int
	Keywords []string
	Critical bool
	Text     string
}

// Rubric is the parsed form of a question's scoring rubric
type Rubric struct {
	Critical []RubricClause
	Scoring  []RubricClause
	Default  *int
}

// RubricMatch is the outcome of applying a rubric to one answer
type RubricMatch struct {
	Points   int
	Matched  bool
	Critical bool
	Keyword  string
}

// RubricError reports a rubric that could not be parsed
type RubricError struct {
	QuestionID string
	Clause     string
	Reason     string
}

func (e *RubricError) Error() string {
	return fmt.Sprintf("rubric for %s: %s in %q", e.QuestionID, e.Reason, e.Clause)
}

var criticalPrefixes = []string{"fail if ", "critical if "}

// ParseRubric parses rubric text. Descriptive text parses to an empty rubric.
func ParseRubric(text string) (Rubric, error) {
	var rubric Rubric
	clauses := strings.FieldsFunc(text, func(r rune) bool { return r == ';' || r == '\n' })

	for _, raw := range clauses {
		clause := strings.TrimSpace(raw)
		if clause == "" {
			continue
		}
		lower := strings.ToLower(clause)

		if critical, ok := parseCritical(clause, lower); ok {
			if len(critical.Keywords) == 0 {
				return Rubric{}, &RubricError{Clause: clause, Reason: "critical clause without keywords"}
			}
			rubric.Critical = append(rubric.Critical, critical)
			continue
		}

		switch {
		case lower[0] == '+' || lower[0] == '-':
			sc, err := parseScoring(clause, lower)
			if err != nil {
				return Rubric{}, err
			}
			rubric.Scoring = append(rubric.Scoring, sc)
		case strings.HasPrefix(lower, "default "):
			n, err := strconv.Atoi(strings.TrimSpace(clause[len("default "):]))
			if err != nil {
				return Rubric{}, &RubricError{Clause: clause, Reason: "default is not an integer"}
			}
			rubric.Default = &n
		}
	}
	return rubric, nil
}

func parseCritical(clause, lower string) (RubricClause, bool) {
	for _, prefix := range criticalPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return RubricClause{
				Critical: true,
				Keywords: splitKeywords(lower[len(prefix):]),
				Text:     clause,
			}, true
		}
	}
	return RubricClause{}, false
}

func parseScoring(clause, lower string) (RubricClause, error) {
	idx := strings.Index(lower, " if ")
	if idx < 0 {
		return RubricClause{}, &RubricError{Clause: clause, Reason: "points without condition"}
	}
	points, err := strconv.Atoi(strings.TrimSpace(clause[:idx]))
	if err != nil {
		return RubricClause{}, &RubricError{Clause: clause, Reason: "points are not an integer"}
	}
	keywords := splitKeywords(lower[idx+len(" if "):])
	if len(keywords) == 0 {
		return RubricClause{}, &RubricError{Clause: clause, Reason: "condition without keywords"}
	}
	return RubricClause{Points: points, Keywords: keywords, Text: clause}, nil
}

func splitKeywords(s string) []string {
	s = strings.ReplaceAll(s, " or ", ",")
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' })

	keywords := make([]string, 0, len(parts))
	for _, p := range parts {
		k := strings.Trim(strings.TrimSpace(p), `"'`)
		if k != "" {
			keywords = append(keywords, k)
		}
	}
	return keywords
}

// Apply scores one answer. Critical clauses award no points.
func (r Rubric) Apply(answer string, defaultPoints int) RubricMatch {
	normalized := strings.ToLower(strings.TrimSpace(answer))
	fields := answerFields(normalized)
	words := make(map[string]bool, len(fields))
	for _, f := range fields {
		words[f] = true
	}
	leading := map[string]bool{}
	if len(fields) > 0 {
		leading[fields[0]] = true
	}

	for _, c := range r.Critical {
		if kw, ok := c.match(normalized, leading); ok {
			return RubricMatch{Matched: true, Critical: true, Keyword: kw}
		}
	}
	for _, c := range r.Scoring {
		if kw, ok := c.match(normalized, words); ok {
			return RubricMatch{Points: c.Points, Matched: true, Keyword: kw}
		}
	}
	if r.Default != nil {
		return RubricMatch{Points: *r.Default}
	}
	return RubricMatch{Points: defaultPoints}
}

// Short keywords ("no", "yes", "3") must match a whole word so "no" does not hit "know".
func (c RubricClause) match(answer string, words map[string]bool) (string, bool) {
	for _, kw := range c.Keywords {
		if len([]rune(kw)) <= 3 {
			if words[kw] {
				return kw, true
			}
			continue
		}
		if strings.Contains(answer, kw) {
			return kw, true
		}
	}
	return "", false
}

func answerFields(answer string) []string {
	return strings.FieldsFunc(answer, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// AwardPoints scores one answer against its question's rubric. A question with
// no rubric text is not scored.
func AwardPoints(q model.Question, answer string, defaultPoints int) (RubricMatch, error) {
	if strings.TrimSpace(q.ScoringRubric) == "" {
		return RubricMatch{}, nil
	}
	rubric, err := ParseRubric(q.ScoringRubric)
	if err != nil {
		var re *RubricError
		if errors.As(err, &re) {
			re.QuestionID = q.ID
		}
		return RubricMatch{}, err
	}
	return rubric.Apply(answer, defaultPoints), nil
}

var toughMarkers = []string{
	"required", "must be", "must have", "disqualif", "critical", "fail if", "deal breaker", "not eligible",
}

// IsTough reports whether a question's rubric implies a hard requirement
func IsTough(q model.Question) bool {
	rubric := strings.ToLower(q.ScoringRubric)
	for _, marker := range toughMarkers {
		if strings.Contains(rubric, marker) {
			return true
		}
	}
	return false
}
