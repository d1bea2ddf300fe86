package model

import (
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"
)

// BusinessRules configures lead scoring for a form
type BusinessRules struct {
	QualifyScore    int `json:"qualifyScore" bson:"qualifyScore" yaml:"qualify_score"`          // score >= this is "yes"
	DisqualifyScore int `json:"disqualifyScore" bson:"disqualifyScore" yaml:"disqualify_score"` // score <= this is "no"
	MinQuestions    int `json:"minQuestions" bson:"minQuestions" yaml:"min_questions"`          // answers needed before a verdict
	DefaultPoints   int `json:"defaultPoints" bson:"defaultPoints" yaml:"default_points"`       // awarded when no rubric clause matches
}

// DefaultBusinessRules returns the engine-wide scoring defaults
func DefaultBusinessRules() BusinessRules {
	return BusinessRules{
		QualifyScore:    80,
		DisqualifyScore: 25,
		MinQuestions:    4,
		DefaultPoints:   5,
	}
}

// Effective returns the rules the engine applies. The zero value is not a
// usable rule set and stands for "not configured", so it resolves to the
// defaults; any other value is used as is, zeros included.
func (r BusinessRules) Effective() BusinessRules {
	if r == (BusinessRules{}) {
		return DefaultBusinessRules()
	}
	return r
}

// ruleOverrides holds the fields a catalog actually sets
type ruleOverrides struct {
	QualifyScore    *int `json:"qualifyScore" yaml:"qualify_score"`
	DisqualifyScore *int `json:"disqualifyScore" yaml:"disqualify_score"`
	MinQuestions    *int `json:"minQuestions" yaml:"min_questions"`
	DefaultPoints   *int `json:"defaultPoints" yaml:"default_points"`
}

func (o ruleOverrides) over(base BusinessRules) BusinessRules {
	if o.QualifyScore != nil {
		base.QualifyScore = *o.QualifyScore
	}
	if o.DisqualifyScore != nil {
		base.DisqualifyScore = *o.DisqualifyScore
	}
	if o.MinQuestions != nil {
		base.MinQuestions = *o.MinQuestions
	}
	if o.DefaultPoints != nil {
		base.DefaultPoints = *o.DefaultPoints
	}
	return base
}

// UnmarshalYAML starts from the defaults and applies only the keys present
func (r *BusinessRules) UnmarshalYAML(value *yaml.Node) error {
	var o ruleOverrides
	if err := value.Decode(&o); err != nil {
		return err
	}
	*r = o.over(DefaultBusinessRules())
	return nil
}

// UnmarshalJSON starts from the defaults and applies only the keys present
func (r *BusinessRules) UnmarshalJSON(data []byte) error {
	var o ruleOverrides
	if err := json.Unmarshal(data, &o); err != nil {
		return err
	}
	*r = o.over(DefaultBusinessRules())
	return nil
}

// Form is the question catalog a client publishes
type Form struct {
	ID           string        `json:"id" bson:"_id" yaml:"id"`
	ClientID     string        `json:"clientId" bson:"clientId" yaml:"client_id"`
	BusinessName string        `json:"businessName" bson:"businessName" yaml:"business_name"`
	Title        string        `json:"title" bson:"title" yaml:"title"`
	Rules        BusinessRules `json:"rules" bson:"rules" yaml:"rules"`
	Questions    []Question    `json:"questions" bson:"questions" yaml:"questions"`
	CreatedAt    time.Time     `json:"createdAt" bson:"createdAt" yaml:"-"`
	UpdatedAt    time.Time     `json:"updatedAt" bson:"updatedAt" yaml:"-"`
}

// UnmarshalYAML fills Rules with the defaults when the catalog omits them
func (f *Form) UnmarshalYAML(value *yaml.Node) error {
	type plain Form
	p := plain{Rules: DefaultBusinessRules()}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*f = Form(p)
	return nil
}

// Question looks up a catalog entry by id
func (f *Form) Question(id string) (Question, bool) {
	for _, q := range f.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Catalog indexes the form questions by id
func (f *Form) Catalog() map[string]Question {
	catalog := make(map[string]Question, len(f.Questions))
	for _, q := range f.Questions {
		catalog[q.ID] = q
	}
	return catalog
}
