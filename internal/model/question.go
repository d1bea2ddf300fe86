package model

// Category groups related catalog questions
type Category string

const (
	CategoryContact       Category = "contact"       // Name, email, phone
	CategoryQualification Category = "qualification" // Domain-specific fit questions
	CategoryService       Category = "service"       // What the visitor wants from the business
	CategoryOther         Category = "other"
)

// Question is a catalog entry of a form
type Question struct {
	ID            string   `json:"id" bson:"id" yaml:"id"`
	Text          string   `json:"text" bson:"text" yaml:"text"`
	RephrasedText string   `json:"rephrasedText,omitempty" bson:"-" yaml:"-"` // Per-step, never persisted
	DataType      string   `json:"dataType" bson:"dataType" yaml:"data_type"`
	IsRequired    bool     `json:"isRequired" bson:"isRequired" yaml:"required"`
	ScoringRubric string   `json:"scoringRubric,omitempty" bson:"scoringRubric,omitempty" yaml:"rubric"`
	Category      Category `json:"category" bson:"category" yaml:"category"`
}

// PhrasedText returns the rephrased text when present, the original text otherwise
func (q Question) PhrasedText() string {
	if q.RephrasedText != "" {
		return q.RephrasedText
	}
	return q.Text
}

// GroupKey returns the category used for grouping, defaulting to other
func (q Question) GroupKey() Category {
	if q.Category == "" {
		return CategoryOther
	}
	return q.Category
}

// QuestionView is the visitor-facing shape of a question
type QuestionView struct {
	ID              string `json:"id"`
	Question        string `json:"question"`
	PhrasedQuestion string `json:"phrased_question"`
	DataType        string `json:"data_type"`
	IsRequired      bool   `json:"is_required"`
}

// View converts a question to its visitor-facing shape
func (q Question) View() QuestionView {
	dataType := q.DataType
	if dataType == "" {
		dataType = "text"
	}
	return QuestionView{
		ID:              q.ID,
		Question:        q.Text,
		PhrasedQuestion: q.PhrasedText(),
		DataType:        dataType,
		IsRequired:      q.IsRequired,
	}
}
