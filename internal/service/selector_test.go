package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadflow/internal/model"
)

func ids(questions []model.Question) []string {
	out := make([]string, len(questions))
	for i, q := range questions {
		out[i] = q.ID
	}
	return out
}

func TestPickFollowsConversationOrder(t *testing.T) {
	form := dogForm()
	selector := NewQuestionSelector(nil, 0, false, discardLogger(), nil)

	first := selector.Pick(form.Questions, nil, 0, 0)
	assert.Equal(t, []string{"location", "breed"}, ids(first), "easy non-contact questions of the largest group come first")

	second := selector.Pick(form.Questions, []string{"location", "breed"}, 1, 2)
	assert.Equal(t, []string{"frequency", "notes"}, ids(second))

	third := selector.Pick(form.Questions, []string{"location", "breed", "frequency", "notes"}, 2, 4)
	assert.Equal(t, []string{"name", "email", "vaccinated"}, ids(third), "the third slot goes to a required question")
}

func TestPickNeverRepeats(t *testing.T) {
	form := dogForm()
	selector := NewQuestionSelector(nil, 0, false, discardLogger(), nil)

	var asked []string
	seen := map[string]bool{}
	for step := 0; step < 10; step++ {
		picked := selector.Pick(form.Questions, asked, step, len(asked))
		if len(picked) == 0 {
			break
		}
		assert.LessOrEqual(t, len(picked), 3)
		for _, q := range picked {
			assert.False(t, seen[q.ID], "question %s asked twice", q.ID)
			seen[q.ID] = true
			asked = append(asked, q.ID)
		}
	}
	assert.Len(t, seen, len(form.Questions))
	assert.Empty(t, selector.Pick(form.Questions, asked, 10, len(asked)))
}

func TestPickDefersToughAndContactQuestions(t *testing.T) {
	form := dogForm()
	selector := NewQuestionSelector(nil, 0, false, discardLogger(), nil)

	for step := 0; step < 2; step++ {
		for _, q := range selector.Pick(form.Questions, nil, step, 0) {
			assert.NotEqual(t, "vaccinated", q.ID)
			assert.NotEqual(t, model.CategoryContact, q.Category)
		}
	}
}

func TestPickFallsBackWhenOnlyDeferredRemain(t *testing.T) {
	selector := NewQuestionSelector(nil, 0, false, discardLogger(), nil)

	tough := []model.Question{
		{ID: "license", Text: "Are you licensed?", ScoringRubric: "fail if no"},
		{ID: "insurance", Text: "Are you insured?", ScoringRubric: "Must have insurance"},
	}
	assert.Equal(t, []string{"license", "insurance"}, ids(selector.Pick(tough, nil, 0, 0)))

	contact := []model.Question{
		{ID: "phone", Text: "Phone number?", Category: model.CategoryContact},
		{ID: "email", Text: "Email?", Category: model.CategoryContact},
	}
	assert.Equal(t, []string{"phone", "email"}, ids(selector.Pick(contact, nil, 0, 0)))
}

func TestPickCapsAtThree(t *testing.T) {
	var questions []model.Question
	for i := 0; i < 8; i++ {
		questions = append(questions, model.Question{
			ID: fmt.Sprintf("q%d", i), Text: "Question", Category: model.CategoryService, IsRequired: true,
		})
	}
	selector := NewQuestionSelector(nil, 0, false, discardLogger(), nil)

	picked := selector.Pick(questions, nil, 3, 5)
	assert.Equal(t, []string{"q0", "q1", "q2"}, ids(picked))
}

func TestPickDedupesCatalogIDs(t *testing.T) {
	questions := []model.Question{
		{ID: "a", Text: "A"},
		{ID: "a", Text: "A again"},
		{ID: "b", Text: "B"},
	}
	selector := NewQuestionSelector(nil, 0, false, discardLogger(), nil)

	assert.Equal(t, []string{"a", "b"}, ids(selector.Pick(questions, nil, 0, 0)))
}

func TestSelectRephrases(t *testing.T) {
	form := dogForm()
	gen := &fakeGenerator{}
	selector := NewQuestionSelector(gen, time.Second, true, discardLogger(), nil)

	picked := selector.Select(context.Background(), form.Questions, nil, 0, 0, RephraseContext{})
	require.Len(t, picked, 2)
	assert.Equal(t, "Quick one: Where are you located?", picked[0].View().PhrasedQuestion)
	assert.Equal(t, "Where are you located?", picked[0].View().Question)
}

func TestSelectKeepsOriginalTextOnGeneratorFailure(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"error", &fakeGenerator{rephraseErr: errors.New("quota exceeded")}},
		{"count mismatch", &fakeGenerator{rephraseExtra: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := dogForm()
			selector := NewQuestionSelector(tt.gen, time.Second, true, discardLogger(), nil)

			picked := selector.Select(context.Background(), form.Questions, nil, 0, 0, RephraseContext{})
			require.Equal(t, []string{"location", "breed"}, ids(picked))
			for _, q := range picked {
				assert.Empty(t, q.RephrasedText)
				assert.Equal(t, q.Text, q.View().PhrasedQuestion)
			}
		})
	}
}

func TestSelectWithoutRephrasing(t *testing.T) {
	gen := &fakeGenerator{}
	selector := NewQuestionSelector(gen, time.Second, false, discardLogger(), nil)

	picked := selector.Select(context.Background(), dogForm().Questions, nil, 0, 0, RephraseContext{})
	assert.Len(t, picked, 2)
	rephrase, _ := gen.calls()
	assert.Zero(t, rephrase)
}
