package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadflow/internal/model"
)

type flakyResponseRepo struct {
	mu       sync.Mutex
	failures int
	attempts int
	saved    map[string]*model.Response
}

func (r *flakyResponseRepo) Save(_ context.Context, response *model.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if r.failures > 0 {
		r.failures--
		return errors.New("connection reset")
	}
	if r.saved == nil {
		r.saved = map[string]*model.Response{}
	}
	if _, ok := r.saved[response.QuestionID]; !ok {
		r.saved[response.QuestionID] = response
	}
	return nil
}

func (r *flakyResponseRepo) GetBySessionID(_ context.Context, _ string) ([]*model.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Response, 0, len(r.saved))
	for _, resp := range r.saved {
		out = append(out, resp)
	}
	return out, nil
}

func presentedSession(asked ...string) *model.Session {
	s := &model.Session{ID: "s1", FormID: "dog-walking", Step: 1}
	s.MarkAsked(questionsByID(dogForm(), asked...))
	return s
}

func questionsByID(form *model.Form, ids ...string) []model.Question {
	out := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := form.Question(id)
		if ok {
			out = append(out, q)
		}
	}
	return out
}

func TestProcessPartialBatch(t *testing.T) {
	clock := newFakeClock()
	monitor := NewAbandonmentMonitor(clock.Now)
	processor := NewResponseProcessor(nil, nil, monitor, discardLogger())
	session := presentedSession("location", "breed")

	result, err := processor.Process(context.Background(), []model.PendingResponse{
		{QuestionID: "location", Answer: " Somerville, MA "},
		{QuestionID: "breed", Answer: "   "},
		{QuestionID: "ghost", Answer: "boo"},
		{QuestionID: "vaccinated", Answer: "Yes"},
		{QuestionID: "", Answer: "orphan"},
		{QuestionID: "location", Answer: "Cambridge"},
	}, session, dogForm(), clock.Now())
	require.NoError(t, err)

	require.Len(t, result.Accepted, 1)
	accepted := result.Accepted[0]
	assert.Equal(t, "location", accepted.QuestionID)
	assert.Equal(t, "Somerville, MA", accepted.Answer)
	assert.Equal(t, 20, accepted.ScoreAwarded)
	assert.Equal(t, 1, accepted.Step)

	reasons := map[string]string{}
	for _, r := range result.Rejected {
		reasons[r.QuestionID] = r.Reason
	}
	assert.Len(t, result.Rejected, 5)
	assert.Equal(t, "answer is required", reasons["breed"])
	assert.Equal(t, "unknown question", reasons["ghost"])
	assert.Equal(t, "question was not presented", reasons["vaccinated"])
	assert.Equal(t, "question_id is required", reasons[""])
	assert.Equal(t, "question already answered", reasons["location"])

	assert.Len(t, session.Responses, 1)
}

func TestProcessNeverOverwrites(t *testing.T) {
	clock := newFakeClock()
	processor := NewResponseProcessor(nil, nil, NewAbandonmentMonitor(clock.Now), discardLogger())
	session := presentedSession("location", "breed")
	form := dogForm()

	_, err := processor.Process(context.Background(), []model.PendingResponse{{QuestionID: "location", Answer: "Boston"}}, session, form, clock.Now())
	require.NoError(t, err)

	result, err := processor.Process(context.Background(), []model.PendingResponse{{QuestionID: "location", Answer: "Out of state"}}, session, form, clock.Now())
	require.NoError(t, err)
	assert.Empty(t, result.Accepted)

	answer, ok := session.Answer("location")
	require.True(t, ok)
	assert.Equal(t, "Boston", answer)
	assert.Len(t, session.Responses, 1)
}

func TestProcessResetsEngagement(t *testing.T) {
	clock := newFakeClock()
	monitor := NewAbandonmentMonitor(clock.Now)
	processor := NewResponseProcessor(nil, nil, monitor, discardLogger())
	session := presentedSession("location")
	session.Engagement = model.EngagementState{
		AbandonmentStatus:    model.EngagementAtRisk,
		AbandonmentRisk:      0.64,
		HesitationIndicators: 1,
	}

	_, err := processor.Process(context.Background(), []model.PendingResponse{{QuestionID: "location", Answer: "Boston"}}, session, dogForm(), clock.Now())
	require.NoError(t, err)
	assert.Equal(t, model.EngagementActive, session.Engagement.AbandonmentStatus)
	assert.LessOrEqual(t, session.Engagement.AbandonmentRisk, 0.35)
}

func TestProcessRejectedBatchKeepsEngagement(t *testing.T) {
	clock := newFakeClock()
	processor := NewResponseProcessor(nil, nil, NewAbandonmentMonitor(clock.Now), discardLogger())
	session := presentedSession("location")
	session.Engagement.AbandonmentStatus = model.EngagementAtRisk

	result, err := processor.Process(context.Background(), []model.PendingResponse{{QuestionID: "ghost", Answer: "x"}}, session, dogForm(), clock.Now())
	require.NoError(t, err)
	assert.Empty(t, result.Accepted)
	assert.Equal(t, model.EngagementAtRisk, session.Engagement.AbandonmentStatus)
}

func TestProcessCompletedSession(t *testing.T) {
	processor := NewResponseProcessor(nil, nil, NewAbandonmentMonitor(nil), discardLogger())
	session := presentedSession("location")
	session.Completed = true

	_, err := processor.Process(context.Background(), []model.PendingResponse{{QuestionID: "location", Answer: "Boston"}}, session, dogForm(), time.Now())
	assert.ErrorIs(t, err, model.ErrSessionCompleted)
	assert.Empty(t, session.Responses)
}

func TestProcessDoesNotWriteResponses(t *testing.T) {
	repo := &flakyResponseRepo{}
	queue := NewPersistQueue(1, 8, DefaultRetryConfig(), discardLogger(), nil)
	queue.Start()

	clock := newFakeClock()
	processor := NewResponseProcessor(repo, queue, NewAbandonmentMonitor(clock.Now), discardLogger())
	session := presentedSession("location")

	result, err := processor.Process(context.Background(), []model.PendingResponse{{QuestionID: "location", Answer: "Boston"}},
		session, dogForm(), clock.Now())
	require.NoError(t, err)
	require.Len(t, result.Accepted, 1)
	require.NoError(t, queue.Close(context.Background()))

	assert.Zero(t, repo.attempts)
}

func TestProcessPersistsWithRetry(t *testing.T) {
	repo := &flakyResponseRepo{failures: 2}
	queue := NewPersistQueue(1, 8, RetryConfig{MaxAttempts: 5, BackoffBase: time.Millisecond, MaxBackoff: 2 * time.Millisecond}, discardLogger(), nil)
	queue.Start()

	clock := newFakeClock()
	processor := NewResponseProcessor(repo, queue, NewAbandonmentMonitor(clock.Now), discardLogger())
	session := presentedSession("location", "breed")

	result, err := processor.Process(context.Background(), []model.PendingResponse{
		{QuestionID: "location", Answer: "Boston"},
		{QuestionID: "breed", Answer: "Poodle"},
	}, session, dogForm(), clock.Now())
	require.NoError(t, err)

	processor.Persist(result.Accepted)
	require.NoError(t, queue.Close(context.Background()))

	saved, err := repo.GetBySessionID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, saved, 2)
	assert.Equal(t, 4, repo.attempts)
}
