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

type memoryOutcomes struct {
	mu       sync.Mutex
	failures int
	records  map[string]*model.Outcome
}

func (m *memoryOutcomes) CreateOnce(_ context.Context, o *model.Outcome) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return false, errors.New("write timeout")
	}
	if m.records == nil {
		m.records = map[string]*model.Outcome{}
	}
	if _, ok := m.records[o.SessionID]; ok {
		return false, nil
	}
	m.records[o.SessionID] = o
	return true, nil
}

func (m *memoryOutcomes) GetBySessionID(_ context.Context, id string) (*model.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id], nil
}

func answeredSession(answers map[string]string, order ...string) *model.Session {
	s := &model.Session{ID: "s1", FormID: "dog-walking", ClientID: "acme"}
	s.Responses = responsesFor("s1", answers, order...)
	return s
}

func TestRouteQualifiedUsesGenerator(t *testing.T) {
	gen := &fakeGenerator{}
	router := NewCompletionRouter(gen, nil, nil, time.Second, discardLogger(), nil)
	session := answeredSession(qualifiedAnswers, "location", "breed", "name")
	session.Lead = model.LeadIntelligence{Status: model.LeadYes, FinalScore: 90}

	completion, err := router.Route(context.Background(), model.LeadYes, session, dogForm(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, model.CompletionQualified, completion.CompletionType)
	assert.Equal(t, 90, completion.FinalScore)
	assert.Equal(t, "Thanks Alex! We can't wait to meet your German Shepherd in Somerville, MA.", completion.CompletionMessage)
	assert.True(t, session.Completed)
	assert.Equal(t, "Alex", gen.lastClosingCtx.VisitorName)
	assert.Equal(t, "Happy Paws", gen.lastClosingCtx.BusinessName)
}

func TestRouteMaybeIsQualified(t *testing.T) {
	router := NewCompletionRouter(&fakeGenerator{}, nil, nil, time.Second, discardLogger(), nil)
	session := answeredSession(qualifiedAnswers, "location")
	session.Lead.Status = model.LeadMaybe

	completion, err := router.Route(context.Background(), model.LeadMaybe, session, dogForm(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.CompletionQualified, completion.CompletionType)
}

func TestRouteUnqualifiedSkipsGenerator(t *testing.T) {
	gen := &fakeGenerator{}
	router := NewCompletionRouter(gen, nil, nil, time.Second, discardLogger(), nil)
	session := answeredSession(qualifiedAnswers, "location")
	session.Lead.Status = model.LeadNo

	completion, err := router.Route(context.Background(), model.LeadNo, session, dogForm(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, model.CompletionUnqualified, completion.CompletionType)
	assert.Equal(t, UnqualifiedMessage("Happy Paws"), completion.CompletionMessage)
	_, closing := gen.calls()
	assert.Zero(t, closing)
}

func TestRouteFallsBackOnGeneratorFailure(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"error", &fakeGenerator{closingErr: errors.New("503 from upstream")}},
		{"timeout", &fakeGenerator{closingDelay: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewCompletionRouter(tt.gen, nil, nil, 20*time.Millisecond, discardLogger(), nil)
			session := answeredSession(qualifiedAnswers, "name", "location")
			session.Lead.Status = model.LeadYes

			completion, err := router.Route(context.Background(), model.LeadYes, session, dogForm(), time.Now())
			require.NoError(t, err)
			assert.Equal(t, model.CompletionQualified, completion.CompletionType)
			assert.Equal(t, "Thank you, Alex! Your details have been sent to Happy Paws and someone will be in touch shortly.", completion.CompletionMessage)
		})
	}
}

func TestRouteRejectsUnknownStatus(t *testing.T) {
	router := NewCompletionRouter(&fakeGenerator{}, nil, nil, time.Second, discardLogger(), nil)
	session := answeredSession(qualifiedAnswers, "location")

	_, err := router.Route(context.Background(), model.LeadUnknown, session, dogForm(), time.Now())
	assert.ErrorIs(t, err, ErrRoutingPrecondition)
	assert.False(t, session.Completed)
}

func TestRouteRejectsCompletedSession(t *testing.T) {
	router := NewCompletionRouter(&fakeGenerator{}, nil, nil, time.Second, discardLogger(), nil)
	session := answeredSession(qualifiedAnswers, "location")
	_, err := router.Abandon(session, time.Now())
	require.NoError(t, err)

	_, err = router.Route(context.Background(), model.LeadYes, session, dogForm(), time.Now())
	assert.ErrorIs(t, err, model.ErrSessionCompleted)
	assert.Equal(t, model.CompletionAbandoned, session.CompletionType)
}

func TestCompleteGenericAndAbandon(t *testing.T) {
	router := NewCompletionRouter(nil, nil, nil, 0, discardLogger(), nil)

	exhausted := answeredSession(qualifiedAnswers, "location")
	completion, err := router.CompleteGeneric(exhausted, time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.CompletionUnqualified, completion.CompletionType)
	assert.Equal(t, exhaustedMessage, completion.CompletionMessage)

	idle := answeredSession(qualifiedAnswers, "location")
	completion, err = router.Abandon(idle, time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.CompletionAbandoned, completion.CompletionType)
	assert.Equal(t, model.EngagementAbandoned, idle.Engagement.AbandonmentStatus)
}

func TestRecordWritesOutcomeOnce(t *testing.T) {
	outcomes := &memoryOutcomes{}
	router := NewCompletionRouter(nil, outcomes, nil, 0, discardLogger(), nil)
	session := answeredSession(qualifiedAnswers, "location")
	session.Lead = model.LeadIntelligence{Status: model.LeadNo, FinalScore: 20}
	_, err := router.Route(context.Background(), model.LeadNo, session, dogForm(), time.Now())
	require.NoError(t, err)

	router.Record(context.Background(), session)
	router.Record(context.Background(), session)

	outcome, err := outcomes.GetBySessionID(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, model.CompletionUnqualified, outcome.CompletionType)
	assert.Equal(t, 20, outcome.FinalScore)
	assert.Len(t, outcomes.records, 1)
}

func TestRecordRetriesInBackground(t *testing.T) {
	outcomes := &memoryOutcomes{failures: 2}
	queue := NewPersistQueue(1, 4, RetryConfig{MaxAttempts: 3, BackoffBase: time.Millisecond, MaxBackoff: time.Millisecond}, discardLogger(), nil)
	queue.Start()
	router := NewCompletionRouter(nil, outcomes, queue, 0, discardLogger(), nil)

	session := answeredSession(qualifiedAnswers, "location")
	_, err := router.Abandon(session, time.Now())
	require.NoError(t, err)

	router.Record(context.Background(), session)
	require.NoError(t, queue.Close(context.Background()))

	outcome, err := outcomes.GetBySessionID(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, model.CompletionAbandoned, outcome.CompletionType)
}
