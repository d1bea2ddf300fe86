package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"leadflow/internal/cache"
	"leadflow/internal/config"
	"leadflow/internal/model"
	"leadflow/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeGenerator struct {
	mu             sync.Mutex
	rephraseErr    error
	rephraseExtra  bool
	closingErr     error
	closingDelay   time.Duration
	rephraseCalls  int
	closingCalls   int
	lastClosingCtx ClosingContext
}

func (g *fakeGenerator) Rephrase(_ context.Context, questions []model.Question, _ RephraseContext) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rephraseCalls++
	if g.rephraseErr != nil {
		return nil, g.rephraseErr
	}
	out := make([]string, 0, len(questions)+1)
	for _, q := range questions {
		out = append(out, "Quick one: "+q.Text)
	}
	if g.rephraseExtra {
		out = append(out, "An extra question nobody asked for")
	}
	return out, nil
}

func (g *fakeGenerator) ComposeClosing(ctx context.Context, cc ClosingContext) (string, error) {
	g.mu.Lock()
	g.closingCalls++
	g.lastClosingCtx = cc
	delay, closingErr := g.closingDelay, g.closingErr
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if closingErr != nil {
		return "", closingErr
	}

	answers := map[string]string{}
	for _, a := range cc.Answers {
		answers[a.QuestionID] = a.Answer
	}
	return fmt.Sprintf("Thanks %s! We can't wait to meet your %s in %s.",
		cc.VisitorName, answers["breed"], answers["location"]), nil
}

func (g *fakeGenerator) calls() (rephrase, closing int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rephraseCalls, g.closingCalls
}

// dogForm is a seven-question dog walking intake
func dogForm() *model.Form {
	return &model.Form{
		ID:           "dog-walking",
		ClientID:     "acme",
		BusinessName: "Happy Paws",
		Title:        "Dog walking intake",
		Rules:        model.BusinessRules{QualifyScore: 80, DisqualifyScore: 25, MinQuestions: 4, DefaultPoints: 5},
		Questions: []model.Question{
			{ID: "name", Text: "What's your name?", Category: model.CategoryContact},
			{ID: "email", Text: "What's your email?", Category: model.CategoryContact, DataType: "email"},
			{ID: "location", Text: "Where are you located?", Category: model.CategoryQualification,
				ScoringRubric: "+20 if somerville, cambridge, boston; -10 if out of state"},
			{ID: "breed", Text: "What breed is your dog?", Category: model.CategoryQualification,
				ScoringRubric: "+25 if shepherd, retriever, labrador, poodle; +10 if mix"},
			{ID: "vaccinated", Text: "Is your dog vaccinated?", Category: model.CategoryQualification, IsRequired: true,
				ScoringRubric: "Vaccination is required; +25 if yes, up to date; fail if no, not vaccinated"},
			{ID: "frequency", Text: "How often do you need walks?", Category: model.CategoryService,
				ScoringRubric: "+20 if daily, week, 3 times; +5 if once"},
			{ID: "notes", Text: "Anything else we should know?", Category: model.CategoryOther},
		},
	}
}

func responsesFor(sessionID string, answers map[string]string, order ...string) []model.Response {
	out := make([]model.Response, 0, len(order))
	for i, qid := range order {
		out = append(out, model.Response{SessionID: sessionID, QuestionID: qid, Answer: answers[qid], Step: i})
	}
	return out
}

type testEnv struct {
	svc     *SessionService
	store   *repository.Store
	gen     *fakeGenerator
	clock   *fakeClock
	queue   *PersistQueue
	locker  cache.SessionLocker
	monitor *AbandonmentMonitor
	router  *CompletionRouter
	form    *model.Form
}

func newTestEnv(t *testing.T, forms ...*model.Form) *testEnv {
	t.Helper()
	ctx := context.Background()

	sqlite, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "leadflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	store := sqlite.Store()

	if len(forms) == 0 {
		forms = []*model.Form{dogForm()}
	}
	for _, f := range forms {
		require.NoError(t, store.Forms.Upsert(ctx, f))
	}

	logger := discardLogger()
	clock := newFakeClock()
	gen := &fakeGenerator{}

	queue := NewPersistQueue(2, 64, RetryConfig{MaxAttempts: 3, BackoffBase: time.Millisecond, MaxBackoff: 5 * time.Millisecond}, logger, nil)
	queue.Start()
	t.Cleanup(func() { _ = queue.Close(context.Background()) })

	monitor := NewAbandonmentMonitor(clock.Now)
	locker := cache.NewLocalLocker(20 * time.Millisecond)
	selector := NewQuestionSelector(gen, time.Second, true, logger, nil)
	processor := NewResponseProcessor(store.Responses, queue, monitor, logger)
	scorer := NewLeadScorer(logger, nil)
	router := NewCompletionRouter(gen, store.Outcomes, queue, 200*time.Millisecond, logger, nil)
	auth := NewAuthService(config.AuthConfig{JWTSecret: "test-secret", SessionTokenTTL: time.Hour})

	svc := NewSessionService(store.Forms, store.Sessions, locker, selector, processor, scorer, monitor, router, auth, logger, nil)

	return &testEnv{
		svc:     svc,
		store:   store,
		gen:     gen,
		clock:   clock,
		queue:   queue,
		locker:  locker,
		monitor: monitor,
		router:  router,
		form:    forms[0],
	}
}

// answer builds a step request answering the given questions from answers
func answer(sessionID string, questions []model.QuestionView, answers map[string]string) *model.StepRequest {
	req := &model.StepRequest{SessionID: sessionID}
	for _, q := range questions {
		req.Responses = append(req.Responses, model.PendingResponse{QuestionID: q.ID, Answer: answers[q.ID]})
	}
	return req
}

func questionIDs(questions []model.QuestionView) []string {
	ids := make([]string, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	return ids
}
