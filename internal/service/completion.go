package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"leadflow/internal/model"
	"leadflow/internal/repository"
)

const exhaustedMessage = "Thank you for answering our questions. We will review your answers and get back to you if we can help."

// CompletionRouter ends a session with the message matching its lead status
type CompletionRouter struct {
	generator TextGenerator
	outcomes  repository.OutcomeRepo
	queue     *PersistQueue
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *Metrics
}

// NewCompletionRouter creates a new completion router
func NewCompletionRouter(generator TextGenerator, outcomes repository.OutcomeRepo, queue *PersistQueue, timeout time.Duration, logger *slog.Logger, metrics *Metrics) *CompletionRouter {
	if generator == nil {
		generator = StaticGenerator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultTextGenTimeout
	}
	return &CompletionRouter{
		generator: generator,
		outcomes:  outcomes,
		queue:     queue,
		timeout:   timeout,
		logger:    logger,
		metrics:   metrics,
	}
}

// Route finishes the session. yes and maybe get a personalized message, no
// gets a generic one without calling the generator. unknown is rejected.
func (r *CompletionRouter) Route(ctx context.Context, status model.LeadStatus, session *model.Session, form *model.Form, now time.Time) (*model.Completion, error) {
	if !status.Resolved() {
		r.logger.Error("routing requested for unresolved lead", "session_id", session.ID, "status", status)
		return nil, ErrRoutingPrecondition
	}
	if err := session.EnsureMutable(); err != nil {
		return nil, err
	}

	var (
		message        string
		completionType model.CompletionType
	)
	if status == model.LeadNo {
		completionType = model.CompletionUnqualified
		message = UnqualifiedMessage(form.BusinessName)
	} else {
		completionType = model.CompletionQualified
		message = r.closingMessage(ctx, session, form)
	}

	if err := session.Finish(completionType, message, now); err != nil {
		return nil, err
	}
	return completionOf(session), nil
}

// CompleteGeneric ends a session whose catalog ran out before a verdict
func (r *CompletionRouter) CompleteGeneric(session *model.Session, now time.Time) (*model.Completion, error) {
	if err := session.Finish(model.CompletionUnqualified, exhaustedMessage, now); err != nil {
		return nil, err
	}
	return completionOf(session), nil
}

// Abandon ends a session after inactivity
func (r *CompletionRouter) Abandon(session *model.Session, now time.Time) (*model.Completion, error) {
	if err := session.Finish(model.CompletionAbandoned, abandonedMessage, now); err != nil {
		return nil, err
	}
	session.Engagement.AbandonmentStatus = model.EngagementAbandoned
	return completionOf(session), nil
}

// Record writes the outcome record of a finished session. A repeated call is
// a no-op. On failure the write is retried in the background.
func (r *CompletionRouter) Record(ctx context.Context, session *model.Session) {
	if r.outcomes == nil || !session.Completed {
		return
	}
	outcome := model.OutcomeFor(session)

	created, err := r.outcomes.CreateOnce(ctx, outcome)
	if err == nil {
		if !created {
			r.logger.Info("outcome already recorded", "session_id", session.ID)
		}
		return
	}

	r.logger.Warn("outcome write failed, retrying in background", "session_id", session.ID, "error", err)
	if r.queue == nil {
		return
	}
	qerr := r.queue.Submit(PersistTask{
		Name:      "create_outcome",
		SessionID: session.ID,
		Run: func(ctx context.Context) error {
			_, err := r.outcomes.CreateOnce(ctx, outcome)
			return err
		},
	})
	if qerr != nil {
		r.logger.Error("outcome not queued for persistence", "session_id", session.ID, "error", qerr)
	}
}

func (r *CompletionRouter) closingMessage(ctx context.Context, session *model.Session, form *model.Form) string {
	answers := BuildAnswerContext(session, form.Catalog())
	cc := ClosingContext{
		BusinessName: form.BusinessName,
		FormTitle:    form.Title,
		LeadStatus:   session.Lead.Status,
		FinalScore:   session.Lead.FinalScore,
		VisitorName:  visitorName(answers),
		Answers:      answers,
	}

	genCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	message, err := r.generator.ComposeClosing(genCtx, cc)
	if err == nil && strings.TrimSpace(message) != "" {
		return message
	}
	r.logger.Warn("closing message generation failed, using generic acknowledgment",
		"session_id", session.ID, "error", err)
	r.metrics.TextGenFallback("closing")
	return FallbackClosing(cc)
}

func completionOf(session *model.Session) *model.Completion {
	return &model.Completion{
		CompletionType:    session.CompletionType,
		LeadStatus:        session.Lead.Status,
		FinalScore:        session.Lead.FinalScore,
		CompletionMessage: session.CompletionMessage,
	}
}
