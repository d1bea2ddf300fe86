package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"leadflow/internal/model"
	"leadflow/internal/repository"
)

// ProcessResult reports which pending responses were accepted
type ProcessResult struct {
	Accepted []model.Response
	Rejected []model.ValidationError
}

// ResponseProcessor validates pending answers and merges them into the session
type ResponseProcessor struct {
	responses repository.ResponseRepo
	queue     *PersistQueue
	monitor   *AbandonmentMonitor
	logger    *slog.Logger
}

// NewResponseProcessor creates a new response processor. A nil queue skips
// response persistence, the session record still carries every response.
func NewResponseProcessor(responses repository.ResponseRepo, queue *PersistQueue, monitor *AbandonmentMonitor, logger *slog.Logger) *ResponseProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResponseProcessor{
		responses: responses,
		queue:     queue,
		monitor:   monitor,
		logger:    logger,
	}
}

// Process validates each pending response on its own: a bad item is rejected
// and the rest of the batch still goes through. Accepted responses are appended,
// never overwritten. Nothing is written to the response store here; call
// Persist once the session record holding them is saved.
func (p *ResponseProcessor) Process(ctx context.Context, pending []model.PendingResponse, session *model.Session, form *model.Form, now time.Time) (ProcessResult, error) {
	var result ProcessResult
	if err := session.EnsureMutable(); err != nil {
		return result, err
	}

	session.LastUpdated = now
	if len(pending) == 0 {
		return result, nil
	}

	rules := form.Rules.Effective()
	catalog := form.Catalog()
	inBatch := map[string]bool{}

	for _, pr := range pending {
		qid := strings.TrimSpace(pr.QuestionID)
		answer := strings.TrimSpace(pr.Answer)

		reject := func(reason string) {
			ve := model.ValidationError{QuestionID: qid, Reason: reason}
			result.Rejected = append(result.Rejected, ve)
			p.logger.Warn("response rejected", "session_id", session.ID, "question_id", qid, "reason", reason)
		}

		q, known := catalog[qid]
		switch {
		case qid == "":
			reject("question_id is required")
			continue
		case answer == "":
			reject("answer is required")
			continue
		case !known:
			reject("unknown question")
			continue
		case !session.HasAsked(qid):
			reject("question was not presented")
			continue
		case session.HasAnswered(qid) || inBatch[qid]:
			reject("question already answered")
			continue
		}
		inBatch[qid] = true

		match, err := AwardPoints(q, answer, rules.DefaultPoints)
		if err != nil {
			p.logger.Error("rubric error while awarding points", "session_id", session.ID, "question_id", qid, "error", err)
		}

		response := model.Response{
			SessionID:    session.ID,
			QuestionID:   qid,
			Answer:       answer,
			Timestamp:    now,
			Step:         session.Step,
			ScoreAwarded: match.Points,
		}
		session.Responses = append(session.Responses, response)
		result.Accepted = append(result.Accepted, response)
	}

	if len(result.Accepted) > 0 {
		p.monitor.Reset(&session.Engagement, now)
	}
	return result, nil
}

// Persist queues accepted responses for the response store
func (p *ResponseProcessor) Persist(responses []model.Response) {
	for _, r := range responses {
		p.persist(r)
	}
}

func (p *ResponseProcessor) persist(response model.Response) {
	if p.queue == nil || p.responses == nil {
		return
	}
	err := p.queue.Submit(PersistTask{
		Name:      "save_response",
		SessionID: response.SessionID,
		Run: func(ctx context.Context) error {
			r := response
			return p.responses.Save(ctx, &r)
		},
	})
	if err != nil {
		p.logger.Error("response not queued for persistence", "session_id", response.SessionID,
			"question_id", response.QuestionID, "error", err)
	}
}
