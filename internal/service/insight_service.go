package service

import (
	"context"
	"errors"

	"leadflow/internal/cache"
	"leadflow/internal/model"
	"leadflow/internal/repository"
)

// ErrInsightsUnavailable is returned when Redis is not configured
var ErrInsightsUnavailable = errors.New("insights require redis")

// InsightService answers host queries about leads and form conversion
type InsightService struct {
	board    cache.LeadBoard
	funnel   cache.FunnelCache
	outcomes repository.OutcomeRepo
}

// NewInsightService creates a new insight service. board and funnel may be nil.
func NewInsightService(board cache.LeadBoard, funnel cache.FunnelCache, outcomes repository.OutcomeRepo) *InsightService {
	return &InsightService{
		board:    board,
		funnel:   funnel,
		outcomes: outcomes,
	}
}

// TopLeads returns a client's best qualified leads
func (s *InsightService) TopLeads(ctx context.Context, clientID string, limit int) ([]model.LeadEntry, error) {
	if s.board == nil {
		return nil, ErrInsightsUnavailable
	}
	return s.board.Top(ctx, clientID, limit)
}

// Funnel returns the conversion counters of a form
func (s *InsightService) Funnel(ctx context.Context, formID string) (*model.FormFunnel, error) {
	if s.funnel == nil {
		return nil, ErrInsightsUnavailable
	}
	return s.funnel.Get(ctx, formID)
}

// Outcome returns the completion record of a session
func (s *InsightService) Outcome(ctx context.Context, sessionID string) (*model.Outcome, error) {
	outcome, err := s.outcomes.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if outcome == nil {
		return nil, ErrSessionNotFound
	}
	return outcome, nil
}
