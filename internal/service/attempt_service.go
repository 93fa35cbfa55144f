package service

import (
	"context"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/repository"
	"time"
)

type AttemptService struct {
	Repo *repository.AttemptRepository
}

func NewAttemptService(repo *repository.AttemptRepository) *AttemptService {
	return &AttemptService{Repo: repo}
}

// AttemptSummary 列表项，不带逐题明细
type AttemptSummary struct {
	ID            string    `json:"id"`
	TestID        string    `json:"testId"`
	SessionID     string    `json:"sessionId,omitempty"`
	Score         float64   `json:"score"`
	Grade         string    `json:"grade"`
	AbilityBefore float64   `json:"abilityBefore"`
	AbilityAfter  float64   `json:"abilityAfter"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (s *AttemptService) List(ctx context.Context, studentID uint, page, limit int) ([]AttemptSummary, int64, error) {
	attempts, total, err := s.Repo.ListByStudent(ctx, studentID, page, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]AttemptSummary, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, summarizeAttempt(a))
	}
	return out, total, nil
}

func summarizeAttempt(a model.TestAttempt) AttemptSummary {
	return AttemptSummary{
		ID:            a.ID,
		TestID:        a.TestID,
		SessionID:     a.SessionID,
		Score:         a.Score,
		Grade:         a.Grade,
		AbilityBefore: a.AbilityBefore,
		AbilityAfter:  a.AbilityAfter,
		CreatedAt:     a.CreatedAt,
	}
}
