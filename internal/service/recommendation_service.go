package service

import (
	"context"
	"exam_prep_backend/internal/irt"
	"exam_prep_backend/internal/repository"
)

const (
	defaultRecommendLimit = 5
	maxRecommendLimit     = 50
)

type RecommendationService struct {
	Profiles *repository.StudentProfileRepository
	Tests    *repository.TestRepository
}

func NewRecommendationService(profiles *repository.StudentProfileRepository, tests *repository.TestRepository) *RecommendationService {
	return &RecommendationService{Profiles: profiles, Tests: tests}
}

type RecommendedQuestion struct {
	QuestionID         string  `json:"questionId"`
	TestID             string  `json:"testId"`
	Topic              string  `json:"topic,omitempty"`
	Difficulty         float64 `json:"difficulty"`
	ProbabilityCorrect float64 `json:"probabilityCorrect"`
}

type Recommendation struct {
	Ability          float64               `json:"ability"`
	Band             irt.Band              `json:"band"`
	TargetDifficulty float64               `json:"targetDifficulty"`
	Questions        []RecommendedQuestion `json:"questions"`
}

// Recommend 目标难度取当前能力，返回难度最接近的客观题
func (s *RecommendationService) Recommend(ctx context.Context, studentID uint, limit int) (*Recommendation, error) {
	if limit <= 0 {
		limit = defaultRecommendLimit
	}
	if limit > maxRecommendLimit {
		limit = maxRecommendLimit
	}

	profile, err := s.Profiles.FindByUserID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	target := irt.RecommendedDifficulty(profile.Ability)

	qs, err := s.Tests.FindNearestDifficulty(ctx, target, limit)
	if err != nil {
		return nil, err
	}

	rec := &Recommendation{
		Ability:          profile.Ability,
		Band:             irt.BandFor(profile.Ability),
		TargetDifficulty: target,
		Questions:        make([]RecommendedQuestion, 0, len(qs)),
	}
	for _, q := range qs {
		p, err := irt.ProbabilityCorrect(profile.Ability, q.Difficulty)
		if err != nil {
			return nil, err
		}
		rec.Questions = append(rec.Questions, RecommendedQuestion{
			QuestionID:         q.ID,
			TestID:             q.TestID,
			Topic:              q.Topic,
			Difficulty:         q.Difficulty,
			ProbabilityCorrect: irt.Round3(p),
		})
	}
	return rec, nil
}
